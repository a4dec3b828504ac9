package knowledge

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	ctxengine "github.com/flemzord/writenow/internal/context"
	"github.com/flemzord/writenow/internal/fsx"
)

// rulePriority ranks rule files for eviction; constraints survive longest.
var rulePriority = map[string]int{
	"style.md":         10,
	"terminology.json": 20,
	"constraints.json": 30,
}

// RuleStore loads rules/style.md, rules/terminology.json and
// rules/constraints.json, in that order.
type RuleStore struct {
	layout Layout
	logger *slog.Logger
	snap   *snapshot[Result]
}

// NewRuleStore creates a RuleStore for layout.
func NewRuleStore(layout Layout, logger *slog.Logger) *RuleStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &RuleStore{layout: layout, logger: logger.With("source", SourceRules)}
	s.snap = newSnapshot(s.load)
	return s
}

// Get returns the rule fragments and per-file errors. refresh bypasses the
// snapshot and re-reads from disk before returning.
func (s *RuleStore) Get(ctx context.Context, refresh bool) Result {
	return s.snap.get(ctx, refresh).clone()
}

// Invalidate drops the snapshot; the next Get re-reads.
func (s *RuleStore) Invalidate() {
	s.snap.invalidate()
}

func (s *RuleStore) load(_ context.Context) Result {
	res := Result{Fragments: []ctxengine.Fragment{}, Errors: []SourceError{}}
	for _, name := range RuleFiles {
		rel := "rules/" + name
		data, err := os.ReadFile(s.layout.RulePath(name))
		if err != nil {
			code := ctxengine.CodeIOError
			if errors.Is(err, fs.ErrNotExist) {
				code = ctxengine.CodeNotFound
			}
			res.fail(rel, code, err)
			continue
		}
		frag, err := ruleFragment(name, data)
		if err != nil {
			s.logger.Warn("rule file rejected", "path", rel, "error", err)
			res.fail(rel, ctxengine.CodeParseError, err)
			continue
		}
		res.Fragments = append(res.Fragments, frag)
	}
	s.logger.Debug("rules loaded", "fragments", len(res.Fragments), "errors", len(res.Errors))
	return res
}

func ruleFragment(name string, data []byte) (ctxengine.Fragment, error) {
	if !utf8.Valid(data) {
		return ctxengine.Fragment{}, errors.New("file is not valid UTF-8")
	}
	var digest string
	switch filepath.Ext(name) {
	case ".json":
		if err := validateRuleJSON(name, data); err != nil {
			return ctxengine.Fragment{}, err
		}
		d, err := fsx.DigestJSON(data)
		if err != nil {
			return ctxengine.Fragment{}, err
		}
		digest = d
	default:
		digest = fsx.DigestBytes(data)
	}
	content := strings.TrimSpace(string(data))
	return ctxengine.RuleFragment(name, content, digest, rulePriority[name]), nil
}
