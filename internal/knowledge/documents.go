package knowledge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	ctxengine "github.com/flemzord/writenow/internal/context"
	"github.com/flemzord/writenow/internal/fsx"
	"gopkg.in/yaml.v3"
)

// Document is a parsed settings or character file.
type Document struct {
	// Name is the file stem, which is also the primary entity name.
	Name string `json:"name"`
	// Path is relative to the knowledge root, e.g. "characters/alice.md".
	Path    string   `json:"path"`
	Aliases []string `json:"aliases,omitempty"`
	Body    string   `json:"-"`
	Digest  string   `json:"digest"`
}

// Names returns the entity names that refer to this document.
func (d Document) Names() []string {
	return append([]string{d.Name}, d.Aliases...)
}

// documentMeta is the optional frontmatter of a document.
type documentMeta struct {
	Aliases []string `yaml:"aliases"`
}

// DocumentSet is a snapshot of one document directory.
type DocumentSet struct {
	Documents []Document
	Errors    []SourceError
}

// DocumentStore loads every *.md file of settings/ or characters/.
type DocumentStore struct {
	kind   SourceKind
	layout Layout
	logger *slog.Logger
	snap   *snapshot[DocumentSet]
}

// NewSettingsStore creates the store for settings/*.md.
func NewSettingsStore(layout Layout, logger *slog.Logger) *DocumentStore {
	return newDocumentStore(SourceSettings, layout, logger)
}

// NewCharacterStore creates the store for characters/*.md.
func NewCharacterStore(layout Layout, logger *slog.Logger) *DocumentStore {
	return newDocumentStore(SourceCharacters, layout, logger)
}

func newDocumentStore(kind SourceKind, layout Layout, logger *slog.Logger) *DocumentStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &DocumentStore{kind: kind, layout: layout, logger: logger.With("source", kind)}
	s.snap = newSnapshot(s.load)
	return s
}

// Kind returns the source kind the store reads.
func (s *DocumentStore) Kind() SourceKind {
	return s.kind
}

// Get returns every document as a settings-layer fragment, ordered by file
// name, plus per-file errors.
func (s *DocumentStore) Get(ctx context.Context, refresh bool) Result {
	set := s.snap.get(ctx, refresh)
	res := Result{
		Fragments: make([]ctxengine.Fragment, 0, len(set.Documents)),
		Errors:    slices.Clone(set.Errors),
	}
	for _, d := range set.Documents {
		res.Fragments = append(res.Fragments, d.Fragment(0))
	}
	return res
}

// Documents returns the current document snapshot.
func (s *DocumentStore) Documents(ctx context.Context) []Document {
	return slices.Clone(s.snap.get(ctx, false).Documents)
}

// Lookup finds a document by file stem. A stem whose file failed to load
// reports that failure as an error.
func (s *DocumentStore) Lookup(ctx context.Context, stem string) (Document, error) {
	set := s.snap.get(ctx, false)
	for _, d := range set.Documents {
		if d.Name == stem {
			return d, nil
		}
	}
	rel := path.Join(string(s.kind), stem+".md")
	for _, e := range set.Errors {
		if e.Path == rel {
			return Document{}, ctxengine.Errorf(e.Code, "%s: %s", rel, e.Message)
		}
	}
	return Document{}, ctxengine.Errorf(ctxengine.CodeNotFound, "%s: no such document", rel)
}

// Invalidate drops the snapshot; the next read re-scans the directory.
func (s *DocumentStore) Invalidate() {
	s.snap.invalidate()
}

// Fragment converts the document into a settings-layer fragment.
func (d Document) Fragment(priority int) ctxengine.Fragment {
	return ctxengine.SettingsFragment(d.Path, d.Body, d.Digest, priority)
}

func (s *DocumentStore) load(_ context.Context) DocumentSet {
	set := DocumentSet{Documents: []Document{}, Errors: []SourceError{}}
	dir := s.layout.Dir(s.kind)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			set.Errors = append(set.Errors, SourceError{Path: string(s.kind), Code: ctxengine.CodeIOError, Message: err.Error()})
		}
		return set
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		rel := string(s.kind) + "/" + entry.Name()
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			code := ctxengine.CodeIOError
			if errors.Is(err, fs.ErrNotExist) {
				code = ctxengine.CodeNotFound
			}
			set.Errors = append(set.Errors, SourceError{Path: rel, Code: code, Message: err.Error()})
			continue
		}
		doc, err := parseDocument(rel, data)
		if err != nil {
			s.logger.Warn("document rejected", "path", rel, "error", err)
			set.Errors = append(set.Errors, SourceError{Path: rel, Code: ctxengine.CodeParseError, Message: err.Error()})
			continue
		}
		set.Documents = append(set.Documents, doc)
	}
	return set
}

func parseDocument(rel string, data []byte) (Document, error) {
	if !utf8.Valid(data) {
		return Document{}, errors.New("file is not valid UTF-8")
	}
	doc := Document{
		Name:   strings.TrimSuffix(path.Base(rel), ".md"),
		Path:   rel,
		Digest: fsx.DigestBytes(data),
	}

	front, body, err := splitFrontmatter(string(data))
	switch {
	case errors.Is(err, ErrNoFrontmatter):
		doc.Body = strings.TrimSpace(string(data))
	case err != nil:
		return Document{}, err
	default:
		var meta documentMeta
		if err := yaml.Unmarshal([]byte(front), &meta); err != nil {
			return Document{}, fmt.Errorf("invalid YAML frontmatter: %w", err)
		}
		doc.Aliases = meta.Aliases
		doc.Body = strings.TrimSpace(body)
	}
	return doc, nil
}
