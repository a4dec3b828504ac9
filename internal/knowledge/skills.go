package knowledge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	ctxengine "github.com/flemzord/writenow/internal/context"
	"gopkg.in/yaml.v3"
)

// Sentinel errors for skill parsing.
var (
	ErrMissingSkillID = errors.New("skill: missing required 'id' field")
)

// SkillSet is a snapshot of skills/*.md.
type SkillSet struct {
	Skills map[string]ctxengine.Skill
	Errors []SourceError
}

// SkillStore loads skill definitions from skills/*.md frontmatter.
type SkillStore struct {
	layout Layout
	logger *slog.Logger
	snap   *snapshot[SkillSet]
}

// NewSkillStore creates a SkillStore for layout.
func NewSkillStore(layout Layout, logger *slog.Logger) *SkillStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SkillStore{layout: layout, logger: logger.With("source", SourceSkills)}
	s.snap = newSnapshot(s.load)
	return s
}

// Lookup returns the skill with the given id.
func (s *SkillStore) Lookup(ctx context.Context, id string) (ctxengine.Skill, error) {
	set := s.snap.get(ctx, false)
	skill, ok := set.Skills[id]
	if !ok {
		return ctxengine.Skill{}, ctxengine.Errorf(ctxengine.CodeNotFound, "skill %q not found", id)
	}
	return skill, nil
}

// Get returns the current skill snapshot.
func (s *SkillStore) Get(ctx context.Context, refresh bool) SkillSet {
	return s.snap.get(ctx, refresh)
}

// Invalidate drops the snapshot.
func (s *SkillStore) Invalidate() {
	s.snap.invalidate()
}

func (s *SkillStore) load(_ context.Context) SkillSet {
	set := SkillSet{Skills: map[string]ctxengine.Skill{}, Errors: []SourceError{}}
	dir := s.layout.Dir(SourceSkills)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			set.Errors = append(set.Errors, SourceError{Path: string(SourceSkills), Code: ctxengine.CodeIOError, Message: err.Error()})
		}
		return set
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		rel := string(SourceSkills) + "/" + entry.Name()
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			set.Errors = append(set.Errors, SourceError{Path: rel, Code: ctxengine.CodeIOError, Message: err.Error()})
			continue
		}
		skill, err := ParseSkill(string(data), rel)
		if err != nil {
			s.logger.Warn("skill rejected", "path", rel, "error", err)
			set.Errors = append(set.Errors, SourceError{Path: rel, Code: ctxengine.CodeParseError, Message: err.Error()})
			continue
		}
		if _, dup := set.Skills[skill.ID]; dup {
			set.Errors = append(set.Errors, SourceError{Path: rel, Code: ctxengine.CodeConflict, Message: fmt.Sprintf("duplicate skill id %q", skill.ID)})
			continue
		}
		set.Skills[skill.ID] = skill
	}
	return set
}

// ParseSkill parses a skill file. The content must start with YAML
// frontmatter carrying at least an id.
func ParseSkill(content, path string) (ctxengine.Skill, error) {
	front, _, err := splitFrontmatter(content)
	if err != nil {
		return ctxengine.Skill{}, err
	}

	var skill ctxengine.Skill
	if err := yaml.Unmarshal([]byte(front), &skill); err != nil {
		return ctxengine.Skill{}, fmt.Errorf("skill: invalid YAML in %s: %w", path, err)
	}
	if strings.TrimSpace(skill.ID) == "" {
		return ctxengine.Skill{}, fmt.Errorf("%w in %s", ErrMissingSkillID, path)
	}
	if skill.Name == "" {
		skill.Name = skill.ID
	}
	return skill, nil
}
