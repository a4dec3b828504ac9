// Package knowledge reads a project's file-backed knowledge: rule files,
// settings and character documents, and skill definitions. Each source keeps
// an atomically swapped snapshot that is rebuilt on demand.
package knowledge

import (
	"os"
	"path/filepath"
	"strings"
)

// DirName is the knowledge root inside a project.
const DirName = ".writenow"

// RuleFiles lists the rule files in prompt order.
var RuleFiles = []string{"style.md", "terminology.json", "constraints.json"}

// SourceKind identifies an independently cached knowledge source.
type SourceKind string

// Source kinds, named after their directory under the knowledge root.
const (
	SourceRules         SourceKind = "rules"
	SourceSettings      SourceKind = "settings"
	SourceCharacters    SourceKind = "characters"
	SourceSkills        SourceKind = "skills"
	SourceConversations SourceKind = "conversations"
)

// Layout resolves the on-disk paths of one project.
type Layout struct {
	// Root is the project directory that contains DirName.
	Root string
}

// NewLayout creates a Layout for the project at root.
func NewLayout(root string) Layout {
	return Layout{Root: root}
}

// KnowledgeRoot returns <root>/.writenow.
func (l Layout) KnowledgeRoot() string {
	return filepath.Join(l.Root, DirName)
}

// Dir returns the directory of a source kind.
func (l Layout) Dir(kind SourceKind) string {
	return filepath.Join(l.KnowledgeRoot(), string(kind))
}

// RulePath returns the path of one rule file.
func (l Layout) RulePath(name string) string {
	return filepath.Join(l.Dir(SourceRules), name)
}

// EnsureStructure creates the knowledge directory tree if it does not exist.
// Idempotent.
func (l Layout) EnsureStructure() error {
	for _, kind := range []SourceKind{SourceRules, SourceSettings, SourceCharacters, SourceSkills, SourceConversations} {
		if err := os.MkdirAll(l.Dir(kind), 0o755); err != nil {
			return err
		}
	}
	return nil
}

// Rel returns path relative to the knowledge root, slash-separated.
// ok is false when path lies outside the knowledge root.
func (l Layout) Rel(path string) (rel string, ok bool) {
	r, err := filepath.Rel(l.KnowledgeRoot(), path)
	if err != nil || r == "." || strings.HasPrefix(r, "..") {
		return "", false
	}
	return filepath.ToSlash(r), true
}

// Classify maps a knowledge-root relative path to the source it belongs to.
func Classify(rel string) (SourceKind, bool) {
	first, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	switch kind := SourceKind(first); kind {
	case SourceRules, SourceSettings, SourceCharacters, SourceSkills, SourceConversations:
		return kind, true
	}
	return "", false
}
