// Package ctxengine assembles token-budgeted, cache-friendly prompts from
// layered knowledge fragments: rules, settings, retrieved passages and the
// immediate editor state.
package ctxengine

import (
	"fmt"
	"strings"
)

// Layer is a named bucket of fragments with its own sub-budget.
type Layer string

// The four layers, in rendering order.
const (
	LayerRules     Layer = "rules"
	LayerSettings  Layer = "settings"
	LayerRetrieved Layer = "retrieved"
	LayerImmediate Layer = "immediate"
)

// Layers lists every layer in rendering order.
var Layers = []Layer{LayerRules, LayerSettings, LayerRetrieved, LayerImmediate}

// Valid reports whether l is one of the four known layers.
func (l Layer) Valid() bool {
	switch l {
	case LayerRules, LayerSettings, LayerRetrieved, LayerImmediate:
		return true
	}
	return false
}

// SourceKind says where a fragment's content came from.
type SourceKind string

// Source kinds.
const (
	SourceFile   SourceKind = "file"
	SourceModule SourceKind = "module"
	SourceUser   SourceKind = "user"
)

// Source is the provenance of a fragment.
type Source struct {
	Kind SourceKind `json:"kind"`
	// Path is relative to the project's knowledge root for file sources.
	Path string `json:"path,omitempty"`
	// ID identifies module and user sources.
	ID string `json:"id,omitempty"`
	// Digest is the sha256 of the file bytes that produced the fragment.
	Digest string `json:"digest,omitempty"`
}

// ImmediateKind names the editor-derived fragments of the immediate layer.
type ImmediateKind string

// Immediate fragment kinds, in rendering order.
const (
	ImmediateCurrentParagraph  ImmediateKind = "current-paragraph"
	ImmediateSurroundingBefore ImmediateKind = "surrounding-before"
	ImmediateSurroundingAfter  ImmediateKind = "surrounding-after"
	ImmediateSelectedText      ImmediateKind = "selected-text"
	ImmediateUserInstruction   ImmediateKind = "user-instruction"
)

// UserInstructionID is the id of the one required fragment of every assembly.
const UserInstructionID = "immediate:" + string(ImmediateUserInstruction)

// immediatePriority ranks editor fragments for eviction; higher survives longer.
var immediatePriority = map[ImmediateKind]int{
	ImmediateSelectedText:      40,
	ImmediateCurrentParagraph:  30,
	ImmediateSurroundingBefore: 20,
	ImmediateSurroundingAfter:  10,
}

// Fragment is a unit of context content with provenance, an estimated token
// cost and a priority. Build fragments with the per-layer constructors so
// the id always carries its layer prefix.
type Fragment struct {
	ID              string `json:"id"`
	Layer           Layer  `json:"layer"`
	Source          Source `json:"source"`
	Content         string `json:"content"`
	EstimatedTokens int    `json:"estimatedTokens"`
	Priority        int    `json:"priority"`
	Required        bool   `json:"required"`
}

// LocalID returns the id without its "<layer>:" prefix.
func (f Fragment) LocalID() string {
	return strings.TrimPrefix(f.ID, string(f.Layer)+":")
}

// Validate checks the invariants every fragment must hold.
func (f Fragment) Validate() error {
	if !f.Layer.Valid() {
		return Errorf(CodeInvalidArgument, "fragment %q: unknown layer %q", f.ID, f.Layer)
	}
	if !strings.HasPrefix(f.ID, string(f.Layer)+":") || f.LocalID() == "" {
		return Errorf(CodeInvalidArgument, "fragment %q: id must have the form %s:<id>", f.ID, f.Layer)
	}
	if f.ID == UserInstructionID && !f.Required {
		return Errorf(CodeInvalidArgument, "fragment %q must be required", f.ID)
	}
	return nil
}

// RuleFragment builds a rules-layer fragment for a file under rules/.
func RuleFragment(name, content, digest string, priority int) Fragment {
	return Fragment{
		ID:       "rules:" + name,
		Layer:    LayerRules,
		Source:   Source{Kind: SourceFile, Path: "rules/" + name, Digest: digest},
		Content:  content,
		Priority: priority,
	}
}

// SettingsFragment builds a settings-layer fragment for a settings or
// character document; relPath is relative to the knowledge root
// (e.g. "characters/alice.md").
func SettingsFragment(relPath, content, digest string, priority int) Fragment {
	return Fragment{
		ID:       "settings:" + relPath,
		Layer:    LayerSettings,
		Source:   Source{Kind: SourceFile, Path: relPath, Digest: digest},
		Content:  content,
		Priority: priority,
	}
}

// RetrievedFragment builds a retrieved-layer fragment from an already
// ranked passage supplied by the retrieval collaborator.
func RetrievedFragment(id, content string, priority int) Fragment {
	return Fragment{
		ID:       "retrieved:" + id,
		Layer:    LayerRetrieved,
		Source:   Source{Kind: SourceModule, ID: id},
		Content:  content,
		Priority: priority,
	}
}

// ImmediateFragment builds an editor-derived immediate fragment. The user
// instruction is always required.
func ImmediateFragment(kind ImmediateKind, content string) Fragment {
	f := Fragment{
		ID:       "immediate:" + string(kind),
		Layer:    LayerImmediate,
		Source:   Source{Kind: SourceUser, ID: string(kind)},
		Content:  content,
		Priority: immediatePriority[kind],
	}
	if kind == ImmediateUserInstruction {
		f.Required = true
	}
	return f
}

// UserInstruction builds the required immediate:user-instruction fragment.
func UserInstruction(text string) Fragment {
	return ImmediateFragment(ImmediateUserInstruction, text)
}

// EditorContext is the live editor state around the cursor.
type EditorContext struct {
	CurrentParagraph  string `json:"currentParagraph,omitempty"`
	SurroundingBefore string `json:"surroundingBefore,omitempty"`
	SurroundingAfter  string `json:"surroundingAfter,omitempty"`
	SelectedText      string `json:"selectedText,omitempty"`
}

// Fragments returns the non-empty editor fragments in rendering order.
func (e EditorContext) Fragments() []Fragment {
	pairs := []struct {
		kind    ImmediateKind
		content string
	}{
		{ImmediateCurrentParagraph, e.CurrentParagraph},
		{ImmediateSurroundingBefore, e.SurroundingBefore},
		{ImmediateSurroundingAfter, e.SurroundingAfter},
		{ImmediateSelectedText, e.SelectedText},
	}
	out := make([]Fragment, 0, len(pairs))
	for _, p := range pairs {
		if strings.TrimSpace(p.content) == "" {
			continue
		}
		out = append(out, ImmediateFragment(p.kind, p.content))
	}
	return out
}

// Text joins every editor field, used by entity detection.
func (e EditorContext) Text() string {
	return strings.Join([]string{e.SurroundingBefore, e.CurrentParagraph, e.SelectedText, e.SurroundingAfter}, "\n")
}

// Skill is the consumed shape of a skill definition.
type Skill struct {
	ID                string   `json:"id" yaml:"id"`
	Name              string   `json:"name" yaml:"name"`
	OutputConstraints []string `json:"outputConstraints,omitempty" yaml:"output_constraints"`
	OutputFormat      string   `json:"outputFormat,omitempty" yaml:"output_format"`
}

// Validate requires an id.
func (s Skill) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return Errorf(CodeInvalidArgument, "skill id is required")
	}
	return nil
}

// MemoryNote is a preference injected into the stable prefix.
type MemoryNote struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

func (n MemoryNote) String() string {
	return fmt.Sprintf("- [%s] %s", n.Type, n.Content)
}
