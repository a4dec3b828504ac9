package ctxengine

import (
	"cmp"
	"slices"
	"unicode/utf8"

	"github.com/flemzord/writenow/internal/security"
)

// redactionLookahead is how far past MaxScanChars redaction scans so a
// secret straddling the cut is still caught whole.
const redactionLookahead = 256

// Request contains the inputs for one assembly. Rules is the RuleStore
// snapshot; Settings and Retrieved are already resolved by the caller.
type Request struct {
	ProjectID       string
	Model           string
	Budget          Budget
	Skill           Skill
	Editor          EditorContext
	UserInstruction string

	Rules     []Fragment
	Settings  []Fragment
	Retrieved []Fragment
	Memory    []MemoryNote
}

// AssembledContext is the output of an assembly.
type AssembledContext struct {
	SystemPrompt     string         `json:"systemPrompt"`
	UserContent      string         `json:"userContent"`
	TokenStats       TokenStats     `json:"tokenStats"`
	BudgetEvidence   BudgetEvidence `json:"budgetEvidence"`
	Fragments        []Fragment     `json:"fragments"`
	StablePrefixHash string         `json:"stablePrefixHash"`
	PromptHash       string         `json:"promptHash"`
	// Redactions counts secret-shaped substrings replaced during collection.
	Redactions int `json:"redactions"`
}

// ContextAssembler merges layered fragments into a budgeted, rendered prompt.
// It holds no mutable state and is safe for concurrent use.
type ContextAssembler struct {
	estimator  TokenEstimator
	compressor Compressor
	redactor   *security.Redactor
	config     Config
}

// NewContextAssembler creates a ContextAssembler. A nil estimator selects a
// CharEstimator with cfg.CharsPerToken.
func NewContextAssembler(estimator TokenEstimator, cfg Config) *ContextAssembler {
	cfg = cfg.withDefaults()
	if estimator == nil {
		estimator = NewCharEstimator(cfg.CharsPerToken)
	}
	return &ContextAssembler{
		estimator:  estimator,
		compressor: TruncateCompressor{},
		redactor:   security.NewRedactor(),
		config:     cfg,
	}
}

// SetCompressor replaces the settings-layer compressor. nil disables
// compression so over-budget settings are evicted directly.
func (a *ContextAssembler) SetCompressor(c Compressor) {
	a.compressor = c
}

// SetRedactor replaces the default redactor.
func (a *ContextAssembler) SetRedactor(r *security.Redactor) {
	if r != nil {
		a.redactor = r
	}
}

// Estimator returns the estimator used for both budgets and stats.
func (a *ContextAssembler) Estimator() TokenEstimator {
	return a.estimator
}

// Assemble builds the prompt for req.
//
// The assembly process:
//  1. Collect fragments per layer in their deterministic order
//  2. Bound, redact and estimate every fragment
//  3. Fit each layer (compress settings, then evict), then the total
//  4. Render the stable system prompt and the dynamic user content
//  5. Hash both for cache debugging
func (a *ContextAssembler) Assemble(req Request) (*AssembledContext, error) {
	if err := req.Budget.Validate(); err != nil {
		return nil, err
	}
	if err := req.Skill.Validate(); err != nil {
		return nil, err
	}

	layers, err := collect(req)
	if err != nil {
		return nil, err
	}

	redactions := 0
	for _, l := range Layers {
		for i := range layers[l] {
			f := &layers[l][i]
			content, n := a.sanitize(f.Content)
			redactions += n
			f.Content = content
			f.EstimatedTokens = a.estimator.Estimate(content)
		}
	}

	memory := make([]MemoryNote, len(req.Memory))
	for i, note := range req.Memory {
		content, n := a.sanitize(note.Content)
		redactions += n
		note.Content = content
		memory[i] = note
	}
	skill, n := a.sanitizeSkill(req.Skill)
	redactions += n

	enf := &enforcer{
		estimator:  a.estimator,
		compressor: a.compressor,
		budget:     req.Budget,
		evidence:   newEvidence(),
	}
	if err := enf.run(layers); err != nil {
		return nil, err
	}

	systemPrompt := injectMemory(renderSystemPrompt(skill, layers[LayerRules]), memory)
	instruction := ""
	for _, f := range layers[LayerImmediate] {
		if f.ID == UserInstructionID {
			instruction = f.Content
		}
	}
	userContent := renderUserContent(layers[LayerSettings], layers[LayerRetrieved], layers[LayerImmediate], instruction)

	frags := make([]Fragment, 0, len(layers[LayerRules])+len(layers[LayerSettings])+
		len(layers[LayerRetrieved])+len(layers[LayerImmediate]))
	for _, l := range Layers {
		frags = append(frags, layers[l]...)
	}

	return &AssembledContext{
		SystemPrompt:     systemPrompt,
		UserContent:      userContent,
		TokenStats:       computeStats(frags, req.Budget),
		BudgetEvidence:   enf.evidence,
		Fragments:        frags,
		StablePrefixHash: Hash(systemPrompt),
		PromptHash:       hashConcat(systemPrompt, userContent),
		Redactions:       redactions,
	}, nil
}

// collect validates caller fragments and orders each layer.
func collect(req Request) (map[Layer][]Fragment, error) {
	layers := map[Layer][]Fragment{
		LayerRules:     slices.Clone(req.Rules),
		LayerSettings:  slices.Clone(req.Settings),
		LayerRetrieved: slices.Clone(req.Retrieved),
		LayerImmediate: append(req.Editor.Fragments(), UserInstruction(req.UserInstruction)),
	}

	seen := make(map[string]struct{})
	for _, l := range Layers {
		for _, f := range layers[l] {
			if f.Layer != l {
				return nil, Errorf(CodeInvalidArgument, "fragment %q supplied as %s but belongs to %s", f.ID, l, f.Layer)
			}
			if err := f.Validate(); err != nil {
				return nil, err
			}
			if _, dup := seen[f.ID]; dup {
				return nil, Errorf(CodeInvalidArgument, "duplicate fragment id %q", f.ID)
			}
			seen[f.ID] = struct{}{}
		}
	}

	// Settings arrive in resolution order, encoded as descending priority.
	slices.SortStableFunc(layers[LayerSettings], func(a, b Fragment) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		return cmp.Compare(sectionTitle(a), sectionTitle(b))
	})
	slices.SortStableFunc(layers[LayerRetrieved], func(a, b Fragment) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return layers, nil
}

// sanitize caps content to MaxScanChars and redacts it.
func (a *ContextAssembler) sanitize(content string) (string, int) {
	limit := a.config.MaxScanChars
	if len(content) <= limit {
		return a.redactor.RedactCount(content)
	}
	window := truncateUTF8(content, limit+redactionLookahead)
	redacted, n := a.redactor.RedactCount(window)
	return truncateUTF8(redacted, limit), n
}

func (a *ContextAssembler) sanitizeSkill(s Skill) (Skill, int) {
	total := 0
	redact := func(v string) string {
		out, n := a.redactor.RedactCount(v)
		total += n
		return out
	}
	s.Name = redact(s.Name)
	s.OutputFormat = redact(s.OutputFormat)
	constraints := make([]string, len(s.OutputConstraints))
	for i, c := range s.OutputConstraints {
		constraints[i] = redact(c)
	}
	s.OutputConstraints = constraints
	return s, total
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
