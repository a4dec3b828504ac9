package engine

import (
	"context"
	"errors"
	"path"
	"strconv"
	"strings"
	"time"

	ctxengine "github.com/flemzord/writenow/internal/context"
	"github.com/flemzord/writenow/internal/entity"
	"github.com/flemzord/writenow/internal/knowledge"
	"github.com/flemzord/writenow/internal/memory"
	"github.com/flemzord/writenow/internal/security"
	"github.com/flemzord/writenow/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RetrievedPassage is one ranked passage from the caller's retrieval step.
type RetrievedPassage struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Priority int    `json:"priority"`
}

// AssembleInput is the assembleContext request.
type AssembleInput struct {
	ProjectID string            `json:"projectId"`
	Model     string            `json:"model,omitempty"`
	Budget    *ctxengine.Budget `json:"budget,omitempty"`

	// Skill is an inline definition; SkillID names one under skills/.
	// Exactly one is needed.
	Skill   *ctxengine.Skill `json:"skill,omitempty"`
	SkillID string           `json:"skillId,omitempty"`

	EditorContext   ctxengine.EditorContext `json:"editorContext"`
	UserInstruction string                  `json:"userInstruction"`

	// Settings lists knowledge-root relative documents, such as
	// "characters/Alice.md". When nil, the documents are resolved from the
	// entities mentioned in the editor context.
	Settings  []string           `json:"settings,omitempty"`
	Retrieved []RetrievedPassage `json:"retrieved,omitempty"`

	// RequestID is echoed into the audit trail.
	RequestID string `json:"requestId,omitempty"`
}

// AssembleContext implements assembleContext.
func (e *Engine) AssembleContext(ctx context.Context, in AssembleInput) (out *ctxengine.AssembledContext, err error) {
	ctx, span := e.tracer.Start(ctx, "engine.assemble", trace.WithAttributes(
		attribute.String("project", in.ProjectID),
		attribute.String("model", in.Model),
	))
	start := e.clock.Now()
	defer func() {
		e.recordAssembly(in, out, err, e.clock.Now().Sub(start))
		telemetry.EndSpan(span, err)
	}()

	p, err := e.project(in.ProjectID)
	if err != nil {
		return nil, err
	}
	skill, err := e.skill(ctx, p, in)
	if err != nil {
		return nil, err
	}
	budget := e.defaultBudget
	if in.Budget != nil {
		budget = *in.Budget
	}

	settings, err := e.settings(ctx, p, in)
	if err != nil {
		return nil, err
	}

	retrieved := make([]ctxengine.Fragment, len(in.Retrieved))
	for i, r := range in.Retrieved {
		retrieved[i] = ctxengine.RetrievedFragment(r.ID, r.Content, r.Priority)
	}

	var notes []ctxengine.MemoryNote
	preview, perr := e.injector.Preview(ctx, in.ProjectID)
	if perr != nil {
		e.logger.Warn("memory preview failed, assembling without memory", "project", in.ProjectID, "error", perr)
	} else {
		notes = memory.Notes(preview.Injected.Memory)
	}

	rules := p.knowledge.Rules.Get(ctx, false)
	span.SetAttributes(
		attribute.Int("fragments.rules", len(rules.Fragments)),
		attribute.Int("fragments.settings", len(settings)),
		attribute.Int("fragments.retrieved", len(retrieved)),
	)

	return e.assembler.Assemble(ctxengine.Request{
		ProjectID:       in.ProjectID,
		Model:           in.Model,
		Budget:          budget,
		Skill:           skill,
		Editor:          in.EditorContext,
		UserInstruction: in.UserInstruction,
		Rules:           rules.Fragments,
		Settings:        settings,
		Retrieved:       retrieved,
		Memory:          notes,
	})
}

func (e *Engine) skill(ctx context.Context, p *project, in AssembleInput) (ctxengine.Skill, error) {
	switch {
	case in.Skill != nil:
		return *in.Skill, nil
	case in.SkillID != "":
		return p.knowledge.Skills.Lookup(ctx, in.SkillID)
	}
	return ctxengine.Skill{}, ctxengine.Errorf(ctxengine.CodeInvalidArgument, "skill or skillId is required")
}

// settings resolves the settings layer. Explicit paths that cannot be
// loaded are skipped; entity lookup failures degrade to the documents that
// did resolve.
func (e *Engine) settings(ctx context.Context, p *project, in AssembleInput) ([]ctxengine.Fragment, error) {
	sources := []entity.Source{p.knowledge.Characters, p.knowledge.Settings}
	if in.Settings == nil {
		docs, err := entity.Lookup(ctx, sources, entity.ScanText(in.EditorContext))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Warn("entity lookup incomplete", "project", p.id, "error", err)
		}
		return entity.Fragments(docs), nil
	}

	docs := make([]entity.ResolvedDocument, 0, len(in.Settings))
	seen := make(map[string]bool, len(in.Settings))
	for _, rel := range in.Settings {
		rel = path.Clean(strings.TrimPrefix(rel, "/"))
		if seen[rel] {
			continue
		}
		seen[rel] = true
		kind, ok := knowledge.Classify(rel)
		var src entity.Source
		switch {
		case ok && kind == knowledge.SourceCharacters:
			src = p.knowledge.Characters
		case ok && kind == knowledge.SourceSettings:
			src = p.knowledge.Settings
		default:
			return nil, ctxengine.Errorf(ctxengine.CodeInvalidArgument, "%s is not a settings or characters document", rel)
		}
		stem := strings.TrimSuffix(path.Base(rel), ".md")
		doc, err := src.Lookup(ctx, stem)
		if err != nil {
			e.logger.Warn("settings document skipped", "project", p.id, "path", rel, "error", err)
			continue
		}
		docs = append(docs, entity.ResolvedDocument{Kind: kind, Document: doc})
	}
	return entity.Fragments(docs), nil
}

func (e *Engine) recordAssembly(in AssembleInput, out *ctxengine.AssembledContext, err error, d time.Duration) {
	o := telemetry.AssemblyOutcome{Result: telemetry.ResultOK, Duration: d}
	skill := in.SkillID
	if in.Skill != nil {
		skill = in.Skill.ID
	}

	if err != nil {
		code := ctxengine.CodeOf(err)
		switch {
		case errors.Is(err, ctxengine.ErrBudgetImpossible):
			o.Result = telemetry.ResultImpossible
		case code == ctxengine.CodeInvalidArgument || code == ctxengine.CodeNotFound:
			o.Result = telemetry.ResultInvalid
		default:
			o.Result = telemetry.ResultError
		}
		e.metrics.ObserveAssembly(o)
		e.audit.Log(security.AuditEvent{
			Type:      security.EventAssemblyFailed,
			ProjectID: in.ProjectID,
			Skill:     skill,
			RequestID: in.RequestID,
			Detail:    err.Error(),
			Metadata:  map[string]string{"code": string(code)},
		})
		return
	}

	o.TokensUsed = out.TokenStats.Total.Used
	o.Evicted = make(map[string]int)
	for _, r := range out.BudgetEvidence.Removed {
		o.Evicted[string(r.Layer)]++
	}
	o.Compressed = len(out.BudgetEvidence.Compressed)
	o.Redactions = out.Redactions
	e.metrics.ObserveAssembly(o)

	e.audit.Log(security.AuditEvent{
		Type:      security.EventAssembly,
		ProjectID: in.ProjectID,
		Skill:     skill,
		RequestID: in.RequestID,
		Metadata: map[string]string{
			"model":              in.Model,
			"stable_prefix_hash": out.StablePrefixHash,
			"prompt_hash":        out.PromptHash,
			"removed":            strconv.Itoa(len(out.BudgetEvidence.Removed)),
			"compressed":         strconv.Itoa(o.Compressed),
			"tokens":             strconv.Itoa(o.TokensUsed),
		},
	})
	if out.Redactions > 0 {
		e.audit.Log(security.AuditEvent{
			Type:      security.EventRedaction,
			ProjectID: in.ProjectID,
			RequestID: in.RequestID,
			Metadata:  map[string]string{"count": strconv.Itoa(out.Redactions)},
		})
	}
}
