package engine

import (
	"context"

	"github.com/flemzord/writenow/internal/knowledge"
	"github.com/flemzord/writenow/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Rules implements rules:get. Per-file failures are returned in the
// result's Errors, never as the call's error.
func (e *Engine) Rules(ctx context.Context, projectID string, refresh bool) (knowledge.Result, error) {
	return e.read(ctx, projectID, knowledge.SourceRules, refresh)
}

// Settings returns the settings/*.md documents as fragments.
func (e *Engine) Settings(ctx context.Context, projectID string, refresh bool) (knowledge.Result, error) {
	return e.read(ctx, projectID, knowledge.SourceSettings, refresh)
}

// Characters returns the characters/*.md documents as fragments.
func (e *Engine) Characters(ctx context.Context, projectID string, refresh bool) (knowledge.Result, error) {
	return e.read(ctx, projectID, knowledge.SourceCharacters, refresh)
}

func (e *Engine) read(ctx context.Context, projectID string, kind knowledge.SourceKind, refresh bool) (res knowledge.Result, err error) {
	ctx, span := e.tracer.Start(ctx, "engine."+string(kind)+".get", trace.WithAttributes(
		attribute.String("project", projectID),
		attribute.Bool("refresh", refresh),
	))
	defer func() { telemetry.EndSpan(span, err) }()

	p, err := e.project(projectID)
	if err != nil {
		return knowledge.Result{}, err
	}
	switch kind {
	case knowledge.SourceRules:
		res = p.knowledge.Rules.Get(ctx, refresh)
	case knowledge.SourceSettings:
		res = p.knowledge.Settings.Get(ctx, refresh)
	default:
		res = p.knowledge.Characters.Get(ctx, refresh)
	}

	for _, se := range res.Errors {
		e.metrics.SourceError(string(kind), string(se.Code))
	}
	span.SetAttributes(attribute.Int("fragments", len(res.Fragments)), attribute.Int("errors", len(res.Errors)))
	return res, nil
}
