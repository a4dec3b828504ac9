package engine

import (
	"context"

	ctxengine "github.com/flemzord/writenow/internal/context"
	"github.com/flemzord/writenow/internal/conversation"
	"github.com/flemzord/writenow/internal/security"
	"github.com/flemzord/writenow/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SaveConversation implements conversations:save. The index entry starts
// with a placeholder summary; GenerateSummary or the backfill job replaces
// it.
func (e *Engine) SaveConversation(ctx context.Context, projectID string, rec conversation.Record) (item conversation.IndexItem, err error) {
	ctx, span := e.tracer.Start(ctx, "engine.conversations.save", trace.WithAttributes(
		attribute.String("project", projectID),
		attribute.String("article", rec.ArticleID),
	))
	defer func() { telemetry.EndSpan(span, err) }()

	if _, err := e.project(projectID); err != nil {
		return conversation.IndexItem{}, err
	}
	item, err = e.conversations.Save(ctx, projectID, rec)
	if err != nil {
		return conversation.IndexItem{}, err
	}
	e.metrics.ConversationSaved()
	e.audit.Log(security.AuditEvent{
		Type:      security.EventConversation,
		ProjectID: projectID,
		Detail:    item.ID,
		Metadata:  map[string]string{"article": item.ArticleID},
	})
	return item, nil
}

// ListConversations implements conversations:list, newest first.
func (e *Engine) ListConversations(ctx context.Context, projectID, articleID string, limit int) ([]conversation.IndexItem, error) {
	return e.conversations.List(ctx, projectID, articleID, limit)
}

// GetConversation returns the full record of one conversation.
func (e *Engine) GetConversation(ctx context.Context, projectID, id string) (conversation.Record, error) {
	return e.conversations.Get(ctx, projectID, id)
}

// GenerateSummary implements generateConversationSummary. The summary is
// always returned; when the conversation is in the index its entry is
// updated, and a failure to do so is reported alongside the summary.
func (e *Engine) GenerateSummary(ctx context.Context, projectID string, in conversation.SummaryInput) (sum conversation.Summary, err error) {
	ctx, span := e.tracer.Start(ctx, "engine.conversations.summary", trace.WithAttributes(
		attribute.String("project", projectID),
		attribute.String("conversation", in.ConversationID),
	))
	defer func() { telemetry.EndSpan(span, err) }()

	if _, err := e.project(projectID); err != nil {
		return conversation.Summary{}, err
	}
	sum = e.summaries.Generate(ctx, in)
	e.metrics.Summary(string(sum.SummaryQuality))
	span.SetAttributes(attribute.String("quality", string(sum.SummaryQuality)))
	e.audit.Log(security.AuditEvent{
		Type:      security.EventSummary,
		ProjectID: projectID,
		Detail:    in.ConversationID,
		Metadata:  map[string]string{"quality": string(sum.SummaryQuality)},
	})

	if in.ConversationID == "" || sum.Summary == "" {
		return sum, nil
	}
	_, err = e.conversations.UpdateSummary(ctx, projectID, in.ConversationID, sum.Summary, sum.SummaryQuality)
	if ctxengine.CodeOf(err) == ctxengine.CodeNotFound {
		return sum, nil
	}
	return sum, err
}
