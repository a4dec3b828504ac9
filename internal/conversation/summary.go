package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/flemzord/writenow/internal/provider"
)

// DefaultSummaryTimeout bounds one call to the local summary model.
const DefaultSummaryTimeout = 8 * time.Second

const (
	summaryRunes      = 200
	summaryExcerpt    = 80
	summaryMaxTokens  = 120
	summaryMaxPerTurn = 1000
)

// SummaryInput is what a summary is generated from.
type SummaryInput struct {
	ConversationID string    `json:"id"`
	Messages       []Message `json:"messages"`
	Outcome        Outcome   `json:"outcome,omitempty"`
	OriginalText   string    `json:"originalText,omitempty"`
	SuggestedText  string    `json:"suggestedText,omitempty"`
}

// InputFromRecord rebuilds the summary input of a saved record.
func InputFromRecord(rec Record) SummaryInput {
	return SummaryInput{
		ConversationID: rec.ID,
		Messages:       rec.Messages,
		Outcome:        rec.Outcome,
		OriginalText:   rec.OriginalText,
		SuggestedText:  rec.SuggestedText,
	}
}

func (in SummaryInput) empty() bool {
	if strings.TrimSpace(in.OriginalText) != "" || strings.TrimSpace(in.SuggestedText) != "" {
		return false
	}
	for _, m := range in.Messages {
		if strings.TrimSpace(m.Content) != "" {
			return false
		}
	}
	return true
}

// Summary is a generated summary and how it was produced.
type Summary struct {
	ID             string         `json:"id"`
	Summary        string         `json:"summary"`
	SummaryQuality SummaryQuality `json:"summaryQuality"`
}

// SummaryGenerator prefers the local model and degrades to an extractive
// heuristic on any model failure. It never returns an error.
type SummaryGenerator struct {
	model   provider.Provider
	timeout time.Duration
	logger  *slog.Logger
}

// NewSummaryGenerator creates a generator. model may be nil, in which case
// every summary is heuristic.
func NewSummaryGenerator(model provider.Provider, timeout time.Duration, logger *slog.Logger) *SummaryGenerator {
	if timeout <= 0 {
		timeout = DefaultSummaryTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SummaryGenerator{model: model, timeout: timeout, logger: logger.With("component", "summary")}
}

// Generate summarizes in. The result is non-empty whenever in has any text.
func (g *SummaryGenerator) Generate(ctx context.Context, in SummaryInput) Summary {
	out := Summary{ID: in.ConversationID}
	if in.empty() {
		out.SummaryQuality = QualityHeuristic
		return out
	}

	if g.model != nil {
		text, err := g.fromModel(ctx, in)
		if err == nil {
			out.Summary = text
			out.SummaryQuality = QualityModel
			return out
		}
		g.logger.Warn("summary model failed, using heuristic",
			"conversation", in.ConversationID, "model", g.model.ModelName(), "error", err)
	}

	out.Summary = heuristicSummary(in)
	out.SummaryQuality = QualityHeuristic
	return out
}

const summaryPrompt = `Summarize this writing-assistant conversation in one sentence of at most 30 words.
Mention what the writer asked for and whether the suggestion was kept. Reply with the sentence only.`

func (g *SummaryGenerator) fromModel(ctx context.Context, in SummaryInput) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var b strings.Builder
	for _, m := range in.Messages {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, truncateRunes(m.Content, summaryMaxPerTurn))
	}
	if in.Outcome != "" {
		fmt.Fprintf(&b, "outcome: %s\n", in.Outcome)
	}
	if in.SuggestedText != "" {
		fmt.Fprintf(&b, "suggestion: %s\n", truncateRunes(in.SuggestedText, summaryMaxPerTurn))
	}

	resp, err := g.model.Complete(ctx, provider.CompletionRequest{
		Messages:  provider.Prompt(summaryPrompt, b.String()),
		MaxTokens: summaryMaxTokens,
	})
	if err != nil {
		return "", err
	}
	if resp.Truncated() {
		g.logger.Debug("summary model hit its token limit", "conversation", in.ConversationID)
	}
	text := strings.Join(strings.Fields(resp.Content), " ")
	if text == "" {
		return "", fmt.Errorf("summary model returned empty content")
	}
	return truncateRunes(text, summaryRunes), nil
}

// heuristicSummary builds a summary from the outcome and the accepted or
// rejected suggestion, falling back to the conversation's last user turn.
func heuristicSummary(in SummaryInput) string {
	request := lastUserTurn(in.Messages)
	suggestion := excerpt(in.SuggestedText)
	original := excerpt(in.OriginalText)

	var parts []string
	if request != "" {
		parts = append(parts, "Asked: "+excerpt(request))
	}
	switch {
	case suggestion != "" && in.Outcome != "":
		parts = append(parts, fmt.Sprintf("Suggestion %s: %q", in.Outcome, suggestion))
	case suggestion != "":
		parts = append(parts, fmt.Sprintf("Suggested: %q", suggestion))
	case in.Outcome != "":
		parts = append(parts, "Outcome: "+string(in.Outcome))
	}
	if original != "" && len(parts) < 2 {
		parts = append(parts, fmt.Sprintf("Original: %q", original))
	}
	if len(parts) == 0 {
		for i := len(in.Messages) - 1; i >= 0; i-- {
			if c := excerpt(in.Messages[i].Content); c != "" {
				parts = append(parts, c)
				break
			}
		}
	}
	return truncateRunes(strings.Join(parts, ". "), summaryRunes)
}

func lastUserTurn(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" && strings.TrimSpace(msgs[i].Content) != "" {
			return msgs[i].Content
		}
	}
	return ""
}

func excerpt(s string) string {
	return truncateRunes(strings.Join(strings.Fields(s), " "), summaryExcerpt)
}
