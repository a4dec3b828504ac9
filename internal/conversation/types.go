// Package conversation persists assistant conversations under a project's
// .writenow/conversations directory and maintains their summaries.
package conversation

import (
	"regexp"
	"strings"
	"time"

	ctxengine "github.com/flemzord/writenow/internal/context"
)

// SummaryQuality records how an index summary was produced.
type SummaryQuality string

// Summary qualities, from weakest to strongest.
const (
	QualityPlaceholder SummaryQuality = "placeholder"
	QualityHeuristic   SummaryQuality = "heuristic"
	QualityModel       SummaryQuality = "model"
)

// Outcome is what the writer did with the assistant's suggestion.
type Outcome string

// Known outcomes. Other values are stored verbatim.
const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
	OutcomeEdited   Outcome = "edited"
)

// Message is one turn of a conversation.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserPreferences lists suggestions the writer accepted or rejected.
type UserPreferences struct {
	Accepted []string `json:"accepted"`
	Rejected []string `json:"rejected"`
}

// Record is the full conversation, stored as conversations/<id>.json.
// The outcome fields are kept so a summary can be regenerated later.
type Record struct {
	ID              string           `json:"id"`
	ArticleID       string           `json:"articleId"`
	Messages        []Message        `json:"messages"`
	SkillsUsed      []string         `json:"skillsUsed"`
	UserPreferences *UserPreferences `json:"userPreferences,omitempty"`
	Outcome         Outcome          `json:"outcome,omitempty"`
	OriginalText    string           `json:"originalText,omitempty"`
	SuggestedText   string           `json:"suggestedText,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// IndexItem is one entry of conversations/index.json.
type IndexItem struct {
	ID              string           `json:"id"`
	ArticleID       string           `json:"articleId"`
	FullPath        string           `json:"fullPath"`
	SkillsUsed      []string         `json:"skillsUsed"`
	Summary         string           `json:"summary"`
	SummaryQuality  SummaryQuality   `json:"summaryQuality"`
	UserPreferences *UserPreferences `json:"userPreferences,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// validateID rejects ids that cannot be used as a file name.
func validateID(id string) error {
	if !idPattern.MatchString(id) || id == "index" || strings.Contains(id, "..") {
		return ctxengine.Errorf(ctxengine.CodeInvalidArgument, "invalid conversation id %q", id)
	}
	return nil
}

// Validate checks a record before it is saved. An empty id is allowed; the
// store assigns one.
func (r Record) Validate() error {
	if r.ID != "" {
		if err := validateID(r.ID); err != nil {
			return err
		}
	}
	if len(r.Messages) == 0 {
		return ctxengine.Errorf(ctxengine.CodeInvalidArgument, "conversation has no messages")
	}
	for i, m := range r.Messages {
		if strings.TrimSpace(m.Role) == "" {
			return ctxengine.Errorf(ctxengine.CodeInvalidArgument, "message %d has no role", i)
		}
	}
	return nil
}
