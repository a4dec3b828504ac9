package conversation

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	ctxengine "github.com/flemzord/writenow/internal/context"
)

type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

// Now advances one second per call so saves get distinct timestamps.
func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	clock := &tickingClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	return NewStore(dirsUnder(root), clock.Now, nil), root
}

func dirsUnder(root string) DirResolver {
	return func(projectID string) (string, error) {
		if projectID == "missing" {
			return "", ctxengine.Errorf(ctxengine.CodeNotFound, "unknown project %q", projectID)
		}
		return filepath.Join(root, projectID, ".writenow", "conversations"), nil
	}
}

func testRecord(id, article string) Record {
	return Record{
		ID:        id,
		ArticleID: article,
		Messages: []Message{
			{Role: "user", Content: "Tighten the opening paragraph of chapter two."},
			{Role: "assistant", Content: "Here is a tighter version."},
		},
		SkillsUsed:    []string{"rewrite"},
		Outcome:       OutcomeAccepted,
		OriginalText:  "It was a dark and stormy night, and the rain fell.",
		SuggestedText: "Rain hammered the dark night.",
	}
}
