// Package memory holds the learned and manual preference items injected
// into the stable system prompt, and the per-project injection settings.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ItemType classifies a memory item.
type ItemType string

// Item types.
const (
	TypePreference ItemType = "preference"
	TypeFeedback   ItemType = "feedback"
	TypeStyle      ItemType = "style"
)

// Origin records who created a memory item.
type Origin string

// Item origins. Learned items are written by the learning pipeline and are
// hidden in privacy mode; manual items are always eligible.
const (
	OriginManual  Origin = "manual"
	OriginLearned Origin = "learned"
)

// Item is a single memory entry.
type Item struct {
	ID        string    `json:"id"`
	Type      ItemType  `json:"type"`
	Origin    Origin    `json:"origin"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// Validate checks the item's enumerations and required fields.
func (i Item) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return errors.New("memory: item id is required")
	}
	switch i.Type {
	case TypePreference, TypeFeedback, TypeStyle:
	default:
		return fmt.Errorf("memory: item %s: unknown type %q", i.ID, i.Type)
	}
	switch i.Origin {
	case OriginManual, OriginLearned:
	default:
		return fmt.Errorf("memory: item %s: unknown origin %q", i.ID, i.Origin)
	}
	return nil
}

// Settings are the per-project injection switches.
type Settings struct {
	InjectionEnabled bool `json:"injectionEnabled"`
	PrivacyMode      bool `json:"privacyMode"`
}

// DefaultSettings applies to projects that never stored settings.
func DefaultSettings() Settings {
	return Settings{InjectionEnabled: true}
}

// ErrItemNotFound indicates the requested item does not exist.
var ErrItemNotFound = errors.New("memory: item not found")

// Store persists memory items and settings per project.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put stores an item, replacing one with the same id.
	Put(ctx context.Context, projectID string, item Item) error

	// List returns every item of a project ordered by id.
	List(ctx context.Context, projectID string) ([]Item, error)

	// Delete removes an item by id.
	Delete(ctx context.Context, projectID, id string) error

	// Settings returns the project's settings, or DefaultSettings.
	Settings(ctx context.Context, projectID string) (Settings, error)

	// SetSettings replaces the project's settings.
	SetSettings(ctx context.Context, projectID string, s Settings) error
}
