package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
)

// InMemoryStore is a thread-safe, in-memory implementation of Store.
type InMemoryStore struct {
	mu       sync.RWMutex
	items    map[string]map[string]Item // project → id → item
	settings map[string]Settings
}

// NewInMemoryStore creates a new empty memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		items:    make(map[string]map[string]Item),
		settings: make(map[string]Settings),
	}
}

// Compile-time interface check.
var _ Store = (*InMemoryStore)(nil)

// Put stores an item, replacing one with the same id.
func (s *InMemoryStore) Put(_ context.Context, projectID string, item Item) error {
	if err := item.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	project, ok := s.items[projectID]
	if !ok {
		project = make(map[string]Item)
		s.items[projectID] = project
	}
	project[item.ID] = item
	return nil
}

// List returns every item of a project ordered by id.
func (s *InMemoryStore) List(_ context.Context, projectID string) ([]Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := slices.Collect(maps.Values(s.items[projectID]))
	slices.SortFunc(items, func(a, b Item) int { return cmp.Compare(a.ID, b.ID) })
	return items, nil
}

// Delete removes an item by id.
func (s *InMemoryStore) Delete(_ context.Context, projectID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[projectID][id]; !ok {
		return ErrItemNotFound
	}
	delete(s.items[projectID], id)
	return nil
}

// Settings returns the project's settings, or DefaultSettings.
func (s *InMemoryStore) Settings(_ context.Context, projectID string) (Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.settings[projectID]; ok {
		return st, nil
	}
	return DefaultSettings(), nil
}

// SetSettings replaces the project's settings.
func (s *InMemoryStore) SetSettings(_ context.Context, projectID string, st Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[projectID] = st
	return nil
}
