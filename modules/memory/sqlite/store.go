package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/writenow/internal/memory"
)

// Put stores or replaces an item.
func (s *itemStore) Put(ctx context.Context, projectID string, item memory.Item) error {
	if err := item.Validate(); err != nil {
		return err
	}
	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO memory_items (project_id, id, type, origin, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		projectID, item.ID, string(item.Type), string(item.Origin), item.Content,
		createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite: put item: %w", err)
	}
	return nil
}

// List returns every item of a project ordered by id.
func (s *itemStore) List(ctx context.Context, projectID string) ([]memory.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, origin, content, created_at
		FROM memory_items
		WHERE project_id = ?
		ORDER BY id`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanItems(rows)
}

// Delete removes an item. Returns memory.ErrItemNotFound if it does not exist.
func (s *itemStore) Delete(ctx context.Context, projectID, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM memory_items WHERE project_id = ? AND id = ?", projectID, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete item: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return memory.ErrItemNotFound
	}
	return nil
}

// Settings returns the stored settings, or the configured defaults.
func (s *itemStore) Settings(ctx context.Context, projectID string) (memory.Settings, error) {
	var enabled, privacy bool
	err := s.db.QueryRowContext(ctx,
		"SELECT injection_enabled, privacy_mode FROM memory_settings WHERE project_id = ?",
		projectID,
	).Scan(&enabled, &privacy)
	if errors.Is(err, sql.ErrNoRows) {
		return s.defaults, nil
	}
	if err != nil {
		return memory.Settings{}, fmt.Errorf("sqlite: read settings: %w", err)
	}
	return memory.Settings{InjectionEnabled: enabled, PrivacyMode: privacy}, nil
}

// SetSettings upserts the project's settings.
func (s *itemStore) SetSettings(ctx context.Context, projectID string, st memory.Settings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_settings (project_id, injection_enabled, privacy_mode, updated_at)
		VALUES (?, ?, ?, strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		ON CONFLICT(project_id) DO UPDATE SET
			injection_enabled = excluded.injection_enabled,
			privacy_mode      = excluded.privacy_mode,
			updated_at        = excluded.updated_at`,
		projectID, st.InjectionEnabled, st.PrivacyMode,
	)
	if err != nil {
		return fmt.Errorf("sqlite: write settings: %w", err)
	}
	return nil
}

func scanItems(rows *sql.Rows) ([]memory.Item, error) {
	items := []memory.Item{}
	for rows.Next() {
		var (
			item         memory.Item
			typ, origin  string
			createdAtStr string
		)
		if err := rows.Scan(&item.ID, &typ, &origin, &item.Content, &createdAtStr); err != nil {
			return nil, fmt.Errorf("sqlite: scan item: %w", err)
		}
		item.Type = memory.ItemType(typ)
		item.Origin = memory.Origin(origin)

		if createdAtStr != "" {
			t, err := time.Parse(time.RFC3339Nano, createdAtStr)
			if err != nil {
				return nil, fmt.Errorf("sqlite: parse created_at %q: %w", createdAtStr, err)
			}
			item.CreatedAt = t
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: scan items rows: %w", err)
	}
	return items, nil
}
