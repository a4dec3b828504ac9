package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are applied in order, each in its own transaction. The
// database's PRAGMA user_version records how many have run; append new
// steps, never edit shipped ones.
var migrations = [][]string{
	// 1: memory items and per-project injection settings.
	{
		`CREATE TABLE IF NOT EXISTS memory_items (
			project_id TEXT NOT NULL,
			id         TEXT NOT NULL,
			type       TEXT NOT NULL,
			origin     TEXT NOT NULL,
			content    TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			PRIMARY KEY (project_id, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_items_origin ON memory_items(project_id, origin)`,
		`CREATE TABLE IF NOT EXISTS memory_settings (
			project_id        TEXT PRIMARY KEY,
			injection_enabled INTEGER NOT NULL DEFAULT 1,
			privacy_mode      INTEGER NOT NULL DEFAULT 0,
			updated_at        TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,
	},
}

// migrate brings db up to len(migrations). Running it on an up-to-date
// database is a no-op.
func migrate(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("sqlite: read user_version: %w", err)
	}
	if version > len(migrations) {
		return fmt.Errorf("sqlite: database schema v%d is newer than this binary (v%d)", version, len(migrations))
	}
	for v := version; v < len(migrations); v++ {
		if err := applyMigration(ctx, db, v+1, migrations[v]); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, version int, stmts []string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: migration %d: %w", version, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migration %d: %w", version, err)
		}
	}
	// PRAGMA does not take bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("sqlite: migration %d: set user_version: %w", version, err)
	}
	return tx.Commit()
}
