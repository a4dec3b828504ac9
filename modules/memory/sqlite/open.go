package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flemzord/writenow/internal/memory"

	_ "modernc.org/sqlite" // SQLite driver registration
)

// OpenStore opens the SQLite database at path and returns a memory.Store
// backed by it, for tools that run outside the daemon. The caller closes
// the returned *sql.DB.
func OpenStore(ctx context.Context, path string) (memory.Store, *sql.DB, error) {
	cfg := Config{Path: path}
	cfg.defaults()
	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return newItemStore(db, cfg), db, nil
}

// openDB opens the database with a single connection (SQLite serialises
// writes), applies the PRAGMAs and migrates the schema.
func openDB(ctx context.Context, cfg Config) (*sql.DB, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}
	db.SetMaxOpenConns(1)

	if cfg.walEnabled() {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
