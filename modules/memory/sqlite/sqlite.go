// Package sqlite implements a persistent memory.Store on modernc.org/sqlite
// (pure Go, no CGO) in WAL mode.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/flemzord/writenow/internal/core"
	"github.com/flemzord/writenow/internal/memory"
	"gopkg.in/yaml.v3"
)

const (
	// ModuleID names the module in the configuration file.
	ModuleID = "memory.sqlite"
	// ServiceName is the AppContext key the engine resolves the store by.
	ServiceName = "memory.store"

	openTimeout = 10 * time.Second
)

func init() {
	core.RegisterModule(&Module{})
}

var (
	_ memory.Store      = (*itemStore)(nil)
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module opens the memory database at provision time and publishes it as
// the memory.store service. It is loaded before engine.context.
type Module struct {
	config Config
	db     *sql.DB
	logger *slog.Logger
	store  *itemStore
}

// itemStore is the memory.Store over one database. Projects share the
// file and are told apart by project_id.
type itemStore struct {
	db       *sql.DB
	defaults memory.Settings // returned for projects with no settings row
}

func newItemStore(db *sql.DB, cfg Config) *itemStore {
	return &itemStore{db: db, defaults: cfg.settings()}
}

func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  ModuleID,
		New: func() core.Module { return &Module{} },
	}
}

func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("sqlite: decode config: %w", err)
	}
	return nil
}

// Provision opens and migrates the database. A relative or empty path
// lands in the data directory.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger
	switch {
	case m.config.Path == "":
		m.config.Path = filepath.Join(ctx.DataDir, defaultDBFile)
	case !filepath.IsAbs(m.config.Path):
		m.config.Path = filepath.Join(ctx.DataDir, m.config.Path)
	}

	openCtx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()
	db, err := openDB(openCtx, m.config)
	if err != nil {
		return err
	}
	m.db = db
	m.store = newItemStore(db, m.config)
	ctx.RegisterService(ServiceName, memory.Store(m.store))

	m.logger.Info("memory database ready",
		"path", m.config.Path,
		"wal", m.config.walEnabled(),
		"privacy_default", m.store.defaults.PrivacyMode,
	)
	return nil
}

func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return err
	}
	pingCtx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()
	if err := m.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("sqlite: ping %s: %w", m.config.Path, err)
	}
	return nil
}

// Stop closes the database. Safe on a module whose Provision failed.
func (m *Module) Stop(context.Context) error {
	if m.db == nil {
		return nil
	}
	m.logger.Info("closing memory database", "path", m.config.Path)
	err := m.db.Close()
	m.db = nil
	return err
}

// Store returns the provisioned store.
func (m *Module) Store() memory.Store {
	return m.store
}
