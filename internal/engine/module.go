package engine

import (
	"context"
	"fmt"
	"log/slog"

	ctxengine "github.com/flemzord/writenow/internal/context"
	"github.com/flemzord/writenow/internal/core"
	"github.com/flemzord/writenow/internal/cron"
	"github.com/flemzord/writenow/internal/memory"
	"github.com/flemzord/writenow/internal/provider"
	"github.com/flemzord/writenow/internal/security"
	"github.com/flemzord/writenow/internal/telemetry"
	"gopkg.in/yaml.v3"
)

// ModuleID is the registered id of the engine module.
const ModuleID = "engine.context"

// ServiceName is the AppContext key under which the *Engine is published.
const ServiceName = "engine"

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Starter      = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
	_ core.Reloader     = (*Module)(nil)
)

// Module runs the Engine inside the application lifecycle.
type Module struct {
	config    Config
	workspace string
	engine    *Engine
	scheduler *cron.Scheduler
	logger    *slog.Logger
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  ModuleID,
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("engine: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner. The memory store, summary model,
// redactor, audit logger and metrics are optional services.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger
	m.workspace = ctx.Workspace

	opts := Options{
		Projects: m.config.roots(ctx.Workspace),
		Debounce: m.config.Debounce,
		Assembler: ctxengine.Config{
			CharsPerToken: m.config.CharsPerToken,
			MaxScanChars:  m.config.MaxScanChars,
		},
		DefaultBudget:   m.config.budget(),
		MemoryMaxItems:  m.config.Memory.MaxItems,
		MemoryMaxTokens: m.config.Memory.MaxTokens,
		SummaryTimeout:  m.config.Summary.Timeout,
		Logger:          ctx.Logger,
	}
	if svc, ok := ctx.Service("memory.store"); ok {
		opts.MemoryStore, _ = svc.(memory.Store)
	}
	if svc, ok := ctx.Service("provider.summary"); ok {
		opts.SummaryModel, _ = svc.(provider.Provider)
	}
	if svc, ok := ctx.Service("security.redactor"); ok {
		opts.Redactor, _ = svc.(*security.Redactor)
	}
	if svc, ok := ctx.Service("security.audit"); ok {
		opts.Audit, _ = svc.(*security.AuditLogger)
	}
	if svc, ok := ctx.Service("telemetry.metrics"); ok {
		opts.Metrics, _ = svc.(*telemetry.Metrics)
	}

	m.engine = New(opts)
	ctx.RegisterService(ServiceName, m.engine)

	m.logger.Info("engine provisioned",
		"projects", m.engine.Projects(),
		"summary_model", opts.SummaryModel != nil,
		"persistent_memory", opts.MemoryStore != nil,
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Start implements core.Starter.
func (m *Module) Start() error {
	if m.config.Watch {
		if err := m.startWatchers(); err != nil {
			return err
		}
	}
	if !m.config.backfillEnabled() {
		return nil
	}
	m.scheduler = cron.NewScheduler(m.logger)
	if err := m.scheduler.RegisterJob(&cron.SummaryBackfillJob{
		Backfill:     m.engine.Backfill(),
		Logger:       m.logger,
		ScheduleExpr: m.config.Summary.Schedule,
	}); err != nil {
		return err
	}
	return m.scheduler.Start()
}

func (m *Module) startWatchers() error {
	for _, id := range m.engine.Projects() {
		if _, err := m.engine.WatchStart(context.Background(), id); err != nil {
			return fmt.Errorf("engine: watch %s: %w", id, err)
		}
	}
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(ctx context.Context) error {
	if m.scheduler != nil {
		if err := m.scheduler.Stop(ctx); err != nil {
			m.logger.Warn("backfill scheduler stop failed", "error", err)
		}
	}
	if m.engine != nil {
		m.engine.Close()
	}
	return nil
}

// Reload implements core.Reloader. Only the project table and watch flag
// change at runtime; other settings need a restart.
func (m *Module) Reload(ctx *core.AppContext) error {
	var cfg Config
	if node, ok := ctx.ModuleConfig(ModuleID); ok {
		if err := node.Decode(&cfg); err != nil {
			return fmt.Errorf("engine: decode config: %w", err)
		}
	}
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return err
	}

	m.config.Projects = cfg.Projects
	m.config.Watch = cfg.Watch
	m.engine.SetProjects(cfg.roots(m.workspace))
	m.logger.Info("engine reloaded", "projects", m.engine.Projects(), "watch", cfg.Watch)

	if cfg.Watch {
		return m.startWatchers()
	}
	return nil
}

// Engine returns the running engine.
func (m *Module) Engine() *Engine {
	return m.engine
}
