package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const shutdownTimeout = 30 * time.Second

// App owns the loaded modules of one writenow process and drives them
// through start, reload and stop in dependency order.
type App struct {
	ctx     *AppContext
	modules []*moduleInstance
	logger  *slog.Logger
}

type moduleInstance struct {
	id      ModuleID
	module  Module
	started bool
}

// NewApp creates an App whose modules are provisioned from ctx.
func NewApp(ctx *AppContext) *App {
	return &App{
		ctx:    ctx,
		logger: ctx.Logger.With("component", "core"),
	}
}

// LoadModules provisions the modules in ids, in order. Callers pass the
// order from config.Resolve so stores exist before the engine asks for
// them. On failure every module loaded so far is stopped and dropped.
func (a *App) LoadModules(ids []string) error {
	for _, id := range ids {
		mod, err := a.ctx.LoadModule(id)
		if err != nil {
			a.unwind(a.modules, false)
			a.modules = nil
			return fmt.Errorf("loading module %s: %w", id, err)
		}
		mi := &moduleInstance{id: mod.ModuleInfo().ID, module: mod}
		a.modules = append(a.modules, mi)
		a.logger.Info("module loaded", "module", string(mi.id))
	}
	return nil
}

// Module returns the loaded module instance for id.
func (a *App) Module(id string) (Module, bool) {
	for _, mi := range a.modules {
		if string(mi.id) == id {
			return mi.module, true
		}
	}
	return nil, false
}

// ModuleIDs lists the loaded modules in load order.
func (a *App) ModuleIDs() []string {
	ids := make([]string, len(a.modules))
	for i, mi := range a.modules {
		ids[i] = string(mi.id)
	}
	return ids
}

// Start starts the modules implementing Starter, in load order. When one
// fails, those already started are stopped again in reverse.
func (a *App) Start() error {
	for i, mi := range a.modules {
		s, ok := mi.module.(Starter)
		if !ok {
			continue
		}
		a.logger.Info("starting module", "module", string(mi.id))
		if err := s.Start(); err != nil {
			a.logger.Error("module start failed", "module", string(mi.id), "error", err)
			a.unwind(a.modules[:i], true)
			return fmt.Errorf("starting module %s: %w", mi.id, err)
		}
		mi.started = true
	}
	a.logger.Info("all modules started", "count", len(a.modules))
	return nil
}

// Stop stops the started modules in reverse load order.
func (a *App) Stop() {
	a.unwind(a.modules, true)
}

// unwind stops mods last to first under a shared deadline. With
// onlyStarted, modules that never started are skipped.
func (a *App) unwind(mods []*moduleInstance, onlyStarted bool) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for i := len(mods) - 1; i >= 0; i-- {
		mi := mods[i]
		if onlyStarted && !mi.started {
			continue
		}
		mi.started = false
		s, ok := mi.module.(Stopper)
		if !ok {
			continue
		}
		a.logger.Info("stopping module", "module", string(mi.id))
		if err := s.Stop(ctx); err != nil {
			a.logger.Error("module stop error", "module", string(mi.id), "error", err)
		}
	}
}

// ReloadModules hands ctx to every module implementing Reloader and
// returns the IDs that reloaded cleanly. A failing module does not stop
// the others; the failures are joined.
func (a *App) ReloadModules(ctx *AppContext) ([]string, error) {
	var (
		reloaded []string
		errs     []error
	)
	for _, mi := range a.modules {
		r, ok := mi.module.(Reloader)
		if !ok {
			continue
		}
		if err := r.Reload(ctx.ForModule(mi.id)); err != nil {
			a.logger.Error("module reload failed", "module", string(mi.id), "error", err)
			errs = append(errs, fmt.Errorf("reloading module %s: %w", mi.id, err))
			continue
		}
		reloaded = append(reloaded, string(mi.id))
	}
	return reloaded, errors.Join(errs...)
}
