package reload

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/flemzord/writenow/internal/config"
	"github.com/flemzord/writenow/internal/core"
)

// Outcome describes one configuration reload attempt.
type Outcome struct {
	Path     string    `json:"path"`
	At       time.Time `json:"at"`
	Reloaded []string  `json:"reloaded,omitempty"`
	// Modules added to or removed from the file only take effect on restart.
	RestartRequired []string `json:"restart_required,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// Handler applies an edited configuration file to the running modules.
// SIGHUP and the admin API both land here, so attempts are serialized.
type Handler struct {
	app    *core.App
	base   *core.AppContext
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	last Outcome
}

// NewHandler returns a Handler reloading app. base supplies the shared
// services and directories the modules were provisioned with.
func NewHandler(app *core.App, base *core.AppContext) *Handler {
	return &Handler{
		app:    app,
		base:   base,
		logger: base.Logger.With("component", "reload"),
		now:    time.Now,
	}
}

// HandleReload loads and validates the file at path, then calls Reload on
// every module implementing core.Reloader. A file that fails to load or
// validate leaves the running configuration untouched.
func (h *Handler) HandleReload(ctx context.Context, path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := Outcome{Path: path, At: h.now()}
	err := h.apply(ctx, path, &out)
	if err != nil {
		out.Error = err.Error()
	}
	h.last = out
	return err
}

func (h *Handler) apply(ctx context.Context, path string, out *Outcome) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("reload abandoned: %w", err)
	}

	out.RestartRequired = moduleDiff(h.app.ModuleIDs(), config.Resolve(cfg))
	if len(out.RestartRequired) > 0 {
		h.logger.Warn("module set changed; restart to apply", "modules", out.RestartRequired)
	}

	reloaded, err := h.app.ReloadModules(h.base.WithModuleConfigs(cfg.Modules))
	out.Reloaded = reloaded
	if err != nil {
		return err
	}
	h.logger.Info("configuration reloaded", "path", path, "modules", reloaded)
	return nil
}

// Last returns the most recent attempt. The zero Outcome means none yet.
func (h *Handler) Last() Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

// moduleDiff lists the IDs present in exactly one of running and wanted.
func moduleDiff(running, wanted []string) []string {
	var diff []string
	for _, id := range wanted {
		if !slices.Contains(running, id) {
			diff = append(diff, id)
		}
	}
	for _, id := range running {
		if !slices.Contains(wanted, id) {
			diff = append(diff, id)
		}
	}
	slices.Sort(diff)
	return diff
}
