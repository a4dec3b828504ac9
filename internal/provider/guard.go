package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flemzord/writenow/internal/clock"
)

// Guarded wraps the summary model with a backoff. While the model is
// backing off, Complete fails fast with ErrProviderDown so summaries fall
// back to the heuristic right away. A down model is probed with
// HealthCheck at most once per ProbeInterval, when it implements
// HealthChecker.
type Guarded struct {
	inner  Provider
	health *backoff
	logger *slog.Logger

	probeMu   sync.Mutex
	lastProbe time.Time
}

// NewGuarded wraps p. A nil clk uses wall time.
func NewGuarded(p Provider, cfg HealthConfig, clk clock.Clock, logger *slog.Logger) *Guarded {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Guarded{inner: p, health: newBackoff(cfg, clk), logger: logger.With("model", p.ModelName())}
	g.health.onChange = func(from, to string) {
		g.logger.Info("summary model availability changed", "from", from, "to", to)
	}
	return g
}

var _ Provider = (*Guarded)(nil)

// ModelName implements Provider.
func (g *Guarded) ModelName() string {
	return g.inner.ModelName()
}

// Available reports whether a call would reach the wrapped model.
func (g *Guarded) Available() bool {
	return g.health.ready()
}

// Status returns the current backoff state.
func (g *Guarded) Status() Availability {
	return g.health.snapshot()
}

// Complete implements Provider.
func (g *Guarded) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	if !g.health.ready() && !g.probe(ctx) {
		return CompletionResponse{}, fmt.Errorf("%w: %s is %s", ErrProviderDown, g.inner.ModelName(), g.Status().State)
	}

	resp, err := g.inner.Complete(ctx, req)
	switch {
	case err == nil:
		g.health.succeed()
	case errors.Is(err, context.Canceled):
		// The caller gave up; says nothing about the model.
	case IsRetryable(err), errors.Is(err, context.DeadlineExceeded):
		g.health.fail()
	}
	return resp, err
}

// probe health-checks a down model inline and reports whether it recovered.
func (g *Guarded) probe(ctx context.Context) bool {
	hc, ok := g.inner.(HealthChecker)
	if !ok || g.Status().State != StateDown {
		return false
	}

	g.probeMu.Lock()
	now := g.health.clk.Now()
	if !g.lastProbe.IsZero() && now.Sub(g.lastProbe) < g.health.cfg.ProbeInterval {
		g.probeMu.Unlock()
		return false
	}
	g.lastProbe = now
	g.probeMu.Unlock()

	if err := hc.HealthCheck(ctx); err != nil {
		g.logger.Debug("summary model probe failed", "error", err)
		return false
	}
	g.health.succeed()
	return true
}
