// Package gateway serves the engine's boundary calls over HTTP and a
// websocket change feed, plus health, Prometheus metrics and a small admin
// surface. It binds to loopback by default and follows the module system
// pattern.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/flemzord/writenow/internal/core"
	"github.com/flemzord/writenow/internal/engine"
	"github.com/flemzord/writenow/internal/provider"
	"github.com/flemzord/writenow/internal/security"
	"github.com/flemzord/writenow/internal/telemetry"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Reloader reloads the configuration file at path.
type Reloader interface {
	HandleReload(ctx context.Context, path string) error
}

// Gateway is the HTTP gateway module. It is a leaf module; nothing imports it.
type Gateway struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time

	// Resolved lazily at Start() via service registry.
	engine     *engine.Engine
	metrics    *telemetry.Metrics
	audit      *security.AuditLogger
	summary    provider.Provider
	reloader   Reloader
	configPath string
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.appCtx = ctx
	g.logger = ctx.Logger
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return errors.New("gateway: invalid bind address: " + g.config.Bind)
	}
	if !g.config.Auth.IsConfigured() && !isLoopback(g.config.Bind) {
		g.logger.Warn("gateway exposed beyond loopback without auth", "bind", g.config.Bind)
	}
	return nil
}

// Start implements core.Starter. It resolves dependencies from the service
// registry (lazy binding) and starts the HTTP server.
func (g *Gateway) Start() error {
	g.resolveServices()
	if g.engine == nil {
		return errors.New("gateway: engine service not available (is engine.context configured?)")
	}
	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// resolveServices binds optional services; missing ones degrade gracefully.
func (g *Gateway) resolveServices() {
	if svc, ok := g.appCtx.Service(engine.ServiceName); ok {
		g.engine, _ = svc.(*engine.Engine)
	}
	if svc, ok := g.appCtx.Service("telemetry.metrics"); ok {
		g.metrics, _ = svc.(*telemetry.Metrics)
	}
	if svc, ok := g.appCtx.Service("security.audit"); ok {
		g.audit, _ = svc.(*security.AuditLogger)
	}
	if svc, ok := g.appCtx.Service("provider.summary"); ok {
		g.summary, _ = svc.(provider.Provider)
	}
	if svc, ok := g.appCtx.Service("reload.handler"); ok {
		g.reloader, _ = svc.(Reloader)
	}
	if svc, ok := g.appCtx.Service("config.path"); ok {
		g.configPath, _ = svc.(string)
	}
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
// Open websocket feeds are closed by their request contexts.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}

func isLoopback(bind string) bool {
	host, _, err := net.SplitHostPort(bind)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
