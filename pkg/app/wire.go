package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/flemzord/writenow/internal/config"
	"github.com/flemzord/writenow/internal/core"
	"github.com/flemzord/writenow/internal/engine"
	"github.com/flemzord/writenow/internal/reload"
	"github.com/flemzord/writenow/internal/security"
	"github.com/flemzord/writenow/internal/telemetry"
)

// AuditFileName is the JSONL audit trail under the data directory.
const AuditFileName = "audit.jsonl"

// Runtime is a provisioned application: configuration loaded, ambient
// services registered and every configured module provisioned. Nothing is
// started; Run starts it, one-shot commands use the engine directly.
type Runtime struct {
	Config     *config.Config
	ConfigPath string
	Logger     *slog.Logger
	Redactor   *security.Redactor
	Audit      *security.AuditLogger
	Metrics    *telemetry.Metrics
	AppCtx     *core.AppContext
	App        *core.App
	Reload     *reload.Handler

	auditFile       *os.File
	shutdownTracing telemetry.ShutdownFunc
}

// Open loads configuration and provisions every configured module.
// The caller must Close the returned Runtime.
func Open(ctx context.Context, params RunParams) (*Runtime, error) {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := config.ResolvePath()
		if err != nil {
			return nil, err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	redactor := security.NewRedactor()
	registerSecrets(redactor, cfg)

	logger, err := newLogger(cfg.Log, params.LogLevel, params.logOutput(), redactor)
	if err != nil {
		return nil, err
	}

	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	workspace := params.Workspace
	if workspace == "" {
		workspace = DefaultWorkspace()
	}

	rt := &Runtime{
		Config:          cfg,
		ConfigPath:      cfgPath,
		Logger:          logger,
		Redactor:        redactor,
		Metrics:         telemetry.NewMetrics(),
		shutdownTracing: func(context.Context) error { return nil },
	}

	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	rt.auditFile, err = os.OpenFile(filepath.Join(dataDir, AuditFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	rt.Audit = security.NewAuditLogger(security.AuditLoggerConfig{
		Writer:   rt.auditFile,
		Redactor: redactor,
	})

	shutdown, err := telemetry.SetupTracing(ctx, cfg.Telemetry, params.Version)
	if err != nil {
		// Tracing is optional; assembly works without an exporter.
		logger.Warn("tracing disabled", "error", err)
	}
	rt.shutdownTracing = shutdown

	appCtx := core.NewAppContext(logger, dataDir, workspace).WithModuleConfigs(cfg.Modules)
	appCtx.RegisterService("security.redactor", redactor)
	appCtx.RegisterService("security.audit", rt.Audit)
	appCtx.RegisterService("telemetry.metrics", rt.Metrics)
	appCtx.RegisterService("config.path", cfgPath)
	rt.AppCtx = appCtx

	rt.App = core.NewApp(appCtx)
	// The reload handler is registered before modules provision so the
	// gateway can resolve it at Start.
	rt.Reload = reload.NewHandler(rt.App, appCtx)
	appCtx.RegisterService("reload.handler", rt.Reload)

	if err := rt.App.LoadModules(config.Resolve(cfg)); err != nil {
		_ = rt.closeAmbient(ctx)
		return nil, err
	}
	return rt, nil
}

// Engine returns the engine provisioned by the engine.context module.
func (rt *Runtime) Engine() (*engine.Engine, error) {
	svc, ok := rt.AppCtx.Service(engine.ServiceName)
	if !ok {
		return nil, fmt.Errorf("module %s is not configured", engine.ModuleID)
	}
	eng, ok := svc.(*engine.Engine)
	if !ok {
		return nil, fmt.Errorf("service %q has unexpected type %T", engine.ServiceName, svc)
	}
	return eng, nil
}

// Close stops every module, flushes traces and closes the audit log.
func (rt *Runtime) Close(ctx context.Context) error {
	rt.App.Stop()
	return rt.closeAmbient(ctx)
}

func (rt *Runtime) closeAmbient(ctx context.Context) error {
	var errs []error
	if err := rt.shutdownTracing(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracing shutdown: %w", err))
	}
	if err := rt.auditFile.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing audit log: %w", err))
	}
	return errors.Join(errs...)
}

// newLogger builds the redacting slog logger. A non-empty override wins
// over the configured level.
func newLogger(lc *config.LogConfig, override string, w io.Writer, redactor *security.Redactor) (*slog.Logger, error) {
	var level, format string
	limit := security.DefaultLogValueLimit
	if lc != nil {
		level, format = lc.Level, lc.Format
		if lc.MaxValueLen != 0 {
			limit = lc.MaxValueLen
		}
	}
	if override != "" {
		level = override
	}

	var lvl slog.Level
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var inner slog.Handler
	if strings.EqualFold(format, "json") {
		inner = slog.NewJSONHandler(w, opts)
	} else {
		inner = slog.NewTextHandler(w, opts)
	}
	return slog.New(security.NewRedactingHandler(inner, redactor).WithValueLimit(limit)), nil
}

// secretKey matches configuration keys whose values are credentials.
var secretKey = regexp.MustCompile(`(?i)(secret|token|password|pass|api_key)$`)

// registerSecrets feeds every credential found in module configs to the
// redactor, so they never reach logs or the audit trail verbatim.
func registerSecrets(redactor *security.Redactor, cfg *config.Config) {
	for _, node := range cfg.Modules {
		var m map[string]any
		if err := node.Decode(&m); err != nil {
			continue
		}
		walkSecrets(m, redactor)
	}
}

func walkSecrets(m map[string]any, redactor *security.Redactor) {
	for k, v := range m {
		switch val := v.(type) {
		case string:
			if secretKey.MatchString(k) {
				redactor.AddLiteral(val)
			}
		case map[string]any:
			walkSecrets(val, redactor)
		case []any:
			for _, item := range val {
				if sub, ok := item.(map[string]any); ok {
					walkSecrets(sub, redactor)
				}
			}
		}
	}
}
