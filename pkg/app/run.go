// Package app provides the shared entry point for the writenow commands.
package app

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/flemzord/writenow/internal/security"
)

// stopTimeout bounds tracing flush and audit close on shutdown.
const stopTimeout = 10 * time.Second

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, config.ResolvePath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the default persistent data directory.
	DataDir string

	// Workspace overrides the default working directory. Relative project
	// roots resolve against it.
	Workspace string

	// LogLevel overrides log.level from the configuration.
	LogLevel string

	// LogOutput receives log lines. Defaults to stderr.
	LogOutput io.Writer
}

func (p RunParams) logOutput() io.Writer {
	if p.LogOutput != nil {
		return p.LogOutput
	}
	return os.Stderr
}

// Run loads configuration, starts all modules, and blocks until a shutdown
// signal is received. SIGHUP triggers a live configuration reload for
// modules that implement core.Reloader.
func Run(params RunParams) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := Open(ctx, params)
	if err != nil {
		return err
	}
	logger := rt.Logger

	if err := rt.App.Start(); err != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
		defer stopCancel()
		_ = rt.closeAmbient(stopCtx)
		return err
	}
	logger.Info("writenow started", "version", params.Version, "config", rt.ConfigPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			logger.Info("SIGHUP received, reloading configuration")
			if err := rt.Reload.HandleReload(ctx, rt.ConfigPath); err != nil {
				logger.Error("reload failed", "error", err)
				continue
			}
			rt.Audit.Log(security.AuditEvent{
				Type:     security.EventConfigChange,
				Detail:   "reload via SIGHUP",
				Metadata: map[string]string{"path": rt.ConfigPath},
			})
			continue
		}

		logger.Info("shutdown signal received", "signal", sig.String())
		stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
		err := rt.Close(stopCtx)
		stopCancel()
		logger.Info("shutdown complete")
		return err
	}
	return nil
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/writenow if set, otherwise ~/.local/share/writenow per
// the XDG base directory layout.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "writenow")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "writenow")
}

// DefaultWorkspace returns the current working directory.
func DefaultWorkspace() string {
	dir, _ := os.Getwd()
	return dir
}
