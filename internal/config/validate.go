package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/flemzord/writenow/internal/core"
)

// Validate checks the structural validity of a Config: the version field,
// the presence of modules, that every referenced module is registered, and
// the optional telemetry and log sections.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	for id := range cfg.Modules {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
	}

	errs = append(errs, validateTelemetry(cfg.Telemetry)...)
	errs = append(errs, validateLog(cfg.Log)...)

	return errors.Join(errs...)
}

func validateTelemetry(t *TelemetryConfig) []error {
	if t == nil {
		return nil
	}
	var errs []error
	if t.SampleRatio != nil && (*t.SampleRatio < 0 || *t.SampleRatio > 1) {
		errs = append(errs, fmt.Errorf("config: telemetry.sample_ratio must be within [0, 1], got %v", *t.SampleRatio))
	}
	if strings.Contains(t.OTLPEndpoint, "://") {
		errs = append(errs, fmt.Errorf("config: telemetry.otlp_endpoint must be host:port without scheme, got %q", t.OTLPEndpoint))
	}
	return errs
}

func validateLog(l *LogConfig) []error {
	if l == nil {
		return nil
	}
	var errs []error
	switch strings.ToLower(l.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("config: log.level %q is not one of debug, info, warn, error", l.Level))
	}
	switch strings.ToLower(l.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: log.format %q is not one of text, json", l.Format))
	}
	return errs
}
