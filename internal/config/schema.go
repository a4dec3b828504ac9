// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for writenow.
package config

import "gopkg.in/yaml.v3"

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "engine.context").
	Modules map[string]yaml.Node `yaml:"modules"`

	// Telemetry configures tracing export. Optional.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`

	// Log holds logger settings. Optional.
	Log *LogConfig `yaml:"log,omitempty"`
}

// TelemetryConfig controls the OpenTelemetry tracer provider.
type TelemetryConfig struct {
	// OTLPEndpoint is the host:port of an OTLP/HTTP collector.
	// Empty disables export; spans are still created but dropped.
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Insecure disables TLS towards the collector.
	Insecure bool `yaml:"insecure"`

	// ServiceName defaults to "writenow".
	ServiceName string `yaml:"service_name"`

	// SampleRatio is the fraction of traces sampled, in [0, 1]. Defaults to 1.
	SampleRatio *float64 `yaml:"sample_ratio,omitempty"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `yaml:"level"`

	// Format is "text" (default) or "json".
	Format string `yaml:"format"`

	// MaxValueLen trims logged string values to this many bytes.
	// Zero uses the default; a negative value disables trimming.
	MaxValueLen int `yaml:"max_value_len"`
}
