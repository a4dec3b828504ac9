package sqlite

import (
	"fmt"

	"github.com/flemzord/writenow/internal/memory"
)

const (
	defaultBusyTimeout = 5000
	defaultDBFile      = "memory.db"
)

// Config holds the memory.sqlite module configuration.
type Config struct {
	// Path defaults to {DataDir}/memory.db. Relative paths are resolved
	// against the data directory.
	Path string `yaml:"path"`

	// WAL defaults to true so previews can read while a save writes.
	WAL *bool `yaml:"wal"`

	// BusyTimeout in milliseconds. Defaults to 5000.
	BusyTimeout int `yaml:"busy_timeout"`

	// Defaults are the memory settings of projects that never stored any.
	Defaults SettingsConfig `yaml:"defaults"`
}

// SettingsConfig mirrors memory.Settings. A nil InjectionEnabled keeps
// injection on.
type SettingsConfig struct {
	InjectionEnabled *bool `yaml:"injection_enabled"`
	PrivacyMode      bool  `yaml:"privacy_mode"`
}

func (c *Config) defaults() {
	if c.WAL == nil {
		t := true
		c.WAL = &t
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = defaultBusyTimeout
	}
}

func (c *Config) walEnabled() bool {
	return c.WAL == nil || *c.WAL
}

// settings resolves Defaults against memory.DefaultSettings.
func (c *Config) settings() memory.Settings {
	st := memory.DefaultSettings()
	if c.Defaults.InjectionEnabled != nil {
		st.InjectionEnabled = *c.Defaults.InjectionEnabled
	}
	st.PrivacyMode = c.Defaults.PrivacyMode
	return st
}

func (c *Config) validate() error {
	if c.BusyTimeout < 0 {
		return fmt.Errorf("sqlite: busy_timeout must be non-negative, got %d", c.BusyTimeout)
	}
	return nil
}
