package engine

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	ctxengine "github.com/flemzord/writenow/internal/context"
	"github.com/flemzord/writenow/internal/conversation"
	"github.com/flemzord/writenow/internal/cron"
	"github.com/flemzord/writenow/internal/memory"
	"github.com/flemzord/writenow/internal/reload"
)

// DefaultProjectID names the project rooted at the workspace when no
// projects are configured.
const DefaultProjectID = "default"

var projectIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// Config is the engine.context module configuration.
type Config struct {
	// Projects maps project ids to project roots (the directory holding
	// .writenow/). Relative roots resolve against the workspace.
	Projects map[string]string `yaml:"projects"`

	// Watch starts a change watcher for every project at startup.
	Watch bool `yaml:"watch"`

	// Debounce is the watcher and editor coalescing window.
	Debounce time.Duration `yaml:"debounce"`

	CharsPerToken float64 `yaml:"chars_per_token"`
	MaxScanChars  int     `yaml:"max_scan_chars"`

	// DefaultBudget applies when a request carries none.
	DefaultBudget *ctxengine.Budget `yaml:"default_budget"`

	Summary SummaryConfig `yaml:"summary"`
	Memory  MemoryConfig  `yaml:"memory"`
}

// SummaryConfig configures conversation summaries.
type SummaryConfig struct {
	// Timeout bounds one call to the summary model.
	Timeout time.Duration `yaml:"timeout"`

	// Schedule is the cron expression of the placeholder backfill.
	Schedule string `yaml:"schedule"`

	// Backfill enables the periodic job. Defaults to true.
	Backfill *bool `yaml:"backfill"`
}

// MemoryConfig caps the memory block injected into the stable prefix.
type MemoryConfig struct {
	MaxItems  int `yaml:"max_items"`
	MaxTokens int `yaml:"max_tokens"`
}

func (c *Config) defaults() {
	if len(c.Projects) == 0 {
		c.Projects = map[string]string{DefaultProjectID: "."}
	}
	if c.Debounce <= 0 {
		c.Debounce = reload.DefaultDebounce
	}
	if c.Summary.Timeout <= 0 {
		c.Summary.Timeout = conversation.DefaultSummaryTimeout
	}
	if c.Summary.Schedule == "" {
		c.Summary.Schedule = cron.DefaultBackfillSchedule
	}
	if c.Summary.Backfill == nil {
		t := true
		c.Summary.Backfill = &t
	}
	if c.Memory.MaxItems <= 0 {
		c.Memory.MaxItems = memory.DefaultMaxItems
	}
	if c.Memory.MaxTokens <= 0 {
		c.Memory.MaxTokens = memory.DefaultMaxTokens
	}
}

func (c *Config) backfillEnabled() bool {
	return c.Summary.Backfill == nil || *c.Summary.Backfill
}

func (c *Config) validate() error {
	var errs []error
	for id, root := range c.Projects {
		if !projectIDPattern.MatchString(id) {
			errs = append(errs, fmt.Errorf("engine: invalid project id %q", id))
		}
		if root == "" {
			errs = append(errs, fmt.Errorf("engine: project %q has an empty root", id))
		}
	}
	if c.CharsPerToken < 0 {
		errs = append(errs, fmt.Errorf("engine: chars_per_token must not be negative, got %v", c.CharsPerToken))
	}
	if c.MaxScanChars < 0 {
		errs = append(errs, fmt.Errorf("engine: max_scan_chars must not be negative, got %d", c.MaxScanChars))
	}
	if c.DefaultBudget != nil {
		if err := c.DefaultBudget.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("engine: default_budget: %w", err))
		}
	}
	if err := cron.ParseSchedule(c.Summary.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("engine: summary.schedule: %w", err))
	}
	return errors.Join(errs...)
}

// roots resolves project roots against workspace.
func (c *Config) roots(workspace string) map[string]string {
	out := make(map[string]string, len(c.Projects))
	for id, root := range c.Projects {
		if !filepath.IsAbs(root) {
			root = filepath.Join(workspace, root)
		}
		out[id] = filepath.Clean(root)
	}
	return out
}

func (c *Config) budget() ctxengine.Budget {
	if c.DefaultBudget != nil {
		return *c.DefaultBudget
	}
	return ctxengine.DefaultBudget()
}
