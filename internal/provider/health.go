package provider

import (
	"fmt"
	"sync"
	"time"

	"github.com/flemzord/writenow/internal/clock"
)

// Availability states reported by Guarded.Status.
const (
	StateUp         = "up"
	StateBackingOff = "backing_off"
	StateDown       = "down"
)

// HealthConfig tunes how a failing summary model is backed off.
type HealthConfig struct {
	// InitialBackoff is the pause after the first failure. Default 1s.
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	// MaxBackoff caps the doubling pause. Default 60s.
	MaxBackoff time.Duration `yaml:"max_backoff"`
	// MaxFailures consecutive failures mark the model down. Default 5.
	MaxFailures int `yaml:"max_failures"`
	// ProbeInterval spaces health probes of a down model. Defaults to MaxBackoff.
	ProbeInterval time.Duration `yaml:"probe_interval"`
}

// Validate rejects negative settings. Zero means default.
func (c HealthConfig) Validate() error {
	switch {
	case c.InitialBackoff < 0:
		return fmt.Errorf("health: initial_backoff must not be negative")
	case c.MaxBackoff < 0:
		return fmt.Errorf("health: max_backoff must not be negative")
	case c.MaxFailures < 0:
		return fmt.Errorf("health: max_failures must not be negative")
	case c.ProbeInterval < 0:
		return fmt.Errorf("health: probe_interval must not be negative")
	case c.InitialBackoff > 0 && c.MaxBackoff > 0 && c.InitialBackoff > c.MaxBackoff:
		return fmt.Errorf("health: initial_backoff %s exceeds max_backoff %s", c.InitialBackoff, c.MaxBackoff)
	}
	return nil
}

func (c HealthConfig) withDefaults() HealthConfig {
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = time.Minute
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = c.MaxBackoff
	}
	return c
}

// delayAfter returns the pause that follows the n-th consecutive failure.
func (c HealthConfig) delayAfter(n int) time.Duration {
	d := c.InitialBackoff
	for i := 1; i < n && d < c.MaxBackoff; i++ {
		d *= 2
	}
	return min(d, c.MaxBackoff)
}

// Availability is a point-in-time view of a guarded model.
type Availability struct {
	State    string    `json:"state"`
	Failures int       `json:"failures,omitempty"`
	RetryAt  time.Time `json:"retry_at,omitzero"`
}

// Ready reports whether a call would be let through.
func (a Availability) Ready(now time.Time) bool {
	switch a.State {
	case StateUp:
		return true
	case StateBackingOff:
		return !now.Before(a.RetryAt)
	}
	return false
}

// backoff counts consecutive failures of one model. It never sleeps:
// callers compare the clock against retryAt.
type backoff struct {
	cfg      HealthConfig
	clk      clock.Clock
	onChange func(from, to string)

	mu       sync.Mutex
	failures int
	retryAt  time.Time
}

func newBackoff(cfg HealthConfig, clk clock.Clock) *backoff {
	if clk == nil {
		clk = clock.Real{}
	}
	return &backoff{cfg: cfg.withDefaults(), clk: clk}
}

func (b *backoff) stateLocked() string {
	switch {
	case b.failures == 0:
		return StateUp
	case b.failures >= b.cfg.MaxFailures:
		return StateDown
	}
	return StateBackingOff
}

func (b *backoff) snapshot() Availability {
	b.mu.Lock()
	defer b.mu.Unlock()
	a := Availability{State: b.stateLocked(), Failures: b.failures}
	if a.State == StateBackingOff {
		a.RetryAt = b.retryAt
	}
	return a
}

func (b *backoff) ready() bool {
	return b.snapshot().Ready(b.clk.Now())
}

func (b *backoff) succeed() {
	b.mu.Lock()
	from := b.stateLocked()
	b.failures = 0
	b.retryAt = time.Time{}
	b.mu.Unlock()
	b.changed(from, StateUp)
}

func (b *backoff) fail() {
	b.mu.Lock()
	from := b.stateLocked()
	b.failures++
	if b.failures < b.cfg.MaxFailures {
		b.retryAt = b.clk.Now().Add(b.cfg.delayAfter(b.failures))
	} else {
		b.retryAt = time.Time{}
	}
	to := b.stateLocked()
	b.mu.Unlock()
	b.changed(from, to)
}

func (b *backoff) changed(from, to string) {
	if from != to && b.onChange != nil {
		b.onChange(from, to)
	}
}
