package reload

import (
	"slices"
	"sync"
	"time"

	"github.com/flemzord/writenow/internal/clock"
)

// DefaultDebounce is the coalescing window for filesystem bursts.
const DefaultDebounce = 300 * time.Millisecond

// Debouncer coalesces paths added within one window into a single sorted,
// de-duplicated batch. The window opens on the first Add of a burst.
type Debouncer struct {
	clock  clock.Clock
	window time.Duration
	fire   func(paths []string)

	mu      sync.Mutex
	pending map[string]struct{}
	timer   clock.Timer
	gen     uint64
	stopped bool
}

// NewDebouncer creates a Debouncer. fire runs on the clock's callback
// goroutine, never while the Debouncer's lock is held.
func NewDebouncer(c clock.Clock, window time.Duration, fire func(paths []string)) *Debouncer {
	if c == nil {
		c = clock.Real{}
	}
	if window <= 0 {
		window = DefaultDebounce
	}
	return &Debouncer{
		clock:   c,
		window:  window,
		fire:    fire,
		pending: make(map[string]struct{}),
	}
}

// Add records path in the current batch, opening a window if none is open.
func (d *Debouncer) Add(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.pending[path] = struct{}{}
	if d.timer != nil {
		return
	}
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.window, func() { d.flush(gen) })
}

func (d *Debouncer) flush(gen uint64) {
	d.mu.Lock()
	if d.stopped || gen != d.gen || len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(d.pending))
	for p := range d.pending {
		paths = append(paths, p)
	}
	clear(d.pending)
	d.timer = nil
	d.gen++
	d.mu.Unlock()

	slices.Sort(paths)
	d.fire(paths)
}

// Stop cancels the pending window without firing. Safe to call repeatedly.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	clear(d.pending)
}
