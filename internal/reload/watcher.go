// Package reload keeps cached knowledge in step with the filesystem: a
// debounced fsnotify watcher per project, a router that invalidates only
// the affected source, and the configuration reload handler.
package reload

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/flemzord/writenow/internal/clock"
	"github.com/fsnotify/fsnotify"
)

// WatcherConfig configures a ChangeWatcher.
type WatcherConfig struct {
	// Root is the directory to watch recursively (a project's .writenow).
	Root string

	// Debounce is the coalescing window. Defaults to DefaultDebounce.
	Debounce time.Duration

	// Clock schedules debounce windows. Defaults to clock.Real.
	Clock clock.Clock

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// OnChange receives each coalesced batch of root-relative,
	// slash-separated paths.
	OnChange func(paths []string)

	// Ignore lists root-relative directory prefixes whose events are
	// dropped (e.g. "conversations").
	Ignore []string
}

// ChangeWatcher watches a knowledge root and reports debounced batches of
// changed paths. Start and Stop are idempotent; Stop never emits a final
// batch for events still inside the window.
type ChangeWatcher struct {
	cfg    WatcherConfig
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	fsw      *fsnotify.Watcher
	debounce *Debouncer
	stop     chan struct{}
	done     chan struct{}
}

// NewChangeWatcher creates a ChangeWatcher. Nothing is watched until Start.
func NewChangeWatcher(cfg WatcherConfig) *ChangeWatcher {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.OnChange == nil {
		cfg.OnChange = func([]string) {}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ChangeWatcher{cfg: cfg, logger: logger.With("component", "watcher", "root", cfg.Root)}
}

// Start begins watching. Calling Start on a running watcher is a no-op.
func (w *ChangeWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	if err := os.MkdirAll(w.cfg.Root, 0o755); err != nil {
		return fmt.Errorf("reload: create watch root: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("reload: create watcher: %w", err)
	}
	if err := w.addTree(fsw, w.cfg.Root); err != nil {
		_ = fsw.Close()
		return err
	}

	w.fsw = fsw
	w.debounce = NewDebouncer(w.cfg.Clock, w.cfg.Debounce, w.cfg.OnChange)
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	w.running = true

	go w.run(ctx, fsw, w.debounce, w.stop, w.done)
	w.logger.Debug("watch started")
	return nil
}

// Stop stops watching and cancels any pending batch. Safe to call
// repeatedly and before Start.
func (w *ChangeWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	stop, done, fsw, deb := w.stop, w.done, w.fsw, w.debounce
	w.mu.Unlock()

	deb.Stop()
	close(stop)
	<-done
	if err := fsw.Close(); err != nil {
		w.logger.Warn("closing watcher", "error", err)
	}
	w.logger.Debug("watch stopped")
}

// Running reports whether the watcher is started.
func (w *ChangeWatcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *ChangeWatcher) run(ctx context.Context, fsw *fsnotify.Watcher, deb *Debouncer, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			deb.Stop()
			return
		case <-stop:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(fsw, deb, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *ChangeWatcher) handle(fsw *fsnotify.Watcher, deb *Debouncer, ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod {
		return
	}
	rel, err := filepath.Rel(w.cfg.Root, ev.Name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return
	}
	rel = filepath.ToSlash(rel)
	if w.ignored(rel) {
		return
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(fsw, ev.Name); err != nil {
				w.logger.Warn("watching new directory", "path", rel, "error", err)
			}
		}
	}
	deb.Add(rel)
}

func (w *ChangeWatcher) ignored(rel string) bool {
	base := filepath.Base(rel)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return true
	}
	for _, prefix := range w.cfg.Ignore {
		if rel == prefix || strings.HasPrefix(rel, prefix+"/") {
			return true
		}
	}
	return false
}

// addTree watches dir and every directory below it.
func (w *ChangeWatcher) addTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if rel, err := filepath.Rel(w.cfg.Root, path); err == nil && rel != "." && w.ignored(filepath.ToSlash(rel)) {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("reload: watch %s: %w", path, err)
		}
		return nil
	})
}
