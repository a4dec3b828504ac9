package knowledge

import (
	"context"
	"slices"
	"strconv"
	"sync/atomic"

	ctxengine "github.com/flemzord/writenow/internal/context"
	"golang.org/x/sync/singleflight"
)

// SourceError is a non-fatal, per-file read failure.
type SourceError struct {
	Path    string         `json:"path"`
	Code    ctxengine.Code `json:"code"`
	Message string         `json:"message,omitempty"`
}

// Result is what a knowledge source returns: the fragments that loaded and
// the files that did not.
type Result struct {
	Fragments []ctxengine.Fragment `json:"fragments"`
	Errors    []SourceError        `json:"errors"`
}

func (r *Result) fail(path string, code ctxengine.Code, err error) {
	se := SourceError{Path: path, Code: code}
	if err != nil {
		se.Message = err.Error()
	}
	r.Errors = append(r.Errors, se)
}

func (r Result) clone() Result {
	return Result{
		Fragments: slices.Clone(r.Fragments),
		Errors:    slices.Clone(r.Errors),
	}
}

// snapshot caches the last value produced by load. Readers always see a
// whole value; concurrent reloads collapse into one.
type snapshot[T any] struct {
	load       func(ctx context.Context) T
	current    atomic.Pointer[T]
	generation atomic.Uint64
	group      singleflight.Group
}

func newSnapshot[T any](load func(ctx context.Context) T) *snapshot[T] {
	return &snapshot[T]{load: load}
}

// get returns the cached value, loading it when absent or when refresh is
// set. A refresh starts a new generation, so it never joins a load that
// began before it was called.
func (s *snapshot[T]) get(ctx context.Context, refresh bool) T {
	var gen uint64
	if refresh {
		gen = s.generation.Add(1)
	} else {
		if v := s.current.Load(); v != nil {
			return *v
		}
		gen = s.generation.Load()
	}
	v, _, _ := s.group.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		val := s.load(ctx)
		// A load racing with invalidate must not resurrect stale data.
		if s.generation.Load() == gen {
			s.current.Store(&val)
		}
		return val, nil
	})
	return v.(T)
}

// invalidate drops the cached value so the next get reloads.
func (s *snapshot[T]) invalidate() {
	s.generation.Add(1)
	s.current.Store(nil)
}

// cached reports whether a value is held.
func (s *snapshot[T]) cached() bool {
	return s.current.Load() != nil
}
