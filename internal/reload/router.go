package reload

import (
	"log/slog"
	"slices"

	"github.com/flemzord/writenow/internal/knowledge"
)

// Invalidator drops the cache of one knowledge source.
type Invalidator interface {
	Invalidate(kind knowledge.SourceKind) bool
}

// Router maps changed paths to the sources they belong to and invalidates
// exactly those.
type Router struct {
	target Invalidator
	logger *slog.Logger
}

// NewRouter creates a Router for target.
func NewRouter(target Invalidator, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{target: target, logger: logger}
}

// Route invalidates every source touched by paths and returns them sorted.
func (r *Router) Route(paths []string) []knowledge.SourceKind {
	var kinds []knowledge.SourceKind
	for _, p := range paths {
		kind, ok := knowledge.Classify(p)
		if !ok || slices.Contains(kinds, kind) {
			continue
		}
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)

	invalidated := kinds[:0:0]
	for _, kind := range kinds {
		if r.target.Invalidate(kind) {
			invalidated = append(invalidated, kind)
		}
	}
	if len(invalidated) > 0 {
		r.logger.Debug("sources invalidated", "sources", invalidated, "paths", len(paths))
	}
	return invalidated
}
