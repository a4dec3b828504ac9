package conversation

import (
	"context"
	"errors"
	"log/slog"
)

// Backfill regenerates summaries still at placeholder quality, for example
// after a crash between save and summary generation.
type Backfill struct {
	store    *Store
	gen      *SummaryGenerator
	projects func() []string
	logger   *slog.Logger
}

// NewBackfill creates a Backfill over the projects listed by projects.
func NewBackfill(store *Store, gen *SummaryGenerator, projects func() []string, logger *slog.Logger) *Backfill {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backfill{store: store, gen: gen, projects: projects, logger: logger.With("component", "backfill")}
}

// Run summarizes every pending conversation and returns how many index
// entries were updated. Failures for one conversation do not stop the rest.
func (b *Backfill) Run(ctx context.Context) (int, error) {
	var (
		updated int
		errs    []error
	)
	for _, projectID := range b.projects() {
		pending, err := b.store.Pending(ctx, projectID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, item := range pending {
			if err := ctx.Err(); err != nil {
				return updated, err
			}
			rec, err := b.store.Get(ctx, projectID, item.ID)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			sum := b.gen.Generate(ctx, InputFromRecord(rec))
			if _, err := b.store.UpdateSummary(ctx, projectID, item.ID, sum.Summary, sum.SummaryQuality); err != nil {
				errs = append(errs, err)
				continue
			}
			updated++
		}
	}
	if updated > 0 {
		b.logger.Info("summaries backfilled", "count", updated)
	}
	return updated, errors.Join(errs...)
}
