package cron

import (
	"context"
	"fmt"
	"log/slog"
)

// DefaultBackfillSchedule regenerates placeholder summaries every ten minutes.
const DefaultBackfillSchedule = "*/10 * * * *"

// Backfiller is the subset of conversation.Backfill needed by the job.
// Defined here to keep this package free of conversation imports.
type Backfiller interface {
	Run(ctx context.Context) (int, error)
}

// SummaryBackfillJob replaces placeholder conversation summaries with
// generated ones.
type SummaryBackfillJob struct {
	Backfill     Backfiller
	Logger       *slog.Logger
	ScheduleExpr string // empty = DefaultBackfillSchedule
}

// Compile-time interface check.
var _ Job = (*SummaryBackfillJob)(nil)

// Name implements Job.
func (j *SummaryBackfillJob) Name() string { return "summary_backfill" }

// Schedule implements Job.
func (j *SummaryBackfillJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return DefaultBackfillSchedule
}

// Run backfills pending summaries. Partial failures are returned after every
// project has been visited.
func (j *SummaryBackfillJob) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cron: summary backfill cancelled: %w", ctx.Err())
	}
	n, err := j.Backfill.Run(ctx)
	if n > 0 && j.Logger != nil {
		j.Logger.Info("cron: summaries backfilled", "count", n)
	}
	if err != nil {
		return fmt.Errorf("cron: summary backfill: %w", err)
	}
	return nil
}
