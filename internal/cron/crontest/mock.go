// Package crontest holds test doubles for the cron package.
package crontest

import (
	"context"
	"sync/atomic"

	"github.com/flemzord/writenow/internal/cron"
)

// MockJob is a cron.Job whose Run delegates to RunFunc (nil succeeds).
type MockJob struct {
	NameVal     string
	ScheduleVal string
	RunFunc     func(ctx context.Context) error

	calls atomic.Int32
}

var _ cron.Job = (*MockJob)(nil)

func (m *MockJob) Name() string     { return m.NameVal }
func (m *MockJob) Schedule() string { return m.ScheduleVal }

func (m *MockJob) Run(ctx context.Context) error {
	m.calls.Add(1)
	if m.RunFunc == nil {
		return nil
	}
	return m.RunFunc(ctx)
}

// CallCount reports how many times Run was entered.
func (m *MockJob) CallCount() int { return int(m.calls.Load()) }

// MockBackfiller is a cron.Backfiller returning RunFunc's result, or
// zero summaries when RunFunc is nil.
type MockBackfiller struct {
	RunFunc func(ctx context.Context) (int, error)

	runs atomic.Int32
}

var _ cron.Backfiller = (*MockBackfiller)(nil)

func (m *MockBackfiller) Run(ctx context.Context) (int, error) {
	m.runs.Add(1)
	if m.RunFunc == nil {
		return 0, nil
	}
	return m.RunFunc(ctx)
}

// Runs reports how many backfill passes were started.
func (m *MockBackfiller) Runs() int { return int(m.runs.Load()) }
