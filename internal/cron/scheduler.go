package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// ErrJobBusy is returned by Trigger when the job is already running.
var ErrJobBusy = errors.New("cron: job already running")

// Scheduler manages periodic job execution using cron expressions.
// A per-job mutex prevents parallel runs of the same job: a tick that
// finds the job still running is skipped.
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	jobs   map[string]Job
	order  []string
	locks  map[string]*sync.Mutex
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler. Jobs must be registered before Start().
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		jobs:   make(map[string]Job),
		locks:  make(map[string]*sync.Mutex),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// RegisterJob adds a job to the scheduler. Must be called before Start().
// Returns an error if a job with the same name is already registered.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := j.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}
	if s.cron != nil {
		return fmt.Errorf("cron: job %q registered after start", name)
	}

	s.jobs[name] = j
	s.order = append(s.order, name)
	s.locks[name] = &sync.Mutex{}
	return nil
}

// Start begins executing registered jobs on their schedules.
// Returns an error if any job has an invalid schedule expression.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}
	c := cron.New(cron.WithParser(parser))
	for _, name := range s.order {
		job := s.jobs[name]
		if _, err := c.AddFunc(job.Schedule(), func() { s.runLocked(job, false) }); err != nil {
			return fmt.Errorf("cron: invalid schedule for job %q: %w", name, err)
		}
	}

	s.cron = c
	s.cron.Start()
	s.logger.Info("cron: scheduler started", "jobs", len(s.order))
	return nil
}

// Trigger runs the named job now, outside its schedule. It returns
// ErrJobBusy when a run is already in progress.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("cron: unknown job %q", name)
	}
	if !s.runLocked(job, true) {
		return ErrJobBusy
	}
	return nil
}

// runLocked runs job unless a previous run still holds its lock.
func (s *Scheduler) runLocked(job Job, manual bool) bool {
	lock := s.locks[job.Name()]
	if !lock.TryLock() {
		if !manual {
			s.logger.Warn("cron: job still running, skipping tick", "job", job.Name())
		}
		return false
	}
	defer lock.Unlock()

	s.logger.Debug("cron: job started", "job", job.Name(), "manual", manual)
	if err := job.Run(s.ctx); err != nil {
		s.logger.Error("cron: job failed", "job", job.Name(), "error", err)
	} else {
		s.logger.Debug("cron: job completed", "job", job.Name())
	}
	return true
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancel()
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.logger.Info("cron: scheduler stopped")
	}
	return nil
}
