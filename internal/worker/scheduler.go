// Package worker runs the periodic ledger jobs on cron schedules. A job
// never overlaps with itself and its failures are logged, not returned.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	applog "finanzas/internal/log"
)

// ErrJobRunning is returned by RunNow when the job is already in flight.
var ErrJobRunning = errors.New("job already running")

// Job is one scheduled task. Run receives the time the run started.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context, now time.Time) error
}

type entry struct {
	job     Job
	running sync.Mutex
}

type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	ctx  context.Context
	jobs map[string]*entry
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cl := newCronLogger(logger)
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		ctx:    context.Background(),
		jobs:   make(map[string]*entry),
	}
}

// SetClock replaces the time passed to jobs, for tests.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Add registers a job. Schedules use the standard five field syntax or a
// descriptor such as "@daily" or "@every 6h".
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("job needs a name and a run function")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[job.Name]; dup {
		return fmt.Errorf("job %q already registered", job.Name)
	}
	e := &entry{job: job}
	if _, err := s.cron.AddFunc(job.Schedule, func() { s.execute(s.context(), e) }); err != nil {
		return fmt.Errorf("schedule %q for job %s: %w", job.Schedule, job.Name, err)
	}
	s.jobs[job.Name] = e
	s.logger.Info("Job scheduled", applog.FieldJob, job.Name, "schedule", job.Schedule)
	return nil
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// RunNow runs a registered job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	if !s.execute(ctx, e) {
		return ErrJobRunning
	}
	return nil
}

// execute runs the job unless a previous run is still going. ran reports
// whether it started, including runs that failed or panicked.
func (s *Scheduler) execute(ctx context.Context, e *entry) (ran bool) {
	if !e.running.TryLock() {
		s.logger.Warn("Skipping job, previous run still in flight", applog.FieldJob, e.job.Name)
		return false
	}
	defer e.running.Unlock()
	ran = true

	start := s.now()
	log := s.logger.With(applog.FieldJob, e.job.Name)
	defer func() {
		if r := recover(); r != nil {
			log.Error("Job panicked", "panic", r)
		}
	}()

	if err := e.job.Run(ctx, start); err != nil {
		log.ErrorContext(ctx, "Job failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return
	}
	log.InfoContext(ctx, "Job finished", "duration_ms", time.Since(start).Milliseconds())
	return
}

// Run starts the schedule and blocks until ctx is cancelled, then waits up
// to grace for running jobs to finish.
func (s *Scheduler) Run(ctx context.Context, grace time.Duration) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("Scheduler started", "jobs", len(s.jobs))
	<-ctx.Done()

	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		s.logger.Info("Scheduler stopped")
	case <-time.After(grace):
		s.logger.Warn("Scheduler stop timed out, jobs still running", "grace", grace)
	}
	return nil
}
