package worker

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"finanzas/internal/config"
)

func newTestScheduler(buf *bytes.Buffer) *Scheduler {
	return NewScheduler(slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

func TestAddRejectsBadJobs(t *testing.T) {
	s := newTestScheduler(&bytes.Buffer{})
	noop := func(context.Context, time.Time) error { return nil }

	tests := []struct {
		name string
		job  Job
	}{
		{"missing name", Job{Schedule: "@daily", Run: noop}},
		{"missing run", Job{Name: "x", Schedule: "@daily"}},
		{"bad schedule", Job{Name: "x", Schedule: "every tuesday", Run: noop}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Add(tt.job); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	if err := s.Add(Job{Name: "ok", Schedule: "@daily", Run: noop}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(Job{Name: "ok", Schedule: "@hourly", Run: noop}); err == nil {
		t.Fatal("expected duplicate name to be rejected")
	}
}

func TestRunNowLogsFailureWithoutReturningIt(t *testing.T) {
	var buf bytes.Buffer
	s := newTestScheduler(&buf)
	fixed := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return fixed })

	var got time.Time
	if err := s.Add(Job{Name: "broken", Schedule: "@daily", Run: func(_ context.Context, now time.Time) error {
		got = now
		return errors.New("boom")
	}}); err != nil {
		t.Fatal(err)
	}

	if err := s.RunNow(context.Background(), "broken"); err != nil {
		t.Fatalf("RunNow returned %v", err)
	}
	if !got.Equal(fixed) {
		t.Errorf("job got now=%v, want %v", got, fixed)
	}
	if !strings.Contains(buf.String(), "Job failed") || !strings.Contains(buf.String(), "boom") {
		t.Errorf("failure not logged: %s", buf.String())
	}
	if err := s.RunNow(context.Background(), "missing"); err == nil {
		t.Error("expected error for unknown job")
	}
}

func TestRunNowRecoversPanics(t *testing.T) {
	var buf bytes.Buffer
	s := newTestScheduler(&buf)
	_ = s.Add(Job{Name: "panics", Schedule: "@daily", Run: func(context.Context, time.Time) error {
		panic("bad state")
	}})

	if err := s.RunNow(context.Background(), "panics"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if !strings.Contains(buf.String(), "Job panicked") {
		t.Errorf("panic not logged: %s", buf.String())
	}
	// The lock is released after a panic, so the job can run again.
	if err := s.RunNow(context.Background(), "panics"); errors.Is(err, ErrJobRunning) {
		t.Fatalf("second RunNow after panic: %v", err)
	}
}

func TestRunNowSkipsOverlappingRun(t *testing.T) {
	s := newTestScheduler(&bytes.Buffer{})
	started := make(chan struct{})
	release := make(chan struct{})
	_ = s.Add(Job{Name: "slow", Schedule: "@daily", Run: func(context.Context, time.Time) error {
		close(started)
		<-release
		return nil
	}})

	done := make(chan error, 1)
	go func() { done <- s.RunNow(context.Background(), "slow") }()
	<-started

	if err := s.RunNow(context.Background(), "slow"); !errors.Is(err, ErrJobRunning) {
		t.Errorf("second run: got %v, want ErrJobRunning", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Errorf("first run: %v", err)
	}
}

func TestRunFiresScheduledJobs(t *testing.T) {
	s := newTestScheduler(&bytes.Buffer{})
	var runs atomic.Int32
	_ = s.Add(Job{Name: "tick", Schedule: "@every 1s", Run: func(context.Context, time.Time) error {
		runs.Add(1)
		return nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = s.Run(ctx, time.Second)
		close(stopped)
	}()

	deadline := time.After(5 * time.Second)
	for runs.Load() == 0 {
		select {
		case <-deadline:
			cancel()
			t.Fatal("scheduled job never ran")
		case <-time.After(50 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

type stubProcessor struct {
	calls int
	err   error
}

func (p *stubProcessor) Process(context.Context, time.Time) (int, error) {
	p.calls++
	return p.calls, p.err
}

func TestProcessorJob(t *testing.T) {
	p := &stubProcessor{}
	job := ProcessorJob[int]("stub", "@daily", p)
	if err := job.Run(context.Background(), time.Now()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	p.err = errors.New("db locked")
	if err := job.Run(context.Background(), time.Now()); err == nil {
		t.Fatal("expected processor error to surface to the scheduler")
	}
	if p.calls != 2 {
		t.Errorf("calls = %d, want 2", p.calls)
	}
}

func TestRegisterSkipsNilProcessors(t *testing.T) {
	s := newTestScheduler(&bytes.Buffer{})
	cfg := &config.Config{RolloverSchedule: "@daily", RetentionSchedule: "@hourly", ReminderSchedule: "@every 6h"}
	if err := Register(s, cfg, Processors{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(s.jobs) != 0 {
		t.Errorf("registered %d jobs, want 0", len(s.jobs))
	}
}
