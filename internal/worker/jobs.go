package worker

import (
	"context"
	"log/slog"
	"time"

	"finanzas/internal/config"
	applog "finanzas/internal/log"
	"finanzas/internal/services"
)

// Processor is the shape shared by the rollover, retention and reminder
// processors.
type Processor[S any] interface {
	Process(ctx context.Context, now time.Time) (S, error)
}

// ProcessorJob adapts a processor into a Job that logs its summary.
func ProcessorJob[S any](name, schedule string, p Processor[S]) Job {
	return Job{
		Name:     name,
		Schedule: schedule,
		Run: func(ctx context.Context, now time.Time) error {
			sum, err := p.Process(ctx, now)
			if err != nil {
				return err
			}
			slog.InfoContext(ctx, "Processor run complete", applog.FieldJob, name, "summary", sum)
			return nil
		},
	}
}

// Processors groups everything the worker binary schedules.
type Processors struct {
	Rollover  *services.RolloverProcessor
	Retention *services.RetentionProcessor
	Reminders *services.ReminderProcessor
}

// Register adds one job per non-nil processor using the configured schedules.
func Register(s *Scheduler, cfg *config.Config, p Processors) error {
	var jobs []Job
	if p.Rollover != nil {
		jobs = append(jobs, ProcessorJob[services.RolloverSummary]("rollover", cfg.RolloverSchedule, p.Rollover))
	}
	if p.Retention != nil {
		jobs = append(jobs, ProcessorJob[services.RetentionSummary]("retention", cfg.RetentionSchedule, p.Retention))
	}
	if p.Reminders != nil {
		jobs = append(jobs, ProcessorJob[services.ReminderSummary]("reminders", cfg.ReminderSchedule, p.Reminders))
	}
	for _, j := range jobs {
		if err := s.Add(j); err != nil {
			return err
		}
	}
	return nil
}
