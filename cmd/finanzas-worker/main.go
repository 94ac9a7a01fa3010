package main

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"finanzas/internal/backend"
	"finanzas/internal/cli"
	applog "finanzas/internal/log"
	"finanzas/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.Exit(cli.SetupLogger("info", applog.ComponentWorker), "Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg.LogLevel, applog.ComponentWorker)
	logger.Info("Starting finanzas-worker")

	ctx, stop := cli.SignalContext(context.Background(), logger)
	defer stop()

	b, err := backend.Open(ctx, cfg, backend.Options{})
	if err != nil {
		cli.Exit(logger, "Failed to initialize backend", err)
	}
	defer b.Close()

	scheduler := worker.NewScheduler(logger.Logger)
	if err := worker.Register(scheduler, cfg, b.Processors()); err != nil {
		cli.Exit(logger, "Failed to register jobs", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Run(gctx, cfg.ShutdownTimeout)
	})
	g.Go(func() error {
		// Catch up on the current month straight away instead of waiting for
		// the first tick.
		if err := scheduler.RunNow(gctx, "rollover"); err != nil && !errors.Is(err, worker.ErrJobRunning) {
			logger.Warn("Startup rollover skipped", applog.FieldError, err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", applog.FieldError, err)
		return
	}
	logger.Info("Worker stopped gracefully")
}
