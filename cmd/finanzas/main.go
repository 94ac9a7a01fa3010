package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"finanzas/internal/backend"
	"finanzas/internal/cli"
	apphttp "finanzas/internal/http"
	applog "finanzas/internal/log"
	"finanzas/internal/middleware/ratelimit"
	"finanzas/internal/middleware/security"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.Exit(cli.SetupLogger("info", applog.ComponentApp), "Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg.LogLevel, applog.ComponentApp)

	ctx, stop := cli.SignalContext(context.Background(), logger)
	defer stop()

	b, err := backend.Open(ctx, cfg, backend.Options{})
	if err != nil {
		cli.Exit(logger, "Failed to initialize backend", err)
	}
	defer b.Close()

	ips, err := security.NewIPResolver(cfg.TrustedProxies...)
	if err != nil {
		cli.Exit(logger, "Invalid trusted proxies", err)
	}
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimitPerMinute,
		CleanupInterval:   5 * time.Minute,
	})

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Services{
		Savings:       b.Savings,
		Expenses:      b.Expenses,
		Categories:    b.Categories,
		Incomes:       b.Incomes,
		Loans:         b.Loans,
		Households:    b.Households,
		Lifecycle:     b.Lifecycle,
		Notifications: b.Notifications,
	}, apphttp.Options{
		JWTSecret: []byte(cfg.JWTSecret),
		Logger:    logger,
		Limiter:   limiter,
		IPs:       ips,
		Ready:     b.Repo.Ping,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting finanzas server",
			"port", cfg.Port,
			"amqp_enabled", b.Publisher != nil,
			"export_sinks", len(b.Sinks))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", applog.FieldError, err)
	}
	logger.Info("Server stopped gracefully")
}
