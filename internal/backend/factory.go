// Package backend assembles the storage, event bus, export sinks and
// services shared by the API server and the worker.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"finanzas/internal/amqp"
	"finanzas/internal/cache"
	"finanzas/internal/config"
	"finanzas/internal/core"
	"finanzas/internal/services"
	ports "finanzas/internal/sheets"
	gsheet "finanzas/internal/sheets/google"
	"finanzas/internal/storage"
	"finanzas/internal/worker"
)

const membershipCacheSize = 1000

// Options adjusts what Open wires beyond the configuration.
type Options struct {
	// Sinks are appended after the Google Sheets sink, if any.
	Sinks []ports.ExportWriter
	// RequireAMQP makes a failed broker connection fatal instead of
	// degrading to no events.
	RequireAMQP bool
}

// Backend owns every long-lived resource. Close releases them in reverse
// order of creation.
type Backend struct {
	Repo      *storage.SQLiteRepository
	Publisher *amqp.Client
	Caches    *cache.Manager
	Sinks     []ports.ExportWriter

	Savings       *services.SavingsService
	Expenses      *services.ExpenseService
	Categories    *services.CategoryService
	Incomes       *services.IncomeService
	Loans         *services.LoanService
	Households    *services.HouseholdService
	Lifecycle     *services.LifecycleService
	Notifications *services.NotificationService

	cfg     *config.Config
	closers []func() error
}

// Open connects everything cfg describes. The SQLite store is required;
// AMQP and Google Sheets are optional.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*Backend, error) {
	b := &Backend{cfg: cfg, Caches: cache.NewManager()}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	b.Repo = repo
	b.closers = append(b.closers, repo.Close)

	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingPrefix)
		switch {
		case err != nil && opts.RequireAMQP:
			b.Close()
			return nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
		case err != nil:
			slog.WarnContext(ctx, "Failed to initialize AMQP client, continuing without events", "error", err)
		default:
			b.Publisher = client
			publisher = client
			b.closers = append(b.closers, client.Close)
			slog.InfoContext(ctx, "Initialized AMQP client",
				"exchange", cfg.AMQPExchange,
				"routing_prefix", cfg.AMQPRoutingPrefix)
		}
	}

	if cfg.SheetsEnabled() {
		client, err := gsheet.NewFromConfig(ctx, cfg)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		b.Sinks = append(b.Sinks, client)
	}
	b.Sinks = append(b.Sinks, opts.Sinks...)

	var memberships cache.Cache[core.Member]
	if cfg.MembershipCacheTTL > 0 {
		lru := cache.NewLRUCache[core.Member](membershipCacheSize, cfg.MembershipCacheTTL)
		b.Caches.Register(lru)
		b.Caches.StartCleanup(cfg.MembershipCacheTTL)
		memberships = lru
	}
	b.closers = append(b.closers, func() error { b.Caches.Stop(); return nil })

	b.Households = services.NewHouseholdService(repo, memberships, publisher)
	b.Savings = services.NewSavingsService(repo)
	b.Expenses = services.NewExpenseService(repo, publisher, b.Sinks...)
	b.Categories = services.NewCategoryService(repo)
	b.Incomes = services.NewIncomeService(repo)
	b.Loans = services.NewLoanService(repo, publisher)
	b.Lifecycle = services.NewLifecycleService(repo, b.Households, publisher)
	b.Notifications = services.NewNotificationService(repo)

	slog.InfoContext(ctx, "Backend initialized",
		"db_path", cfg.SQLiteDBPath,
		"amqp_enabled", b.Publisher != nil,
		"export_sinks", len(b.Sinks),
		"membership_cache", memberships != nil)
	return b, nil
}

// Processors builds the scheduled jobs over the same services the API uses.
func (b *Backend) Processors() worker.Processors {
	var publisher services.EventPublisher
	if b.Publisher != nil {
		publisher = b.Publisher
	}
	return worker.Processors{
		Rollover:  services.NewRolloverProcessor(b.Repo, b.Expenses),
		Retention: services.NewRetentionProcessor(b.Repo, b.Lifecycle, b.Households, b.cfg.UnverifiedTTL, b.cfg.SoftDeleteTTL),
		Reminders: services.NewReminderProcessor(b.Repo, publisher, services.DefaultReminderRules()...),
	}
}

// Close releases resources. Safe to call on a partially opened backend.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
