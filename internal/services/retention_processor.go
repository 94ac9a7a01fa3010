package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"finanzas/internal/core"
	applog "finanzas/internal/log"
	"finanzas/internal/storage"
)

// RetentionProcessor forgets accounts that never verified and accounts or
// households whose soft delete has aged out.
type RetentionProcessor struct {
	storage       *storage.SQLiteRepository
	lifecycle     *LifecycleService
	households    *HouseholdService
	unverifiedTTL time.Duration
	softDeleteTTL time.Duration
}

func NewRetentionProcessor(storage *storage.SQLiteRepository, lifecycle *LifecycleService, households *HouseholdService, unverifiedTTL, softDeleteTTL time.Duration) *RetentionProcessor {
	return &RetentionProcessor{
		storage:       storage,
		lifecycle:     lifecycle,
		households:    households,
		unverifiedTTL: unverifiedTTL,
		softDeleteTTL: softDeleteTTL,
	}
}

// RetentionSummary counts purged records and per-item failures.
type RetentionSummary struct {
	Unverified  int
	SoftDeleted int
	Households  int
	Failed      int
}

// Process hard deletes everything past its retention window at now.
func (p *RetentionProcessor) Process(ctx context.Context, now time.Time) (RetentionSummary, error) {
	if p.storage == nil || p.lifecycle == nil || p.households == nil {
		return RetentionSummary{}, fmt.Errorf("processor not properly initialized")
	}
	q := p.storage.Queries()
	var sum RetentionSummary

	unverified, err := q.ListUnverifiedBefore(ctx, now.Add(-p.unverifiedTTL))
	if err != nil {
		return sum, fmt.Errorf("list unverified users: %w", err)
	}
	sum.Unverified, sum.Failed = p.purgeUsers(ctx, unverified, "unverified")

	deleted, err := q.ListSoftDeletedBefore(ctx, now.Add(-p.softDeleteTTL))
	if err != nil {
		return sum, fmt.Errorf("list soft deleted users: %w", err)
	}
	n, failed := p.purgeUsers(ctx, deleted, "soft_deleted")
	sum.SoftDeleted = n
	sum.Failed += failed

	tombstoned, err := q.ListTombstonedHouseholdsBefore(ctx, now.Add(-p.softDeleteTTL))
	if err != nil {
		return sum, fmt.Errorf("list tombstoned households: %w", err)
	}
	for _, hid := range tombstoned {
		if err := p.households.cascade(ctx, hid, core.HardDelete); err != nil {
			sum.Failed++
			continue
		}
		sum.Households++
	}

	slog.InfoContext(ctx, "Retention purge complete",
		"unverified", sum.Unverified,
		"soft_deleted", sum.SoftDeleted,
		"households", sum.Households,
		"failed", sum.Failed)
	return sum, nil
}

func (p *RetentionProcessor) purgeUsers(ctx context.Context, ids []int64, reason string) (purged, failed int) {
	for _, id := range ids {
		if ctx.Err() != nil {
			return purged, failed
		}
		if _, err := p.lifecycle.CascadeDeleteUser(ctx, id, core.HardDelete); err != nil {
			failed++
			slog.ErrorContext(ctx, "Retention purge failed",
				applog.FieldUserID, id,
				"reason", reason,
				"error", err)
			continue
		}
		purged++
	}
	return purged, failed
}
