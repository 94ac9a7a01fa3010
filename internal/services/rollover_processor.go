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

// RolloverProcessor copies last period's fixed expenses into the current
// period for every live household.
type RolloverProcessor struct {
	storage  *storage.SQLiteRepository
	expenses *ExpenseService
}

func NewRolloverProcessor(storage *storage.SQLiteRepository, expenses *ExpenseService) *RolloverProcessor {
	return &RolloverProcessor{storage: storage, expenses: expenses}
}

// RolloverSummary counts what one run did.
type RolloverSummary struct {
	Households int
	Copied     int64
	Failed     int
}

// Process rolls the period before now into the period of now. Household
// failures are logged and counted; they never stop the batch.
func (p *RolloverProcessor) Process(ctx context.Context, now time.Time) (RolloverSummary, error) {
	if p.storage == nil || p.expenses == nil {
		return RolloverSummary{}, fmt.Errorf("processor not properly initialized")
	}

	households, err := p.storage.Queries().ListActiveHouseholds(ctx)
	if err != nil {
		return RolloverSummary{}, fmt.Errorf("list households: %w", err)
	}
	to := core.PeriodOf(core.DateOf(now))
	from := to.Prev()

	slog.InfoContext(ctx, "Processing expense rollover",
		"households", len(households),
		"from", from.String(),
		"to", to.String())

	var sum RolloverSummary
	for _, h := range households {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Households++
		n, err := p.expenses.Rollover(ctx, h.ID, from, to)
		if err != nil {
			sum.Failed++
			slog.ErrorContext(ctx, "Rollover failed for household",
				applog.FieldHouseholdID, h.ID,
				"error", err)
			continue
		}
		sum.Copied += n
	}

	slog.InfoContext(ctx, "Expense rollover complete",
		"households", sum.Households,
		"copied", sum.Copied,
		"failed", sum.Failed)
	return sum, nil
}
