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

// SavingsService is the household savings ledger: one signed balance moved
// by add, subtract and set.
type SavingsService struct {
	storage *storage.SQLiteRepository
}

func NewSavingsService(storage *storage.SQLiteRepository) *SavingsService {
	return &SavingsService{storage: storage}
}

// SavingsOverview is the balance together with the household goal for the
// current period.
type SavingsOverview struct {
	core.Savings
	Goal        core.SavingsGoal `json:"goal"`
	MonthIncome core.Money       `json:"monthIncome"`
	Target      core.Money       `json:"target"`
	Period      core.Period      `json:"period"`
}

// Get returns the balance, zero for households that never saved.
func (s *SavingsService) Get(ctx context.Context, householdID int64) (core.Savings, error) {
	return s.storage.Queries().GetSavings(ctx, householdID)
}

// Overview reports the balance and the savings goal target for the period
// containing today.
func (s *SavingsService) Overview(ctx context.Context, householdID int64) (SavingsOverview, error) {
	q := s.storage.Queries()
	h, err := q.GetHousehold(ctx, householdID)
	if err != nil {
		return SavingsOverview{}, err
	}
	sv, err := q.GetSavings(ctx, householdID)
	if err != nil {
		return SavingsOverview{}, err
	}
	period := core.PeriodOf(core.DateOf(s.storage.Now()))
	income, err := q.SumIncomesForPeriod(ctx, householdID, period)
	if err != nil {
		return SavingsOverview{}, err
	}
	return SavingsOverview{
		Savings:     sv,
		Goal:        h.SavingsGoal,
		MonthIncome: income,
		Target:      h.SavingsGoal.Target(income),
		Period:      period,
	}, nil
}

// Apply parses amount and moves the balance. Negative balances are allowed.
func (s *SavingsService) Apply(ctx context.Context, householdID int64, amount string, op core.SavingsOp) (core.Savings, error) {
	if !op.Valid() {
		return core.Savings{}, fmt.Errorf("%w: operation must be add, subtract or set", core.ErrInvalidInput)
	}
	m, err := core.ParseAmount(amount)
	if err != nil {
		return core.Savings{}, fmt.Errorf("savings %s: %w", op, err)
	}

	var out core.Savings
	err = s.storage.WithTx(ctx, func(q *storage.Queries) error {
		if err := applySavings(ctx, q, householdID, m, op, s.storage.Now()); err != nil {
			return err
		}
		out, err = q.GetSavings(ctx, householdID)
		return err
	})
	if err != nil {
		return core.Savings{}, err
	}

	slog.InfoContext(ctx, "Savings updated",
		applog.FieldHouseholdID, householdID,
		applog.FieldOperation, string(op),
		applog.FieldAmountCents, m.Cents,
		"balance_cents", out.Balance.Cents)
	return out, nil
}

// applySavings is the single place balances change. Expense and loan flows
// call it inside their own transactions.
func applySavings(ctx context.Context, q *storage.Queries, householdID int64, amount core.Money, op core.SavingsOp, now time.Time) error {
	switch op {
	case core.SavingsAdd:
		return q.AddSavings(ctx, householdID, amount, now)
	case core.SavingsSubtract:
		return q.AddSavings(ctx, householdID, amount.Neg(), now)
	case core.SavingsSet:
		return q.SetSavings(ctx, householdID, amount, now)
	default:
		return fmt.Errorf("%w: savings operation %q", core.ErrInvalidInput, op)
	}
}
