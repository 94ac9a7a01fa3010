package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"finanzas/internal/core"
)

const getSavings = `SELECT household_id, balance_cents, last_updated FROM savings WHERE household_id = ?`

// GetSavings returns a zero balance for households that never touched savings.
func (q *Queries) GetSavings(ctx context.Context, householdID int64) (core.Savings, error) {
	var (
		s       core.Savings
		updated dbTime
	)
	err := q.db.QueryRowContext(ctx, getSavings, householdID).Scan(&s.HouseholdID, &s.Balance.Cents, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Savings{HouseholdID: householdID}, nil
	}
	if err != nil {
		return core.Savings{}, fmt.Errorf("get savings: %w", err)
	}
	s.LastUpdated = updated.Time
	return s, nil
}

const addSavings = `INSERT INTO savings (household_id, balance_cents, last_updated)
VALUES (?, ?, ?)
ON CONFLICT (household_id) DO UPDATE SET
    balance_cents = balance_cents + excluded.balance_cents,
    last_updated = excluded.last_updated`

// AddSavings adjusts the balance by delta in one statement, creating the row
// on first use. Negative deltas subtract. The balance may go negative.
func (q *Queries) AddSavings(ctx context.Context, householdID int64, delta core.Money, now time.Time) error {
	if _, err := q.db.ExecContext(ctx, addSavings, householdID, delta.Cents, now); err != nil {
		return fmt.Errorf("add savings: %w", err)
	}
	return nil
}

const setSavings = `INSERT INTO savings (household_id, balance_cents, last_updated)
VALUES (?, ?, ?)
ON CONFLICT (household_id) DO UPDATE SET
    balance_cents = excluded.balance_cents,
    last_updated = excluded.last_updated`

func (q *Queries) SetSavings(ctx context.Context, householdID int64, value core.Money, now time.Time) error {
	if _, err := q.db.ExecContext(ctx, setSavings, householdID, value.Cents, now); err != nil {
		return fmt.Errorf("set savings: %w", err)
	}
	return nil
}
