package storage

import (
	"context"
	"fmt"
	"time"

	"finanzas/internal/core"
)

const incomeColumns = `id, household_id, amount_cents, date, category, description, type, created_at`

func scanIncome(row interface{ Scan(...interface{}) error }) (core.Income, error) {
	var (
		i         core.Income
		date      string
		createdAt dbTime
	)
	if err := row.Scan(&i.ID, &i.HouseholdID, &i.Amount.Cents, &date, &i.Category, &i.Description, &i.Type, &createdAt); err != nil {
		return core.Income{}, err
	}
	d, err := parseStoredDate(date)
	if err != nil {
		return core.Income{}, err
	}
	i.Date = d
	i.CreatedAt = createdAt.Time
	return i, nil
}

const createIncome = `INSERT INTO incomes (household_id, amount_cents, date, category, description, type, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
RETURNING ` + incomeColumns

func (q *Queries) CreateIncome(ctx context.Context, i core.Income, now time.Time) (core.Income, error) {
	created, err := scanIncome(q.db.QueryRowContext(ctx, createIncome,
		i.HouseholdID, i.Amount.Cents, i.Date.String(), i.Category, i.Description, i.Type, now))
	if err != nil {
		return core.Income{}, fmt.Errorf("create income: %w", err)
	}
	return created, nil
}

const listIncomesBetween = `SELECT ` + incomeColumns + ` FROM incomes
WHERE household_id = ? AND date >= ? AND date < ?
ORDER BY date, id`

// ListIncomesForPeriod returns incomes dated within the period.
func (q *Queries) ListIncomesForPeriod(ctx context.Context, householdID int64, p core.Period) ([]core.Income, error) {
	rows, err := q.db.QueryContext(ctx, listIncomesBetween, householdID, p.FirstDay().String(), p.Next().FirstDay().String())
	if err != nil {
		return nil, fmt.Errorf("list incomes: %w", err)
	}
	defer rows.Close()

	var out []core.Income
	for rows.Next() {
		i, err := scanIncome(rows)
		if err != nil {
			return nil, fmt.Errorf("scan income: %w", err)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

const sumIncomesBetween = `SELECT COALESCE(SUM(amount_cents), 0) FROM incomes
WHERE household_id = ? AND date >= ? AND date < ?`

func (q *Queries) SumIncomesForPeriod(ctx context.Context, householdID int64, p core.Period) (core.Money, error) {
	var total int64
	err := q.db.QueryRowContext(ctx, sumIncomesBetween, householdID, p.FirstDay().String(), p.Next().FirstDay().String()).Scan(&total)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum incomes: %w", err)
	}
	return core.Money{Cents: total}, nil
}

const deleteIncome = `DELETE FROM incomes WHERE id = ? AND household_id = ?`

func (q *Queries) DeleteIncome(ctx context.Context, householdID, id int64) error {
	res, err := q.db.ExecContext(ctx, deleteIncome, id, householdID)
	if err != nil {
		return fmt.Errorf("delete income: %w", err)
	}
	return rowsAffected(res, "income")
}
