package storage

import (
	"context"
	"fmt"
	"time"

	"finanzas/internal/core"
)

const expenseColumns = `id, household_id, category_id, name, amount_cents, paid_cents, type, month, date, is_paid_with_savings, created_at, updated_at`

func scanExpense(row interface{ Scan(...interface{}) error }) (core.Expense, error) {
	var (
		e                    core.Expense
		typ, month, date     string
		paidWithSavings      int64
		createdAt, updatedAt dbTime
	)
	if err := row.Scan(&e.ID, &e.HouseholdID, &e.CategoryID, &e.Name, &e.Amount.Cents, &e.Paid.Cents,
		&typ, &month, &date, &paidWithSavings, &createdAt, &updatedAt); err != nil {
		return core.Expense{}, err
	}
	p, err := core.ParsePeriod(month)
	if err != nil {
		return core.Expense{}, fmt.Errorf("stored period %q: %w", month, core.ErrInternalConsistency)
	}
	d, err := parseStoredDate(date)
	if err != nil {
		return core.Expense{}, err
	}
	e.Type = core.ExpenseType(typ)
	e.Month = p
	e.Date = d
	e.IsPaidWithSavings = paidWithSavings == 1
	e.CreatedAt = createdAt.Time
	e.UpdatedAt = updatedAt.Time
	return e, nil
}

const createExpense = `INSERT INTO expenses (household_id, category_id, name, amount_cents, paid_cents, type, month, date, is_paid_with_savings, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + expenseColumns

func (q *Queries) CreateExpense(ctx context.Context, e core.Expense, now time.Time) (core.Expense, error) {
	created, err := scanExpense(q.db.QueryRowContext(ctx, createExpense,
		e.HouseholdID, e.CategoryID, e.Name, e.Amount.Cents, e.Paid.Cents, string(e.Type),
		e.Month.String(), e.Date.String(), boolInt(e.IsPaidWithSavings), now, now))
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}
	return created, nil
}

const getExpense = `SELECT ` + expenseColumns + ` FROM expenses WHERE id = ? AND household_id = ?`

// GetExpense scopes the lookup by household so foreign ids read as missing.
func (q *Queries) GetExpense(ctx context.Context, householdID, id int64) (core.Expense, error) {
	e, err := scanExpense(q.db.QueryRowContext(ctx, getExpense, id, householdID))
	if err != nil {
		return core.Expense{}, notFound(err, "expense")
	}
	return e, nil
}

const updateExpense = `UPDATE expenses
SET category_id = ?, name = ?, amount_cents = ?, paid_cents = ?, type = ?, month = ?, date = ?, updated_at = ?
WHERE id = ? AND household_id = ?`

// UpdateExpense writes the editable fields. is_paid_with_savings is fixed at
// creation and never rewritten.
func (q *Queries) UpdateExpense(ctx context.Context, e core.Expense, now time.Time) error {
	res, err := q.db.ExecContext(ctx, updateExpense,
		e.CategoryID, e.Name, e.Amount.Cents, e.Paid.Cents, string(e.Type), e.Month.String(), e.Date.String(), now,
		e.ID, e.HouseholdID)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	return rowsAffected(res, "expense")
}

const setExpensePaid = `UPDATE expenses SET paid_cents = ?, updated_at = ? WHERE id = ? AND household_id = ?`

func (q *Queries) SetExpensePaid(ctx context.Context, householdID, id int64, paid core.Money, now time.Time) error {
	res, err := q.db.ExecContext(ctx, setExpensePaid, paid.Cents, now, id, householdID)
	if err != nil {
		return fmt.Errorf("set expense paid: %w", err)
	}
	return rowsAffected(res, "expense")
}

const payCategory = `UPDATE expenses SET paid_cents = amount_cents, updated_at = ?
WHERE household_id = ? AND category_id = ? AND paid_cents < amount_cents`

// PayCategory settles every not fully paid expense in the category and
// returns how many rows changed.
func (q *Queries) PayCategory(ctx context.Context, householdID, categoryID int64, now time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, payCategory, now, householdID, categoryID)
	if err != nil {
		return 0, fmt.Errorf("pay category: %w", err)
	}
	return res.RowsAffected()
}

const deleteExpense = `DELETE FROM expenses WHERE id = ? AND household_id = ?`

func (q *Queries) DeleteExpense(ctx context.Context, householdID, id int64) error {
	res, err := q.db.ExecContext(ctx, deleteExpense, id, householdID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return rowsAffected(res, "expense")
}

const sumSavingsFundedByCategory = `SELECT COALESCE(SUM(amount_cents), 0) FROM expenses
WHERE household_id = ? AND category_id = ? AND is_paid_with_savings = 1`

// SumSavingsFundedByCategory totals the amounts that were debited from
// savings for expenses in the category.
func (q *Queries) SumSavingsFundedByCategory(ctx context.Context, householdID, categoryID int64) (core.Money, error) {
	var total int64
	if err := q.db.QueryRowContext(ctx, sumSavingsFundedByCategory, householdID, categoryID).Scan(&total); err != nil {
		return core.Money{}, fmt.Errorf("sum savings funded expenses: %w", err)
	}
	return core.Money{Cents: total}, nil
}

const deleteExpensesByCategory = `DELETE FROM expenses WHERE household_id = ? AND category_id = ?`

func (q *Queries) DeleteExpensesByCategory(ctx context.Context, householdID, categoryID int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteExpensesByCategory, householdID, categoryID)
	if err != nil {
		return 0, fmt.Errorf("delete category expenses: %w", err)
	}
	return res.RowsAffected()
}

const listExpensesByMonth = `SELECT ` + expenseColumns + ` FROM expenses
WHERE household_id = ? AND month = ?
ORDER BY date, id`

func (q *Queries) ListExpensesByMonth(ctx context.Context, householdID int64, month core.Period) ([]core.Expense, error) {
	rows, err := q.db.QueryContext(ctx, listExpensesByMonth, householdID, month.String())
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const rolloverFixedExpenses = `INSERT INTO expenses (household_id, category_id, name, amount_cents, paid_cents, type, month, date, is_paid_with_savings, created_at, updated_at)
SELECT src.household_id, src.category_id, src.name, src.amount_cents, 0, src.type, ?, ?, 0, ?, ?
FROM expenses src
WHERE src.household_id = ? AND src.month = ? AND src.type = 'Fijo'
AND NOT EXISTS (
    SELECT 1 FROM expenses dst
    WHERE dst.household_id = src.household_id
    AND dst.month = ?
    AND dst.type = 'Fijo'
    AND dst.name = src.name
    AND dst.category_id = src.category_id
)`

// RolloverFixedExpenses copies the Fijo expenses of from into to with paid
// reset and the date moved to the first of to. Expenses already present in
// to (same name and category) are skipped, so repeated runs add nothing.
func (q *Queries) RolloverFixedExpenses(ctx context.Context, householdID int64, from, to core.Period, now time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, rolloverFixedExpenses,
		to.String(), to.FirstDay().String(), now, now,
		householdID, from.String(), to.String())
	if err != nil {
		return 0, fmt.Errorf("rollover expenses: %w", err)
	}
	return res.RowsAffected()
}
