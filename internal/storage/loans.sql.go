package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"finanzas/internal/core"
)

const loanColumns = `id, household_id, type, person_name, amount_cents, date, due_date, installments, interest_rate, interest_type, payment_frequency, status, remaining_balance_cents, remaining_balance_at, created_at, updated_at`

func scanLoan(row interface{ Scan(...interface{}) error }) (core.Loan, error) {
	var (
		l                                core.Loan
		typ, date, interest, freq, state string
		dueDate                          sql.NullString
		remaining                        sql.NullInt64
		remainingAt, createdAt, updated  dbTime
	)
	if err := row.Scan(&l.ID, &l.HouseholdID, &typ, &l.PersonName, &l.Amount.Cents, &date, &dueDate,
		&l.Installments, &l.InterestRate, &interest, &freq, &state, &remaining, &remainingAt, &createdAt, &updated); err != nil {
		return core.Loan{}, err
	}
	d, err := parseStoredDate(date)
	if err != nil {
		return core.Loan{}, err
	}
	l.Date = d
	if dueDate.Valid {
		due, err := parseStoredDate(dueDate.String)
		if err != nil {
			return core.Loan{}, err
		}
		l.DueDate = &due
	}
	if remaining.Valid {
		l.RemainingOverride = &core.Money{Cents: remaining.Int64}
		l.RemainingOverrideAt = remainingAt.ptr()
	}
	l.Type = core.LoanType(typ)
	l.InterestType = core.InterestType(interest)
	l.PaymentFrequency = core.PaymentFrequency(freq)
	l.Status = core.LoanStatus(state)
	l.CreatedAt = createdAt.Time
	l.UpdatedAt = updated.Time
	return l, nil
}

func nullDate(d *core.Date) sql.NullString {
	if d == nil || d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

const createLoan = `INSERT INTO loans (household_id, type, person_name, amount_cents, date, due_date, installments, interest_rate, interest_type, payment_frequency, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'active', ?, ?)
RETURNING ` + loanColumns

func (q *Queries) CreateLoan(ctx context.Context, l core.Loan, now time.Time) (core.Loan, error) {
	created, err := scanLoan(q.db.QueryRowContext(ctx, createLoan,
		l.HouseholdID, string(l.Type), l.PersonName, l.Amount.Cents, l.Date.String(), nullDate(l.DueDate),
		l.Installments, l.InterestRate, string(l.InterestType), string(l.PaymentFrequency), now, now))
	if err != nil {
		return core.Loan{}, fmt.Errorf("create loan: %w", err)
	}
	return created, nil
}

const getLoan = `SELECT ` + loanColumns + ` FROM loans WHERE id = ? AND household_id = ?`

// GetLoan loads the loan without its payments.
func (q *Queries) GetLoan(ctx context.Context, householdID, id int64) (core.Loan, error) {
	l, err := scanLoan(q.db.QueryRowContext(ctx, getLoan, id, householdID))
	if err != nil {
		return core.Loan{}, notFound(err, "loan")
	}
	return l, nil
}

const listLoans = `SELECT ` + loanColumns + ` FROM loans WHERE household_id = ? ORDER BY date DESC, id DESC`

func (q *Queries) ListLoans(ctx context.Context, householdID int64) ([]core.Loan, error) {
	return q.listLoans(ctx, listLoans, householdID)
}

const listActiveLoansDueOn = `SELECT ` + loanColumns + ` FROM loans l
WHERE l.status = 'active' AND l.due_date = ?
AND EXISTS (SELECT 1 FROM households h WHERE h.id = l.household_id AND h.deleted_at IS NULL)
ORDER BY l.id`

// ListActiveLoansDueOn spans every live household.
func (q *Queries) ListActiveLoansDueOn(ctx context.Context, due core.Date) ([]core.Loan, error) {
	return q.listLoans(ctx, listActiveLoansDueOn, due.String())
}

func (q *Queries) listLoans(ctx context.Context, query string, args ...interface{}) ([]core.Loan, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	defer rows.Close()

	var out []core.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan loan: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

const updateLoan = `UPDATE loans
SET type = ?, person_name = ?, amount_cents = ?, date = ?, due_date = ?, installments = ?, interest_rate = ?,
    interest_type = ?, payment_frequency = ?, remaining_balance_cents = ?, remaining_balance_at = ?, updated_at = ?
WHERE id = ? AND household_id = ?`

func (q *Queries) UpdateLoan(ctx context.Context, l core.Loan, now time.Time) error {
	var remaining sql.NullInt64
	if l.RemainingOverride != nil {
		remaining = sql.NullInt64{Int64: l.RemainingOverride.Cents, Valid: true}
	}
	res, err := q.db.ExecContext(ctx, updateLoan,
		string(l.Type), l.PersonName, l.Amount.Cents, l.Date.String(), nullDate(l.DueDate), l.Installments, l.InterestRate,
		string(l.InterestType), string(l.PaymentFrequency), remaining, toNullTime(l.RemainingOverrideAt), now,
		l.ID, l.HouseholdID)
	if err != nil {
		return fmt.Errorf("update loan: %w", err)
	}
	return rowsAffected(res, "loan")
}

const setLoanStatus = `UPDATE loans SET status = ?, updated_at = ? WHERE id = ? AND household_id = ?`

func (q *Queries) SetLoanStatus(ctx context.Context, householdID, id int64, status core.LoanStatus, now time.Time) error {
	res, err := q.db.ExecContext(ctx, setLoanStatus, string(status), now, id, householdID)
	if err != nil {
		return fmt.Errorf("set loan status: %w", err)
	}
	return rowsAffected(res, "loan")
}

const deleteLoanPayments = `DELETE FROM loan_payments WHERE loan_id = ?`

const deleteLoanNotifications = `DELETE FROM notifications WHERE loan_id = ?`

const deleteLoan = `DELETE FROM loans WHERE id = ? AND household_id = ?`

// DeleteLoan removes the loan with its payments and reminders. Run it inside
// WithTx.
func (q *Queries) DeleteLoan(ctx context.Context, householdID, id int64) error {
	if _, err := q.GetLoan(ctx, householdID, id); err != nil {
		return err
	}
	if _, err := q.db.ExecContext(ctx, deleteLoanPayments, id); err != nil {
		return fmt.Errorf("delete loan payments: %w", err)
	}
	if _, err := q.db.ExecContext(ctx, deleteLoanNotifications, id); err != nil {
		return fmt.Errorf("delete loan notifications: %w", err)
	}
	res, err := q.db.ExecContext(ctx, deleteLoan, id, householdID)
	if err != nil {
		return fmt.Errorf("delete loan: %w", err)
	}
	return rowsAffected(res, "loan")
}

const paymentColumns = `id, loan_id, amount_cents, date, notes, created_at`

func scanPayment(row interface{ Scan(...interface{}) error }) (core.LoanPayment, error) {
	var (
		p         core.LoanPayment
		date      string
		createdAt dbTime
	)
	if err := row.Scan(&p.ID, &p.LoanID, &p.Amount.Cents, &date, &p.Notes, &createdAt); err != nil {
		return core.LoanPayment{}, err
	}
	d, err := parseStoredDate(date)
	if err != nil {
		return core.LoanPayment{}, err
	}
	p.Date = d
	p.CreatedAt = createdAt.Time
	return p, nil
}

const createPayment = `INSERT INTO loan_payments (loan_id, amount_cents, date, notes, created_at)
VALUES (?, ?, ?, ?, ?)
RETURNING ` + paymentColumns

func (q *Queries) CreatePayment(ctx context.Context, p core.LoanPayment, now time.Time) (core.LoanPayment, error) {
	created, err := scanPayment(q.db.QueryRowContext(ctx, createPayment, p.LoanID, p.Amount.Cents, p.Date.String(), p.Notes, now))
	if err != nil {
		return core.LoanPayment{}, fmt.Errorf("create loan payment: %w", err)
	}
	return created, nil
}

const listPayments = `SELECT ` + paymentColumns + ` FROM loan_payments WHERE loan_id = ? ORDER BY date, id`

func (q *Queries) ListPayments(ctx context.Context, loanID int64) ([]core.LoanPayment, error) {
	rows, err := q.db.QueryContext(ctx, listPayments, loanID)
	if err != nil {
		return nil, fmt.Errorf("list loan payments: %w", err)
	}
	defer rows.Close()

	var out []core.LoanPayment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan loan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetLoanWithPayments loads the loan and attaches its payments.
func (q *Queries) GetLoanWithPayments(ctx context.Context, householdID, id int64) (core.Loan, error) {
	l, err := q.GetLoan(ctx, householdID, id)
	if err != nil {
		return core.Loan{}, err
	}
	if l.Payments, err = q.ListPayments(ctx, l.ID); err != nil {
		return core.Loan{}, err
	}
	return l, nil
}
