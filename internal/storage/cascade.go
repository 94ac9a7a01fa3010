package storage

import (
	"context"
	"fmt"
	"time"

	"finanzas/internal/core"
)

// cascadeStep removes the rows of one table that depend on a household.
type cascadeStep struct {
	table string
	query string
}

// householdCascade lists the dependents of a household in deletion order.
// A new household-scoped table gets one line here.
var householdCascade = []cascadeStep{
	{"expenses", `DELETE FROM expenses WHERE household_id = ?`},
	{"categories", `DELETE FROM categories WHERE household_id = ?`},
	{"savings", `DELETE FROM savings WHERE household_id = ?`},
	{"incomes", `DELETE FROM incomes WHERE household_id = ?`},
	{"notifications", `DELETE FROM notifications WHERE household_id = ?`},
	{"loan_payments", `DELETE FROM loan_payments WHERE loan_id IN (SELECT id FROM loans WHERE household_id = ?)`},
	{"loans", `DELETE FROM loans WHERE household_id = ?`},
	{"household_members", `DELETE FROM household_members WHERE household_id = ?`},
}

// CascadeTables returns the dependent tables in the order they are cleared.
func CascadeTables() []string {
	tables := make([]string, len(householdCascade))
	for i, step := range householdCascade {
		tables[i] = step.table
	}
	return tables
}

// promoteOrphanedDefaults flags the oldest remaining membership of every
// user left without a default.
const promoteOrphanedDefaults = `UPDATE household_members SET is_default = 1
WHERE rowid IN (
	SELECT (SELECT m.rowid FROM household_members m WHERE m.user_id = u.user_id ORDER BY m.created_at, m.rowid LIMIT 1)
	FROM (SELECT DISTINCT user_id FROM household_members) u
	WHERE NOT EXISTS (SELECT 1 FROM household_members d WHERE d.user_id = u.user_id AND d.is_default = 1)
)`

const (
	hardDeleteHousehold = `DELETE FROM households WHERE id = ?`
	softDeleteHousehold = `UPDATE households SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`
)

// CascadeResult counts removed rows per table.
type CascadeResult map[string]int64

// CascadeDeleteHousehold clears every dependent table and then removes the
// household row (hard) or tombstones it (soft). It must run inside WithTx;
// any failure is reported as ErrInternalConsistency so the caller rolls back.
func (q *Queries) CascadeDeleteHousehold(ctx context.Context, householdID int64, mode core.DeleteMode, now time.Time) (CascadeResult, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: delete mode %q", core.ErrInvalidInput, mode)
	}
	result := make(CascadeResult, len(householdCascade)+1)
	for _, step := range householdCascade {
		res, err := q.db.ExecContext(ctx, step.query, householdID)
		if err != nil {
			return nil, fmt.Errorf("%w: cascade %s for household %d: %v", core.ErrInternalConsistency, step.table, householdID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("%w: cascade %s rows: %v", core.ErrInternalConsistency, step.table, err)
		}
		result[step.table] = n
	}
	if _, err := q.db.ExecContext(ctx, promoteOrphanedDefaults); err != nil {
		return nil, fmt.Errorf("%w: promote default memberships: %v", core.ErrInternalConsistency, err)
	}

	var (
		n   int64
		err error
	)
	if mode == core.HardDelete {
		n, err = q.exec(ctx, hardDeleteHousehold, householdID)
	} else {
		n, err = q.exec(ctx, softDeleteHousehold, now, householdID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: delete household %d: %v", core.ErrInternalConsistency, householdID, err)
	}
	result["households"] = n
	return result, nil
}

func (q *Queries) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountHouseholdRows returns how many rows in each dependent table still
// reference the household.
func (q *Queries) CountHouseholdRows(ctx context.Context, householdID int64) (map[string]int64, error) {
	counts := make(map[string]int64, len(householdCascade))
	for _, step := range householdCascade {
		var query string
		if step.table == "loan_payments" {
			query = `SELECT COUNT(*) FROM loan_payments WHERE loan_id IN (SELECT id FROM loans WHERE household_id = ?)`
		} else {
			query = `SELECT COUNT(*) FROM ` + step.table + ` WHERE household_id = ?`
		}
		var n int64
		if err := q.db.QueryRowContext(ctx, query, householdID).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", step.table, err)
		}
		counts[step.table] = n
	}
	return counts, nil
}
