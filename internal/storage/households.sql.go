package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"finanzas/internal/core"
)

const householdColumns = `id, name, owner_id, invite_code, savings_goal_type, savings_goal_value, deleted_at, created_at`

func scanHousehold(row interface{ Scan(...interface{}) error }) (core.Household, error) {
	var (
		h                    core.Household
		goalType             string
		deletedAt, createdAt dbTime
	)
	if err := row.Scan(&h.ID, &h.Name, &h.OwnerID, &h.InviteCode, &goalType, &h.SavingsGoal.Value, &deletedAt, &createdAt); err != nil {
		return core.Household{}, err
	}
	h.SavingsGoal.Type = core.GoalType(goalType)
	h.DeletedAt = deletedAt.ptr()
	h.CreatedAt = createdAt.Time
	return h, nil
}

const createHousehold = `INSERT INTO households (name, owner_id, invite_code, created_at)
VALUES (?, ?, ?, ?)
RETURNING ` + householdColumns

func (q *Queries) CreateHousehold(ctx context.Context, name string, ownerID int64, inviteCode string, now time.Time) (core.Household, error) {
	h, err := scanHousehold(q.db.QueryRowContext(ctx, createHousehold, name, ownerID, inviteCode, now))
	if err != nil {
		if isUniqueViolation(err) {
			return core.Household{}, fmt.Errorf("%w: invite code already in use", core.ErrConflict)
		}
		return core.Household{}, fmt.Errorf("create household: %w", err)
	}
	return h, nil
}

const getHousehold = `SELECT ` + householdColumns + ` FROM households WHERE id = ? AND deleted_at IS NULL`

func (q *Queries) GetHousehold(ctx context.Context, id int64) (core.Household, error) {
	h, err := scanHousehold(q.db.QueryRowContext(ctx, getHousehold, id))
	if err != nil {
		return core.Household{}, notFound(err, "household")
	}
	return h, nil
}

const getHouseholdByInvite = `SELECT ` + householdColumns + ` FROM households WHERE invite_code = ? AND deleted_at IS NULL`

func (q *Queries) GetHouseholdByInvite(ctx context.Context, code string) (core.Household, error) {
	h, err := scanHousehold(q.db.QueryRowContext(ctx, getHouseholdByInvite, strings.ToUpper(strings.TrimSpace(code))))
	if err != nil {
		return core.Household{}, notFound(err, "household")
	}
	return h, nil
}

const renameHousehold = `UPDATE households SET name = ? WHERE id = ? AND deleted_at IS NULL`

func (q *Queries) RenameHousehold(ctx context.Context, id int64, name string) error {
	res, err := q.db.ExecContext(ctx, renameHousehold, name, id)
	if err != nil {
		return fmt.Errorf("rename household: %w", err)
	}
	return rowsAffected(res, "household")
}

const updateInviteCode = `UPDATE households SET invite_code = ? WHERE id = ? AND deleted_at IS NULL`

func (q *Queries) UpdateInviteCode(ctx context.Context, id int64, code string) error {
	res, err := q.db.ExecContext(ctx, updateInviteCode, code, id)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: invite code already in use", core.ErrConflict)
		}
		return fmt.Errorf("update invite code: %w", err)
	}
	return rowsAffected(res, "household")
}

const updateSavingsGoal = `UPDATE households SET savings_goal_type = ?, savings_goal_value = ? WHERE id = ? AND deleted_at IS NULL`

func (q *Queries) UpdateSavingsGoal(ctx context.Context, id int64, goal core.SavingsGoal) error {
	res, err := q.db.ExecContext(ctx, updateSavingsGoal, string(goal.Type), goal.Value, id)
	if err != nil {
		return fmt.Errorf("update savings goal: %w", err)
	}
	return rowsAffected(res, "household")
}

const setHouseholdOwner = `UPDATE households SET owner_id = ? WHERE id = ?`

func (q *Queries) SetHouseholdOwner(ctx context.Context, id, ownerID int64) error {
	res, err := q.db.ExecContext(ctx, setHouseholdOwner, ownerID, id)
	if err != nil {
		return fmt.Errorf("set household owner: %w", err)
	}
	return rowsAffected(res, "household")
}

const listHouseholdsForUser = `SELECT h.id, h.name, h.owner_id, h.invite_code, h.savings_goal_type, h.savings_goal_value, h.deleted_at, h.created_at
FROM households h
JOIN household_members m ON m.household_id = h.id
WHERE m.user_id = ? AND h.deleted_at IS NULL
ORDER BY m.is_default DESC, h.id`

func (q *Queries) ListHouseholdsForUser(ctx context.Context, userID int64) ([]core.Household, error) {
	return q.listHouseholds(ctx, listHouseholdsForUser, userID)
}

const listOwnedHouseholds = `SELECT ` + householdColumns + ` FROM households WHERE owner_id = ? ORDER BY id`

// ListOwnedHouseholds includes tombstoned households, which still reference
// their owner.
func (q *Queries) ListOwnedHouseholds(ctx context.Context, ownerID int64) ([]core.Household, error) {
	return q.listHouseholds(ctx, listOwnedHouseholds, ownerID)
}

const listActiveHouseholds = `SELECT ` + householdColumns + ` FROM households WHERE deleted_at IS NULL ORDER BY id`

func (q *Queries) ListActiveHouseholds(ctx context.Context) ([]core.Household, error) {
	return q.listHouseholds(ctx, listActiveHouseholds)
}

func (q *Queries) listHouseholds(ctx context.Context, query string, args ...interface{}) ([]core.Household, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list households: %w", err)
	}
	defer rows.Close()

	var out []core.Household
	for rows.Next() {
		h, err := scanHousehold(rows)
		if err != nil {
			return nil, fmt.Errorf("scan household: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

const memberColumns = `household_id, user_id, role, is_default, created_at`

func scanMember(row interface{ Scan(...interface{}) error }) (core.Member, error) {
	var (
		m         core.Member
		role      string
		isDefault int64
		createdAt dbTime
	)
	if err := row.Scan(&m.HouseholdID, &m.UserID, &role, &isDefault, &createdAt); err != nil {
		return core.Member{}, err
	}
	m.Role = core.MemberRole(role)
	m.IsDefault = isDefault == 1
	m.CreatedAt = createdAt.Time
	return m, nil
}

const addMember = `INSERT INTO household_members (household_id, user_id, role, is_default, created_at)
VALUES (?, ?, ?, ?, ?)`

func (q *Queries) AddMember(ctx context.Context, householdID, userID int64, role core.MemberRole, isDefault bool, now time.Time) error {
	_, err := q.db.ExecContext(ctx, addMember, householdID, userID, string(role), boolInt(isDefault), now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: already a member", core.ErrConflict)
		}
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

const getMember = `SELECT ` + memberColumns + ` FROM household_members WHERE household_id = ? AND user_id = ?`

func (q *Queries) GetMember(ctx context.Context, householdID, userID int64) (core.Member, error) {
	m, err := scanMember(q.db.QueryRowContext(ctx, getMember, householdID, userID))
	if err != nil {
		return core.Member{}, notFound(err, "membership")
	}
	return m, nil
}

const getDefaultMembership = `SELECT m.household_id, m.user_id, m.role, m.is_default, m.created_at
FROM household_members m
JOIN households h ON h.id = m.household_id
WHERE m.user_id = ? AND h.deleted_at IS NULL
ORDER BY m.is_default DESC, m.created_at, m.rowid
LIMIT 1`

// GetDefaultMembership returns the default membership, or the oldest one
// when none is flagged.
func (q *Queries) GetDefaultMembership(ctx context.Context, userID int64) (core.Member, error) {
	m, err := scanMember(q.db.QueryRowContext(ctx, getDefaultMembership, userID))
	if err != nil {
		return core.Member{}, notFound(err, "household membership")
	}
	return m, nil
}

const listMembers = `SELECT ` + memberColumns + ` FROM household_members WHERE household_id = ? ORDER BY created_at, rowid`

// ListMembers returns members longest-standing first.
func (q *Queries) ListMembers(ctx context.Context, householdID int64) ([]core.Member, error) {
	rows, err := q.db.QueryContext(ctx, listMembers, householdID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []core.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

const updateMemberRole = `UPDATE household_members SET role = ? WHERE household_id = ? AND user_id = ?`

func (q *Queries) UpdateMemberRole(ctx context.Context, householdID, userID int64, role core.MemberRole) error {
	res, err := q.db.ExecContext(ctx, updateMemberRole, string(role), householdID, userID)
	if err != nil {
		return fmt.Errorf("update member role: %w", err)
	}
	return rowsAffected(res, "membership")
}

const removeMember = `DELETE FROM household_members WHERE household_id = ? AND user_id = ?`

func (q *Queries) RemoveMember(ctx context.Context, householdID, userID int64) error {
	res, err := q.db.ExecContext(ctx, removeMember, householdID, userID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return rowsAffected(res, "membership")
}

const promoteDefaultMembership = `UPDATE household_members SET is_default = 1
WHERE rowid = (SELECT rowid FROM household_members WHERE user_id = ? ORDER BY created_at, rowid LIMIT 1)
AND NOT EXISTS (SELECT 1 FROM household_members WHERE user_id = ? AND is_default = 1)`

// PromoteDefaultMembership flags the user's oldest membership as default
// when none is flagged. Run it with RemoveMember inside WithTx.
func (q *Queries) PromoteDefaultMembership(ctx context.Context, userID int64) error {
	if _, err := q.db.ExecContext(ctx, promoteDefaultMembership, userID, userID); err != nil {
		return fmt.Errorf("promote default membership: %w", err)
	}
	return nil
}

const clearDefault = `UPDATE household_members SET is_default = 0 WHERE user_id = ? AND is_default = 1`

const setDefault = `UPDATE household_members SET is_default = 1 WHERE household_id = ? AND user_id = ?`

// SetDefaultHousehold moves the user's default flag. Run it inside WithTx so
// the clear and the set land together.
func (q *Queries) SetDefaultHousehold(ctx context.Context, householdID, userID int64) error {
	if _, err := q.db.ExecContext(ctx, clearDefault, userID); err != nil {
		return fmt.Errorf("clear default household: %w", err)
	}
	res, err := q.db.ExecContext(ctx, setDefault, householdID, userID)
	if err != nil {
		return fmt.Errorf("set default household: %w", err)
	}
	return rowsAffected(res, "membership")
}

const deleteUserMemberships = `DELETE FROM household_members WHERE user_id = ?`

func (q *Queries) DeleteUserMemberships(ctx context.Context, userID int64) error {
	if _, err := q.db.ExecContext(ctx, deleteUserMemberships, userID); err != nil {
		return fmt.Errorf("delete memberships: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) {
		// SQLITE_CONSTRAINT_UNIQUE and SQLITE_CONSTRAINT_PRIMARYKEY
		return coder.Code() == 2067 || coder.Code() == 1555
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

const listTombstonedHouseholdsBefore = `SELECT id FROM households WHERE deleted_at IS NOT NULL AND deleted_at < ? ORDER BY id`

// ListTombstonedHouseholdsBefore returns soft deleted households whose
// tombstone is older than cutoff.
func (q *Queries) ListTombstonedHouseholdsBefore(ctx context.Context, cutoff time.Time) ([]int64, error) {
	return q.listIDs(ctx, listTombstonedHouseholdsBefore, cutoff.UTC())
}
