package storage

import (
	"context"
	"fmt"
	"time"

	"finanzas/internal/core"
)

const userColumns = `id, email, name, role, verified_at, deleted_at, created_at`

func scanUser(row interface{ Scan(...interface{}) error }) (core.User, error) {
	var (
		u                   core.User
		role                string
		verified, deletedAt dbTime
		createdAt           dbTime
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &role, &verified, &deletedAt, &createdAt); err != nil {
		return core.User{}, err
	}
	u.Role = core.UserRole(role)
	u.VerifiedAt = verified.ptr()
	u.DeletedAt = deletedAt.ptr()
	u.CreatedAt = createdAt.Time
	return u, nil
}

const createUser = `INSERT INTO users (email, name, role, created_at)
VALUES (?, ?, ?, ?)
RETURNING ` + userColumns

func (q *Queries) CreateUser(ctx context.Context, email, name string, role core.UserRole, now time.Time) (core.User, error) {
	u, err := scanUser(q.db.QueryRowContext(ctx, createUser, email, name, string(role), now))
	if err != nil {
		if isUniqueViolation(err) {
			return core.User{}, fmt.Errorf("%w: email already registered", core.ErrConflict)
		}
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

const getUser = `SELECT ` + userColumns + ` FROM users WHERE id = ?`

// GetUser returns the user whether or not it is soft deleted.
func (q *Queries) GetUser(ctx context.Context, id int64) (core.User, error) {
	u, err := scanUser(q.db.QueryRowContext(ctx, getUser, id))
	if err != nil {
		return core.User{}, notFound(err, "user")
	}
	return u, nil
}

const getUserByEmail = `SELECT ` + userColumns + ` FROM users WHERE email = ?`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	u, err := scanUser(q.db.QueryRowContext(ctx, getUserByEmail, email))
	if err != nil {
		return core.User{}, notFound(err, "user")
	}
	return u, nil
}

const verifyUser = `UPDATE users SET verified_at = ? WHERE id = ? AND verified_at IS NULL`

func (q *Queries) VerifyUser(ctx context.Context, id int64, now time.Time) error {
	_, err := q.db.ExecContext(ctx, verifyUser, now, id)
	if err != nil {
		return fmt.Errorf("verify user: %w", err)
	}
	return nil
}

const softDeleteUser = `UPDATE users SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`

func (q *Queries) SoftDeleteUser(ctx context.Context, id int64, now time.Time) error {
	res, err := q.db.ExecContext(ctx, softDeleteUser, now, id)
	if err != nil {
		return fmt.Errorf("soft delete user: %w", err)
	}
	return rowsAffected(res, "user")
}

const restoreUser = `UPDATE users SET deleted_at = NULL WHERE id = ? AND deleted_at IS NOT NULL`

func (q *Queries) RestoreUser(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, restoreUser, id)
	if err != nil {
		return fmt.Errorf("restore user: %w", err)
	}
	return rowsAffected(res, "deleted user")
}

const deleteUser = `DELETE FROM users WHERE id = ?`

func (q *Queries) DeleteUser(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, deleteUser, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return rowsAffected(res, "user")
}

const listUnverifiedBefore = `SELECT id FROM users
WHERE verified_at IS NULL AND deleted_at IS NULL AND created_at < ?
ORDER BY id`

// ListUnverifiedBefore returns users that never verified and registered
// before cutoff.
func (q *Queries) ListUnverifiedBefore(ctx context.Context, cutoff time.Time) ([]int64, error) {
	return q.listIDs(ctx, listUnverifiedBefore, cutoff.UTC())
}

const listSoftDeletedBefore = `SELECT id FROM users
WHERE deleted_at IS NOT NULL AND deleted_at < ?
ORDER BY id`

func (q *Queries) ListSoftDeletedBefore(ctx context.Context, cutoff time.Time) ([]int64, error) {
	return q.listIDs(ctx, listSoftDeletedBefore, cutoff.UTC())
}

func (q *Queries) listIDs(ctx context.Context, query string, args ...interface{}) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const setUserRole = `UPDATE users SET role = ? WHERE id = ?`

func (q *Queries) SetUserRole(ctx context.Context, id int64, role core.UserRole) error {
	res, err := q.db.ExecContext(ctx, setUserRole, string(role), id)
	if err != nil {
		return fmt.Errorf("set user role: %w", err)
	}
	return rowsAffected(res, "user")
}
