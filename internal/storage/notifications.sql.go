package storage

import (
	"context"
	"fmt"
	"time"

	"finanzas/internal/core"
)

const createNotification = `INSERT INTO notifications (user_id, household_id, loan_id, kind, message, due_date, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, loan_id, kind, due_date) DO NOTHING`

// CreateNotification reports false when the same reminder already exists.
func (q *Queries) CreateNotification(ctx context.Context, n core.Notification, now time.Time) (bool, error) {
	res, err := q.db.ExecContext(ctx, createNotification,
		n.UserID, n.HouseholdID, n.LoanID, n.Kind, n.Message, n.DueDate.String(), now)
	if err != nil {
		return false, fmt.Errorf("create notification: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return rows > 0, nil
}

const listNotifications = `SELECT id, user_id, household_id, loan_id, kind, message, due_date, created_at, read_at
FROM notifications
WHERE user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`

func (q *Queries) ListNotifications(ctx context.Context, userID int64, limit int) ([]core.Notification, error) {
	rows, err := q.db.QueryContext(ctx, listNotifications, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []core.Notification
	for rows.Next() {
		var (
			n                 core.Notification
			due               string
			createdAt, readAt dbTime
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.HouseholdID, &n.LoanID, &n.Kind, &n.Message, &due, &createdAt, &readAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if n.DueDate, err = parseStoredDate(due); err != nil {
			return nil, err
		}
		n.CreatedAt = createdAt.Time
		n.ReadAt = readAt.ptr()
		out = append(out, n)
	}
	return out, rows.Err()
}

const markNotificationRead = `UPDATE notifications SET read_at = ? WHERE id = ? AND user_id = ? AND read_at IS NULL`

func (q *Queries) MarkNotificationRead(ctx context.Context, userID, id int64, now time.Time) error {
	if _, err := q.db.ExecContext(ctx, markNotificationRead, now, id, userID); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

const deleteUserNotifications = `DELETE FROM notifications WHERE user_id = ?`

func (q *Queries) DeleteUserNotifications(ctx context.Context, userID int64) error {
	if _, err := q.db.ExecContext(ctx, deleteUserNotifications, userID); err != nil {
		return fmt.Errorf("delete user notifications: %w", err)
	}
	return nil
}
