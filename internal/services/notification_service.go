package services

import (
	"context"

	"finanzas/internal/core"
	"finanzas/internal/storage"
)

const defaultNotificationLimit = 50

type NotificationService struct {
	storage *storage.SQLiteRepository
}

func NewNotificationService(storage *storage.SQLiteRepository) *NotificationService {
	return &NotificationService{storage: storage}
}

// List returns the newest notifications first; limit falls back to 50.
func (s *NotificationService) List(ctx context.Context, userID int64, limit int) ([]core.Notification, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultNotificationLimit
	}
	return s.storage.Queries().ListNotifications(ctx, userID, limit)
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id int64) error {
	return s.storage.Queries().MarkNotificationRead(ctx, userID, id, s.storage.Now())
}
