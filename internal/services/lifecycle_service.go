package services

import (
	"context"
	"fmt"
	"log/slog"

	"finanzas/internal/amqp"
	"finanzas/internal/core"
	applog "finanzas/internal/log"
	"finanzas/internal/storage"
)

// LifecycleService removes users and everything they own. Every path (self
// delete, admin delete, bulk delete, retention) ends in CascadeDeleteUser,
// which in turn uses the storage cascade for households.
type LifecycleService struct {
	storage    *storage.SQLiteRepository
	households *HouseholdService
	publisher  EventPublisher
}

func NewLifecycleService(storage *storage.SQLiteRepository, households *HouseholdService, publisher EventPublisher) *LifecycleService {
	return &LifecycleService{storage: storage, households: households, publisher: publisher}
}

// UserDeletion describes what a hard user delete did to owned households.
type UserDeletion struct {
	UserID int64           `json:"userId"`
	Mode   core.DeleteMode `json:"mode"`
	// Transferred maps household id to the new owner.
	Transferred map[int64]int64 `json:"transferred,omitempty"`
	Deleted     []int64         `json:"deletedHouseholds,omitempty"`
}

// successor picks who inherits a household: the longest-standing admin,
// otherwise the longest-standing member. members is oldest first.
func successor(members []core.Member, leaving int64) (core.Member, bool) {
	var fallback *core.Member
	for i := range members {
		m := members[i]
		if m.UserID == leaving {
			continue
		}
		if m.Role == core.RoleAdmin {
			return m, true
		}
		if fallback == nil {
			fallback = &members[i]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return core.Member{}, false
}

// CascadeDeleteUser removes a user. Soft mode only tombstones the account
// and can be undone with Restore. Hard mode, in one transaction, hands
// every owned household to a successor or cascades it away when nobody is
// left, then drops the user's memberships, notifications and row.
func (s *LifecycleService) CascadeDeleteUser(ctx context.Context, userID int64, mode core.DeleteMode) (UserDeletion, error) {
	if !mode.Valid() {
		return UserDeletion{}, fmt.Errorf("%w: delete mode %q", core.ErrInvalidInput, mode)
	}
	out := UserDeletion{UserID: userID, Mode: mode}
	now := s.storage.Now()

	err := s.storage.WithTx(ctx, func(q *storage.Queries) error {
		if _, err := q.GetUser(ctx, userID); err != nil {
			return err
		}
		if mode == core.SoftDelete {
			return q.SoftDeleteUser(ctx, userID, now)
		}

		owned, err := q.ListOwnedHouseholds(ctx, userID)
		if err != nil {
			return err
		}
		for _, h := range owned {
			if h.DeletedAt == nil {
				members, err := q.ListMembers(ctx, h.ID)
				if err != nil {
					return err
				}
				if next, ok := successor(members, userID); ok {
					if err := q.SetHouseholdOwner(ctx, h.ID, next.UserID); err != nil {
						return err
					}
					if err := q.UpdateMemberRole(ctx, h.ID, next.UserID, core.RoleOwner); err != nil {
						return err
					}
					if out.Transferred == nil {
						out.Transferred = make(map[int64]int64)
					}
					out.Transferred[h.ID] = next.UserID
					continue
				}
			}
			if _, err := q.CascadeDeleteHousehold(ctx, h.ID, core.HardDelete, now); err != nil {
				return err
			}
			out.Deleted = append(out.Deleted, h.ID)
		}

		if err := q.DeleteUserNotifications(ctx, userID); err != nil {
			return err
		}
		if err := q.DeleteUserMemberships(ctx, userID); err != nil {
			return err
		}
		return q.DeleteUser(ctx, userID)
	})
	if err != nil {
		slog.ErrorContext(ctx, "User delete failed",
			applog.FieldUserID, userID,
			"mode", string(mode),
			"error", err)
		return UserDeletion{}, fmt.Errorf("delete user %d: %w", userID, err)
	}

	if s.households != nil {
		s.households.forgetUser(userID)
		for hid := range out.Transferred {
			s.households.forgetHousehold(hid)
		}
		for _, hid := range out.Deleted {
			s.households.forgetHousehold(hid)
		}
	}

	slog.InfoContext(ctx, "User deleted",
		applog.FieldUserID, userID,
		"mode", string(mode),
		"households_transferred", len(out.Transferred),
		"households_deleted", len(out.Deleted))
	ev := amqp.NewLedgerEvent(amqp.EventUserDeleted)
	ev.UserID = userID
	ev.Hint = string(mode)
	ev.Count = int64(len(out.Deleted))
	publish(ctx, s.publisher, ev)
	for _, hid := range out.Deleted {
		hev := amqp.NewLedgerEvent(amqp.EventHouseholdDeleted)
		hev.HouseholdID = hid
		hev.Hint = string(core.HardDelete)
		publish(ctx, s.publisher, hev)
	}
	return out, nil
}

// SelfDelete is the account owner removing their own account.
func (s *LifecycleService) SelfDelete(ctx context.Context, userID int64, mode core.DeleteMode) (UserDeletion, error) {
	return s.CascadeDeleteUser(ctx, userID, mode)
}

// authorizeAdmin applies the admin guards: no self-service through the
// admin path, the actor must be an admin, and only a superadmin may
// hard-delete another admin.
func (s *LifecycleService) authorizeAdmin(ctx context.Context, actorID, targetID int64, mode core.DeleteMode) error {
	if actorID == targetID {
		return fmt.Errorf("%w: use the account endpoint to delete yourself", core.ErrForbidden)
	}
	q := s.storage.Queries()
	actor, err := q.GetUser(ctx, actorID)
	if err != nil {
		return err
	}
	if actor.DeletedAt != nil || !actor.Role.IsAdmin() {
		return fmt.Errorf("%w: admin role required", core.ErrForbidden)
	}
	target, err := q.GetUser(ctx, targetID)
	if err != nil {
		return err
	}
	if mode == core.HardDelete && target.Role.IsAdmin() && actor.Role != core.UserSuperAdmin {
		return fmt.Errorf("%w: only a superadmin can hard delete an admin", core.ErrForbidden)
	}
	return nil
}

func (s *LifecycleService) AdminDelete(ctx context.Context, actorID, targetID int64, mode core.DeleteMode) (UserDeletion, error) {
	if !mode.Valid() {
		return UserDeletion{}, fmt.Errorf("%w: delete mode %q", core.ErrInvalidInput, mode)
	}
	if err := s.authorizeAdmin(ctx, actorID, targetID, mode); err != nil {
		return UserDeletion{}, err
	}
	slog.InfoContext(ctx, "Admin deleting user",
		"actor_id", actorID,
		applog.FieldUserID, targetID,
		"mode", string(mode))
	return s.CascadeDeleteUser(ctx, targetID, mode)
}

// BulkDeleteResult is the outcome for one target of a bulk delete.
type BulkDeleteResult struct {
	UserID int64  `json:"userId"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	// Err keeps the typed error for status mapping.
	Err error `json:"-"`
}

// AdminBulkDelete deletes each target independently; one failure does not
// stop the rest.
func (s *LifecycleService) AdminBulkDelete(ctx context.Context, actorID int64, targetIDs []int64, mode core.DeleteMode) []BulkDeleteResult {
	results := make([]BulkDeleteResult, 0, len(targetIDs))
	for _, id := range targetIDs {
		r := BulkDeleteResult{UserID: id}
		if _, err := s.AdminDelete(ctx, actorID, id, mode); err != nil {
			r.Err = err
			r.Error = err.Error()
			slog.WarnContext(ctx, "Bulk delete item failed", applog.FieldUserID, id, "error", err)
		} else {
			r.OK = true
		}
		results = append(results, r)
	}
	return results
}

// Restore clears a soft delete. Only admins may restore accounts.
func (s *LifecycleService) Restore(ctx context.Context, actorID, targetID int64) error {
	actor, err := s.storage.Queries().GetUser(ctx, actorID)
	if err != nil {
		return err
	}
	if actor.DeletedAt != nil || !actor.Role.IsAdmin() {
		return fmt.Errorf("%w: admin role required", core.ErrForbidden)
	}
	if err := s.storage.Queries().RestoreUser(ctx, targetID); err != nil {
		return err
	}
	slog.InfoContext(ctx, "User restored", "actor_id", actorID, applog.FieldUserID, targetID)
	return nil
}
