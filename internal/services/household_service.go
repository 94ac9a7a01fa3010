package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"finanzas/internal/amqp"
	"finanzas/internal/cache"
	"finanzas/internal/core"
	applog "finanzas/internal/log"
	"finanzas/internal/storage"

	"github.com/google/uuid"
)

const inviteCodeAttempts = 3

// HouseholdService is the household directory: users, memberships, roles
// and invite codes. Membership lookups are cached; every change to a
// membership drops the affected entries.
type HouseholdService struct {
	storage     *storage.SQLiteRepository
	memberships cache.Cache[core.Member]
	publisher   EventPublisher
}

// NewHouseholdService builds the directory. memberships may be nil to
// disable caching.
func NewHouseholdService(storage *storage.SQLiteRepository, memberships cache.Cache[core.Member], publisher EventPublisher) *HouseholdService {
	return &HouseholdService{storage: storage, memberships: memberships, publisher: publisher}
}

// NewInviteCode returns 8 upper-case hex characters taken from a random UUID.
func NewInviteCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func membershipKey(householdID, userID int64) string {
	return strconv.FormatInt(householdID, 10) + ":" + strconv.FormatInt(userID, 10)
}

func (s *HouseholdService) forget(householdID, userID int64) {
	if s.memberships != nil {
		s.memberships.Delete(membershipKey(householdID, userID))
	}
}

func (s *HouseholdService) forgetHousehold(householdID int64) {
	if s.memberships == nil {
		return
	}
	prefix := strconv.FormatInt(householdID, 10) + ":"
	s.memberships.DeleteFunc(func(key string) bool { return strings.HasPrefix(key, prefix) })
}

func (s *HouseholdService) forgetUser(userID int64) {
	if s.memberships == nil {
		return
	}
	suffix := ":" + strconv.FormatInt(userID, 10)
	s.memberships.DeleteFunc(func(key string) bool { return strings.HasSuffix(key, suffix) })
}

// RegisterUser is called by the authentication collaborator once it has an
// identity for a new account.
func (s *HouseholdService) RegisterUser(ctx context.Context, email, name string) (core.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)
	if !strings.Contains(email, "@") || len(email) > 254 {
		return core.User{}, fmt.Errorf("%w: email %q", core.ErrInvalidInput, email)
	}
	if name == "" {
		return core.User{}, fmt.Errorf("%w: %v", core.ErrInvalidInput, core.ErrEmptyName)
	}
	u, err := s.storage.Queries().CreateUser(ctx, email, name, core.UserRegular, s.storage.Now())
	if err != nil {
		return core.User{}, err
	}
	slog.InfoContext(ctx, "User registered", applog.FieldUserID, u.ID)
	return u, nil
}

func (s *HouseholdService) VerifyUser(ctx context.Context, userID int64) error {
	q := s.storage.Queries()
	if _, err := q.GetUser(ctx, userID); err != nil {
		return err
	}
	return q.VerifyUser(ctx, userID, s.storage.Now())
}

// ActiveUser returns the user unless it is missing or soft deleted.
func (s *HouseholdService) ActiveUser(ctx context.Context, userID int64) (core.User, error) {
	u, err := s.storage.Queries().GetUser(ctx, userID)
	if err != nil {
		return core.User{}, err
	}
	if u.DeletedAt != nil {
		return core.User{}, fmt.Errorf("%w: user", core.ErrNotFound)
	}
	return u, nil
}

// Resolve checks that userID belongs to householdID and returns the
// membership. Anything else, including a deleted household, is Forbidden.
func (s *HouseholdService) Resolve(ctx context.Context, userID, householdID int64) (core.Member, error) {
	key := membershipKey(householdID, userID)
	if s.memberships != nil {
		if m, ok := s.memberships.Get(key); ok {
			return m, nil
		}
	}
	q := s.storage.Queries()
	m, err := q.GetMember(ctx, householdID, userID)
	if err == nil {
		_, err = q.GetHousehold(ctx, householdID)
	}
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.Member{}, fmt.Errorf("%w: not a member of household %d", core.ErrForbidden, householdID)
		}
		return core.Member{}, err
	}
	if s.memberships != nil {
		s.memberships.Set(key, m)
	}
	return m, nil
}

// DefaultHousehold returns the user's default membership.
func (s *HouseholdService) DefaultHousehold(ctx context.Context, userID int64) (core.Member, error) {
	return s.storage.Queries().GetDefaultMembership(ctx, userID)
}

func (s *HouseholdService) List(ctx context.Context, userID int64) ([]core.Household, error) {
	return s.storage.Queries().ListHouseholdsForUser(ctx, userID)
}

// Get returns the household; only managers see the invite code.
func (s *HouseholdService) Get(ctx context.Context, actorID, householdID int64) (core.Household, error) {
	m, err := s.Resolve(ctx, actorID, householdID)
	if err != nil {
		return core.Household{}, err
	}
	h, err := s.storage.Queries().GetHousehold(ctx, householdID)
	if err != nil {
		return core.Household{}, err
	}
	if !m.Role.CanManage() {
		h.InviteCode = ""
	}
	return h, nil
}

func (s *HouseholdService) Members(ctx context.Context, actorID, householdID int64) ([]core.Member, error) {
	if _, err := s.Resolve(ctx, actorID, householdID); err != nil {
		return nil, err
	}
	return s.storage.Queries().ListMembers(ctx, householdID)
}

// hasDefault reports whether the user already has a flagged default.
func hasDefault(ctx context.Context, q *storage.Queries, userID int64) (bool, error) {
	m, err := q.GetDefaultMembership(ctx, userID)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return m.IsDefault, nil
}

// Create makes a household owned by userID. It becomes the user's default
// when the user has none.
func (s *HouseholdService) Create(ctx context.Context, userID int64, name string) (core.Household, error) {
	name = strings.TrimSpace(name)
	if err := core.ValidateName(name); err != nil {
		return core.Household{}, err
	}
	if _, err := s.ActiveUser(ctx, userID); err != nil {
		return core.Household{}, err
	}

	var (
		h   core.Household
		err error
	)
	for attempt := 0; attempt < inviteCodeAttempts; attempt++ {
		err = s.storage.WithTx(ctx, func(q *storage.Queries) error {
			now := s.storage.Now()
			var err error
			h, err = q.CreateHousehold(ctx, name, userID, NewInviteCode(), now)
			if err != nil {
				return err
			}
			def, err := hasDefault(ctx, q, userID)
			if err != nil {
				return err
			}
			return q.AddMember(ctx, h.ID, userID, core.RoleOwner, !def, now)
		})
		if !errors.Is(err, core.ErrConflict) {
			break
		}
	}
	if err != nil {
		return core.Household{}, fmt.Errorf("create household: %w", err)
	}
	s.forgetUser(userID)
	slog.InfoContext(ctx, "Household created", applog.FieldHouseholdID, h.ID, applog.FieldUserID, userID)
	return h, nil
}

// Join adds userID as a member of the household with the invite code.
func (s *HouseholdService) Join(ctx context.Context, userID int64, inviteCode string) (core.Household, error) {
	if strings.TrimSpace(inviteCode) == "" {
		return core.Household{}, fmt.Errorf("%w: invite code is required", core.ErrInvalidInput)
	}
	if _, err := s.ActiveUser(ctx, userID); err != nil {
		return core.Household{}, err
	}
	var h core.Household
	err := s.storage.WithTx(ctx, func(q *storage.Queries) error {
		var err error
		h, err = q.GetHouseholdByInvite(ctx, inviteCode)
		if err != nil {
			return err
		}
		def, err := hasDefault(ctx, q, userID)
		if err != nil {
			return err
		}
		return q.AddMember(ctx, h.ID, userID, core.RoleMember, !def, s.storage.Now())
	})
	if err != nil {
		return core.Household{}, fmt.Errorf("join household: %w", err)
	}
	s.forget(h.ID, userID)
	h.InviteCode = ""
	slog.InfoContext(ctx, "User joined household", applog.FieldHouseholdID, h.ID, applog.FieldUserID, userID)
	return h, nil
}

func (s *HouseholdService) requireManager(ctx context.Context, actorID, householdID int64) (core.Member, error) {
	m, err := s.Resolve(ctx, actorID, householdID)
	if err != nil {
		return core.Member{}, err
	}
	if !m.Role.CanManage() {
		return core.Member{}, fmt.Errorf("%w: household admin role required", core.ErrForbidden)
	}
	return m, nil
}

func (s *HouseholdService) RegenerateInvite(ctx context.Context, actorID, householdID int64) (string, error) {
	if _, err := s.requireManager(ctx, actorID, householdID); err != nil {
		return "", err
	}
	var err error
	for attempt := 0; attempt < inviteCodeAttempts; attempt++ {
		code := NewInviteCode()
		if err = s.storage.Queries().UpdateInviteCode(ctx, householdID, code); err == nil {
			return code, nil
		}
		if !errors.Is(err, core.ErrConflict) {
			break
		}
	}
	return "", err
}

func (s *HouseholdService) Rename(ctx context.Context, actorID, householdID int64, name string) error {
	if _, err := s.requireManager(ctx, actorID, householdID); err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if err := core.ValidateName(name); err != nil {
		return err
	}
	return s.storage.Queries().RenameHousehold(ctx, householdID, name)
}

func (s *HouseholdService) UpdateSavingsGoal(ctx context.Context, actorID, householdID int64, goal core.SavingsGoal) error {
	if _, err := s.requireManager(ctx, actorID, householdID); err != nil {
		return err
	}
	if err := goal.Validate(); err != nil {
		return err
	}
	return s.storage.Queries().UpdateSavingsGoal(ctx, householdID, goal)
}

// Promote makes a member an admin. Existing admins and the owner are a
// Conflict.
func (s *HouseholdService) Promote(ctx context.Context, actorID, householdID, targetID int64) error {
	if _, err := s.requireManager(ctx, actorID, householdID); err != nil {
		return err
	}
	q := s.storage.Queries()
	target, err := q.GetMember(ctx, householdID, targetID)
	if err != nil {
		return err
	}
	if target.Role != core.RoleMember {
		return fmt.Errorf("%w: user is already %s", core.ErrConflict, target.Role)
	}
	if err := q.UpdateMemberRole(ctx, householdID, targetID, core.RoleAdmin); err != nil {
		return err
	}
	s.forget(householdID, targetID)
	slog.InfoContext(ctx, "Member promoted", applog.FieldHouseholdID, householdID, applog.FieldUserID, targetID)
	return nil
}

// Demote turns an admin back into a member. Only the owner may demote.
func (s *HouseholdService) Demote(ctx context.Context, actorID, householdID, targetID int64) error {
	actor, err := s.Resolve(ctx, actorID, householdID)
	if err != nil {
		return err
	}
	if actor.Role != core.RoleOwner {
		return fmt.Errorf("%w: only the owner can demote", core.ErrForbidden)
	}
	q := s.storage.Queries()
	target, err := q.GetMember(ctx, householdID, targetID)
	if err != nil {
		return err
	}
	if target.Role != core.RoleAdmin {
		return fmt.Errorf("%w: user is %s, not admin", core.ErrConflict, target.Role)
	}
	if err := q.UpdateMemberRole(ctx, householdID, targetID, core.RoleMember); err != nil {
		return err
	}
	s.forget(householdID, targetID)
	return nil
}

// RemoveMember removes another member. The owner cannot be removed and only
// the owner removes admins.
func (s *HouseholdService) RemoveMember(ctx context.Context, actorID, householdID, targetID int64) error {
	if actorID == targetID {
		return s.Leave(ctx, actorID, householdID)
	}
	actor, err := s.requireManager(ctx, actorID, householdID)
	if err != nil {
		return err
	}
	q := s.storage.Queries()
	target, err := q.GetMember(ctx, householdID, targetID)
	if err != nil {
		return err
	}
	switch {
	case target.Role == core.RoleOwner:
		return fmt.Errorf("%w: the owner cannot be removed", core.ErrForbidden)
	case target.Role == core.RoleAdmin && actor.Role != core.RoleOwner:
		return fmt.Errorf("%w: only the owner can remove an admin", core.ErrForbidden)
	}
	if err := s.removeMembership(ctx, householdID, targetID); err != nil {
		return err
	}
	s.forgetUser(targetID)
	slog.InfoContext(ctx, "Member removed", applog.FieldHouseholdID, householdID, applog.FieldUserID, targetID)
	return nil
}

// Leave removes the caller's own membership. An owner with other members
// must hand over or delete the household first; a sole owner leaving
// deletes it.
func (s *HouseholdService) Leave(ctx context.Context, userID, householdID int64) error {
	m, err := s.Resolve(ctx, userID, householdID)
	if err != nil {
		return err
	}
	if m.Role == core.RoleOwner {
		members, err := s.storage.Queries().ListMembers(ctx, householdID)
		if err != nil {
			return err
		}
		if len(members) > 1 {
			return fmt.Errorf("%w: the owner cannot leave while other members remain", core.ErrConflict)
		}
		return s.Delete(ctx, userID, householdID, core.HardDelete)
	}
	if err := s.removeMembership(ctx, householdID, userID); err != nil {
		return err
	}
	s.forgetUser(userID)
	return nil
}

// removeMembership deletes one membership and hands the default flag to
// the user's oldest remaining household when it was the default.
func (s *HouseholdService) removeMembership(ctx context.Context, householdID, userID int64) error {
	return s.storage.WithTx(ctx, func(q *storage.Queries) error {
		if err := q.RemoveMember(ctx, householdID, userID); err != nil {
			return err
		}
		return q.PromoteDefaultMembership(ctx, userID)
	})
}

// SetDefault moves the user's default flag to householdID atomically.
func (s *HouseholdService) SetDefault(ctx context.Context, userID, householdID int64) error {
	if _, err := s.Resolve(ctx, userID, householdID); err != nil {
		return err
	}
	err := s.storage.WithTx(ctx, func(q *storage.Queries) error {
		return q.SetDefaultHousehold(ctx, householdID, userID)
	})
	if err != nil {
		return fmt.Errorf("set default household: %w", err)
	}
	s.forgetUser(userID)
	return nil
}

// Delete cascades the household away. Only the owner may delete it.
func (s *HouseholdService) Delete(ctx context.Context, actorID, householdID int64, mode core.DeleteMode) error {
	m, err := s.Resolve(ctx, actorID, householdID)
	if err != nil {
		return err
	}
	if m.Role != core.RoleOwner {
		return fmt.Errorf("%w: only the owner can delete the household", core.ErrForbidden)
	}
	return s.cascade(ctx, householdID, mode)
}

// cascade is the one path every household removal goes through.
func (s *HouseholdService) cascade(ctx context.Context, householdID int64, mode core.DeleteMode) error {
	var result storage.CascadeResult
	err := s.storage.WithTx(ctx, func(q *storage.Queries) error {
		var err error
		result, err = q.CascadeDeleteHousehold(ctx, householdID, mode, s.storage.Now())
		return err
	})
	if err != nil {
		slog.ErrorContext(ctx, "Household cascade failed",
			applog.FieldHouseholdID, householdID,
			"mode", string(mode),
			"error", err)
		return fmt.Errorf("delete household %d: %w", householdID, err)
	}
	s.forgetHousehold(householdID)

	slog.InfoContext(ctx, "Household deleted",
		applog.FieldHouseholdID, householdID,
		"mode", string(mode),
		"expenses", result["expenses"],
		"loans", result["loans"],
		"members", result["household_members"])
	ev := amqp.NewLedgerEvent(amqp.EventHouseholdDeleted)
	ev.HouseholdID = householdID
	ev.Hint = string(mode)
	publish(ctx, s.publisher, ev)
	return nil
}
