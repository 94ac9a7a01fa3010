package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"finanzas/internal/core"
)

func TestSuccessor(t *testing.T) {
	members := []core.Member{
		{UserID: 1, Role: core.RoleOwner},
		{UserID: 2, Role: core.RoleMember},
		{UserID: 3, Role: core.RoleAdmin},
		{UserID: 4, Role: core.RoleAdmin},
	}
	tests := []struct {
		name    string
		members []core.Member
		want    int64
		ok      bool
	}{
		{"oldest admin wins", members, 3, true},
		{"falls back to oldest member", members[:2], 2, true},
		{"nobody left", members[:1], 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := successor(tt.members, 1)
			if ok != tt.ok || got.UserID != tt.want {
				t.Errorf("successor = %d, %v; want %d, %v", got.UserID, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestCascadeDeleteUserHard(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	shared := e.newHousehold(t, "owner@example.com")
	heir := e.join(t, shared, "heir@example.com")
	if _, err := e.expenses.Create(ctx, shared.id, newExpense(shared, "Luz", core.Fijo, 100), false); err != nil {
		t.Fatal(err)
	}

	solo, err := e.households.Create(ctx, shared.owner.ID, "Solo")
	if err != nil {
		t.Fatal(err)
	}
	foreign := e.newHousehold(t, "friend@example.com")
	hh, _ := e.repo.Queries().GetHousehold(ctx, foreign.id)
	if _, err := e.households.Join(ctx, shared.owner.ID, hh.InviteCode); err != nil {
		t.Fatal(err)
	}

	out, err := e.lifecycle.CascadeDeleteUser(ctx, shared.owner.ID, core.HardDelete)
	if err != nil {
		t.Fatal(err)
	}
	if out.Transferred[shared.id] != heir.ID {
		t.Errorf("transferred = %v", out.Transferred)
	}
	if len(out.Deleted) != 1 || out.Deleted[0] != solo.ID {
		t.Errorf("deleted = %v", out.Deleted)
	}

	q := e.repo.Queries()
	if _, err := q.GetUser(ctx, shared.owner.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("user row survived: %v", err)
	}
	h, err := q.GetHousehold(ctx, shared.id)
	if err != nil || h.OwnerID != heir.ID {
		t.Fatalf("shared household = %+v, %v", h, err)
	}
	if m, _ := e.households.Resolve(ctx, heir.ID, shared.id); m.Role != core.RoleOwner {
		t.Errorf("heir role = %s", m.Role)
	}
	if list, _ := e.expenses.List(ctx, shared.id, march); len(list) != 1 {
		t.Errorf("transferred household lost its ledger")
	}
	if _, err := q.GetHousehold(ctx, solo.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("solo household survived: %v", err)
	}
	members, _ := q.ListMembers(ctx, foreign.id)
	if len(members) != 1 {
		t.Errorf("membership in a foreign household survived: %+v", members)
	}
}

func TestSoftDeleteAndRestore(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	h := e.newHousehold(t, "owner@example.com")
	admin, _ := e.households.RegisterUser(ctx, "admin@example.com", "Admin")
	if err := e.repo.Queries().SetUserRole(ctx, admin.ID, core.UserAdmin); err != nil {
		t.Fatal(err)
	}

	if _, err := e.lifecycle.SelfDelete(ctx, h.owner.ID, core.SoftDelete); err != nil {
		t.Fatal(err)
	}
	if _, err := e.households.ActiveUser(ctx, h.owner.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("soft deleted user is still active: %v", err)
	}
	if _, err := e.repo.Queries().GetHousehold(ctx, h.id); err != nil {
		t.Errorf("soft delete must not cascade households: %v", err)
	}

	if err := e.lifecycle.Restore(ctx, admin.ID, h.owner.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := e.households.ActiveUser(ctx, h.owner.ID); err != nil {
		t.Errorf("restored user: %v", err)
	}
}

func TestAdminDeleteGuards(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	q := e.repo.Queries()
	mk := func(email string, role core.UserRole) core.User {
		u, err := e.households.RegisterUser(ctx, email, "U")
		if err != nil {
			t.Fatal(err)
		}
		if err := q.SetUserRole(ctx, u.ID, role); err != nil {
			t.Fatal(err)
		}
		u.Role = role
		return u
	}
	regular := mk("regular@example.com", core.UserRegular)
	victim := mk("victim@example.com", core.UserRegular)
	admin := mk("admin@example.com", core.UserAdmin)
	admin2 := mk("admin2@example.com", core.UserAdmin)
	super := mk("super@example.com", core.UserSuperAdmin)

	tests := []struct {
		name   string
		actor  core.User
		target core.User
		mode   core.DeleteMode
		want   error
	}{
		{"self through admin path", admin, admin, core.HardDelete, core.ErrForbidden},
		{"regular user", regular, victim, core.SoftDelete, core.ErrForbidden},
		{"admin hard deletes admin", admin, admin2, core.HardDelete, core.ErrForbidden},
		{"admin soft deletes admin", admin, admin2, core.SoftDelete, nil},
		{"superadmin hard deletes admin", super, admin2, core.HardDelete, nil},
		{"admin hard deletes user", admin, victim, core.HardDelete, nil},
		{"target already gone", admin, victim, core.HardDelete, core.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.lifecycle.AdminDelete(ctx, tt.actor.ID, tt.target.ID, tt.mode)
			if tt.want == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAdminBulkDeleteReportsPerItem(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	admin, _ := e.households.RegisterUser(ctx, "admin@example.com", "Admin")
	_ = e.repo.Queries().SetUserRole(ctx, admin.ID, core.UserAdmin)
	a := e.newHousehold(t, "a@example.com")
	b := e.newHousehold(t, "b@example.com")

	results := e.lifecycle.AdminBulkDelete(ctx, admin.ID, []int64{a.owner.ID, 9999, admin.ID, b.owner.ID}, core.HardDelete)
	if len(results) != 4 {
		t.Fatalf("results = %+v", results)
	}
	wantOK := []bool{true, false, false, true}
	for i, r := range results {
		if r.OK != wantOK[i] {
			t.Errorf("result %d = %+v", i, r)
		}
	}
	if !errors.Is(results[1].Err, core.ErrNotFound) || !errors.Is(results[2].Err, core.ErrForbidden) {
		t.Errorf("typed errors lost: %v / %v", results[1].Err, results[2].Err)
	}
	if evs := e.events.ofType("user.deleted"); len(evs) != 2 {
		t.Errorf("user deleted events = %d", len(evs))
	}
}

func TestRetentionProcessor(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	q := e.repo.Queries()

	unverified := e.newHousehold(t, "ghost@example.com")
	verified, _ := e.households.RegisterUser(ctx, "real@example.com", "Real")
	if err := e.households.VerifyUser(ctx, verified.ID); err != nil {
		t.Fatal(err)
	}
	leaver, _ := e.households.RegisterUser(ctx, "leaver@example.com", "Leaver")
	_ = e.households.VerifyUser(ctx, leaver.ID)
	if _, err := e.lifecycle.SelfDelete(ctx, leaver.ID, core.SoftDelete); err != nil {
		t.Fatal(err)
	}

	p := NewRetentionProcessor(e.repo, e.lifecycle, e.households, 24*time.Hour, 30*24*time.Hour)

	sum, err := p.Process(ctx, testNow.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if sum.Unverified != 0 || sum.SoftDeleted != 0 {
		t.Fatalf("nothing is old enough yet: %+v", sum)
	}

	sum, err = p.Process(ctx, testNow.Add(25*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if sum.Unverified != 1 || sum.SoftDeleted != 0 || sum.Failed != 0 {
		t.Fatalf("after a day: %+v", sum)
	}
	if _, err := q.GetHousehold(ctx, unverified.id); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("unverified user's household survived: %v", err)
	}

	sum, err = p.Process(ctx, testNow.Add(31*24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if sum.SoftDeleted != 1 {
		t.Fatalf("after a month: %+v", sum)
	}
	if _, err := q.GetUser(ctx, verified.ID); err != nil {
		t.Errorf("verified user purged: %v", err)
	}
	if _, err := q.GetUser(ctx, leaver.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("soft deleted user survived retention: %v", err)
	}
}
