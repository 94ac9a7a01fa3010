package services

import (
	"context"
	"errors"
	"testing"

	"finanzas/internal/core"
)

func TestNewInviteCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code := NewInviteCode()
		if len(code) != 8 {
			t.Fatalf("code %q has length %d", code, len(code))
		}
		for _, r := range code {
			if !(r >= '0' && r <= '9' || r >= 'A' && r <= 'F') {
				t.Fatalf("code %q is not upper-case hex", code)
			}
		}
		seen[code] = true
	}
	if len(seen) < 45 {
		t.Errorf("only %d distinct codes out of 50", len(seen))
	}
}

func TestCreateAndJoinHousehold(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	h := e.newHousehold(t, "owner@example.com")

	def, err := e.households.DefaultHousehold(ctx, h.owner.ID)
	if err != nil || def.HouseholdID != h.id || !def.IsDefault || def.Role != core.RoleOwner {
		t.Fatalf("default = %+v, %v", def, err)
	}

	second, err := e.households.Create(ctx, h.owner.ID, "Oficina")
	if err != nil {
		t.Fatal(err)
	}
	def, _ = e.households.DefaultHousehold(ctx, h.owner.ID)
	if def.HouseholdID != h.id {
		t.Errorf("a second household must not steal the default: %+v", def)
	}

	member := e.join(t, h, "member@example.com")
	m, err := e.households.Resolve(ctx, member.ID, h.id)
	if err != nil || m.Role != core.RoleMember || !m.IsDefault {
		t.Fatalf("member = %+v, %v", m, err)
	}

	hh, _ := e.repo.Queries().GetHousehold(ctx, h.id)
	if _, err := e.households.Join(ctx, member.ID, hh.InviteCode); !errors.Is(err, core.ErrConflict) {
		t.Errorf("joining twice: %v", err)
	}
	if _, err := e.households.Join(ctx, member.ID, "NOPE0000"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("unknown code: %v", err)
	}
	if _, err := e.households.Resolve(ctx, member.ID, second.ID); !errors.Is(err, core.ErrForbidden) {
		t.Errorf("non-member resolve: %v", err)
	}

	got, err := e.households.Get(ctx, member.ID, h.id)
	if err != nil || got.InviteCode != "" {
		t.Errorf("members must not see the invite code: %+v, %v", got, err)
	}
}

func TestRoleChanges(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	h := e.newHousehold(t, "owner@example.com")
	a := e.join(t, h, "a@example.com")
	b := e.join(t, h, "b@example.com")

	if err := e.households.Rename(ctx, a.ID, h.id, "Mine"); !errors.Is(err, core.ErrForbidden) {
		t.Errorf("member rename: %v", err)
	}
	if err := e.households.Promote(ctx, h.owner.ID, h.id, a.ID); err != nil {
		t.Fatal(err)
	}
	if err := e.households.Promote(ctx, h.owner.ID, h.id, a.ID); !errors.Is(err, core.ErrConflict) {
		t.Errorf("promote admin again: %v", err)
	}
	// The cached membership must reflect the promotion.
	if m, _ := e.households.Resolve(ctx, a.ID, h.id); m.Role != core.RoleAdmin {
		t.Errorf("resolved role = %s", m.Role)
	}
	if err := e.households.Rename(ctx, a.ID, h.id, "Casa nueva"); err != nil {
		t.Errorf("admin rename: %v", err)
	}
	if _, err := e.households.RegenerateInvite(ctx, a.ID, h.id); err != nil {
		t.Errorf("admin regenerate invite: %v", err)
	}

	if err := e.households.Demote(ctx, a.ID, h.id, a.ID); !errors.Is(err, core.ErrForbidden) {
		t.Errorf("admin demoting: %v", err)
	}
	if err := e.households.RemoveMember(ctx, a.ID, h.id, h.owner.ID); !errors.Is(err, core.ErrForbidden) {
		t.Errorf("removing the owner: %v", err)
	}
	if err := e.households.RemoveMember(ctx, a.ID, h.id, b.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := e.households.Resolve(ctx, b.ID, h.id); !errors.Is(err, core.ErrForbidden) {
		t.Errorf("removed member still resolves: %v", err)
	}
	if err := e.households.Demote(ctx, h.owner.ID, h.id, a.ID); err != nil {
		t.Fatal(err)
	}
	if err := e.households.Leave(ctx, h.owner.ID, h.id); !errors.Is(err, core.ErrConflict) {
		t.Errorf("owner leaving with members: %v", err)
	}
	if err := e.households.Leave(ctx, a.ID, h.id); err != nil {
		t.Fatal(err)
	}
}

func TestDefaultMovesWhenMembershipEnds(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	q := e.repo.Queries()
	h := e.newHousehold(t, "owner@example.com")
	second, err := e.households.Create(ctx, h.owner.ID, "Oficina")
	if err != nil {
		t.Fatal(err)
	}
	hh, _ := q.GetHousehold(ctx, h.id)
	sh, _ := q.GetHousehold(ctx, second.ID)

	member := e.join(t, h, "member@example.com")
	if _, err := e.households.Join(ctx, member.ID, sh.InviteCode); err != nil {
		t.Fatal(err)
	}
	isDefault := func(householdID, userID int64) bool {
		t.Helper()
		m, err := q.GetMember(ctx, householdID, userID)
		if err != nil {
			t.Fatal(err)
		}
		return m.IsDefault
	}

	if err := e.households.Leave(ctx, member.ID, h.id); err != nil {
		t.Fatal(err)
	}
	if !isDefault(second.ID, member.ID) {
		t.Error("leaving the default household must promote the remaining one")
	}

	if _, err := e.households.Join(ctx, member.ID, hh.InviteCode); err != nil {
		t.Fatal(err)
	}
	if err := e.households.RemoveMember(ctx, h.owner.ID, second.ID, member.ID); err != nil {
		t.Fatal(err)
	}
	if !isDefault(h.id, member.ID) {
		t.Error("removal from the default household must promote the remaining one")
	}

	if err := e.households.Delete(ctx, h.owner.ID, h.id, core.HardDelete); err != nil {
		t.Fatal(err)
	}
	if !isDefault(second.ID, h.owner.ID) {
		t.Error("deleting the default household must promote the owner's other one")
	}
}

func TestSetDefaultSwapsAtomically(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	h := e.newHousehold(t, "owner@example.com")
	other, err := e.households.Create(ctx, h.owner.ID, "Playa")
	if err != nil {
		t.Fatal(err)
	}

	if err := e.households.SetDefault(ctx, h.owner.ID, other.ID); err != nil {
		t.Fatal(err)
	}
	list, err := e.households.List(ctx, h.owner.ID)
	if err != nil || len(list) != 2 || list[0].ID != other.ID {
		t.Fatalf("households = %+v, %v", list, err)
	}
	members, _ := e.repo.Queries().ListMembers(ctx, h.id)
	if members[0].IsDefault {
		t.Error("old default was kept")
	}
}

func TestDeleteHouseholdOwnerOnly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	h := e.newHousehold(t, "owner@example.com")
	m := e.join(t, h, "m@example.com")
	if _, err := e.expenses.Create(ctx, h.id, newExpense(h, "Luz", core.Fijo, 100), true); err != nil {
		t.Fatal(err)
	}

	if err := e.households.Delete(ctx, m.ID, h.id, core.HardDelete); !errors.Is(err, core.ErrForbidden) {
		t.Errorf("member delete: %v", err)
	}
	if err := e.households.Delete(ctx, h.owner.ID, h.id, core.SoftDelete); err != nil {
		t.Fatal(err)
	}
	counts, err := e.repo.Queries().CountHouseholdRows(ctx, h.id)
	if err != nil {
		t.Fatal(err)
	}
	for table, n := range counts {
		if n != 0 {
			t.Errorf("%s still has %d rows", table, n)
		}
	}
	if _, err := e.households.Resolve(ctx, h.owner.ID, h.id); !errors.Is(err, core.ErrForbidden) {
		t.Errorf("deleted household still resolves: %v", err)
	}
	if evs := e.events.ofType("household.deleted"); len(evs) != 1 || evs[0].Hint != "soft" {
		t.Errorf("events = %+v", evs)
	}
}
