package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"finanzas/internal/amqp"
	"finanzas/internal/cache"
	"finanzas/internal/core"
	"finanzas/internal/storage"
)

var testNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

var march = core.Period{Year: 2024, Month: 3}

type recordingPublisher struct {
	mu     sync.Mutex
	events []amqp.LedgerEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev amqp.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) ofType(t string) []amqp.LedgerEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []amqp.LedgerEvent
	for _, ev := range p.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type env struct {
	repo       *storage.SQLiteRepository
	events     *recordingPublisher
	savings    *SavingsService
	expenses   *ExpenseService
	categories *CategoryService
	incomes    *IncomeService
	loans      *LoanService
	households *HouseholdService
	lifecycle  *LifecycleService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "finanzas.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	repo.SetClock(func() time.Time { return testNow })

	events := &recordingPublisher{}
	households := NewHouseholdService(repo, cache.NewLRUCache[core.Member](100, time.Minute), events)
	return &env{
		repo:       repo,
		events:     events,
		savings:    NewSavingsService(repo),
		expenses:   NewExpenseService(repo, events),
		categories: NewCategoryService(repo),
		incomes:    NewIncomeService(repo),
		loans:      NewLoanService(repo, events),
		households: households,
		lifecycle:  NewLifecycleService(repo, households, events),
	}
}

type household struct {
	owner    core.User
	id       int64
	category core.Category
}

// newHousehold registers an owner and creates a household with one
// category.
func (e *env) newHousehold(t *testing.T, email string) household {
	t.Helper()
	ctx := context.Background()
	u, err := e.households.RegisterUser(ctx, email, "Owner")
	if err != nil {
		t.Fatal(err)
	}
	h, err := e.households.Create(ctx, u.ID, "Casa "+email)
	if err != nil {
		t.Fatal(err)
	}
	c, err := e.categories.Create(ctx, h.ID, core.Category{Name: "Hogar", Color: "#00ff00"})
	if err != nil {
		t.Fatal(err)
	}
	return household{owner: u, id: h.ID, category: c}
}

// join registers a user and adds them to h through its invite code.
func (e *env) join(t *testing.T, h household, email string) core.User {
	t.Helper()
	ctx := context.Background()
	u, err := e.households.RegisterUser(ctx, email, "Member")
	if err != nil {
		t.Fatal(err)
	}
	hh, err := e.repo.Queries().GetHousehold(ctx, h.id)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.households.Join(ctx, u.ID, hh.InviteCode); err != nil {
		t.Fatal(err)
	}
	return u
}

func (e *env) balance(t *testing.T, householdID int64) int64 {
	t.Helper()
	s, err := e.savings.Get(context.Background(), householdID)
	if err != nil {
		t.Fatal(err)
	}
	return s.Balance.Cents
}

func newExpense(h household, name string, typ core.ExpenseType, cents int64) core.Expense {
	return core.Expense{
		CategoryID: h.category.ID,
		Name:       name,
		Amount:     core.Money{Cents: cents},
		Type:       typ,
		Month:      march,
		Date:       core.NewDate(2024, 3, 5),
	}
}
