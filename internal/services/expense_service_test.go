package services

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"finanzas/internal/core"
	"finanzas/internal/sheets/memory"
	"finanzas/internal/storage"
)

func TestSavingsRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		initial string
		amount  int64
	}{
		{"from zero", "", 4599},
		{"positive balance", "1000", 250},
		{"overdraws savings", "10", 12345},
		{"negative balance", "-50", 1},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			ctx := context.Background()
			h := e.newHousehold(t, "owner"+string(rune('a'+i))+"@example.com")
			if tt.initial != "" {
				if _, err := e.savings.Apply(ctx, h.id, tt.initial, core.SavingsSet); err != nil {
					t.Fatal(err)
				}
			}
			before := e.balance(t, h.id)

			created, err := e.expenses.Create(ctx, h.id, newExpense(h, "Mercado", core.Variable, tt.amount), true)
			if err != nil {
				t.Fatal(err)
			}
			if !created.IsPaidWithSavings || created.Paid != created.Amount {
				t.Fatalf("savings-funded expense should be fully paid: %+v", created)
			}
			if got := e.balance(t, h.id); got != before-tt.amount {
				t.Fatalf("after create balance = %d, want %d", got, before-tt.amount)
			}

			if err := e.expenses.Delete(ctx, h.id, created.ID); err != nil {
				t.Fatal(err)
			}
			if got := e.balance(t, h.id); got != before {
				t.Fatalf("after delete balance = %d, want %d", got, before)
			}
		})
	}
}

func TestUpdateDoesNotAdjustSavings(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	h := e.newHousehold(t, "owner@example.com")

	created, err := e.expenses.Create(ctx, h.id, newExpense(h, "Luz", core.Fijo, 1000), true)
	if err != nil {
		t.Fatal(err)
	}
	amount := core.Money{Cents: 3000}
	if _, err := e.expenses.Update(ctx, h.id, created.ID, ExpensePatch{Amount: &amount}); err != nil {
		t.Fatal(err)
	}
	if got := e.balance(t, h.id); got != -1000 {
		t.Fatalf("update moved savings: balance = %d", got)
	}

	// Deletion credits the stored amount, not the original one.
	if err := e.expenses.Delete(ctx, h.id, created.ID); err != nil {
		t.Fatal(err)
	}
	if got := e.balance(t, h.id); got != 2000 {
		t.Fatalf("balance after delete = %d, want 2000", got)
	}
}

func TestExpenseForeignHousehold(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newHousehold(t, "a@example.com")
	b := e.newHousehold(t, "b@example.com")

	created, err := e.expenses.Create(ctx, a.id, newExpense(a, "Agua", core.Fijo, 500), false)
	if err != nil {
		t.Fatal(err)
	}

	name := "stolen"
	if _, err := e.expenses.Update(ctx, b.id, created.ID, ExpensePatch{Name: &name}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("cross-household update: got %v, want ErrNotFound", err)
	}
	if err := e.expenses.Delete(ctx, b.id, created.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("cross-household delete: got %v, want ErrNotFound", err)
	}
	// A category from another household is not visible either.
	if _, err := e.expenses.Create(ctx, b.id, newExpense(a, "x", core.Fijo, 100), false); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("foreign category: got %v, want ErrNotFound", err)
	}
}

func TestExpenseValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	h := e.newHousehold(t, "owner@example.com")

	tests := []struct {
		name   string
		mutate func(*core.Expense)
		want   error
	}{
		{"zero amount", func(x *core.Expense) { x.Amount = core.Money{} }, core.ErrInvalidAmount},
		{"blank name", func(x *core.Expense) { x.Name = "  " }, core.ErrInvalidInput},
		{"bad type", func(x *core.Expense) { x.Type = "Monthly" }, core.ErrInvalidInput},
		{"negative paid", func(x *core.Expense) { x.Paid = core.Money{Cents: -1} }, core.ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := newExpense(h, "Gas", core.Variable, 100)
			tt.mutate(&x)
			if _, err := e.expenses.Create(ctx, h.id, x, false); !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
	if got := e.balance(t, h.id); got != 0 {
		t.Fatalf("rejected expenses touched savings: %d", got)
	}
}

func TestMarkPaidAndPayCategory(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	h := e.newHousehold(t, "owner@example.com")

	a, err := e.expenses.Create(ctx, h.id, newExpense(h, "A", core.Variable, 1000), false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.expenses.Create(ctx, h.id, newExpense(h, "B", core.Variable, 2000), false); err != nil {
		t.Fatal(err)
	}

	partial := core.Money{Cents: 400}
	got, err := e.expenses.MarkPaid(ctx, h.id, a.ID, &partial)
	if err != nil || got.Paid.Cents != 400 {
		t.Fatalf("partial mark paid = %+v, %v", got, err)
	}
	if got, err = e.expenses.MarkUnpaid(ctx, h.id, a.ID); err != nil || got.Paid.Cents != 0 {
		t.Fatalf("mark unpaid = %+v, %v", got, err)
	}

	n, err := e.expenses.PayCategory(ctx, h.id, h.category.ID)
	if err != nil || n != 2 {
		t.Fatalf("pay category = %d, %v", n, err)
	}
	list, _ := e.expenses.List(ctx, h.id, march)
	for _, x := range list {
		if x.Paid != x.Amount {
			t.Errorf("expense %s not fully paid: %+v", x.Name, x)
		}
	}
	if got := e.balance(t, h.id); got != 0 {
		t.Errorf("paying a category must not touch savings: %d", got)
	}
}

func TestRolloverCopiesOnlyFixed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	h := e.newHousehold(t, "owner@example.com")

	fixed := newExpense(h, "Arriendo", core.Fijo, 50000)
	fixed.Paid = core.Money{Cents: 50000}
	if _, err := e.expenses.Create(ctx, h.id, fixed, false); err != nil {
		t.Fatal(err)
	}
	if _, err := e.expenses.Create(ctx, h.id, newExpense(h, "Cine", core.Variable, 1500), false); err != nil {
		t.Fatal(err)
	}

	april := march.Next()
	n, err := e.expenses.Rollover(ctx, h.id, march, april)
	if err != nil || n != 1 {
		t.Fatalf("rollover = %d, %v", n, err)
	}
	copies, _ := e.expenses.List(ctx, h.id, april)
	if len(copies) != 1 {
		t.Fatalf("april has %d expenses", len(copies))
	}
	c := copies[0]
	if c.Name != "Arriendo" || c.Paid.Cents != 0 || c.Date.String() != april.FirstDay().String() || c.IsPaidWithSavings {
		t.Errorf("unexpected copy: %+v", c)
	}
	originals, _ := e.expenses.List(ctx, h.id, march)
	if len(originals) != 2 || originals[0].Paid.Cents+originals[1].Paid.Cents != 50000 {
		t.Errorf("originals changed: %+v", originals)
	}

	if n, err := e.expenses.Rollover(ctx, h.id, march, april); err != nil || n != 0 {
		t.Fatalf("second rollover = %d, %v", n, err)
	}
	if evs := e.events.ofType("expenses.rolled_over"); len(evs) != 1 || evs[0].Count != 1 {
		t.Errorf("rolled over events = %+v", evs)
	}
	if _, err := e.expenses.Rollover(ctx, h.id, march, march); !errors.Is(err, core.ErrInvalidInput) {
		t.Errorf("same period rollover: %v", err)
	}
}

func TestExportCSVAndSinks(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	h := e.newHousehold(t, "owner@example.com")
	if _, err := e.expenses.Create(ctx, h.id, newExpense(h, "Luz, gas", core.Fijo, 1234), false); err != nil {
		t.Fatal(err)
	}

	export, err := e.expenses.Export(ctx, h.id, march)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, export); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if lines[0] != "date,name,amount,type,categoryId,paid,month" {
		t.Errorf("header = %q", lines[0])
	}
	want := `2024-03-05,"Luz, gas",12.34,Fijo,` + strconv.FormatInt(h.category.ID, 10) + `,0.00,03-2024`
	if len(lines) != 2 || lines[1] != want {
		t.Errorf("rows = %q, want %q", lines[1:], want)
	}

	if _, err := e.expenses.ExportToSinks(ctx, h.id, march); !errors.Is(err, core.ErrInvalidInput) {
		t.Errorf("no sinks: %v", err)
	}
	a, b := memory.New(), memory.New()
	withSinks := NewExpenseService(e.repo, nil, a, b)
	refs, err := withSinks.ExportToSinks(ctx, h.id, march)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 2 || a.Writes() != 1 || b.Writes() != 1 {
		t.Errorf("refs = %v, writes = %d/%d", refs, a.Writes(), b.Writes())
	}
}

func TestCreateWithSavingsRollsBackOnDebitFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	repo := storage.NewRepository(db)
	repo.SetClock(func() time.Time { return testNow })
	svc := NewExpenseService(repo, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM categories WHERE id = ?")).
		WithArgs(int64(3), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "household_id", "name", "color"}).AddRow(3, 1, "Hogar", "#fff"))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO expenses")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "household_id", "category_id", "name", "amount_cents", "paid_cents", "type", "month", "date", "is_paid_with_savings", "created_at", "updated_at"}).
			AddRow(9, 1, 3, "Mercado", 800, 800, "Variable", "03-2024", "2024-03-05", 1, testNow, testNow))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO savings")).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	x := core.Expense{CategoryID: 3, Name: "Mercado", Amount: core.Money{Cents: 800}, Type: core.Variable, Month: march, Date: core.NewDate(2024, 3, 5)}
	if _, err := svc.Create(context.Background(), 1, x, true); err == nil {
		t.Fatal("expected the debit failure to surface")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
