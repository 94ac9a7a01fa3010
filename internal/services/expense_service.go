package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"

	"finanzas/internal/amqp"
	"finanzas/internal/core"
	applog "finanzas/internal/log"
	ports "finanzas/internal/sheets"
	"finanzas/internal/storage"

	"golang.org/x/sync/errgroup"
)

// ExpenseService is the expense ledger. Savings move only when a
// savings-funded expense is created or deleted.
type ExpenseService struct {
	storage   *storage.SQLiteRepository
	publisher EventPublisher
	sinks     []ports.ExportWriter
}

func NewExpenseService(storage *storage.SQLiteRepository, publisher EventPublisher, sinks ...ports.ExportWriter) *ExpenseService {
	return &ExpenseService{storage: storage, publisher: publisher, sinks: sinks}
}

// ExpensePatch carries the fields of a partial update; nil means unchanged.
type ExpensePatch struct {
	Name       *string
	Amount     *core.Money
	Paid       *core.Money
	CategoryID *int64
	Date       *core.Date
	Type       *core.ExpenseType
}

func (p ExpensePatch) apply(e core.Expense) core.Expense {
	if p.Name != nil {
		e.Name = *p.Name
	}
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.Paid != nil {
		e.Paid = *p.Paid
	}
	if p.CategoryID != nil {
		e.CategoryID = *p.CategoryID
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	if p.Type != nil {
		e.Type = *p.Type
	}
	return e
}

// Create inserts the expense. With payWithSavings the expense is marked
// fully paid and its amount is debited from savings in the same transaction.
func (s *ExpenseService) Create(ctx context.Context, householdID int64, e core.Expense, payWithSavings bool) (core.Expense, error) {
	e.HouseholdID = householdID
	e.IsPaidWithSavings = payWithSavings
	if payWithSavings {
		e.Paid = e.Amount
	}
	if e.Month.IsZero() && e.Date.Validate() == nil {
		e.Month = core.PeriodOf(e.Date)
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	var created core.Expense
	now := s.storage.Now()
	err := s.storage.WithTx(ctx, func(q *storage.Queries) error {
		if _, err := q.GetCategory(ctx, householdID, e.CategoryID); err != nil {
			return err
		}
		var err error
		created, err = q.CreateExpense(ctx, e, now)
		if err != nil {
			return err
		}
		if payWithSavings {
			return applySavings(ctx, q, householdID, e.Amount, core.SavingsSubtract, now)
		}
		return nil
	})
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense created",
		applog.FieldHouseholdID, householdID,
		applog.FieldExpenseID, created.ID,
		applog.FieldAmountCents, created.Amount.Cents,
		"paid_with_savings", payWithSavings)
	return created, nil
}

// Update changes the expense fields in patch. Savings are not adjusted, even
// for savings-funded expenses.
func (s *ExpenseService) Update(ctx context.Context, householdID, id int64, patch ExpensePatch) (core.Expense, error) {
	var updated core.Expense
	err := s.storage.WithTx(ctx, func(q *storage.Queries) error {
		current, err := q.GetExpense(ctx, householdID, id)
		if err != nil {
			return err
		}
		next := patch.apply(current)
		if err := next.Validate(); err != nil {
			return err
		}
		if next.CategoryID != current.CategoryID {
			if _, err := q.GetCategory(ctx, householdID, next.CategoryID); err != nil {
				return err
			}
		}
		if err := q.UpdateExpense(ctx, next, s.storage.Now()); err != nil {
			return err
		}
		updated, err = q.GetExpense(ctx, householdID, id)
		return err
	})
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense %d: %w", id, err)
	}
	return updated, nil
}

// Delete removes the expense. A savings-funded expense credits its stored
// amount back to savings before the row goes.
func (s *ExpenseService) Delete(ctx context.Context, householdID, id int64) error {
	var removed core.Expense
	err := s.storage.WithTx(ctx, func(q *storage.Queries) error {
		var err error
		removed, err = q.GetExpense(ctx, householdID, id)
		if err != nil {
			return err
		}
		if removed.IsPaidWithSavings {
			if err := applySavings(ctx, q, householdID, removed.Amount, core.SavingsAdd, s.storage.Now()); err != nil {
				return err
			}
		}
		return q.DeleteExpense(ctx, householdID, id)
	})
	if err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	}

	slog.InfoContext(ctx, "Expense deleted",
		applog.FieldHouseholdID, householdID,
		applog.FieldExpenseID, id,
		"credited_savings", removed.IsPaidWithSavings)
	return nil
}

// MarkPaid sets paid to amount, or to the full expense amount when amount
// is nil.
func (s *ExpenseService) MarkPaid(ctx context.Context, householdID, id int64, amount *core.Money) (core.Expense, error) {
	var out core.Expense
	err := s.storage.WithTx(ctx, func(q *storage.Queries) error {
		e, err := q.GetExpense(ctx, householdID, id)
		if err != nil {
			return err
		}
		paid := e.Amount
		if amount != nil {
			paid = *amount
		}
		if paid.Cents < 0 {
			return fmt.Errorf("%w: paid must not be negative", core.ErrInvalidAmount)
		}
		if err := q.SetExpensePaid(ctx, householdID, id, paid, s.storage.Now()); err != nil {
			return err
		}
		out, err = q.GetExpense(ctx, householdID, id)
		return err
	})
	if err != nil {
		return core.Expense{}, fmt.Errorf("mark expense %d paid: %w", id, err)
	}
	return out, nil
}

func (s *ExpenseService) MarkUnpaid(ctx context.Context, householdID, id int64) (core.Expense, error) {
	zero := core.Money{}
	return s.MarkPaid(ctx, householdID, id, &zero)
}

// PayCategory settles every not fully paid expense of the category and
// returns how many changed. Savings are not touched.
func (s *ExpenseService) PayCategory(ctx context.Context, householdID, categoryID int64) (int64, error) {
	q := s.storage.Queries()
	if _, err := q.GetCategory(ctx, householdID, categoryID); err != nil {
		return 0, err
	}
	n, err := q.PayCategory(ctx, householdID, categoryID, s.storage.Now())
	if err != nil {
		return 0, err
	}
	slog.InfoContext(ctx, "Category paid",
		applog.FieldHouseholdID, householdID,
		applog.FieldCategoryID, categoryID,
		"expenses", n)
	return n, nil
}

// Rollover copies the Fijo expenses of from into to, unpaid and dated the
// first of to. Expenses already copied are skipped.
func (s *ExpenseService) Rollover(ctx context.Context, householdID int64, from, to core.Period) (int64, error) {
	if err := from.Validate(); err != nil {
		return 0, err
	}
	if err := to.Validate(); err != nil {
		return 0, err
	}
	if from == to {
		return 0, fmt.Errorf("%w: rollover needs two different months", core.ErrInvalidInput)
	}

	n, err := s.storage.Queries().RolloverFixedExpenses(ctx, householdID, from, to, s.storage.Now())
	if err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "Fixed expenses rolled over",
		applog.FieldHouseholdID, householdID,
		"from", from.String(),
		"to", to.String(),
		"copied", n)
	if n > 0 {
		ev := amqp.NewLedgerEvent(amqp.EventExpensesRolledOver)
		ev.HouseholdID = householdID
		ev.Period = to.String()
		ev.Count = n
		publish(ctx, s.publisher, ev)
	}
	return n, nil
}

func (s *ExpenseService) List(ctx context.Context, householdID int64, period core.Period) ([]core.Expense, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	return s.storage.Queries().ListExpensesByMonth(ctx, householdID, period)
}

// Export projects the period's expenses into rows for an export sink.
func (s *ExpenseService) Export(ctx context.Context, householdID int64, period core.Period) (core.Export, error) {
	expenses, err := s.List(ctx, householdID, period)
	if err != nil {
		return core.Export{}, err
	}
	export := core.Export{HouseholdID: householdID, Period: period, Rows: make([]core.ExportRow, 0, len(expenses))}
	for _, e := range expenses {
		export.Rows = append(export.Rows, core.NewExportRow(e))
	}
	return export, nil
}

// WriteCSV renders an export with the standard header.
func WriteCSV(w io.Writer, export core.Export) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(core.ExportHeader); err != nil {
		return err
	}
	for _, r := range export.Rows {
		if err := cw.Write(r.Record()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportToSinks pushes the period export to every configured sink
// concurrently and returns one reference per sink, in sink order.
func (s *ExpenseService) ExportToSinks(ctx context.Context, householdID int64, period core.Period) ([]string, error) {
	if len(s.sinks) == 0 {
		return nil, fmt.Errorf("%w: no export sink is configured", core.ErrInvalidInput)
	}
	export, err := s.Export(ctx, householdID, period)
	if err != nil {
		return nil, err
	}

	refs := make([]string, len(s.sinks))
	g, gctx := errgroup.WithContext(ctx)
	for i, sink := range s.sinks {
		g.Go(func() error {
			ref, err := sink.WriteExport(gctx, export)
			if err != nil {
				return fmt.Errorf("export sink %d: %w", i, err)
			}
			refs[i] = ref
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.ErrorContext(ctx, "Export failed",
			applog.FieldHouseholdID, householdID,
			applog.FieldPeriod, period.String(),
			"error", err)
		return nil, err
	}

	slog.InfoContext(ctx, "Export written",
		applog.FieldHouseholdID, householdID,
		applog.FieldPeriod, period.String(),
		"rows", len(export.Rows),
		"sinks", len(refs))
	return refs, nil
}
