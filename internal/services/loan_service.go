package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"finanzas/internal/amqp"
	"finanzas/internal/core"
	applog "finanzas/internal/log"
	"finanzas/internal/storage"
)

// PaymentHint says where the money of a loan payment goes (lent loans) or
// comes from (borrowed loans).
type PaymentHint string

const (
	HintNone    PaymentHint = "none"
	HintIncome  PaymentHint = "income"
	HintSavings PaymentHint = "savings"
	HintExpense PaymentHint = "expense"
)

// PaymentRequest is one loan payment. Destination applies to lent loans,
// Source to borrowed loans; CategoryID is required for the expense source.
type PaymentRequest struct {
	Amount      core.Money
	Date        core.Date
	Notes       string
	Destination PaymentHint
	Source      PaymentHint
	CategoryID  int64
}

// hint validates the destination/source pair against the loan type and
// returns the one that applies.
func (r PaymentRequest) hint(t core.LoanType) (PaymentHint, error) {
	switch t {
	case core.Lent:
		if r.Source != "" && r.Source != HintNone {
			return "", fmt.Errorf("%w: lent loans take a destination, not a source", core.ErrInvalidInput)
		}
		switch r.Destination {
		case "", HintNone:
			return HintNone, nil
		case HintIncome, HintSavings:
			return r.Destination, nil
		}
		return "", fmt.Errorf("%w: destination must be income, savings or none", core.ErrInvalidInput)
	case core.Borrowed:
		if r.Destination != "" && r.Destination != HintNone {
			return "", fmt.Errorf("%w: borrowed loans take a source, not a destination", core.ErrInvalidInput)
		}
		switch r.Source {
		case "", HintNone:
			return HintNone, nil
		case HintSavings:
			return HintSavings, nil
		case HintExpense:
			if r.CategoryID <= 0 {
				return "", fmt.Errorf("%w: expense source needs a category", core.ErrInvalidInput)
			}
			return HintExpense, nil
		}
		return "", fmt.Errorf("%w: source must be expense, savings or none", core.ErrInvalidInput)
	}
	return "", fmt.Errorf("%w: loan type %q", core.ErrInvalidInput, t)
}

// LoanView is a loan with its derived position.
type LoanView struct {
	core.Loan
	Balance         core.Balance         `json:"balance"`
	EffectiveStatus core.LoanStatus      `json:"effectiveStatus"`
	Installment     core.Money           `json:"installment"`
	Schedule        []core.ScheduleEntry `json:"schedule,omitempty"`
}

// PaymentResult is what a recorded payment changed.
type PaymentResult struct {
	Payment core.LoanPayment `json:"payment"`
	Loan    LoanView         `json:"loan"`
	Hint    PaymentHint      `json:"hint"`
}

// LoanPatch carries the fields of a loan update; nil means unchanged.
type LoanPatch struct {
	Type             *core.LoanType
	PersonName       *string
	Amount           *core.Money
	Date             *core.Date
	DueDate          *core.Date
	ClearDueDate     bool
	Installments     *int
	InterestRate     *float64
	InterestType     *core.InterestType
	PaymentFrequency *core.PaymentFrequency
	// RemainingBalance pins the outstanding balance from now on.
	RemainingBalance *core.Money
}

type LoanService struct {
	storage   *storage.SQLiteRepository
	publisher EventPublisher
}

func NewLoanService(storage *storage.SQLiteRepository, publisher EventPublisher) *LoanService {
	return &LoanService{storage: storage, publisher: publisher}
}

func (s *LoanService) today() core.Date {
	return core.DateOf(s.storage.Now())
}

func (s *LoanService) view(l core.Loan) LoanView {
	v := LoanView{
		Loan:            l,
		Balance:         l.Balance(),
		EffectiveStatus: l.EffectiveStatus(s.today()),
		Installment:     l.InstallmentAmount(),
	}
	if sched, err := l.Schedule(); err == nil {
		v.Schedule = sched
	}
	return v
}

func withLoanDefaults(l core.Loan, today core.Date) core.Loan {
	if l.Installments == 0 {
		l.Installments = 1
	}
	if l.InterestType == "" {
		l.InterestType = core.SimpleInterest
	}
	if l.PaymentFrequency == "" {
		l.PaymentFrequency = core.Monthly
	}
	if l.Date.IsZero() {
		l.Date = today
	}
	l.PersonName = strings.TrimSpace(l.PersonName)
	return l
}

func (s *LoanService) Create(ctx context.Context, householdID int64, l core.Loan) (LoanView, error) {
	l = withLoanDefaults(l, s.today())
	l.HouseholdID = householdID
	if err := l.Validate(); err != nil {
		return LoanView{}, err
	}
	created, err := s.storage.Queries().CreateLoan(ctx, l, s.storage.Now())
	if err != nil {
		return LoanView{}, err
	}
	slog.InfoContext(ctx, "Loan created",
		applog.FieldHouseholdID, householdID,
		applog.FieldLoanID, created.ID,
		"type", string(created.Type),
		applog.FieldAmountCents, created.Amount.Cents)
	return s.view(created), nil
}

func (s *LoanService) Get(ctx context.Context, householdID, id int64) (LoanView, error) {
	l, err := s.storage.Queries().GetLoanWithPayments(ctx, householdID, id)
	if err != nil {
		return LoanView{}, err
	}
	return s.view(l), nil
}

// List returns the household's loans with balances; schedules are left out.
func (s *LoanService) List(ctx context.Context, householdID int64) ([]LoanView, error) {
	q := s.storage.Queries()
	loans, err := q.ListLoans(ctx, householdID)
	if err != nil {
		return nil, err
	}
	out := make([]LoanView, 0, len(loans))
	for _, l := range loans {
		if l.Payments, err = q.ListPayments(ctx, l.ID); err != nil {
			return nil, err
		}
		v := s.view(l)
		v.Schedule = nil
		out = append(out, v)
	}
	return out, nil
}

func (s *LoanService) Update(ctx context.Context, householdID, id int64, patch LoanPatch) (LoanView, error) {
	var out core.Loan
	err := s.storage.WithTx(ctx, func(q *storage.Queries) error {
		l, err := q.GetLoan(ctx, householdID, id)
		if err != nil {
			return err
		}
		if patch.Type != nil {
			l.Type = *patch.Type
		}
		if patch.PersonName != nil {
			l.PersonName = strings.TrimSpace(*patch.PersonName)
		}
		if patch.Amount != nil {
			l.Amount = *patch.Amount
		}
		if patch.Date != nil {
			l.Date = *patch.Date
		}
		if patch.ClearDueDate {
			l.DueDate = nil
		} else if patch.DueDate != nil {
			due := *patch.DueDate
			l.DueDate = &due
		}
		if patch.Installments != nil {
			l.Installments = *patch.Installments
		}
		if patch.InterestRate != nil {
			l.InterestRate = *patch.InterestRate
		}
		if patch.InterestType != nil {
			l.InterestType = *patch.InterestType
		}
		if patch.PaymentFrequency != nil {
			l.PaymentFrequency = *patch.PaymentFrequency
		}
		if patch.RemainingBalance != nil {
			remaining := *patch.RemainingBalance
			at := s.storage.Now()
			l.RemainingOverride = &remaining
			l.RemainingOverrideAt = &at
		}
		if err := l.Validate(); err != nil {
			return err
		}
		if err := q.UpdateLoan(ctx, l, s.storage.Now()); err != nil {
			return err
		}
		out, err = q.GetLoanWithPayments(ctx, householdID, id)
		return err
	})
	if err != nil {
		return LoanView{}, fmt.Errorf("update loan %d: %w", id, err)
	}
	return s.view(out), nil
}

// Delete removes the loan with its payments and reminders.
func (s *LoanService) Delete(ctx context.Context, householdID, id int64) error {
	err := s.storage.WithTx(ctx, func(q *storage.Queries) error {
		return q.DeleteLoan(ctx, householdID, id)
	})
	if err != nil {
		return fmt.Errorf("delete loan %d: %w", id, err)
	}
	slog.InfoContext(ctx, "Loan deleted", applog.FieldHouseholdID, householdID, applog.FieldLoanID, id)
	return nil
}

func (s *LoanService) MarkPaid(ctx context.Context, householdID, id int64) (LoanView, error) {
	return s.transition(ctx, householdID, id, core.LoanPaid)
}

// Forgive closes the loan without checking the balance.
func (s *LoanService) Forgive(ctx context.Context, householdID, id int64) (LoanView, error) {
	return s.transition(ctx, householdID, id, core.LoanForgiven)
}

func (s *LoanService) transition(ctx context.Context, householdID, id int64, to core.LoanStatus) (LoanView, error) {
	var out core.Loan
	err := s.storage.WithTx(ctx, func(q *storage.Queries) error {
		l, err := q.GetLoanWithPayments(ctx, householdID, id)
		if err != nil {
			return err
		}
		if err := l.Transition(to); err != nil {
			return err
		}
		if err := q.SetLoanStatus(ctx, householdID, id, to, s.storage.Now()); err != nil {
			return err
		}
		l.Status = to
		out = l
		return nil
	})
	if err != nil {
		return LoanView{}, fmt.Errorf("mark loan %d %s: %w", id, to, err)
	}
	slog.InfoContext(ctx, "Loan status changed",
		applog.FieldHouseholdID, householdID,
		applog.FieldLoanID, id,
		"status", string(to))
	return s.view(out), nil
}

// AddPayment records a payment and closes the loan once payments cover the
// total. The hint's money movement (income, savings or a paid expense) is
// written in the same transaction, so either everything lands or nothing.
func (s *LoanService) AddPayment(ctx context.Context, householdID, loanID int64, req PaymentRequest) (PaymentResult, error) {
	if req.Amount.Cents <= 0 {
		return PaymentResult{}, fmt.Errorf("%w: payment must be greater than zero", core.ErrInvalidAmount)
	}
	if req.Date.IsZero() {
		req.Date = s.today()
	}
	if err := req.Date.Validate(); err != nil {
		return PaymentResult{}, err
	}
	req.Notes = strings.TrimSpace(req.Notes)

	var res PaymentResult
	now := s.storage.Now()
	err := s.storage.WithTx(ctx, func(q *storage.Queries) error {
		l, err := q.GetLoanWithPayments(ctx, householdID, loanID)
		if err != nil {
			return err
		}
		hint, err := req.hint(l.Type)
		if err != nil {
			return err
		}
		if hint == HintExpense {
			if _, err := q.GetCategory(ctx, householdID, req.CategoryID); err != nil {
				return err
			}
		}

		p, err := q.CreatePayment(ctx, core.LoanPayment{LoanID: l.ID, Amount: req.Amount, Date: req.Date, Notes: req.Notes}, now)
		if err != nil {
			return err
		}
		l.Payments = append(l.Payments, p)
		if l.Status == core.LoanActive && l.Balance().Settled() {
			if err := q.SetLoanStatus(ctx, householdID, l.ID, core.LoanPaid, now); err != nil {
				return err
			}
			l.Status = core.LoanPaid
		}
		if err := applyPaymentHint(ctx, q, l, req, hint, now); err != nil {
			return err
		}
		res = PaymentResult{Payment: p, Loan: s.view(l), Hint: hint}
		return nil
	})
	if err != nil {
		return PaymentResult{}, fmt.Errorf("add payment to loan %d: %w", loanID, err)
	}

	slog.InfoContext(ctx, "Loan payment recorded",
		applog.FieldHouseholdID, householdID,
		applog.FieldLoanID, loanID,
		"payment_id", res.Payment.ID,
		applog.FieldAmountCents, req.Amount.Cents,
		"hint", string(res.Hint),
		"status", string(res.Loan.Status))

	ev := amqp.NewLedgerEvent(amqp.EventLoanPaymentRecorded)
	ev.HouseholdID = householdID
	ev.LoanID = loanID
	ev.PaymentID = res.Payment.ID
	ev.AmountCents = req.Amount.Cents
	ev.Hint = string(res.Hint)
	publish(ctx, s.publisher, ev)
	return res, nil
}

func applyPaymentHint(ctx context.Context, q *storage.Queries, l core.Loan, req PaymentRequest, hint PaymentHint, now time.Time) error {
	switch {
	case hint == HintNone:
		return nil
	case l.Type == core.Lent && hint == HintIncome:
		income := core.Income{
			HouseholdID: l.HouseholdID,
			Amount:      req.Amount,
			Date:        req.Date,
			Category:    "loan",
			Description: hintLabel("Loan repayment from ", l.PersonName),
			Type:        "loan_repayment",
		}
		if err := income.Validate(); err != nil {
			return err
		}
		_, err := q.CreateIncome(ctx, income, now)
		return err
	case l.Type == core.Lent && hint == HintSavings:
		return applySavings(ctx, q, l.HouseholdID, req.Amount, core.SavingsAdd, now)
	case l.Type == core.Borrowed && hint == HintSavings:
		return applySavings(ctx, q, l.HouseholdID, req.Amount, core.SavingsSubtract, now)
	case l.Type == core.Borrowed && hint == HintExpense:
		expense := core.Expense{
			HouseholdID: l.HouseholdID,
			CategoryID:  req.CategoryID,
			Name:        hintLabel("Loan payment to ", l.PersonName),
			Amount:      req.Amount,
			Paid:        req.Amount,
			Type:        core.Variable,
			Month:       core.PeriodOf(req.Date),
			Date:        req.Date,
		}
		if err := expense.Validate(); err != nil {
			return err
		}
		_, err := q.CreateExpense(ctx, expense, now)
		return err
	}
	return fmt.Errorf("%w: hint %q for %s loan", core.ErrInvalidInput, hint, l.Type)
}

// hintLabel joins prefix and person, cutting the person on a rune boundary
// so the result fits core.MaxNameLength.
func hintLabel(prefix, person string) string {
	label := prefix + person
	if len(label) <= core.MaxNameLength {
		return label
	}
	cut := core.MaxNameLength - len(prefix)
	for cut > 0 && !utf8.RuneStart(person[cut]) {
		cut--
	}
	return prefix + person[:cut]
}
