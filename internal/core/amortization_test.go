package core

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestComputeTotalToPay(t *testing.T) {
	cases := []struct {
		name         string
		principal    float64
		rate         float64
		interest     InterestType
		installments int
		want         float64
		eps          float64
	}{
		{"simple", 1000, 10, SimpleInterest, 12, 1100, 1e-9},
		{"simple zero rate", 500, 0, SimpleInterest, 3, 500, 1e-9},
		{"effective single installment is simple", 1000, 10, EffectiveAnnualInterest, 1, 1100, 1e-9},
		{"effective zero rate", 1200, 0, EffectiveAnnualInterest, 12, 1200, 1e-9},
		{"effective worked example", 1200, 12, EffectiveAnnualInterest, 12, 1275.5, 0.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeTotalToPay(tc.principal, tc.rate, tc.interest, tc.installments)
			if math.Abs(got-tc.want) > tc.eps {
				t.Fatalf("got %f, want %f ± %g", got, tc.want, tc.eps)
			}
		})
	}
}

func TestMonthlyRate(t *testing.T) {
	if got := MonthlyRate(12); math.Abs(got-0.009489) > 1e-5 {
		t.Fatalf("got %f", got)
	}
	if got := MonthlyRate(0); got != 0 {
		t.Fatalf("got %f", got)
	}
}

func TestAnnuityPaymentWorkedExample(t *testing.T) {
	got := AnnuityPayment(1200, MonthlyRate(12), 12)
	if math.Abs(got-106.3) > 0.1 {
		t.Fatalf("got %f", got)
	}
}

func TestLoanBalance(t *testing.T) {
	l := Loan{
		Amount:       Money{Cents: 100000},
		InterestRate: 10,
		InterestType: SimpleInterest,
		Installments: 2,
		Payments: []LoanPayment{
			{Amount: Money{Cents: 30000}},
			{Amount: Money{Cents: 20000}},
		},
	}
	b := l.Balance()
	if b.Total.Cents != 110000 || b.Paid.Cents != 50000 || b.Remaining.Cents != 60000 {
		t.Fatalf("unexpected balance %+v", b)
	}
	if b.Settled() {
		t.Fatal("should not be settled")
	}

	l.Payments = append(l.Payments, LoanPayment{Amount: Money{Cents: 70000}})
	b = l.Balance()
	if b.Remaining.Cents != -10000 || !b.Settled() {
		t.Fatalf("overpayment should settle with negative remaining, got %+v", b)
	}
}

func TestLoanBalanceOverride(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	override := Money{Cents: 40000}
	l := Loan{
		Amount:              Money{Cents: 100000},
		InterestType:        SimpleInterest,
		Installments:        1,
		RemainingOverride:   &override,
		RemainingOverrideAt: &at,
		Payments: []LoanPayment{
			{Amount: Money{Cents: 50000}, CreatedAt: at.Add(-time.Hour)},
			{Amount: Money{Cents: 15000}, CreatedAt: at.Add(time.Hour)},
		},
	}
	b := l.Balance()
	if b.Remaining.Cents != 25000 {
		t.Fatalf("remaining = %d, want 25000", b.Remaining.Cents)
	}
	if b.Paid.Cents != 65000 {
		t.Fatalf("paid = %d, want 65000", b.Paid.Cents)
	}
}

func TestGenerateSchedule(t *testing.T) {
	cases := []struct {
		name  string
		due   Date
		n     int
		freq  PaymentFrequency
		dates []string
	}{
		{"monthly end of month", NewDate(2024, 1, 31), 3, Monthly, []string{"2024-01-31", "2024-02-29", "2024-03-31"}},
		{"monthly crosses year", NewDate(2024, 11, 15), 3, Monthly, []string{"2024-11-15", "2024-12-15", "2025-01-15"}},
		{"monthly non leap", NewDate(2023, 1, 30), 2, Monthly, []string{"2023-01-30", "2023-02-28"}},
		{"biweekly", NewDate(2024, 1, 1), 3, Biweekly, []string{"2024-01-01", "2024-01-15", "2024-01-29"}},
		{"weekly", NewDate(2024, 2, 26), 2, Weekly, []string{"2024-02-26", "2024-03-04"}},
		{"single", NewDate(2024, 5, 5), 1, Monthly, []string{"2024-05-05"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := GenerateSchedule(tc.due, tc.n, tc.freq)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tc.dates) {
				t.Fatalf("got %d dates, want %d", len(got), len(tc.dates))
			}
			for i, d := range got {
				if d.String() != tc.dates[i] {
					t.Errorf("date %d: got %s, want %s", i, d, tc.dates[i])
				}
			}
		})
	}
}

func TestGenerateScheduleErrors(t *testing.T) {
	if _, err := GenerateSchedule(NewDate(2024, 1, 1), 0, Monthly); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := GenerateSchedule(NewDate(2024, 1, 1), 2, "daily"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestLoanScheduleSumsToTotal(t *testing.T) {
	due := NewDate(2024, 1, 31)
	l := Loan{
		Amount:           Money{Cents: 100000},
		InterestRate:     0,
		InterestType:     SimpleInterest,
		Installments:     3,
		PaymentFrequency: Monthly,
		Date:             NewDate(2024, 1, 1),
		DueDate:          &due,
	}
	entries, err := l.Schedule()
	if err != nil {
		t.Fatal(err)
	}
	var sum Money
	for _, e := range entries {
		sum = sum.Add(e.Amount)
	}
	if sum.Cents != 100000 {
		t.Fatalf("schedule sums to %d", sum.Cents)
	}
	if entries[0].Amount.Cents != 33333 || entries[2].Amount.Cents != 33334 {
		t.Fatalf("unexpected split %+v", entries)
	}
	if entries[1].Date.String() != "2024-02-29" {
		t.Fatalf("got %s", entries[1].Date)
	}
}

func TestLoanEffectiveStatus(t *testing.T) {
	due := NewDate(2024, 3, 10)
	l := Loan{Status: LoanActive, DueDate: &due}
	if got := l.EffectiveStatus(NewDate(2024, 3, 10)); got != LoanActive {
		t.Fatalf("due today should stay active, got %s", got)
	}
	if got := l.EffectiveStatus(NewDate(2024, 3, 11)); got != LoanOverdue {
		t.Fatalf("got %s", got)
	}
	l.Status = LoanPaid
	if got := l.EffectiveStatus(NewDate(2024, 4, 1)); got != LoanPaid {
		t.Fatalf("paid loans never become overdue, got %s", got)
	}
}

func TestLoanTransition(t *testing.T) {
	active := Loan{Status: LoanActive}
	if err := active.Transition(LoanPaid); err != nil {
		t.Fatal(err)
	}
	if err := active.Transition(LoanActive); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	for _, s := range []LoanStatus{LoanPaid, LoanForgiven} {
		l := Loan{Status: s}
		if err := l.Transition(LoanForgiven); !errors.Is(err, ErrConflict) {
			t.Fatalf("%s: expected ErrConflict, got %v", s, err)
		}
	}
}

func TestDaysUntil(t *testing.T) {
	if got := DaysUntil(NewDate(2024, 2, 27), NewDate(2024, 3, 1)); got != 3 {
		t.Fatalf("got %d", got)
	}
}
