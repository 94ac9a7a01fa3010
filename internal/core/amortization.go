package core

import (
	"fmt"
	"math"
	"time"
)

// MonthlyRate converts an annual effective rate in percent to the equivalent
// monthly compounding rate.
func MonthlyRate(annualPercent float64) float64 {
	return math.Pow(1+annualPercent/100, 1.0/12) - 1
}

// ComputeTotalToPay returns principal plus interest for a loan.
//
// Simple interest (and any loan with a single installment) charges the rate
// once: principal * (1 + rate/100). Effective annual interest converts the
// annual rate to a monthly rate and amortizes over installments periods with
// the annuity formula. The conversion is always by 1/12, whatever the payment
// frequency is.
func ComputeTotalToPay(principal, ratePercent float64, interestType InterestType, installments int) float64 {
	if interestType != EffectiveAnnualInterest || installments <= 1 {
		return principal + principal*(ratePercent/100)
	}
	return AnnuityPayment(principal, MonthlyRate(ratePercent), installments) * float64(installments)
}

// AnnuityPayment is the level payment that amortizes principal over n periods
// at the periodic rate. A zero rate degenerates to principal / n.
func AnnuityPayment(principal, periodicRate float64, n int) float64 {
	if n < 1 {
		n = 1
	}
	if periodicRate == 0 {
		return principal / float64(n)
	}
	growth := math.Pow(1+periodicRate, float64(n))
	return principal * periodicRate * growth / (growth - 1)
}

// Balance is the derived money position of a loan.
type Balance struct {
	Total     Money `json:"total"`
	Paid      Money `json:"paid"`
	Remaining Money `json:"remaining"`
}

// Settled reports whether payments have covered the loan.
func (b Balance) Settled() bool {
	return b.Remaining.Cents <= 0
}

// TotalToPay is ComputeTotalToPay for the loan, rounded to cents.
func (l Loan) TotalToPay() Money {
	return MoneyFromFloat(ComputeTotalToPay(l.Amount.Euros(), l.InterestRate, l.InterestType, l.Installments))
}

// Balance returns total, paid and remaining for the loan and its payments.
// Remaining can go negative on overpayment. When a remaining-balance override
// is set, remaining is the override minus payments recorded after it.
func (l Loan) Balance() Balance {
	b := Balance{Total: l.TotalToPay()}
	var sinceOverride Money
	for _, p := range l.Payments {
		b.Paid = b.Paid.Add(p.Amount)
		if l.RemainingOverrideAt != nil && p.CreatedAt.After(*l.RemainingOverrideAt) {
			sinceOverride = sinceOverride.Add(p.Amount)
		}
	}
	if l.RemainingOverride != nil {
		b.Remaining = l.RemainingOverride.Sub(sinceOverride)
		return b
	}
	b.Remaining = b.Total.Sub(b.Paid)
	return b
}

// InstallmentAmount is the level amount of one installment.
func (l Loan) InstallmentAmount() Money {
	n := l.Installments
	if n < 1 {
		n = 1
	}
	return MoneyFromFloat(l.TotalToPay().Euros() / float64(n))
}

// EffectiveStatus derives overdue for active loans whose due date has passed.
func (l Loan) EffectiveStatus(today Date) LoanStatus {
	if l.Status == LoanActive && l.DueDate != nil && l.DueDate.Before(today) {
		return LoanOverdue
	}
	return l.Status
}

// Transition validates a stored status change. Only active loans move, and
// only to paid or forgiven.
func (l Loan) Transition(to LoanStatus) error {
	if l.Status != LoanActive && l.Status != LoanOverdue {
		return fmt.Errorf("%w: loan is already %s", ErrConflict, l.Status)
	}
	switch to {
	case LoanPaid, LoanForgiven:
		return nil
	default:
		return fmt.Errorf("%w: cannot move loan to %q", ErrInvalidInput, to)
	}
}

// GenerateSchedule returns installments due dates starting at dueDate.
//
// Monthly steps use calendar months from the anchor date, clamped to the end
// of shorter months: 2024-01-31 gives 2024-01-31, 2024-02-29, 2024-03-31.
// Biweekly and weekly step by 14 and 7 days.
func GenerateSchedule(dueDate Date, installments int, frequency PaymentFrequency) ([]Date, error) {
	if installments < 1 {
		return nil, fmt.Errorf("%w: installments must be at least 1", ErrInvalidInput)
	}
	if err := dueDate.Validate(); err != nil {
		return nil, err
	}
	dates := make([]Date, 0, installments)
	for i := 0; i < installments; i++ {
		switch frequency {
		case Monthly:
			dates = append(dates, dueDate.AddMonthsClamped(i))
		case Biweekly:
			dates = append(dates, dueDate.AddDays(14*i))
		case Weekly:
			dates = append(dates, dueDate.AddDays(7*i))
		default:
			return nil, fmt.Errorf("%w: payment frequency %q", ErrInvalidInput, frequency)
		}
	}
	return dates, nil
}

// ScheduleEntry is one row of a loan payment plan.
type ScheduleEntry struct {
	Number int   `json:"number"`
	Date   Date  `json:"date"`
	Amount Money `json:"amount"`
}

// Schedule pairs the due dates with installment amounts; the last entry
// absorbs rounding so the plan sums to the total. Loans without a due date
// start one period after the loan date.
func (l Loan) Schedule() ([]ScheduleEntry, error) {
	start := l.Date
	if l.DueDate != nil {
		start = *l.DueDate
	} else {
		switch l.PaymentFrequency {
		case Biweekly:
			start = start.AddDays(14)
		case Weekly:
			start = start.AddDays(7)
		default:
			start = start.AddMonthsClamped(1)
		}
	}
	dates, err := GenerateSchedule(start, l.Installments, l.PaymentFrequency)
	if err != nil {
		return nil, err
	}
	total := l.TotalToPay()
	each := l.InstallmentAmount()
	entries := make([]ScheduleEntry, len(dates))
	var assigned Money
	for i, d := range dates {
		amount := each
		if i == len(dates)-1 {
			amount = total.Sub(assigned)
		}
		assigned = assigned.Add(amount)
		entries[i] = ScheduleEntry{Number: i + 1, Date: d, Amount: amount}
	}
	return entries, nil
}

// DaysUntil returns whole calendar days from today to d.
func DaysUntil(today, d Date) int {
	return int(d.Sub(today.Time).Round(time.Hour).Hours() / 24)
}
