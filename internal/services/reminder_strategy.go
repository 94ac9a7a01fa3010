package services

import (
	"fmt"

	"finanzas/internal/core"
)

// ReminderRule decides which loans get a reminder of one kind. Each rule
// names the due date it is looking for on a given day.
type ReminderRule interface {
	Kind() string
	// DueOn returns the due date that triggers this reminder today.
	DueOn(today core.Date) core.Date
	Message(l core.Loan) string
}

// DaysBeforeDue fires when a loan is due exactly Days days from today.
type DaysBeforeDue struct {
	Days int
}

func (r DaysBeforeDue) Kind() string {
	return fmt.Sprintf("due_%dd", r.Days)
}

func (r DaysBeforeDue) DueOn(today core.Date) core.Date {
	return today.AddDays(r.Days)
}

func (r DaysBeforeDue) Message(l core.Loan) string {
	when := fmt.Sprintf("in %d days", r.Days)
	if r.Days == 1 {
		when = "tomorrow"
	}
	balance := l.Balance().Remaining
	if l.Type == core.Lent {
		return fmt.Sprintf("%s owes %s, due %s", l.PersonName, balance, when)
	}
	return fmt.Sprintf("You owe %s %s, due %s", l.PersonName, balance, when)
}

// DefaultReminderRules are the 3 day and 1 day reminders.
func DefaultReminderRules() []ReminderRule {
	return []ReminderRule{DaysBeforeDue{Days: 3}, DaysBeforeDue{Days: 1}}
}
