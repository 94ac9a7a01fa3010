package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"finanzas/internal/amqp"
	"finanzas/internal/core"
	applog "finanzas/internal/log"
	"finanzas/internal/storage"
)

// ReminderProcessor writes loan due reminders for every member of the
// loan's household. Notifications are unique per user, loan, kind and due
// date, so a rerun on the same day adds nothing.
type ReminderProcessor struct {
	storage   *storage.SQLiteRepository
	publisher EventPublisher
	rules     []ReminderRule
}

func NewReminderProcessor(storage *storage.SQLiteRepository, publisher EventPublisher, rules ...ReminderRule) *ReminderProcessor {
	if len(rules) == 0 {
		rules = DefaultReminderRules()
	}
	return &ReminderProcessor{storage: storage, publisher: publisher, rules: rules}
}

// ReminderSummary counts one run.
type ReminderSummary struct {
	Loans   int
	Created int
	Failed  int
}

func (p *ReminderProcessor) Process(ctx context.Context, now time.Time) (ReminderSummary, error) {
	if p.storage == nil {
		return ReminderSummary{}, fmt.Errorf("processor not properly initialized")
	}
	today := core.DateOf(now)
	var sum ReminderSummary

	for _, rule := range p.rules {
		due := rule.DueOn(today)
		loans, err := p.storage.Queries().ListActiveLoansDueOn(ctx, due)
		if err != nil {
			return sum, fmt.Errorf("list loans due %s: %w", due, err)
		}
		for _, l := range loans {
			sum.Loans++
			created, err := p.remind(ctx, rule, l, due)
			if err != nil {
				sum.Failed++
				slog.ErrorContext(ctx, "Loan reminder failed",
					applog.FieldHouseholdID, l.HouseholdID,
					applog.FieldLoanID, l.ID,
					"kind", rule.Kind(),
					"error", err)
				continue
			}
			sum.Created += created
		}
	}

	slog.InfoContext(ctx, "Loan reminders processed",
		"loans", sum.Loans,
		"created", sum.Created,
		"failed", sum.Failed)
	return sum, nil
}

func (p *ReminderProcessor) remind(ctx context.Context, rule ReminderRule, l core.Loan, due core.Date) (int, error) {
	created := 0
	err := p.storage.WithTx(ctx, func(q *storage.Queries) error {
		created = 0
		full, err := q.GetLoanWithPayments(ctx, l.HouseholdID, l.ID)
		if err != nil {
			return err
		}
		members, err := q.ListMembers(ctx, l.HouseholdID)
		if err != nil {
			return err
		}
		msg := rule.Message(full)
		for _, m := range members {
			ok, err := q.CreateNotification(ctx, core.Notification{
				UserID:      m.UserID,
				HouseholdID: l.HouseholdID,
				LoanID:      l.ID,
				Kind:        rule.Kind(),
				Message:     msg,
				DueDate:     due,
			}, p.storage.Now())
			if err != nil {
				return err
			}
			if ok {
				created++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if created > 0 {
		ev := amqp.NewLedgerEvent(amqp.EventLoanDueReminder)
		ev.HouseholdID = l.HouseholdID
		ev.LoanID = l.ID
		ev.DueDate = due.String()
		ev.Hint = rule.Kind()
		ev.Count = int64(created)
		publish(ctx, p.publisher, ev)
	}
	return created, nil
}
