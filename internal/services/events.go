// Package services holds the ledger operations. Every write that touches
// more than one row runs inside a single storage transaction; events and
// external sinks are only notified after the commit.
package services

import (
	"context"
	"log/slog"

	"finanzas/internal/amqp"
	applog "finanzas/internal/log"
)

// EventPublisher delivers ledger events. *amqp.Client satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, event amqp.LedgerEvent) error
}

var _ EventPublisher = (*amqp.Client)(nil)

// publish sends the event when a publisher is configured. Failures are
// logged and swallowed: the ledger write has already committed.
func publish(ctx context.Context, p EventPublisher, event amqp.LedgerEvent) {
	if p == nil {
		slog.DebugContext(ctx, "Event publisher not configured, skipping event", "type", event.Type)
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"type", event.Type,
			applog.FieldHouseholdID, event.HouseholdID,
			"error", err)
	}
}
