package amqp

import (
	"encoding/json"
	"time"
)

// Event types published on the ledger exchange. The routing key is the
// configured prefix followed by the type, e.g. "ledger.loan.payment.recorded".
const (
	EventLoanPaymentRecorded = "loan.payment.recorded"
	EventLoanDueReminder     = "loan.due_reminder"
	EventExpensesRolledOver  = "expenses.rolled_over"
	EventHouseholdDeleted    = "household.deleted"
	EventUserDeleted         = "user.deleted"
)

// LedgerEvent is a small notification about a committed ledger change.
// Consumers read the full state from the API; the event only says what moved.
type LedgerEvent struct {
	Type        string    `json:"type"`
	HouseholdID int64     `json:"householdId,omitempty"`
	UserID      int64     `json:"userId,omitempty"`
	LoanID      int64     `json:"loanId,omitempty"`
	PaymentID   int64     `json:"paymentId,omitempty"`
	AmountCents int64     `json:"amountCents,omitempty"`
	Hint        string    `json:"hint,omitempty"`
	Period      string    `json:"period,omitempty"`
	DueDate     string    `json:"dueDate,omitempty"`
	Count       int64     `json:"count,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewLedgerEvent stamps an event of the given type with the current time.
func NewLedgerEvent(eventType string) LedgerEvent {
	return LedgerEvent{Type: eventType, Timestamp: time.Now().UTC()}
}

func (m LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerEventFromJSON(data []byte) (LedgerEvent, error) {
	var msg LedgerEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return LedgerEvent{}, err
	}
	return msg, nil
}
