package core

import "errors"

// Error taxonomy shared by every layer. Wrap with fmt.Errorf("...: %w") and
// test with errors.Is.
var (
	// ErrInvalidAmount is returned for non-numeric or malformed monetary input.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidInput covers non-monetary validation failures.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is returned both for absent entities and for entities that
	// belong to another household.
	ErrNotFound = errors.New("not found")

	ErrForbidden = errors.New("forbidden")
	ErrConflict  = errors.New("conflict")

	// ErrInternalConsistency aborts a cascade or ledger transaction.
	ErrInternalConsistency = errors.New("internal consistency")
)
