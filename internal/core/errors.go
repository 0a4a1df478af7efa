package core

import "errors"

// Sentinel errors shared across the engine. Callers classify failures with
// errors.Is; wrapping with fmt.Errorf("...: %w", err) preserves the sentinel.
var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidDateRange = errors.New("invalid date range")
	ErrEmptyCategory    = errors.New("empty category")

	ErrNotFound          = errors.New("not found")
	ErrStateConflict     = errors.New("transaction state conflict")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrBoxInactive       = errors.New("operating box is inactive")

	// ErrConcurrentUpdate is returned when a compare-and-swap on a box
	// balance loses against a concurrent writer. The whole unit of work must
	// be retried from a fresh read.
	ErrConcurrentUpdate = errors.New("concurrent balance update")
)
