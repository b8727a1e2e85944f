package ledger

import "errors"

// Error surface for the Ledger: NotFound for missing markets/orders,
// Conflict for creating a market whose id already exists (writes to a
// settled market are rejected by admission and settlement with their own
// errors), Unavailable
// for transient storage failures, DeadlineExceeded when the caller's
// context expires before a transaction could even begin.
var (
	ErrNotFound         = errors.New("ledger: not found")
	ErrConflict         = errors.New("ledger: conflict")
	ErrUnavailable      = errors.New("ledger: unavailable")
	ErrDeadlineExceeded = errors.New("ledger: deadline exceeded")
)
