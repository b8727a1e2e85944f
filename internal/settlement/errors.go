package settlement

import "errors"

// ErrAlreadySettled is returned when Settle is called on a market that has
// already settled; the call is treated as idempotent and not an error the
// caller needs to react to.
var ErrAlreadySettled = errors.New("settlement: market already settled")

// ErrInvalidOutcome is returned when Settle is asked to resolve a market
// to anything other than YES or NO.
var ErrInvalidOutcome = errors.New("settlement: outcome must be YES or NO")
