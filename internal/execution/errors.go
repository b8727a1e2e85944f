package execution

import "errors"

// ErrLedgerInconsistency is the internal integrity error: it should never
// surface to a caller's request body, only abort the enclosing fill and
// get logged for reconciliation.
var ErrLedgerInconsistency = errors.New("execution: ledger inconsistency")
