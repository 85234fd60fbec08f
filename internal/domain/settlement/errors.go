package settlement

import "fmt"

// ValidationError reports a purchase request that cannot be settled:
// a malformed request or a deal that is inactive, expired, or sold out.
// The buyer has not been charged when this error is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid purchase: %s %s", e.Field, e.Reason)
}

// ReconciliationError reports a settlement that durably recorded its
// transaction but then failed a downstream write. The buyer has been charged
// and the transaction exists; coupon issuance or aggregate updates may be
// missing until reconciled. Callers must surface this distinctly from a
// payment failure and never swallow it.
type ReconciliationError struct {
	TransactionID string
	Step          string
	Err           error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("settlement of transaction %s incomplete at step %q: %v",
		e.TransactionID, e.Step, e.Err)
}

func (e *ReconciliationError) Unwrap() error { return e.Err }
