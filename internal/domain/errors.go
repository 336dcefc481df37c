package domain

import "errors"

// Domain errors. Handlers map these to HTTP status codes; everything else is a
// system error and surfaces as a generic 500 without leaking storage detail.
var (
	ErrInvalidCurrency     = errors.New("unrecognized currency")
	ErrInvalidAmount       = errors.New("amount must be positive with at most the currency scale")
	ErrInvalidRequest      = errors.New("invalid movement request")
	ErrAccountNotFound     = errors.New("account not found")
	ErrInvalidTransition   = errors.New("invalid account status transition")
	ErrAccountNotActive    = errors.New("account is not active")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrSelfMovement        = errors.New("source and destination are the same account")
	ErrRequestInProgress   = errors.New("request in progress")
	ErrIdempotencyMismatch = errors.New("idempotency key reuse with mismatched payload")
	ErrSequenceConflict    = errors.New("ledger sequence conflict")
	ErrStorageUnavailable  = errors.New("storage unavailable")
	ErrTimeout             = errors.New("operation timed out")

	// ErrInternal stands in for recorded failures whose kind maps to no
	// specific domain error.
	ErrInternal = errors.New("internal error")
)

// errorKinds assigns each domain error its stable machine-readable kind.
var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrInvalidCurrency, "invalid_currency"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrInvalidRequest, "invalid_request"},
	{ErrAccountNotFound, "account_not_found"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrAccountNotActive, "account_not_active"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrSelfMovement, "self_movement"},
	{ErrRequestInProgress, "request_in_progress"},
	{ErrIdempotencyMismatch, "idempotency_mismatch"},
	{ErrSequenceConflict, "sequence_conflict"},
	{ErrStorageUnavailable, "storage_unavailable"},
	{ErrTimeout, "timeout"},
}

// ErrorKind returns the stable kind for err, or "internal" when err is not a
// domain error.
func ErrorKind(err error) string {
	for _, ek := range errorKinds {
		if errors.Is(err, ek.err) {
			return ek.kind
		}
	}
	return "internal"
}

// ErrorForKind is the inverse of ErrorKind, used when replaying a recorded
// failure. Kinds with no matching domain error, "internal" included, map to
// ErrInternal so a replayed failure always carries a non-nil error.
func ErrorForKind(kind string) error {
	for _, ek := range errorKinds {
		if ek.kind == kind {
			return ek.err
		}
	}
	return ErrInternal
}
