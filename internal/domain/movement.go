package domain

import "encoding/json"

// MovementKind is the business operation requested by a caller.
type MovementKind string

const (
	KindDeposit    MovementKind = "deposit"
	KindWithdrawal MovementKind = "withdrawal"
	KindTransfer   MovementKind = "transfer"
	KindPayment    MovementKind = "payment"
)

// Valid reports whether k is a known movement kind.
func (k MovementKind) Valid() bool {
	switch k {
	case KindDeposit, KindWithdrawal, KindTransfer, KindPayment:
		return true
	}
	return false
}

// TwoLegged reports whether the kind debits one account and credits another.
func (k MovementKind) TwoLegged() bool {
	return k == KindTransfer || k == KindPayment
}

// MovementRequest is the intent to move money. RequestID is the caller-supplied
// idempotency key: retries with the same id must observe the same outcome and
// produce no additional ledger entries. Amount is in minor currency units.
type MovementRequest struct {
	RequestID            string       `json:"request_id"`
	Kind                 MovementKind `json:"kind"`
	Amount               int64        `json:"amount"`
	Currency             string       `json:"currency"`
	SourceAccountID      string       `json:"source_account_id,omitempty"`
	DestinationAccountID string       `json:"destination_account_id,omitempty"`
	Description          string       `json:"description,omitempty"`
}

// MovementStatus is the terminal outcome of a movement.
type MovementStatus string

const (
	MovementCompleted MovementStatus = "completed"
	MovementFailed    MovementStatus = "failed"
)

// MovementResult is the canonical response for an executed movement. For a
// failed two-leg movement, Entries still carries the debit and its
// compensating adjustment so the net-zero effect is visible.
type MovementResult struct {
	RequestID string         `json:"request_id"`
	Status    MovementStatus `json:"status"`
	Entries   []BalanceEntry `json:"entries"`
	ErrorKind string         `json:"error_kind,omitempty"`
	// Replayed is true when the result was answered from the idempotency
	// ledger rather than freshly applied.
	Replayed bool `json:"-"`
}

// IdempotencyStatus is the lifecycle state of an idempotency record.
type IdempotencyStatus string

const (
	IdempotencyInProgress IdempotencyStatus = "in_progress"
	IdempotencyCompleted  IdempotencyStatus = "completed"
	IdempotencyFailed     IdempotencyStatus = "failed"
)

// IdempotencyRecord maps a request id to its outcome. Once Completed or
// Failed the record is immutable; replays return it verbatim.
type IdempotencyRecord struct {
	RequestID   string            `json:"request_id"`
	RequestHash string            `json:"request_hash"`
	Status      IdempotencyStatus `json:"status"`
	EntryIDs    []string          `json:"entry_ids,omitempty"`
	ErrorKind   string            `json:"error_kind,omitempty"`
	Result      json.RawMessage   `json:"result,omitempty"`
}
