package domain

import "time"

// ChangeType classifies a single ledger entry.
type ChangeType string

const (
	ChangeDeposit     ChangeType = "deposit"
	ChangeWithdrawal  ChangeType = "withdrawal"
	ChangeTransferOut ChangeType = "transfer_out"
	ChangeTransferIn  ChangeType = "transfer_in"
	ChangePaymentOut  ChangeType = "payment_out"
	ChangePaymentIn   ChangeType = "payment_in"
	ChangeAdjustment  ChangeType = "adjustment"
)

// BalanceEntry is one immutable record of a balance change. Amounts are in
// minor currency units (cents for USD). Entries for an account form a gapless
// chain: NewBalance of sequence n equals PreviousBalance of sequence n+1, and
// the current balance of an account is the NewBalance of its highest entry.
type BalanceEntry struct {
	ID              string     `json:"id"`
	AccountID       string     `json:"account_id"`
	Sequence        int64      `json:"sequence"`
	PreviousBalance int64      `json:"previous_balance"`
	Delta           int64      `json:"delta"`
	NewBalance      int64      `json:"new_balance"`
	ChangeType      ChangeType `json:"change_type"`
	ReferenceID     string     `json:"reference_id"`
	CreatedAt       time.Time  `json:"created_at"`
}
