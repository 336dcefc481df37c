package domain

import "time"

// AccountStatus is the closed set of account lifecycle states.
type AccountStatus string

const (
	StatusActive AccountStatus = "active"
	StatusFrozen AccountStatus = "frozen"
	StatusClosed AccountStatus = "closed"
)

// statusTransitions is the exhaustive transition table. Closed is terminal;
// Frozen and Active may flip back and forth.
var statusTransitions = map[AccountStatus][]AccountStatus{
	StatusActive: {StatusFrozen, StatusClosed},
	StatusFrozen: {StatusActive, StatusClosed},
	StatusClosed: {},
}

// Valid reports whether s is a known status.
func (s AccountStatus) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// CanTransitionTo reports whether the transition s -> target is allowed.
func (s AccountStatus) CanTransitionTo(target AccountStatus) bool {
	for _, t := range statusTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// Account represents an account's identity. Balance is never stored here;
// it is derived from the highest-sequence ledger entry.
type Account struct {
	ID        string        `json:"id"`
	OwnerID   string        `json:"owner_id"`
	Number    string        `json:"account_number"`
	Currency  string        `json:"currency"`
	Status    AccountStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}
