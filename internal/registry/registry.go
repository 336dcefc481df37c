// Package registry owns account identity: currency, owner, and lifecycle
// status. It has no balance knowledge; the engine consults it to gate
// mutations on account status.
package registry

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/ultimate-banking-app/ledger-engine/internal/domain"
)

// Registry is the account identity contract.
type Registry interface {
	// Open creates an Active account with a zero ledger.
	Open(ctx context.Context, ownerID, currency string) (*domain.Account, error)
	// Get returns the account or domain.ErrAccountNotFound.
	Get(ctx context.Context, accountID string) (*domain.Account, error)
	// ListByOwner returns all accounts held by an owner, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Account, error)
	// SetStatus applies a lifecycle transition, rejecting any move the
	// transition table forbids with domain.ErrInvalidTransition. The change is
	// visible to subsequent engine calls immediately.
	SetStatus(ctx context.Context, accountID string, status domain.AccountStatus) (*domain.Account, error)
}

// newAccountNumber derives a display account number from a fresh UUID.
// Identifiers are never derived from wall-clock time.
func newAccountNumber() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "ACC-" + strings.ToUpper(raw[:12])
}
