// Package ledger is the append-only store of balance entries, the sole source
// of truth for every account balance. Implementations must offer atomic
// compare-and-append: a second entry with the same (account_id, sequence)
// must be rejected, never silently accepted.
package ledger

import (
	"context"

	"github.com/ultimate-banking-app/ledger-engine/internal/domain"
)

// Store is the ledger contract.
type Store interface {
	// Append writes one entry. It returns domain.ErrSequenceConflict when an
	// entry with the same (accountID, sequence) already exists, which under
	// the engine's per-account locking indicates a lost critical section.
	Append(ctx context.Context, entry *domain.BalanceEntry) error
	// Latest returns the highest-sequence entry for the account, or nil when
	// the account has no entries yet.
	Latest(ctx context.Context, accountID string) (*domain.BalanceEntry, error)
	// History returns all entries for the account, newest first.
	History(ctx context.Context, accountID string) ([]domain.BalanceEntry, error)
}
