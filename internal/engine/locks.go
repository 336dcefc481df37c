package engine

import (
	"context"
	"sync"

	"github.com/ultimate-banking-app/ledger-engine/internal/domain"
)

// accountLocks hands out one serialization unit per account id. Locks are
// channel-based so acquisition can be abandoned when the context expires.
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[string]chan struct{})}
}

func (a *accountLocks) lock(accountID string) chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch, ok := a.locks[accountID]
	if !ok {
		ch = make(chan struct{}, 1)
		a.locks[accountID] = ch
	}
	return ch
}

// acquire blocks until the account's critical section is free or ctx expires.
// Expiry surfaces domain.ErrTimeout; the caller never waits indefinitely.
func (a *accountLocks) acquire(ctx context.Context, accountID string) error {
	select {
	case a.lock(accountID) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return domain.ErrTimeout
	}
}

func (a *accountLocks) release(accountID string) {
	<-a.lock(accountID)
}
