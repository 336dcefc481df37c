package registry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ultimate-banking-app/ledger-engine/internal/domain"
	"github.com/ultimate-banking-app/ledger-engine/internal/money"
)

// MemoryRegistry is an in-memory Registry guarded by an explicit mutex. It
// backs tests and any deployment that does not need durable accounts.
type MemoryRegistry struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{accounts: make(map[string]*domain.Account)}
}

func (r *MemoryRegistry) Open(_ context.Context, ownerID, currency string) (*domain.Account, error) {
	if _, err := money.Scale(currency); err != nil {
		return nil, err
	}

	acc := &domain.Account{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Number:    newAccountNumber(),
		Currency:  currency,
		Status:    domain.StatusActive,
		CreatedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[acc.ID] = acc

	cp := *acc
	return &cp, nil
}

func (r *MemoryRegistry) Get(_ context.Context, accountID string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.accounts[accountID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *acc
	return &cp, nil
}

func (r *MemoryRegistry) ListByOwner(_ context.Context, ownerID string) ([]domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var accounts []domain.Account
	for _, acc := range r.accounts {
		if acc.OwnerID == ownerID {
			accounts = append(accounts, *acc)
		}
	}
	return accounts, nil
}

func (r *MemoryRegistry) SetStatus(_ context.Context, accountID string, status domain.AccountStatus) (*domain.Account, error) {
	if !status.Valid() {
		return nil, domain.ErrInvalidTransition
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.accounts[accountID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	if !acc.Status.CanTransitionTo(status) {
		return nil, domain.ErrInvalidTransition
	}

	acc.Status = status
	cp := *acc
	return &cp, nil
}
