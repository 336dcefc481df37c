package ledger

import (
	"context"
	"errors"
	"sync"

	"github.com/ultimate-banking-app/ledger-engine/internal/domain"
)

// MemoryStore keeps per-account entry chains in memory under an explicit
// mutex. FailNext injects transient failures so the engine's retry path can
// be tested without a database.
type MemoryStore struct {
	mu       sync.Mutex
	entries  map[string][]domain.BalanceEntry
	failNext int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]domain.BalanceEntry)}
}

// FailNext makes the next n Append/Latest calls return a transient error.
func (s *MemoryStore) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

func (s *MemoryStore) transientFailure() error {
	if s.failNext > 0 {
		s.failNext--
		return errors.New("injected storage failure")
	}
	return nil
}

func (s *MemoryStore) Append(_ context.Context, entry *domain.BalanceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.transientFailure(); err != nil {
		return err
	}

	chain := s.entries[entry.AccountID]
	for _, existing := range chain {
		if existing.Sequence == entry.Sequence {
			return domain.ErrSequenceConflict
		}
	}
	s.entries[entry.AccountID] = append(chain, *entry)
	return nil
}

func (s *MemoryStore) Latest(_ context.Context, accountID string) (*domain.BalanceEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.transientFailure(); err != nil {
		return nil, err
	}

	chain := s.entries[accountID]
	if len(chain) == 0 {
		return nil, nil
	}
	latest := chain[0]
	for _, e := range chain[1:] {
		if e.Sequence > latest.Sequence {
			latest = e
		}
	}
	return &latest, nil
}

func (s *MemoryStore) History(_ context.Context, accountID string) ([]domain.BalanceEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain := s.entries[accountID]
	out := make([]domain.BalanceEntry, len(chain))
	copy(out, chain)
	// Newest first by sequence.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
