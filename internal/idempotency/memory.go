package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ultimate-banking-app/ledger-engine/internal/domain"
)

// MemoryLedger is an in-memory Ledger. The single mutex makes Begin an atomic
// check-and-set.
type MemoryLedger struct {
	mu      sync.Mutex
	records map[string]*domain.IdempotencyRecord
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[string]*domain.IdempotencyRecord)}
}

func (l *MemoryLedger) Begin(_ context.Context, requestID, requestHash string) (bool, *domain.IdempotencyRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec, ok := l.records[requestID]; ok {
		cp := *rec
		return false, &cp, nil
	}

	l.records[requestID] = &domain.IdempotencyRecord{
		RequestID:   requestID,
		RequestHash: requestHash,
		Status:      domain.IdempotencyInProgress,
	}
	return true, nil, nil
}

func (l *MemoryLedger) Complete(_ context.Context, requestID string, entryIDs []string, result json.RawMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[requestID]
	if !ok || rec.Status != domain.IdempotencyInProgress {
		return fmt.Errorf("idempotency record %s not in progress", requestID)
	}
	rec.Status = domain.IdempotencyCompleted
	rec.EntryIDs = append([]string(nil), entryIDs...)
	rec.Result = append(json.RawMessage(nil), result...)
	return nil
}

func (l *MemoryLedger) Fail(_ context.Context, requestID, errorKind string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[requestID]
	if !ok || rec.Status != domain.IdempotencyInProgress {
		return fmt.Errorf("idempotency record %s not in progress", requestID)
	}
	rec.Status = domain.IdempotencyFailed
	rec.ErrorKind = errorKind
	return nil
}
