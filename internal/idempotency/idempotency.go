// Package idempotency maps request ids to outcomes so a movement's effect is
// applied at most once under retry. Begin must be atomic check-and-set: two
// concurrent callers with the same id must never both observe "absent".
package idempotency

import (
	"context"
	"encoding/json"

	"github.com/ultimate-banking-app/ledger-engine/internal/domain"
)

// Ledger is the idempotency contract.
type Ledger interface {
	// Begin reserves requestID as InProgress. It returns created=true when
	// this call created the record, or created=false plus the existing record
	// when one already existed. The caller branches on the existing status.
	Begin(ctx context.Context, requestID, requestHash string) (created bool, existing *domain.IdempotencyRecord, err error)
	// Complete transitions the record to Completed with the produced entry ids
	// and the canonical marshaled result replays will return.
	Complete(ctx context.Context, requestID string, entryIDs []string, result json.RawMessage) error
	// Fail transitions the record to Failed with the stable error kind.
	Fail(ctx context.Context, requestID, errorKind string) error
}
