package idempotency

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ultimate-banking-app/ledger-engine/internal/domain"
)

func TestBeginCompleteReplay(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ledger := NewMemoryLedger()

	created, existing, err := ledger.Begin(ctx, "r1", "hash-1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Nil(t, existing)

	result := json.RawMessage(`{"status":"completed"}`)
	require.NoError(t, ledger.Complete(ctx, "r1", []string{"e1", "e2"}, result))

	created, existing, err = ledger.Begin(ctx, "r1", "hash-1")
	require.NoError(t, err)
	assert.False(t, created)
	require.NotNil(t, existing)
	assert.Equal(t, domain.IdempotencyCompleted, existing.Status)
	assert.Equal(t, []string{"e1", "e2"}, existing.EntryIDs)
	assert.JSONEq(t, string(result), string(existing.Result))
}

func TestFailIsTerminal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ledger := NewMemoryLedger()

	created, _, err := ledger.Begin(ctx, "r1", "hash-1")
	require.NoError(t, err)
	require.True(t, created)

	require.NoError(t, ledger.Fail(ctx, "r1", "insufficient_funds"))

	// Terminal records are immutable.
	require.Error(t, ledger.Complete(ctx, "r1", nil, nil))
	require.Error(t, ledger.Fail(ctx, "r1", "timeout"))

	_, existing, err := ledger.Begin(ctx, "r1", "hash-1")
	require.NoError(t, err)
	require.NotNil(t, existing)
	assert.Equal(t, domain.IdempotencyFailed, existing.Status)
	assert.Equal(t, "insufficient_funds", existing.ErrorKind)
}

func TestCompleteRequiresReservation(t *testing.T) {
	t.Parallel()
	ledger := NewMemoryLedger()
	require.Error(t, ledger.Complete(context.Background(), "never-begun", nil, nil))
}

func TestBeginIsAtomicUnderConcurrency(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ledger := NewMemoryLedger()

	const workers = 32
	var createdCount atomic.Int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			created, _, err := ledger.Begin(ctx, "shared", "hash-1")
			require.NoError(t, err)
			if created {
				createdCount.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), createdCount.Load())
}
