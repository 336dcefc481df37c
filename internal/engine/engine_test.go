package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ultimate-banking-app/ledger-engine/internal/domain"
	"github.com/ultimate-banking-app/ledger-engine/internal/ledger"
	"github.com/ultimate-banking-app/ledger-engine/internal/registry"
)

func newTestEngine(t *testing.T) (*Engine, *registry.MemoryRegistry, *ledger.MemoryStore) {
	t.Helper()
	reg := registry.NewMemoryRegistry()
	store := ledger.NewMemoryStore()
	eng := New(reg, store, Options{
		LockWait:     time.Second,
		RetryBackoff: time.Millisecond,
	})
	return eng, reg, store
}

func openAccount(t *testing.T, reg *registry.MemoryRegistry) *domain.Account {
	t.Helper()
	acc, err := reg.Open(context.Background(), "owner-1", "USD")
	require.NoError(t, err)
	return acc
}

func TestApplyDeltaChainConsistency(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	eng, reg, _ := newTestEngine(t)
	acc := openAccount(t, reg)

	first, err := eng.ApplyDelta(ctx, acc.ID, 10000, domain.ChangeDeposit, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Sequence)
	assert.Equal(t, int64(0), first.PreviousBalance)
	assert.Equal(t, int64(10000), first.NewBalance)

	second, err := eng.ApplyDelta(ctx, acc.ID, -3000, domain.ChangeWithdrawal, "r2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Sequence)
	assert.Equal(t, first.NewBalance, second.PreviousBalance)
	assert.Equal(t, int64(7000), second.NewBalance)

	balance, err := eng.GetBalance(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7000), balance)

	history, err := eng.GetHistory(ctx, acc.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	for i := range history {
		assert.Equal(t, history[i].PreviousBalance+history[i].Delta, history[i].NewBalance)
	}
	// Newest first, chained.
	assert.Equal(t, history[1].NewBalance, history[0].PreviousBalance)
}

func TestApplyDeltaRejections(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	eng, reg, store := newTestEngine(t)
	acc := openAccount(t, reg)

	_, err := eng.ApplyDelta(ctx, acc.ID, 0, domain.ChangeDeposit, "r1")
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = eng.ApplyDelta(ctx, "missing", 100, domain.ChangeDeposit, "r1")
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	// Overdraft never produces an entry.
	_, err = eng.ApplyDelta(ctx, acc.ID, -1, domain.ChangeWithdrawal, "r2")
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	history, err := store.History(ctx, acc.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	// Frozen and closed accounts reject mutations.
	_, err = reg.SetStatus(ctx, acc.ID, domain.StatusFrozen)
	require.NoError(t, err)
	_, err = eng.ApplyDelta(ctx, acc.ID, 100, domain.ChangeDeposit, "r3")
	require.ErrorIs(t, err, domain.ErrAccountNotActive)

	_, err = reg.SetStatus(ctx, acc.ID, domain.StatusClosed)
	require.NoError(t, err)
	_, err = eng.ApplyDelta(ctx, acc.ID, 100, domain.ChangeDeposit, "r4")
	require.ErrorIs(t, err, domain.ErrAccountNotActive)
}

func TestGetBalanceEmptyAccount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	eng, reg, _ := newTestEngine(t)
	acc := openAccount(t, reg)

	balance, err := eng.GetBalance(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	_, err = eng.GetBalance(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestConcurrentDeposits(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	eng, reg, _ := newTestEngine(t)
	acc := openAccount(t, reg)

	const workers = 50
	const amount = int64(100)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := eng.ApplyDelta(ctx, acc.ID, amount, domain.ChangeDeposit, "concurrent")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	balance, err := eng.GetBalance(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(workers)*amount, balance)

	history, err := eng.GetHistory(ctx, acc.ID)
	require.NoError(t, err)
	require.Len(t, history, workers)

	// Sequences 1..N with no duplicates.
	seen := make(map[int64]bool, workers)
	for _, e := range history {
		assert.False(t, seen[e.Sequence], "duplicate sequence %d", e.Sequence)
		seen[e.Sequence] = true
		assert.GreaterOrEqual(t, e.Sequence, int64(1))
		assert.LessOrEqual(t, e.Sequence, int64(workers))
	}
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	eng, reg, _ := newTestEngine(t)
	acc := openAccount(t, reg)

	_, err := eng.ApplyDelta(ctx, acc.ID, 500, domain.ChangeDeposit, "seed")
	require.NoError(t, err)

	// Ten concurrent withdrawals of 100 against a balance of 500: exactly five
	// may succeed.
	const workers = 10
	results := make(chan error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := eng.ApplyDelta(ctx, acc.ID, -100, domain.ChangeWithdrawal, "drain")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
		}
	}
	assert.Equal(t, 5, succeeded)

	balance, err := eng.GetBalance(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestStorageRetryRecovers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	eng, reg, store := newTestEngine(t)
	acc := openAccount(t, reg)

	// Two injected failures, three attempts: the delta still lands.
	store.FailNext(2)
	entry, err := eng.ApplyDelta(ctx, acc.ID, 100, domain.ChangeDeposit, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), entry.NewBalance)
}

func TestStorageExhaustionSurfacesUnavailable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	eng, reg, store := newTestEngine(t)
	acc := openAccount(t, reg)

	store.FailNext(10)
	_, err := eng.ApplyDelta(ctx, acc.ID, 100, domain.ChangeDeposit, "r1")
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

func TestLockWaitTimeout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := registry.NewMemoryRegistry()
	store := ledger.NewMemoryStore()
	eng := New(reg, store, Options{
		LockWait:     20 * time.Millisecond,
		RetryBackoff: time.Millisecond,
	})
	acc := openAccount(t, reg)

	// Hold the account's critical section so the delta cannot acquire it.
	require.NoError(t, eng.locks.acquire(ctx, acc.ID))
	defer eng.locks.release(acc.ID)

	_, err := eng.ApplyDelta(ctx, acc.ID, 100, domain.ChangeDeposit, "r1")
	require.ErrorIs(t, err, domain.ErrTimeout)
}

// fakeCache records cache traffic and can be made to reject writes.
type fakeCache struct {
	mu          sync.Mutex
	values      map[string]int64
	setErr      error
	invalidated []string
}

func (c *fakeCache) Set(_ context.Context, accountID string, balance int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	if c.values == nil {
		c.values = make(map[string]int64)
	}
	c.values[accountID] = balance
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, accountID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, accountID)
	c.invalidated = append(c.invalidated, accountID)
	return nil
}

func (c *fakeCache) value(accountID string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[accountID]
	return v, ok
}

func TestCacheWriteThroughOnApply(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := registry.NewMemoryRegistry()
	store := ledger.NewMemoryStore()
	fc := &fakeCache{}
	eng := New(reg, store, Options{Cache: fc, LockWait: time.Second, RetryBackoff: time.Millisecond})
	acc := openAccount(t, reg)

	_, err := eng.ApplyDelta(ctx, acc.ID, 10000, domain.ChangeDeposit, "r1")
	require.NoError(t, err)
	cached, ok := fc.value(acc.ID)
	require.True(t, ok)
	assert.Equal(t, int64(10000), cached)

	_, err = eng.ApplyDelta(ctx, acc.ID, -4000, domain.ChangeWithdrawal, "r2")
	require.NoError(t, err)
	cached, ok = fc.value(acc.ID)
	require.True(t, ok)
	assert.Equal(t, int64(6000), cached)

	// The cache is advisory: reads come from the store even when the cached
	// value lies.
	fc.mu.Lock()
	fc.values[acc.ID] = 999999
	fc.mu.Unlock()
	balance, err := eng.GetBalance(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6000), balance)
}

func TestCacheSetFailureInvalidatesKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := registry.NewMemoryRegistry()
	store := ledger.NewMemoryStore()
	fc := &fakeCache{}
	eng := New(reg, store, Options{Cache: fc, LockWait: time.Second, RetryBackoff: time.Millisecond})
	acc := openAccount(t, reg)

	_, err := eng.ApplyDelta(ctx, acc.ID, 10000, domain.ChangeDeposit, "r1")
	require.NoError(t, err)

	fc.mu.Lock()
	fc.setErr = errors.New("connection refused")
	fc.mu.Unlock()

	_, err = eng.ApplyDelta(ctx, acc.ID, -4000, domain.ChangeWithdrawal, "r2")
	require.NoError(t, err)

	// The stale 10000 must not survive a failed write of 6000.
	_, ok := fc.value(acc.ID)
	assert.False(t, ok)
	assert.Equal(t, []string{acc.ID}, fc.invalidated)

	balance, err := eng.GetBalance(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6000), balance)
}
