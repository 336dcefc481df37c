// Package engine serializes balance mutations per account and derives every
// balance from the append-only entry chain. No two entries for one account
// are ever computed from a stale previous balance.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/ultimate-banking-app/ledger-engine/internal/cache"
	"github.com/ultimate-banking-app/ledger-engine/internal/domain"
	"github.com/ultimate-banking-app/ledger-engine/internal/ledger"
	"github.com/ultimate-banking-app/ledger-engine/internal/registry"
)

var (
	entriesAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_entries_appended_total",
		Help: "Ledger entries appended, labeled by change type",
	}, []string{"change_type"})

	deltasRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_deltas_rejected_total",
		Help: "Delta applications rejected before any ledger write",
	}, []string{"kind"})

	lockWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ledger_account_lock_wait_seconds",
		Help:    "Time spent waiting for the per-account critical section",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)

const (
	defaultLockWait      = 5 * time.Second
	defaultRetryAttempts = 3
	defaultRetryBackoff  = 50 * time.Millisecond
)

// Options tunes the engine. Zero values take defaults; Cache and Logger may
// be nil.
type Options struct {
	Cache         cache.BalanceCache
	Logger        *zap.Logger
	LockWait      time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
}

// Engine applies signed deltas to account balances.
type Engine struct {
	accounts registry.Registry
	store    ledger.Store
	cache    cache.BalanceCache
	log      *zap.Logger

	locks         *accountLocks
	lockWait      time.Duration
	retryAttempts int
	retryBackoff  time.Duration
}

func New(accounts registry.Registry, store ledger.Store, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.LockWait <= 0 {
		opts.LockWait = defaultLockWait
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = defaultRetryAttempts
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}
	return &Engine{
		accounts:      accounts,
		store:         store,
		cache:         opts.Cache,
		log:           opts.Logger,
		locks:         newAccountLocks(),
		lockWait:      opts.LockWait,
		retryAttempts: opts.RetryAttempts,
		retryBackoff:  opts.RetryBackoff,
	}
}

// ApplyDelta appends one entry to the account's chain. The read of the
// current (sequence, balance) tuple and the append happen inside the
// account's critical section, so the chain stays gapless and every
// NewBalance equals the next PreviousBalance.
func (e *Engine) ApplyDelta(ctx context.Context, accountID string, delta int64, changeType domain.ChangeType, referenceID string) (*domain.BalanceEntry, error) {
	if delta == 0 {
		deltasRejected.WithLabelValues("invalid_amount").Inc()
		return nil, domain.ErrInvalidAmount
	}

	acc, err := e.accounts.Get(ctx, accountID)
	if err != nil {
		deltasRejected.WithLabelValues(domain.ErrorKind(err)).Inc()
		return nil, err
	}
	if acc.Status != domain.StatusActive {
		deltasRejected.WithLabelValues("account_not_active").Inc()
		return nil, domain.ErrAccountNotActive
	}

	lockCtx, cancel := context.WithTimeout(ctx, e.lockWait)
	defer cancel()

	waitStart := time.Now()
	if err := e.locks.acquire(lockCtx, accountID); err != nil {
		deltasRejected.WithLabelValues("timeout").Inc()
		return nil, err
	}
	lockWaitSeconds.Observe(time.Since(waitStart).Seconds())
	defer e.locks.release(accountID)

	latest, err := e.latestWithRetry(ctx, accountID)
	if err != nil {
		return nil, err
	}

	var prevSequence, prevBalance int64
	if latest != nil {
		prevSequence = latest.Sequence
		prevBalance = latest.NewBalance
	}

	newBalance := prevBalance + delta
	if delta < 0 && newBalance < 0 {
		deltasRejected.WithLabelValues("insufficient_funds").Inc()
		return nil, domain.ErrInsufficientFunds
	}

	entry := &domain.BalanceEntry{
		ID:              uuid.NewString(),
		AccountID:       accountID,
		Sequence:        prevSequence + 1,
		PreviousBalance: prevBalance,
		Delta:           delta,
		NewBalance:      newBalance,
		ChangeType:      changeType,
		ReferenceID:     referenceID,
		CreatedAt:       time.Now().UTC(),
	}

	if err := e.appendWithRetry(ctx, entry); err != nil {
		return nil, err
	}

	entriesAppended.WithLabelValues(string(changeType)).Inc()
	e.publishBalance(ctx, accountID, newBalance)
	return entry, nil
}

// GetBalance returns the NewBalance of the latest entry, or zero for an
// account with no entries. It always reads the store; the advisory cache is
// refreshed but never consulted.
func (e *Engine) GetBalance(ctx context.Context, accountID string) (int64, error) {
	if _, err := e.accounts.Get(ctx, accountID); err != nil {
		return 0, err
	}
	latest, err := e.latestWithRetry(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if latest == nil {
		return 0, nil
	}
	return latest.NewBalance, nil
}

// GetHistory returns the account's entries newest first, recomputed from
// storage on every call.
func (e *Engine) GetHistory(ctx context.Context, accountID string) ([]domain.BalanceEntry, error) {
	if _, err := e.accounts.Get(ctx, accountID); err != nil {
		return nil, err
	}
	history, err := e.store.History(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return history, nil
}

func (e *Engine) latestWithRetry(ctx context.Context, accountID string) (*domain.BalanceEntry, error) {
	var latest *domain.BalanceEntry
	err := e.withRetry(ctx, func() error {
		var err error
		latest, err = e.store.Latest(ctx, accountID)
		return err
	})
	return latest, err
}

func (e *Engine) appendWithRetry(ctx context.Context, entry *domain.BalanceEntry) error {
	err := e.withRetry(ctx, func() error {
		return e.store.Append(ctx, entry)
	})
	if errors.Is(err, domain.ErrSequenceConflict) {
		// Under per-account locking a conflict means the critical section was
		// lost; this is an invariant violation, not a transient fault.
		e.log.Error("ledger sequence conflict under account lock",
			zap.String("account_id", entry.AccountID),
			zap.Int64("sequence", entry.Sequence))
		return domain.ErrSequenceConflict
	}
	return err
}

// withRetry runs op, retrying transient storage failures a bounded number of
// times with backoff. Domain errors pass through untouched; anything still
// failing after the last attempt surfaces as StorageUnavailable.
func (e *Engine) withRetry(ctx context.Context, op func() error) error {
	var lastErr error
	for attempt := 0; attempt < e.retryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if isDomainError(lastErr) {
			return lastErr
		}
		e.log.Warn("transient storage failure",
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr))

		select {
		case <-time.After(e.retryBackoff * time.Duration(1<<attempt)):
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, ctx.Err())
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, lastErr)
}

func isDomainError(err error) bool {
	return domain.ErrorKind(err) != "internal"
}

// publishBalance refreshes the advisory cache. The balance is confirmed and
// the account lock is still held, so the value cannot be stale; when the
// write fails the key is dropped instead so readers fall back to a miss.
func (e *Engine) publishBalance(ctx context.Context, accountID string, balance int64) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Set(ctx, accountID, balance); err != nil {
		e.log.Warn("balance cache set failed, invalidating",
			zap.String("account_id", accountID),
			zap.Error(err))
		if err := e.cache.Invalidate(ctx, accountID); err != nil {
			e.log.Warn("balance cache invalidate failed",
				zap.String("account_id", accountID),
				zap.Error(err))
		}
	}
}
