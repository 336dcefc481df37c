// Package coordinator orchestrates movements: single-account deposits and
// withdrawals, and two-account transfers and payments applied as two
// independent single-account critical sections with compensating rollback.
// Both account locks are never held at once, so opposite-direction transfers
// cannot deadlock.
package coordinator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/ultimate-banking-app/ledger-engine/internal/audit"
	"github.com/ultimate-banking-app/ledger-engine/internal/domain"
	"github.com/ultimate-banking-app/ledger-engine/internal/engine"
	"github.com/ultimate-banking-app/ledger-engine/internal/idempotency"
	"github.com/ultimate-banking-app/ledger-engine/internal/money"
	"github.com/ultimate-banking-app/ledger-engine/internal/registry"
)

var (
	movementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_movements_total",
		Help: "Movements executed, labeled by kind and outcome",
	}, []string{"kind", "outcome"})

	movementReplays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_movement_replays_total",
		Help: "Movements answered from the idempotency ledger",
	})

	compensationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_compensations_total",
		Help: "Compensating adjustments issued after a failed credit leg",
	})
)

const terminalWriteAttempts = 3

// Coordinator executes movement requests with at-most-once effect.
type Coordinator struct {
	accounts registry.Registry
	engine   *engine.Engine
	idem     idempotency.Ledger
	audit    audit.Emitter
	log      *zap.Logger
}

func New(accounts registry.Registry, eng *engine.Engine, idem idempotency.Ledger, auditor audit.Emitter, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	if auditor == nil {
		auditor = audit.NewLogEmitter(log)
	}
	return &Coordinator{
		accounts: accounts,
		engine:   eng,
		idem:     idem,
		audit:    auditor,
		log:      log,
	}
}

// Execute runs a movement to a terminal outcome. Replays with a known request
// id return the recorded outcome without touching the ledger; for failures
// the original domain error is returned alongside the recorded result.
func (c *Coordinator) Execute(ctx context.Context, req domain.MovementRequest) (*domain.MovementResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	created, existing, err := c.idem.Begin(ctx, req.RequestID, requestHash(req))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	if !created {
		return c.replay(req, existing)
	}

	// From here the movement must reach a terminal state: a caller that
	// cancels or times out stops waiting, it does not abandon a debited
	// source without compensation or leave the record InProgress forever.
	// The engine's lock-wait and retry budgets still bound every step.
	runCtx := context.WithoutCancel(ctx)

	result, movErr := c.applyLegs(runCtx, req)
	c.recordOutcome(runCtx, req, result)
	c.emitAudit(req, result)
	return result, movErr
}

// validate rejects malformed requests before any state change.
func validate(req domain.MovementRequest) error {
	if req.RequestID == "" {
		return fmt.Errorf("%w: missing request id", domain.ErrInvalidRequest)
	}
	if !req.Kind.Valid() {
		return fmt.Errorf("%w: unknown movement kind %q", domain.ErrInvalidRequest, req.Kind)
	}
	if req.Amount <= 0 {
		return domain.ErrInvalidAmount
	}
	if _, err := money.Scale(req.Currency); err != nil {
		return err
	}

	switch req.Kind {
	case domain.KindDeposit:
		if req.DestinationAccountID == "" {
			return fmt.Errorf("%w: deposit requires a destination account", domain.ErrInvalidRequest)
		}
	case domain.KindWithdrawal:
		if req.SourceAccountID == "" {
			return fmt.Errorf("%w: withdrawal requires a source account", domain.ErrInvalidRequest)
		}
	case domain.KindTransfer, domain.KindPayment:
		if req.SourceAccountID == "" || req.DestinationAccountID == "" {
			return fmt.Errorf("%w: %s requires source and destination accounts", domain.ErrInvalidRequest, req.Kind)
		}
		if req.SourceAccountID == req.DestinationAccountID {
			return domain.ErrSelfMovement
		}
	}
	return nil
}

// requestHash binds the idempotency key to the request payload, so reusing a
// key with a different payload is detected rather than silently replayed.
func requestHash(req domain.MovementRequest) string {
	payload, _ := json.Marshal(req)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func (c *Coordinator) replay(req domain.MovementRequest, rec *domain.IdempotencyRecord) (*domain.MovementResult, error) {
	if rec.RequestHash != requestHash(req) {
		return nil, domain.ErrIdempotencyMismatch
	}

	switch rec.Status {
	case domain.IdempotencyInProgress:
		return nil, domain.ErrRequestInProgress
	case domain.IdempotencyCompleted:
		var result domain.MovementResult
		if err := json.Unmarshal(rec.Result, &result); err != nil {
			return nil, fmt.Errorf("%w: recorded result corrupt: %v", domain.ErrStorageUnavailable, err)
		}
		movementReplays.Inc()
		result.Replayed = true
		return &result, nil
	case domain.IdempotencyFailed:
		movementReplays.Inc()
		result := &domain.MovementResult{
			RequestID: req.RequestID,
			Status:    domain.MovementFailed,
			ErrorKind: rec.ErrorKind,
			Replayed:  true,
		}
		return result, domain.ErrorForKind(rec.ErrorKind)
	}
	return nil, fmt.Errorf("%w: idempotency record in unknown state %q", domain.ErrStorageUnavailable, rec.Status)
}

// applyLegs performs the ledger writes. It always returns a terminal result;
// the error carries the domain failure for the caller.
func (c *Coordinator) applyLegs(ctx context.Context, req domain.MovementRequest) (*domain.MovementResult, error) {
	result := &domain.MovementResult{RequestID: req.RequestID}

	switch req.Kind {
	case domain.KindDeposit:
		entry, err := c.applyLeg(ctx, req.DestinationAccountID, req.Amount, domain.ChangeDeposit, req)
		if err != nil {
			return failed(result, err), err
		}
		result.Entries = append(result.Entries, *entry)

	case domain.KindWithdrawal:
		entry, err := c.applyLeg(ctx, req.SourceAccountID, -req.Amount, domain.ChangeWithdrawal, req)
		if err != nil {
			return failed(result, err), err
		}
		result.Entries = append(result.Entries, *entry)

	case domain.KindTransfer, domain.KindPayment:
		debitType, creditType := domain.ChangeTransferOut, domain.ChangeTransferIn
		if req.Kind == domain.KindPayment {
			debitType, creditType = domain.ChangePaymentOut, domain.ChangePaymentIn
		}

		debit, err := c.applyLeg(ctx, req.SourceAccountID, -req.Amount, debitType, req)
		if err != nil {
			return failed(result, err), err
		}
		result.Entries = append(result.Entries, *debit)

		credit, err := c.applyLeg(ctx, req.DestinationAccountID, req.Amount, creditType, req)
		if err != nil {
			// Restore the source exactly; the net effect of a failed two-leg
			// movement is zero on both accounts.
			comp := c.compensate(ctx, req)
			if comp != nil {
				result.Entries = append(result.Entries, *comp)
			}
			return failed(result, err), err
		}
		result.Entries = append(result.Entries, *credit)
	}

	result.Status = domain.MovementCompleted
	return result, nil
}

// applyLeg checks the account's currency against the movement's and applies
// the delta through the engine's per-account critical section.
func (c *Coordinator) applyLeg(ctx context.Context, accountID string, delta int64, changeType domain.ChangeType, req domain.MovementRequest) (*domain.BalanceEntry, error) {
	acc, err := c.getAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acc.Currency != req.Currency {
		return nil, domain.ErrInvalidCurrency
	}
	return c.engine.ApplyDelta(ctx, accountID, delta, changeType, req.RequestID)
}

// getAccount retries transient registry failures and surfaces exhaustion as
// StorageUnavailable. Domain errors (not found, not active) pass through; a
// storage glitch must never record an opaque terminal failure against the key.
func (c *Coordinator) getAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	var lastErr error
	for attempt := 0; attempt < terminalWriteAttempts; attempt++ {
		acc, err := c.accounts.Get(ctx, accountID)
		if err == nil {
			return acc, nil
		}
		if domain.ErrorKind(err) != "internal" {
			return nil, err
		}
		lastErr = err
		c.log.Warn("transient registry failure",
			zap.String("account_id", accountID),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
	}
	return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, lastErr)
}

// compensate reverses the debit leg with an adjustment entry tagged with the
// movement's request id. A compensation that itself fails leaves the ledger
// short and is logged at error level for operator intervention.
func (c *Coordinator) compensate(ctx context.Context, req domain.MovementRequest) *domain.BalanceEntry {
	entry, err := c.engine.ApplyDelta(ctx, req.SourceAccountID, req.Amount, domain.ChangeAdjustment, req.RequestID)
	if err != nil {
		c.log.Error("compensation failed, source debit not reversed",
			zap.String("request_id", req.RequestID),
			zap.String("source_account_id", req.SourceAccountID),
			zap.Int64("amount", req.Amount),
			zap.Error(err))
		return nil
	}
	compensationsTotal.Inc()
	return entry
}

func failed(result *domain.MovementResult, err error) *domain.MovementResult {
	result.Status = domain.MovementFailed
	result.ErrorKind = domain.ErrorKind(err)
	return result
}

// recordOutcome writes the terminal state into the idempotency ledger. The
// write is retried; an InProgress record left behind after exhaustion is
// surfaced to replays as RequestInProgress.
func (c *Coordinator) recordOutcome(ctx context.Context, req domain.MovementRequest, result *domain.MovementResult) {
	entryIDs := make([]string, 0, len(result.Entries))
	for _, e := range result.Entries {
		entryIDs = append(entryIDs, e.ID)
	}

	var write func() error
	if result.Status == domain.MovementCompleted {
		payload, err := json.Marshal(result)
		if err != nil {
			c.log.Error("movement result marshal failed", zap.String("request_id", req.RequestID), zap.Error(err))
			return
		}
		write = func() error { return c.idem.Complete(ctx, req.RequestID, entryIDs, payload) }
	} else {
		write = func() error { return c.idem.Fail(ctx, req.RequestID, result.ErrorKind) }
	}

	var err error
	for attempt := 0; attempt < terminalWriteAttempts; attempt++ {
		if err = write(); err == nil {
			movementsTotal.WithLabelValues(string(req.Kind), string(result.Status)).Inc()
			return
		}
		time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
	}
	c.log.Error("terminal idempotency write failed",
		zap.String("request_id", req.RequestID),
		zap.String("status", string(result.Status)),
		zap.Error(err))
}

func (c *Coordinator) emitAudit(req domain.MovementRequest, result *domain.MovementResult) {
	seen := make(map[string]bool)
	event := audit.Event{
		RequestID:  req.RequestID,
		Kind:       req.Kind,
		Outcome:    string(result.Status),
		ErrorKind:  result.ErrorKind,
		OccurredAt: time.Now().UTC(),
	}
	for _, e := range result.Entries {
		if !seen[e.AccountID] {
			seen[e.AccountID] = true
			event.AccountIDs = append(event.AccountIDs, e.AccountID)
		}
		event.ChangeTypes = append(event.ChangeTypes, e.ChangeType)
	}
	c.audit.Emit(context.Background(), event)
}
