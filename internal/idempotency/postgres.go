package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ultimate-banking-app/ledger-engine/internal/domain"
)

const uniqueViolation = "23505"

// PostgresLedger stores records in the idempotency_keys table. The primary
// key on request_id makes Begin's reservation atomic: the loser of a
// concurrent insert race reads back the winner's record.
type PostgresLedger struct {
	db *pgxpool.Pool
}

func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) Begin(ctx context.Context, requestID, requestHash string) (bool, *domain.IdempotencyRecord, error) {
	_, err := l.db.Exec(ctx,
		`INSERT INTO idempotency_keys (request_id, request_hash, status) VALUES ($1, $2, $3)`,
		requestID, requestHash, string(domain.IdempotencyInProgress),
	)
	if err == nil {
		return true, nil, nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false, nil, fmt.Errorf("key reservation failed: %w", err)
	}

	rec, err := l.get(ctx, requestID)
	if err != nil {
		return false, nil, err
	}
	return false, rec, nil
}

func (l *PostgresLedger) get(ctx context.Context, requestID string) (*domain.IdempotencyRecord, error) {
	rec := &domain.IdempotencyRecord{RequestID: requestID}
	var errorKind *string
	err := l.db.QueryRow(ctx,
		`SELECT request_hash, status, entry_ids, error_kind, result
		 FROM idempotency_keys WHERE request_id = $1`, requestID,
	).Scan(&rec.RequestHash, &rec.Status, &rec.EntryIDs, &errorKind, &rec.Result)
	if err != nil {
		return nil, fmt.Errorf("idempotency query failed: %w", err)
	}
	if errorKind != nil {
		rec.ErrorKind = *errorKind
	}
	return rec, nil
}

func (l *PostgresLedger) Complete(ctx context.Context, requestID string, entryIDs []string, result json.RawMessage) error {
	tag, err := l.db.Exec(ctx,
		`UPDATE idempotency_keys SET status = $1, entry_ids = $2, result = $3
		 WHERE request_id = $4 AND status = $5`,
		string(domain.IdempotencyCompleted), entryIDs, result,
		requestID, string(domain.IdempotencyInProgress),
	)
	if err != nil {
		return fmt.Errorf("idempotency complete failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("idempotency record %s not in progress", requestID)
	}
	return nil
}

func (l *PostgresLedger) Fail(ctx context.Context, requestID, errorKind string) error {
	tag, err := l.db.Exec(ctx,
		`UPDATE idempotency_keys SET status = $1, error_kind = $2
		 WHERE request_id = $3 AND status = $4`,
		string(domain.IdempotencyFailed), errorKind,
		requestID, string(domain.IdempotencyInProgress),
	)
	if err != nil {
		return fmt.Errorf("idempotency fail failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("idempotency record %s not in progress", requestID)
	}
	return nil
}
