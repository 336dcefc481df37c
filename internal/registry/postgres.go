package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ultimate-banking-app/ledger-engine/internal/domain"
	"github.com/ultimate-banking-app/ledger-engine/internal/money"
)

// PostgresRegistry stores accounts in the accounts table.
type PostgresRegistry struct {
	db *pgxpool.Pool
}

func NewPostgresRegistry(db *pgxpool.Pool) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

func (r *PostgresRegistry) Open(ctx context.Context, ownerID, currency string) (*domain.Account, error) {
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

	_, err := r.db.Exec(ctx,
		`INSERT INTO accounts (id, owner_id, account_number, currency, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		acc.ID, acc.OwnerID, acc.Number, acc.Currency, string(acc.Status), acc.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("account insert failed: %w", err)
	}
	return acc, nil
}

func (r *PostgresRegistry) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	var acc domain.Account
	err := r.db.QueryRow(ctx,
		`SELECT id, owner_id, account_number, currency, status, created_at
		 FROM accounts WHERE id = $1`, accountID,
	).Scan(&acc.ID, &acc.OwnerID, &acc.Number, &acc.Currency, &acc.Status, &acc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("account query failed: %w", err)
	}
	return &acc, nil
}

func (r *PostgresRegistry) ListByOwner(ctx context.Context, ownerID string) ([]domain.Account, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, owner_id, account_number, currency, status, created_at
		 FROM accounts WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("account list failed: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var acc domain.Account
		if err := rows.Scan(&acc.ID, &acc.OwnerID, &acc.Number, &acc.Currency, &acc.Status, &acc.CreatedAt); err != nil {
			return nil, fmt.Errorf("account scan failed: %w", err)
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

// SetStatus validates the transition against the current row under FOR UPDATE
// so concurrent transitions serialize on the account row.
func (r *PostgresRegistry) SetStatus(ctx context.Context, accountID string, status domain.AccountStatus) (*domain.Account, error) {
	if !status.Valid() {
		return nil, domain.ErrInvalidTransition
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	var acc domain.Account
	err = tx.QueryRow(ctx,
		`SELECT id, owner_id, account_number, currency, status, created_at
		 FROM accounts WHERE id = $1 FOR UPDATE`, accountID,
	).Scan(&acc.ID, &acc.OwnerID, &acc.Number, &acc.Currency, &acc.Status, &acc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("account lock failed: %w", err)
	}

	if !acc.Status.CanTransitionTo(status) {
		return nil, domain.ErrInvalidTransition
	}

	if _, err := tx.Exec(ctx, `UPDATE accounts SET status = $1 WHERE id = $2`, string(status), accountID); err != nil {
		return nil, fmt.Errorf("status update failed: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}

	acc.Status = status
	return &acc, nil
}
