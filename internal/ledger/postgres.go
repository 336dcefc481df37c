package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ultimate-banking-app/ledger-engine/internal/domain"
)

// uniqueViolation is the Postgres error code for duplicate key.
const uniqueViolation = "23505"

// PostgresStore persists entries in the balance_entries table. The unique
// index on (account_id, sequence) is the compare-and-append guard.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, entry *domain.BalanceEntry) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO balance_entries
		 (id, account_id, sequence, previous_balance, delta, new_balance, change_type, reference_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.AccountID, entry.Sequence, entry.PreviousBalance,
		entry.Delta, entry.NewBalance, string(entry.ChangeType), entry.ReferenceID, entry.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrSequenceConflict
		}
		return fmt.Errorf("entry insert failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) Latest(ctx context.Context, accountID string) (*domain.BalanceEntry, error) {
	var e domain.BalanceEntry
	err := s.db.QueryRow(ctx,
		`SELECT id, account_id, sequence, previous_balance, delta, new_balance, change_type, reference_id, created_at
		 FROM balance_entries WHERE account_id = $1 ORDER BY sequence DESC LIMIT 1`, accountID,
	).Scan(&e.ID, &e.AccountID, &e.Sequence, &e.PreviousBalance, &e.Delta, &e.NewBalance, &e.ChangeType, &e.ReferenceID, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest entry query failed: %w", err)
	}
	return &e, nil
}

func (s *PostgresStore) History(ctx context.Context, accountID string) ([]domain.BalanceEntry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, account_id, sequence, previous_balance, delta, new_balance, change_type, reference_id, created_at
		 FROM balance_entries WHERE account_id = $1 ORDER BY sequence DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("history query failed: %w", err)
	}
	defer rows.Close()

	var entries []domain.BalanceEntry
	for rows.Next() {
		var e domain.BalanceEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Sequence, &e.PreviousBalance, &e.Delta, &e.NewBalance, &e.ChangeType, &e.ReferenceID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("history scan failed: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
