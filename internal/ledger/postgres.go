package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore handles accounts table operations.
// Each mutator is a single upsert so no operation needs a transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new account store backed by Postgres.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const accountColumns = `user_id, free_used, paid_until, created_at, last_active_at`

func scanAccount(row pgx.Row) (*Account, error) {
	var (
		a         Account
		paidUntil *time.Time
	)
	if err := row.Scan(&a.UserID, &a.FreeUsed, &paidUntil, &a.CreatedAt, &a.LastActiveAt); err != nil {
		return nil, err
	}
	if paidUntil != nil {
		a.PaidUntil = *paidUntil
	}
	return &a, nil
}

// GetOrCreate returns the account row, creating one if it doesn't exist.
func (s *PostgresStore) GetOrCreate(ctx context.Context, userID int64, now time.Time) (*Account, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (user_id, created_at, last_active_at) VALUES ($1, $2, $2)
		 ON CONFLICT (user_id) DO NOTHING`, userID, now)
	if err != nil {
		return nil, fmt.Errorf("ensuring account: %w", err)
	}

	acc, err := scanAccount(s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1`, userID))
	if err != nil {
		return nil, fmt.Errorf("fetching account: %w", err)
	}
	return acc, nil
}

// IncrementFree adds one consumed free message.
func (s *PostgresStore) IncrementFree(ctx context.Context, userID int64, now time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (user_id, free_used, created_at, last_active_at) VALUES ($1, 1, $2, $2)
		 ON CONFLICT (user_id) DO UPDATE SET free_used = accounts.free_used + 1`, userID, now)
	if err != nil {
		return fmt.Errorf("incrementing free usage: %w", err)
	}
	return nil
}

// ResetFree sets the free counter back to zero.
func (s *PostgresStore) ResetFree(ctx context.Context, userID int64, now time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (user_id, created_at, last_active_at) VALUES ($1, $2, $2)
		 ON CONFLICT (user_id) DO UPDATE SET free_used = 0`, userID, now)
	if err != nil {
		return fmt.Errorf("resetting free usage: %w", err)
	}
	return nil
}

// SetPaidUntil overwrites the paid-access expiry.
func (s *PostgresStore) SetPaidUntil(ctx context.Context, userID int64, until, now time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (user_id, paid_until, created_at, last_active_at) VALUES ($1, $2, $3, $3)
		 ON CONFLICT (user_id) DO UPDATE SET paid_until = EXCLUDED.paid_until`, userID, until, now)
	if err != nil {
		return fmt.Errorf("setting paid until: %w", err)
	}
	return nil
}

// Touch refreshes last_active_at.
func (s *PostgresStore) Touch(ctx context.Context, userID int64, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (user_id, created_at, last_active_at) VALUES ($1, $2, $2)
		 ON CONFLICT (user_id) DO UPDATE SET last_active_at = EXCLUDED.last_active_at`, userID, at)
	if err != nil {
		return fmt.Errorf("touching account: %w", err)
	}
	return nil
}

// ListIdle returns accounts whose last activity is older than before.
func (s *PostgresStore) ListIdle(ctx context.Context, before time.Time) ([]Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE last_active_at < $1 ORDER BY last_active_at`, before)
	if err != nil {
		return nil, fmt.Errorf("querying idle accounts: %w", err)
	}
	defer rows.Close()

	var idle []Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		idle = append(idle, *acc)
	}
	return idle, rows.Err()
}
