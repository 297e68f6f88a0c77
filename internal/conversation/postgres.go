package conversation

import (
	"context"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore handles turns table operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Append(ctx context.Context, userID int64, role Role, content string) (Turn, error) {
	if !role.Valid() {
		return Turn{}, fmt.Errorf("invalid role %q", role)
	}

	t := Turn{UserID: userID, Role: role, Content: content}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO turns (user_id, role, content) VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		userID, string(role), content,
	).Scan(&t.Seq, &t.CreatedAt)
	if err != nil {
		return Turn{}, fmt.Errorf("inserting turn: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) LastN(ctx context.Context, userID int64, n int) ([]Turn, error) {
	if n <= 0 {
		return []Turn{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, role, content, created_at FROM turns
		 WHERE user_id = $1 ORDER BY id DESC LIMIT $2`, userID, n)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	turns := make([]Turn, 0, n)
	for rows.Next() {
		var (
			t    Turn
			role string
		)
		if err := rows.Scan(&t.Seq, &t.UserID, &role, &t.Content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		t.Role = Role(role)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating turns: %w", err)
	}

	slices.Reverse(turns)
	return turns, nil
}

func (s *PostgresStore) Clear(ctx context.Context, userID int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM turns WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("deleting turns: %w", err)
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM turns WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting turns: %w", err)
	}
	return n, nil
}
