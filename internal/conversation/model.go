// Package conversation stores per-user chat turns.
package conversation

import (
	"context"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r can be stored.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one stored message. Seq orders turns within a store.
type Turn struct {
	Seq       int64     `json:"seq"`
	UserID    int64     `json:"user_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists turns per user. LastN returns turns oldest first.
type Store interface {
	Append(ctx context.Context, userID int64, role Role, content string) (Turn, error)
	LastN(ctx context.Context, userID int64, n int) ([]Turn, error)
	Clear(ctx context.Context, userID int64) error
	Count(ctx context.Context, userID int64) (int, error)
}
