package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	inats "github.com/aiox-platform/mila/internal/nats"
)

// Event matches the bot_events table schema.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	UserID    int64           `json:"user_id"`
	EventType string          `json:"event_type"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ListParams holds pagination and filtering parameters for event queries.
type ListParams struct {
	EventType string
	Page      int
	PageSize  int
}

// DefaultListParams returns sensible defaults.
func DefaultListParams() ListParams {
	return ListParams{
		Page:     1,
		PageSize: 20,
	}
}

// FromBotEvent converts a published event into a row. Missing IDs and timestamps are filled in.
func FromBotEvent(e inats.BotEvent) *Event {
	ev := &Event{
		ID:        e.ID,
		UserID:    e.UserID,
		EventType: e.Type,
		CreatedAt: e.Timestamp,
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	details := e.Details
	if details == nil {
		details = map[string]string{}
	}
	if data, err := json.Marshal(details); err == nil {
		ev.Details = data
	}
	return ev
}
