package nats

import (
	"time"

	"github.com/google/uuid"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// StreamEvents holds every bot event.
const StreamEvents = "MILA_EVENTS"

// SubjectEventPrefix is followed by the event type: mila.events.{type}.
const SubjectEventPrefix = "mila.events"

// Bot event types.
const (
	EventTurnCompleted  = "turn_completed"
	EventQuotaExhausted = "quota_exhausted"
	EventPaidGranted    = "paid_granted"
	EventQuotaReset     = "quota_reset"
	EventHistoryCleared = "history_cleared"
	EventReminderSent   = "reminder_sent"
)

// BotEvent records something that happened to one user's account or conversation.
type BotEvent struct {
	ID        uuid.UUID         `json:"id"`
	UserID    int64             `json:"user_id"`
	Type      string            `json:"type"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewBotEvent stamps an event with a fresh ID and the current time.
func NewBotEvent(userID int64, eventType string, details map[string]string) BotEvent {
	return BotEvent{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      eventType,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
}

// Subject returns the subject the event is published on.
func (e BotEvent) Subject() string {
	return SubjectEventPrefix + "." + e.Type
}
