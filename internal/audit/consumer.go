// Package audit persists bot events from NATS into Postgres.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	inats "github.com/aiox-platform/mila/internal/nats"
)

const consumerName = "audit-persister"

// Inserter persists one event.
type Inserter interface {
	Insert(ctx context.Context, ev *Event) error
}

// Consumer listens on the bot event subjects and persists entries to the database.
type Consumer struct {
	repo        Inserter
	consumerMgr *inats.ConsumerManager
}

func NewConsumer(repo Inserter, consumerMgr *inats.ConsumerManager) *Consumer {
	return &Consumer{
		repo:        repo,
		consumerMgr: consumerMgr,
	}
}

// Start begins the consume loop. Blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.consumerMgr.EnsureConsumer(ctx, inats.StreamEvents, consumerName, inats.SubjectEventPrefix+".>")
	if err != nil {
		return err
	}

	slog.Info("audit consumer started", "consumer", consumerName)

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("audit consumer: fetching events", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.handle(ctx, msg.Data(), msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

// acker is the part of jetstream.Msg the handler needs.
type acker interface {
	Ack() error
	Nak() error
	Term() error
}

func (c *Consumer) handle(ctx context.Context, data []byte, msg acker) {
	var event inats.BotEvent
	if err := json.Unmarshal(data, &event); err != nil {
		slog.Error("audit consumer: unmarshaling event", "error", err)
		_ = msg.Term()
		return
	}

	if err := c.repo.Insert(ctx, FromBotEvent(event)); err != nil {
		slog.Error("audit consumer: persisting event", "error", err, "event_type", event.Type)
		_ = msg.Nak()
		return
	}

	_ = msg.Ack()

	slog.Debug("audit consumer: persisted event",
		"event_type", event.Type,
		"user_id", event.UserID,
	)
}
