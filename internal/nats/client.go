package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/aiox-platform/mila/internal/config"
)

const (
	connectionName = "mila-bot"
	// Republished events carry the same Nats-Msg-Id and are dropped inside this window.
	duplicateWindow = 2 * time.Minute
	defaultMaxAge   = 7 * 24 * time.Hour
)

// Client holds the NATS connection and the bot event stream.
type Client struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// NewClient connects to NATS and creates or updates the MILA_EVENTS stream.
func NewClient(ctx context.Context, cfg config.NATSConfig) (*Client, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name(connectionName),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("event bus disconnected, bot events are dropped until reconnect", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("event bus reconnected", "url", nc.ConnectedUrlRedacted())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	c := &Client{conn: nc, js: js}

	maxAge := cfg.EventRetention
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	if err := c.ensureEventStream(ctx, maxAge); err != nil {
		nc.Close()
		return nil, err
	}

	slog.Info("event bus ready", "stream", StreamEvents, "retention", maxAge)
	return c, nil
}

func (c *Client) ensureEventStream(ctx context.Context, maxAge time.Duration) error {
	_, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamEvents,
		Description: "Mila bot account and conversation events",
		Subjects:    []string{SubjectEventPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      maxAge,
		Duplicates:  duplicateWindow,
	})
	if err != nil {
		return fmt.Errorf("ensuring stream %s: %w", StreamEvents, err)
	}
	return nil
}

func (c *Client) JetStream() jetstream.JetStream {
	return c.js
}

// Check fails unless the connection is up. Its signature fits a readiness probe.
func (c *Client) Check(context.Context) error {
	if !c.conn.IsConnected() {
		return errors.New("nats connection is " + c.conn.Status().String())
	}
	return nil
}

// Close drains pending publishes and acks, then closes the connection.
func (c *Client) Close() {
	if err := c.conn.Drain(); err != nil {
		slog.Warn("draining event bus connection", "error", err)
	}
}
