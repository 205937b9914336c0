package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/samirrijal/bodegamap/internal/core/domain"
)

// Subjects.
const (
	SubjectSearchPrefix     = "explorer.search."
	SubjectNavigationPrefix = "explorer.navigation."
	SubjectCatalogUpdated   = "catalog.updated"
)

// Streams backing the subjects.
var streams = []nats.StreamConfig{
	{
		Name:      "EXPLORER_SEARCHES",
		Subjects:  []string{SubjectSearchPrefix + ">"},
		Retention: nats.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   nats.FileStorage,
	},
	{
		Name:      "EXPLORER_NAVIGATION",
		Subjects:  []string{SubjectNavigationPrefix + ">"},
		Retention: nats.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   nats.FileStorage,
	},
	{
		Name:      "CATALOG",
		Subjects:  []string{"catalog.>"},
		Retention: nats.InterestPolicy,
		MaxAge:    1 * time.Hour,
		Storage:   nats.FileStorage,
	},
}

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist; update it instead.
			if _, err := js.UpdateStream(&cfg); err != nil {
				conn.Close()
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishSearchExecuted records one dispatched query on explorer.search.<type>.
func (p *Publisher) PublishSearchExecuted(ctx context.Context, event *domain.SearchExecuted) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectSearchPrefix+string(event.EntityType), data, nats.Context(ctx))
	return err
}

type navigationEvent struct {
	Session string `json:"session"`
	domain.NavigationIntent
}

// PublishNavigation records a marker or result click on explorer.navigation.<kind>.
func (p *Publisher) PublishNavigation(ctx context.Context, session string, intent domain.NavigationIntent) error {
	data, err := json.Marshal(navigationEvent{Session: session, NavigationIntent: intent})
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectNavigationPrefix+string(intent.Ref.Kind), data, nats.Context(ctx))
	return err
}

// PublishCatalogUpdated announces that sites or items changed.
func (p *Publisher) PublishCatalogUpdated(ctx context.Context) error {
	_, err := p.js.Publish(SubjectCatalogUpdated, []byte(time.Now().UTC().Format(time.RFC3339)), nats.Context(ctx))
	return err
}

// Conn returns the underlying connection.
func (p *Publisher) Conn() *nats.Conn {
	return p.conn
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection.
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
