package natsadapter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// handlerTimeout bounds one delivery; a slower handler is nak'd and redelivered.
const handlerTimeout = 10 * time.Second

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	logger *slog.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber on its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js, logger: slog.Default().With("component", "nats-subscriber")}, nil
}

// SubscribeCatalogUpdated calls handler for every catalog change. Each
// process gets an ephemeral consumer starting at new messages, so every
// instance sees every update published after it starts.
func (s *Subscriber) SubscribeCatalogUpdated(ctx context.Context, handler func(ctx context.Context) error) error {
	sub, err := s.js.Subscribe(SubjectCatalogUpdated, s.deliver(ctx, handler),
		nats.DeliverNew(),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", SubjectCatalogUpdated, err)
	}
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	return nil
}

func (s *Subscriber) deliver(ctx context.Context, handler func(ctx context.Context) error) nats.MsgHandler {
	return func(msg *nats.Msg) {
		if ctx.Err() != nil {
			_ = msg.Nak()
			return
		}
		hctx, cancel := context.WithTimeout(ctx, handlerTimeout)
		defer cancel()

		if err := handler(hctx); err != nil {
			s.logger.Warn("catalog update handler failed", "subject", msg.Subject, "published", string(msg.Data), "error", err)
			_ = msg.Nak()
			return
		}
		s.logger.Debug("catalog update applied", "published", string(msg.Data))
		_ = msg.Ack()
	}
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()
	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
