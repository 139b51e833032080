package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/samirrijal/parksmart/internal/core/domain"
)

// Subscriber implements ports.AvailabilitySubscriber using NATS JetStream.
type Subscriber struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	durable string
	subs    []*nats.Subscription
}

// NewSubscriber connects to NATS. An empty durable creates an ephemeral
// consumer per process, which replays the last observation of every spot on
// start. A durable consumer must not be shared between api replicas, since each
// replica needs the full feed.
func NewSubscriber(url, durable string) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	if err := ensureStream(js); err != nil {
		conn.Close()
		return nil, err
	}
	return &Subscriber{conn: conn, js: js, durable: durable}, nil
}

// SubscribeAvailability delivers every availability observation to handler.
// Malformed messages are terminated; handler errors are retried a bounded number of times.
func (s *Subscriber) SubscribeAvailability(ctx context.Context, handler func(ctx context.Context, u domain.AvailabilityUpdate) error) error {
	sub, err := s.js.Subscribe(SubjectPrefix+">", func(msg *nats.Msg) {
		var u domain.AvailabilityUpdate
		if err := json.Unmarshal(msg.Data, &u); err != nil {
			slog.Warn("dropping malformed availability message", "subject", msg.Subject, "error", err)
			_ = msg.Term()
			return
		}
		if err := handler(ctx, u); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	}, s.subOpts()...)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

func (s *Subscriber) subOpts() []nats.SubOpt {
	opts := []nats.SubOpt{
		nats.ManualAck(),
		nats.MaxDeliver(3),
		nats.DeliverLastPerSubject(),
	}
	if s.durable != "" {
		opts = append(opts, nats.Durable(s.durable))
	}
	return opts
}

// Conn exposes the underlying connection for health checks.
func (s *Subscriber) Conn() *nats.Conn { return s.conn }

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
