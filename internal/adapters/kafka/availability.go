package kafkaadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/samirrijal/parksmart/internal/core/domain"
)

// Publisher implements ports.AvailabilityPublisher on a Kafka topic, keyed by spot id
// so updates for one spot stay ordered within a partition.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a publisher for the given topic.
func NewPublisher(brokers []string, topic string) *Publisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &Publisher{writer: w}
}

// PublishAvailability writes one observation.
func (p *Publisher) PublishAvailability(ctx context.Context, u domain.AvailabilityUpdate) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(u.SpotID),
		Value: data,
	})
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// SubscriberConfig holds configuration for the Kafka subscriber.
type SubscriberConfig struct {
	Brokers []string
	Topic   string
	// GroupID should be unique per api replica; a shared group splits the
	// partitions and every replica would see only part of the feed.
	GroupID string
}

// Subscriber implements ports.AvailabilitySubscriber with a consumer-group reader.
type Subscriber struct {
	reader *kafka.Reader
	wg     sync.WaitGroup
}

// NewSubscriber creates a subscriber for the given config.
func NewSubscriber(cfg SubscriberConfig) *Subscriber {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       1e6,
		CommitInterval: time.Second,
		// a new group replays the topic, so a compacted topic restores the
		// latest count of every spot
		StartOffset:    kafka.FirstOffset,
	})
	return &Subscriber{reader: reader}
}

// SubscribeAvailability consumes the topic in the background until ctx is cancelled.
// Messages are committed whether or not handler accepts them.
func (s *Subscriber) SubscribeAvailability(ctx context.Context, handler func(ctx context.Context, u domain.AvailabilityUpdate) error) error {
	cfg := s.reader.Config()
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return fmt.Errorf("kafka subscriber needs brokers and a topic")
	}
	slog.Info("starting Kafka availability consumer",
		"brokers", cfg.Brokers,
		"topic", cfg.Topic,
		"group_id", cfg.GroupID,
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx, handler)
	}()
	return nil
}

func (s *Subscriber) run(ctx context.Context, handler func(ctx context.Context, u domain.AvailabilityUpdate) error) {
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			slog.Error("fetch message failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		var u domain.AvailabilityUpdate
		if err := json.Unmarshal(msg.Value, &u); err != nil {
			slog.Warn("invalid availability message", "error", err, "offset", msg.Offset)
		} else if err := handler(ctx, u); err != nil {
			slog.Warn("availability update rejected", "spot_id", u.SpotID, "error", err, "offset", msg.Offset)
		}

		if err := s.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			slog.Error("commit failed", "error", err, "offset", msg.Offset)
		}
	}
}

// Close stops the reader and waits for the consumer goroutine.
func (s *Subscriber) Close() error {
	err := s.reader.Close()
	s.wg.Wait()
	return err
}
