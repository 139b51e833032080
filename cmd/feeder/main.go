package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samirrijal/parksmart/internal/adapters/feedclient"
	kafkaadapter "github.com/samirrijal/parksmart/internal/adapters/kafka"
	natsadapter "github.com/samirrijal/parksmart/internal/adapters/nats"
	"github.com/samirrijal/parksmart/internal/core/ports"
	"github.com/samirrijal/parksmart/internal/pkg/config"
	"github.com/samirrijal/parksmart/internal/pkg/logging"
)

// The feeder polls an operator availability endpoint and republishes changed
// counts on the configured transport.
func main() {
	cfg, err := config.Load("parksmart-feeder")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	if cfg.Feed.SourceURL == "" {
		log.Fatal("feed.source_url is required")
	}

	var pub ports.AvailabilityPublisher
	switch cfg.Feed.Transport {
	case config.TransportNATS:
		p, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			log.Fatalf("nats: %v", err)
		}
		defer p.Close()
		pub = p
	case config.TransportKafka:
		p := kafkaadapter.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer p.Close()
		pub = p
	default:
		log.Fatalf("feeder needs a transport, got %q", cfg.Feed.Transport)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := feedclient.New(nil, cfg.Feed.SourceURL, feedclient.DefaultSettings())
	differ := feedclient.NewDiffer()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		sig := <-quit
		slog.Info("shutdown signal received", "signal", sig.String())
		cancel()
	}()

	slog.Info("feeder starting",
		"source", cfg.Feed.SourceURL,
		"transport", cfg.Feed.Transport,
		"interval", cfg.Feed.PollInterval.String(),
	)

	ticker := time.NewTicker(cfg.Feed.PollInterval)
	defer ticker.Stop()

	for {
		poll(ctx, client, differ, pub)

		select {
		case <-ctx.Done():
			slog.Info("feeder stopped")
			return
		case <-ticker.C:
		}
	}
}

func poll(ctx context.Context, client *feedclient.Client, differ *feedclient.Differ, pub ports.AvailabilityPublisher) {
	updates, err := client.Fetch(ctx)
	if err != nil {
		if errors.Is(err, feedclient.ErrUnavailable) {
			slog.Debug("feed breaker open, skipping poll")
			return
		}
		slog.Warn("poll failed", "error", err)
		return
	}

	changed := differ.Changed(updates)
	published := 0
	for _, u := range changed {
		if err := pub.PublishAvailability(ctx, u); err != nil {
			slog.Warn("publish failed, retrying next poll", "spot_id", u.SpotID, "error", err)
			continue
		}
		differ.Mark(u)
		published++
	}
	if len(changed) > 0 {
		slog.Info("availability published", "fetched", len(updates), "changed", len(changed), "published", published)
	}
}
