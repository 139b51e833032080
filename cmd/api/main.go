package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"

	"github.com/samirrijal/parksmart/internal/adapters/http"
	kafkaadapter "github.com/samirrijal/parksmart/internal/adapters/kafka"
	natsadapter "github.com/samirrijal/parksmart/internal/adapters/nats"
	"github.com/samirrijal/parksmart/internal/adapters/postgres"
	"github.com/samirrijal/parksmart/internal/adapters/valkey"
	"github.com/samirrijal/parksmart/internal/core/ports"
	"github.com/samirrijal/parksmart/internal/core/usecases"
	"github.com/samirrijal/parksmart/internal/pkg/config"
	"github.com/samirrijal/parksmart/internal/pkg/logging"
	"github.com/samirrijal/parksmart/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("parksmart-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	deps := &http.Dependencies{
		Defaults: usecases.RankOptions{
			MaxResults:  cfg.Engine.MaxResults,
			ExcludeFull: cfg.Engine.ExcludeFull,
		},
		FixTimeout:  cfg.Engine.FixTimeout,
		OpenAPIPath: cfg.Server.OpenAPIPath,
	}

	// Database
	var spotRepo ports.SpotRepository
	if cfg.Database.Enabled {
		db, err := postgres.New(ctx, cfg.Database.DSN())
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		deps.DB = db
		spotRepo = postgres.NewSpotRepo(db)
		go db.ReportPoolStats(ctx, 15*time.Second)
	} else {
		slog.Info("database disabled, serving the built-in sample spots")
	}

	// Cache
	var cache ports.CacheService
	if cfg.Valkey.Enabled {
		c, err := valkey.New(cfg.Valkey.Addr, cfg.Valkey.Prefix)
		if err != nil {
			slog.Warn("valkey unavailable", "error", err)
		} else {
			defer c.Close()
			deps.Cache = c
			cache = c
		}
	}

	// Registry and sessions
	deps.Catalog = usecases.NewCatalogService(spotRepo, cache)
	deps.Hub = usecases.NewSessionHub(usecases.NewSpotRegistry(), deps.Catalog, deps.Defaults)
	defer deps.Hub.Shutdown()
	if err := deps.Hub.Reload(ctx); err != nil {
		log.Fatalf("load registry: %v", err)
	}

	// Live availability feed
	var (
		publisher  ports.AvailabilityPublisher
		subscriber ports.AvailabilitySubscriber
	)
	switch cfg.Feed.Transport {
	case config.TransportNATS:
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable, availability feed disabled", "error", err)
			break
		}
		defer pub.Close()
		publisher = pub
		deps.NATS = pub.Conn()

		sub, err := natsadapter.NewSubscriber(cfg.NATS.URL, cfg.NATS.Durable)
		if err != nil {
			slog.Warn("nats subscriber unavailable", "error", err)
			break
		}
		defer sub.Close()
		subscriber = sub

	case config.TransportKafka:
		pub := kafkaadapter.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer pub.Close()
		publisher = pub

		sub := kafkaadapter.NewSubscriber(kafkaadapter.SubscriberConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID + "-" + uuid.NewString(),
		})
		defer sub.Close()
		subscriber = sub

	case config.TransportNone:
		slog.Info("availability feed disabled; only PUT /v1/spots/:id/availability updates the registry")
	}

	deps.Availability = usecases.NewAvailabilityService(deps.Hub, spotRepo, deps.Catalog, publisher)
	if subscriber != nil {
		if err := subscriber.SubscribeAvailability(ctx, deps.Availability.Ingest); err != nil {
			slog.Warn("subscribe availability", "error", err)
		}
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "ParkSmart API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173",
		AllowMethods:     "GET,POST,PUT,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "spots", deps.Hub.Registry().Len(), "feed", cfg.Feed.Transport)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

