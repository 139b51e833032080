package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/samirrijal/parksmart/internal/adapters/postgres"
	"github.com/samirrijal/parksmart/internal/core/domain"
	"github.com/samirrijal/parksmart/internal/pkg/config"
	"github.com/samirrijal/parksmart/internal/pkg/logging"
)

// Loads a JSON array of parking spots into the catalog:
//
//	ingestor [spots.json]
func main() {
	cfg, err := config.Load("parksmart-ingestor")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	path := "spots.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read %s: %v", path, err)
	}

	var spots []domain.ParkingSpot
	if err := json.Unmarshal(data, &spots); err != nil {
		log.Fatalf("parse %s: %v", path, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	start := time.Now()
	if err := postgres.NewSpotRepo(db).UpsertBatch(ctx, spots); err != nil {
		log.Fatalf("ingest: %v", err)
	}

	slog.Info("spots ingested", "file", path, "count", len(spots), "duration", time.Since(start).String())
}
