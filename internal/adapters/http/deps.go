package http

import (
	"time"

	"github.com/nats-io/nats.go"
	"github.com/samirrijal/parksmart/internal/adapters/postgres"
	"github.com/samirrijal/parksmart/internal/adapters/valkey"
	"github.com/samirrijal/parksmart/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Hub     *usecases.SessionHub
	Catalog *usecases.CatalogService
	// Availability stores and rebroadcasts manual availability changes.
	Availability *usecases.AvailabilityService

	NATS  *nats.Conn
	DB    *postgres.DB
	Cache *valkey.Cache

	// Defaults are the ranking options for one-shot nearby queries.
	Defaults   usecases.RankOptions
	FixTimeout time.Duration
	// OpenAPIPath locates the document served at /docs/openapi.yaml.
	OpenAPIPath string
}
