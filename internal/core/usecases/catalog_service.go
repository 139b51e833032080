package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/samirrijal/parksmart/internal/core/domain"
	"github.com/samirrijal/parksmart/internal/core/ports"
	"github.com/samirrijal/parksmart/internal/pkg/metrics"
	"github.com/samirrijal/parksmart/internal/pkg/telemetry"
)

const catalogCacheTTL = 300

// CatalogService supplies the spot records a registry is loaded from.
type CatalogService struct {
	spots ports.SpotRepository
	cache ports.CacheService
}

// NewCatalogService creates a new CatalogService. Both arguments may be nil; without
// a repository the built-in sample set is served.
func NewCatalogService(spots ports.SpotRepository, cache ports.CacheService) *CatalogService {
	return &CatalogService{spots: spots, cache: cache}
}

// LoadAll returns every known spot.
func (s *CatalogService) LoadAll(ctx context.Context) ([]domain.ParkingSpot, error) {
	if s.spots == nil {
		return SampleSpots(), nil
	}
	return s.cached(ctx, "spots:catalog:all", func() ([]domain.ParkingSpot, error) {
		return s.spots.List(ctx)
	})
}

// Invalidate drops cached catalog listings after the repository changed.
func (s *CatalogService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, "spots:catalog:all"); err != nil {
		slog.Warn("catalog cache invalidate failed", "error", err)
	}
}

func (s *CatalogService) cached(ctx context.Context, key string, load func() ([]domain.ParkingSpot, error)) ([]domain.ParkingSpot, error) {
	ctx, span := otel.Tracer(telemetry.TracerName).Start(ctx, "CatalogService.load")
	defer span.End()

	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key); err == nil {
			var spots []domain.ParkingSpot
			if err := json.Unmarshal(data, &spots); err == nil {
				metrics.CacheHits.WithLabelValues("catalog").Inc()
				span.SetAttributes(telemetry.AttrCatalogCache.String("hit"), telemetry.AttrSpotCount.Int(len(spots)))
				return spots, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("catalog").Inc()
		span.SetAttributes(telemetry.AttrCatalogCache.String("miss"))
	}

	spots, err := load()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	span.SetAttributes(telemetry.AttrSpotCount.Int(len(spots)))

	if s.cache != nil {
		if data, err := json.Marshal(spots); err == nil {
			_ = s.cache.Set(ctx, key, data, catalogCacheTTL)
		}
	}
	return spots, nil
}
