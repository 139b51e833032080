package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/samirrijal/parksmart/internal/core/domain"
	"github.com/samirrijal/parksmart/internal/core/ports"
	"github.com/samirrijal/parksmart/internal/pkg/metrics"
	"github.com/samirrijal/parksmart/internal/pkg/telemetry"
)

// SessionHub owns the shared registry and one Engine per presentation session.
type SessionHub struct {
	registry *SpotRegistry
	catalog  *CatalogService
	opts     RankOptions

	mu      sync.RWMutex
	engines map[string]*Engine
}

// NewSessionHub creates a hub around registry. defaults are the ranking options
// every new session starts with.
func NewSessionHub(registry *SpotRegistry, catalog *CatalogService, defaults RankOptions) *SessionHub {
	return &SessionHub{
		registry: registry,
		catalog:  catalog,
		opts:     defaults,
		engines:  make(map[string]*Engine),
	}
}

// Registry exposes the shared spot registry.
func (h *SessionHub) Registry() *SpotRegistry { return h.registry }

// Reload replaces the registry contents from the catalog. An invalid catalog
// leaves the previous registry in place.
func (h *SessionHub) Reload(ctx context.Context) error {
	spots, err := h.catalog.LoadAll(ctx)
	if err != nil {
		return err
	}
	if err := h.registry.Load(spots); err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	metrics.RegistrySpots.Set(float64(h.registry.Len()))
	slog.Info("registry loaded", "spots", len(spots), "version", h.registry.Version())
	return nil
}

// Open creates an idle engine for a new session fed by source.
func (h *SessionHub) Open(source ports.PositionSource) *Engine {
	id := uuid.NewString()
	e := NewEngine(source, h.registry, EngineConfig{
		SessionID: id,
		Options:   h.opts,
	})

	h.mu.Lock()
	h.engines[id] = e
	h.mu.Unlock()
	metrics.ActiveSessions.Inc()
	return e
}

// Close shuts a session down and forgets it.
func (h *SessionHub) Close(id string) {
	h.mu.Lock()
	e, ok := h.engines[id]
	delete(h.engines, id)
	h.mu.Unlock()

	if ok {
		e.Close()
		metrics.ActiveSessions.Dec()
	}
}

// Len returns the number of open sessions.
func (h *SessionHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.engines)
}

// ApplyAvailability applies a feed update to the shared registry. Every open
// engine is notified through the registry and re-ranks on its own queue.
func (h *SessionHub) ApplyAvailability(ctx context.Context, update domain.AvailabilityUpdate) error {
	if err := h.registry.UpdateAvailability(update.SpotID, update.Available); err != nil {
		metrics.AvailabilityUpdates.WithLabelValues(domain.ErrorCode(err)).Inc()
		return err
	}
	metrics.AvailabilityUpdates.WithLabelValues("ok").Inc()
	return nil
}

// Nearby ranks the registry against a one-off position without opening a session.
func (h *SessionHub) Nearby(ctx context.Context, point domain.GeoPoint, opts RankOptions) ([]domain.RankedResult, error) {
	_, span := otel.Tracer(telemetry.TracerName).Start(ctx, "SessionHub.Nearby")
	defer span.End()

	if !point.Valid() {
		err := fmt.Errorf("%w: coordinates %s out of range", domain.ErrPositionUnavailable, point)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	spots := h.registry.All()
	span.SetAttributes(
		telemetry.AttrSpotCount.Int(len(spots)),
		telemetry.AttrMaxResults.Int(opts.MaxResults),
		telemetry.AttrExcludeFull.Bool(opts.ExcludeFull),
	)

	results, err := Rank(&domain.UserPosition{Point: point}, spots, opts)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(telemetry.AttrResultCount.Int(len(results)))
	return results, nil
}

// Shutdown closes every open session.
func (h *SessionHub) Shutdown() {
	h.mu.Lock()
	engines := h.engines
	h.engines = make(map[string]*Engine)
	h.mu.Unlock()

	for _, e := range engines {
		e.Close()
		metrics.ActiveSessions.Dec()
	}
}
