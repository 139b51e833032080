package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samirrijal/parksmart/internal/core/domain"
	"github.com/samirrijal/parksmart/internal/core/ports"
)

// AvailabilityService is the single path for live availability changes. Every
// accepted change reaches the shared registry, the spot store and, when it
// originated here, the other replicas.
type AvailabilityService struct {
	hub       *SessionHub
	spots     ports.SpotRepository
	catalog   *CatalogService
	publisher ports.AvailabilityPublisher
}

// NewAvailabilityService creates the service. spots, catalog and publisher may
// be nil when those adapters are not configured.
func NewAvailabilityService(hub *SessionHub, spots ports.SpotRepository, catalog *CatalogService, publisher ports.AvailabilityPublisher) *AvailabilityService {
	return &AvailabilityService{hub: hub, spots: spots, catalog: catalog, publisher: publisher}
}

// Apply handles a change reported to this replica (operator PUT). Registry
// errors are returned; store and publish failures are logged since the
// registry already holds the new count.
func (s *AvailabilityService) Apply(ctx context.Context, u domain.AvailabilityUpdate) error {
	if err := s.hub.ApplyAvailability(ctx, u); err != nil {
		return err
	}
	s.Propagate(ctx, u)
	return nil
}

// Propagate stores and publishes a change that is already in the registry,
// such as one applied through a session engine.
func (s *AvailabilityService) Propagate(ctx context.Context, u domain.AvailabilityUpdate) {
	if err := s.persist(ctx, u); err != nil {
		slog.Warn("persist availability failed", "spot_id", u.SpotID, "error", err)
	}
	if s.publisher != nil {
		if err := s.publisher.PublishAvailability(ctx, u); err != nil {
			slog.Warn("publish availability failed", "spot_id", u.SpotID, "error", err)
		}
	}
}

// Ingest handles a change received from the broker feed. It is not published
// again. Updates the registry rejects are logged and dropped because
// redelivery cannot fix them; a store failure is returned so the broker
// redelivers.
func (s *AvailabilityService) Ingest(ctx context.Context, u domain.AvailabilityUpdate) error {
	if err := s.hub.ApplyAvailability(ctx, u); err != nil {
		if errors.Is(err, domain.ErrUnknownSpot) || errors.Is(err, domain.ErrOutOfRange) {
			slog.Warn("availability update rejected", "spot_id", u.SpotID, "available", u.Available, "error", err)
			return nil
		}
		return err
	}
	if err := s.persist(ctx, u); err != nil {
		return fmt.Errorf("persist availability: %w", err)
	}
	return nil
}

func (s *AvailabilityService) persist(ctx context.Context, u domain.AvailabilityUpdate) error {
	if s.spots == nil {
		return nil
	}
	if err := s.spots.SetAvailability(ctx, u); err != nil {
		return err
	}
	if s.catalog != nil {
		s.catalog.Invalidate(ctx)
	}
	return nil
}
