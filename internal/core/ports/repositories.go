package ports

import (
	"context"

	"github.com/samirrijal/parksmart/internal/core/domain"
)

// SpotRepository persists the parking facility catalog.
type SpotRepository interface {
	UpsertBatch(ctx context.Context, spots []domain.ParkingSpot) error
	// List returns every spot ordered by id.
	List(ctx context.Context) ([]domain.ParkingSpot, error)
	// SetAvailability records a live availability observation.
	SetAvailability(ctx context.Context, update domain.AvailabilityUpdate) error
}
