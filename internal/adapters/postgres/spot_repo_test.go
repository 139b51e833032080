package postgres

import (
	"errors"
	"testing"

	"github.com/samirrijal/parksmart/internal/core/domain"
)

func TestAvailabilityError(t *testing.T) {
	u := domain.AvailabilityUpdate{SpotID: "9", Available: 40}

	if err := availabilityError(u, false, 0); !errors.Is(err, domain.ErrUnknownSpot) {
		t.Errorf("missing row: expected ErrUnknownSpot, got %v", err)
	}

	err := availabilityError(u, true, 25)
	if !errors.Is(err, domain.ErrOutOfRange) {
		t.Errorf("over capacity: expected ErrOutOfRange, got %v", err)
	}
	if errors.Is(err, domain.ErrUnknownSpot) {
		t.Errorf("over capacity must not be reported as unknown: %v", err)
	}
}
