package usecases

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/samirrijal/parksmart/internal/core/domain"
	"github.com/samirrijal/parksmart/internal/pkg/geospatial"
)

// RankOptions tunes a ranking. The zero value ranks every spot.
type RankOptions struct {
	// MaxResults caps the result length; 0 means unbounded.
	MaxResults int `json:"max_results" mapstructure:"max_results"`
	// ExcludeFull omits spots with no availability instead of keeping them in place.
	ExcludeFull bool `json:"exclude_full" mapstructure:"exclude_full"`
	// MaxDistanceMeters drops spots further away; 0 means unbounded.
	MaxDistanceMeters float64 `json:"max_distance_meters,omitempty" mapstructure:"max_distance_meters"`
}

// Validate rejects negative limits.
func (o RankOptions) Validate() error {
	if o.MaxResults < 0 {
		return fmt.Errorf("max_results must be >= 1 or 0 for unbounded, got %d", o.MaxResults)
	}
	if o.MaxDistanceMeters < 0 {
		return fmt.Errorf("max_distance_meters must not be negative, got %f", o.MaxDistanceMeters)
	}
	return nil
}

// Rank orders spots by great-circle distance from pos, nearest first, breaking
// ties by ascending spot id. It does not modify its inputs.
func Rank(pos *domain.UserPosition, spots []domain.ParkingSpot, opts RankOptions) ([]domain.RankedResult, error) {
	if pos == nil {
		return nil, domain.ErrNoPosition
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	results := make([]domain.RankedResult, 0, len(spots))
	for _, s := range spots {
		if opts.ExcludeFull && s.Full() {
			continue
		}
		d := geospatial.Haversine(pos.Point.Lat, pos.Point.Lon, s.Location.Lat, s.Location.Lon)
		if opts.MaxDistanceMeters > 0 && d > opts.MaxDistanceMeters {
			continue
		}
		results = append(results, domain.RankedResult{Spot: s, DistanceMeters: d, Full: s.Full()})
	}

	slices.SortFunc(results, func(a, b domain.RankedResult) int {
		if c := cmp.Compare(a.DistanceMeters, b.DistanceMeters); c != 0 {
			return c
		}
		return cmp.Compare(a.Spot.ID, b.Spot.ID)
	})

	if opts.MaxResults > 0 && len(results) > opts.MaxResults {
		results = results[:opts.MaxResults]
	}
	return results, nil
}
