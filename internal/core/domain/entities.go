package domain

import (
	"fmt"
	"time"
)

// Money is a non-negative amount in minor currency units (e.g. paise for INR).
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// String renders the amount with two decimals, e.g. "INR 40.00".
func (m Money) String() string {
	return fmt.Sprintf("%s %d.%02d", m.Currency, m.Amount/100, m.Amount%100)
}

// UserPosition is a single successful location fix.
type UserPosition struct {
	Point          GeoPoint  `json:"point"`
	AccuracyMeters float64   `json:"accuracy_meters"`
	CapturedAt     time.Time `json:"captured_at"`
}

// ParkingSpot is a parking facility with its live availability.
type ParkingSpot struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Address      string   `json:"address,omitempty"`
	Location     GeoPoint `json:"location"`
	Capacity     int      `json:"capacity"`
	Available    int      `json:"available"`
	PricePerHour Money    `json:"price_per_hour"`
}

// Full reports whether the spot has no free places left.
func (s ParkingSpot) Full() bool {
	return s.Available == 0
}

// Validate checks the data-model constraints of a spot.
func (s ParkingSpot) Validate() error {
	switch {
	case s.ID == "":
		return fmt.Errorf("%w: empty id", ErrInvalidSpot)
	case s.Capacity <= 0:
		return fmt.Errorf("%w: spot %s capacity %d must be positive", ErrInvalidSpot, s.ID, s.Capacity)
	case s.Available < 0 || s.Available > s.Capacity:
		return fmt.Errorf("%w: spot %s available %d outside [0,%d]", ErrInvalidSpot, s.ID, s.Available, s.Capacity)
	case !s.Location.Valid():
		return fmt.Errorf("%w: spot %s coordinates %s out of range", ErrInvalidSpot, s.ID, s.Location)
	case s.PricePerHour.Amount < 0:
		return fmt.Errorf("%w: spot %s negative price", ErrInvalidSpot, s.ID)
	}
	return nil
}

// RankedResult pairs a spot with its distance from the current user position.
type RankedResult struct {
	Spot           ParkingSpot `json:"spot"`
	DistanceMeters float64     `json:"distance_meters"`
	Full           bool        `json:"full"`
}

// AvailabilityUpdate is a single (id, available) pair from a live feed.
type AvailabilityUpdate struct {
	SpotID     string    `json:"spot_id"`
	Available  int       `json:"available"`
	ObservedAt time.Time `json:"observed_at,omitempty"`
}

// TrackingStatus is the lifecycle state of an engine session.
type TrackingStatus string

const (
	StatusIdle        TrackingStatus = "idle"
	StatusAwaitingFix TrackingStatus = "awaiting_fix"
	StatusActive      TrackingStatus = "active"
)

// Tracking reports whether the status is one of the tracking sub-states.
func (s TrackingStatus) Tracking() bool {
	return s == StatusAwaitingFix || s == StatusActive
}

// EngineState is the snapshot pushed to presentation after every recompute.
type EngineState struct {
	SessionID string         `json:"session_id,omitempty"`
	Status    TrackingStatus `json:"status"`
	Position  *UserPosition  `json:"position"`
	Results   []RankedResult `json:"results"`
	Error     *Failure       `json:"error,omitempty"`
	Seq       uint64         `json:"seq"`
}
