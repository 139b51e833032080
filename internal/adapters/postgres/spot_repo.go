package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/samirrijal/parksmart/internal/core/domain"
)

const spotColumns = `
	spot_id, name, COALESCE(address, ''),
	ST_Y(location::geometry) AS lat,
	ST_X(location::geometry) AS lon,
	capacity, available, price_minor, currency`

// SpotRepo implements ports.SpotRepository with pgx.
type SpotRepo struct {
	db *DB
}

// NewSpotRepo creates a new SpotRepo.
func NewSpotRepo(db *DB) *SpotRepo {
	return &SpotRepo{db: db}
}

const upsertSpotSQL = `
	INSERT INTO parking_spots (spot_id, name, address, location, capacity, available, price_minor, currency)
	VALUES ($1, $2, $3, ST_SetSRID(ST_MakePoint($4, $5), 4326)::geography, $6, $7, $8, $9)
	ON CONFLICT (spot_id) DO UPDATE
	SET name = EXCLUDED.name, address = EXCLUDED.address, location = EXCLUDED.location,
	    capacity = EXCLUDED.capacity, available = EXCLUDED.available,
	    price_minor = EXCLUDED.price_minor, currency = EXCLUDED.currency,
	    updated_at = now()
`

// UpsertBatch inserts many spots using pgx.Batch. Nothing is sent if any spot is invalid.
func (r *SpotRepo) UpsertBatch(ctx context.Context, spots []domain.ParkingSpot) error {
	batch := &pgx.Batch{}
	for i := range spots {
		if err := spots[i].Validate(); err != nil {
			return err
		}
		batch.Queue(upsertSpotSQL, spotArgs(&spots[i])...)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range spots {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	return nil
}

// List returns every spot ordered by id.
func (r *SpotRepo) List(ctx context.Context) ([]domain.ParkingSpot, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+spotColumns+` FROM parking_spots ORDER BY spot_id`)
	if err != nil {
		return nil, err
	}
	return collectSpots(rows)
}

// setAvailabilitySQL locks the row, updates it only when the count fits the
// capacity, and reports what it found so the caller can tell an unknown spot
// from an out-of-range count.
const setAvailabilitySQL = `
	WITH target AS (
		SELECT spot_id, capacity FROM parking_spots WHERE spot_id = $1 FOR UPDATE
	), updated AS (
		UPDATE parking_spots p
		SET available = $2, updated_at = now()
		FROM target t
		WHERE p.spot_id = t.spot_id AND $2 BETWEEN 0 AND t.capacity
		RETURNING p.spot_id
	)
	SELECT t.capacity, EXISTS (SELECT 1 FROM updated) FROM target t
`

// SetAvailability stores the latest observed free count.
func (r *SpotRepo) SetAvailability(ctx context.Context, u domain.AvailabilityUpdate) error {
	var (
		capacity int
		updated  bool
	)
	err := r.db.Pool.QueryRow(ctx, setAvailabilitySQL, u.SpotID, u.Available).Scan(&capacity, &updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return availabilityError(u, false, 0)
	}
	if err != nil {
		return err
	}
	if !updated {
		return availabilityError(u, true, capacity)
	}
	return nil
}

// availabilityError maps a rejected update to the registry's error taxonomy.
func availabilityError(u domain.AvailabilityUpdate, found bool, capacity int) error {
	if !found {
		return fmt.Errorf("%w: %s", domain.ErrUnknownSpot, u.SpotID)
	}
	return fmt.Errorf("%w: spot %s available %d not in [0,%d]", domain.ErrOutOfRange, u.SpotID, u.Available, capacity)
}

func spotArgs(s *domain.ParkingSpot) []any {
	return []any{
		s.ID, s.Name, s.Address, s.Location.Lon, s.Location.Lat,
		s.Capacity, s.Available, s.PricePerHour.Amount, s.PricePerHour.Currency,
	}
}

func scanSpot(row pgx.Row) (domain.ParkingSpot, error) {
	var s domain.ParkingSpot
	err := row.Scan(
		&s.ID, &s.Name, &s.Address,
		&s.Location.Lat, &s.Location.Lon,
		&s.Capacity, &s.Available, &s.PricePerHour.Amount, &s.PricePerHour.Currency,
	)
	return s, err
}

func collectSpots(rows pgx.Rows) ([]domain.ParkingSpot, error) {
	defer rows.Close()
	var spots []domain.ParkingSpot
	for rows.Next() {
		s, err := scanSpot(rows)
		if err != nil {
			return nil, err
		}
		spots = append(spots, s)
	}
	return spots, rows.Err()
}
