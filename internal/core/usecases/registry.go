package usecases

import (
	"fmt"
	"sync"

	"github.com/samirrijal/parksmart/internal/core/domain"
)

// SpotRegistry is the authoritative in-memory set of parking spots for a session.
// Every read returns a copy taken under the lock, so readers never observe a
// partially applied load or batch.
type SpotRegistry struct {
	mu      sync.RWMutex
	spots   []domain.ParkingSpot
	index   map[string]int
	version uint64

	lmu       sync.Mutex
	listeners map[int]func(version uint64)
	nextID    int
}

// NewSpotRegistry creates an empty registry.
func NewSpotRegistry() *SpotRegistry {
	return &SpotRegistry{
		index:     make(map[string]int),
		listeners: make(map[int]func(uint64)),
	}
}

// Load replaces the registry contents. If any spot is invalid the whole load is
// rejected and the previous contents stay in place.
func (r *SpotRegistry) Load(spots []domain.ParkingSpot) error {
	next := make([]domain.ParkingSpot, len(spots))
	index := make(map[string]int, len(spots))
	for i, s := range spots {
		if err := s.Validate(); err != nil {
			return err
		}
		if _, dup := index[s.ID]; dup {
			return fmt.Errorf("%w: duplicate id %s", domain.ErrInvalidSpot, s.ID)
		}
		index[s.ID] = i
		next[i] = s
	}

	r.mu.Lock()
	r.spots = next
	r.index = index
	r.version++
	v := r.version
	r.mu.Unlock()

	r.notify(v)
	return nil
}

// UpdateAvailability replaces the available count of a single spot.
func (r *SpotRegistry) UpdateAvailability(id string, available int) error {
	return r.ApplyBatch([]domain.AvailabilityUpdate{{SpotID: id, Available: available}})
}

// ApplyBatch validates every update first and then applies all of them, or none.
// Later entries for the same spot win.
func (r *SpotRegistry) ApplyBatch(updates []domain.AvailabilityUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	r.mu.Lock()
	for _, u := range updates {
		i, ok := r.index[u.SpotID]
		if !ok {
			r.mu.Unlock()
			return fmt.Errorf("%w: %s", domain.ErrUnknownSpot, u.SpotID)
		}
		if capacity := r.spots[i].Capacity; u.Available < 0 || u.Available > capacity {
			r.mu.Unlock()
			return fmt.Errorf("%w: spot %s available %d outside [0,%d]", domain.ErrOutOfRange, u.SpotID, u.Available, capacity)
		}
	}

	// copy-on-write keeps snapshots handed out by All untouched
	next := make([]domain.ParkingSpot, len(r.spots))
	copy(next, r.spots)
	for _, u := range updates {
		next[r.index[u.SpotID]].Available = u.Available
	}
	r.spots = next
	r.version++
	v := r.version
	r.mu.Unlock()

	r.notify(v)
	return nil
}

// All returns a copy of the current snapshot in load order.
func (r *SpotRegistry) All() []domain.ParkingSpot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ParkingSpot, len(r.spots))
	copy(out, r.spots)
	return out
}

// Snapshot returns a copy of the spots together with the version they belong to.
func (r *SpotRegistry) Snapshot() ([]domain.ParkingSpot, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ParkingSpot, len(r.spots))
	copy(out, r.spots)
	return out, r.version
}

// Get returns a single spot by id.
func (r *SpotRegistry) Get(id string) (domain.ParkingSpot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[id]
	if !ok {
		return domain.ParkingSpot{}, fmt.Errorf("%w: %s", domain.ErrUnknownSpot, id)
	}
	return r.spots[i], nil
}

// Len returns the number of spots.
func (r *SpotRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.spots)
}

// Version increments on every successful mutation.
func (r *SpotRegistry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Subscribe registers fn to be called after every successful mutation.
// The returned func removes the listener.
func (r *SpotRegistry) Subscribe(fn func(version uint64)) (unsubscribe func()) {
	r.lmu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	r.lmu.Unlock()

	return func() {
		r.lmu.Lock()
		delete(r.listeners, id)
		r.lmu.Unlock()
	}
}

func (r *SpotRegistry) notify(version uint64) {
	r.lmu.Lock()
	fns := make([]func(uint64), 0, len(r.listeners))
	for _, fn := range r.listeners {
		fns = append(fns, fn)
	}
	r.lmu.Unlock()

	for _, fn := range fns {
		fn(version)
	}
}
