package usecases_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/parksmart/internal/core/domain"
	"github.com/samirrijal/parksmart/internal/core/usecases"
)

// storeRepo keeps spots in memory so a restart can be simulated by reloading
// a fresh hub from the same store.
type storeRepo struct {
	mu     sync.Mutex
	spots  []domain.ParkingSpot
	setErr error
	sets   int
}

func newStoreRepo() *storeRepo { return &storeRepo{spots: usecases.SampleSpots()} }

func (r *storeRepo) UpsertBatch(ctx context.Context, spots []domain.ParkingSpot) error { return nil }

func (r *storeRepo) List(ctx context.Context) ([]domain.ParkingSpot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ParkingSpot(nil), r.spots...), nil
}

func (r *storeRepo) SetAvailability(ctx context.Context, u domain.AvailabilityUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.setErr != nil {
		return r.setErr
	}
	for i := range r.spots {
		if r.spots[i].ID == u.SpotID {
			r.spots[i].Available = u.Available
			r.sets++
			return nil
		}
	}
	return domain.ErrUnknownSpot
}

type recordingPublisher struct {
	mu      sync.Mutex
	updates []domain.AvailabilityUpdate
}

func (p *recordingPublisher) PublishAvailability(ctx context.Context, u domain.AvailabilityUpdate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, u)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.updates)
}

type availabilityFixture struct {
	repo    *storeRepo
	cache   *memCache
	pub     *recordingPublisher
	catalog *usecases.CatalogService
	hub     *usecases.SessionHub
	svc     *usecases.AvailabilityService
}

func newAvailabilityFixture(t *testing.T, repo *storeRepo) *availabilityFixture {
	t.Helper()
	f := &availabilityFixture{repo: repo, cache: newMemCache(), pub: &recordingPublisher{}}
	f.catalog = usecases.NewCatalogService(repo, f.cache)
	f.hub = usecases.NewSessionHub(usecases.NewSpotRegistry(), f.catalog, usecases.RankOptions{})
	require.NoError(t, f.hub.Reload(context.Background()))
	t.Cleanup(f.hub.Shutdown)
	f.svc = usecases.NewAvailabilityService(f.hub, repo, f.catalog, f.pub)
	return f
}

func TestAvailabilityService_ApplyStoresAndPublishes(t *testing.T) {
	f := newAvailabilityFixture(t, newStoreRepo())
	ctx := context.Background()

	require.NoError(t, f.svc.Apply(ctx, domain.AvailabilityUpdate{SpotID: "1", Available: 10}))

	got, err := f.hub.Registry().Get("1")
	require.NoError(t, err)
	assert.Equal(t, 10, got.Available)
	assert.Equal(t, 1, f.repo.sets)
	assert.Equal(t, 1, f.pub.count())

	_, cacheErr := f.cache.Get(ctx, "spots:catalog:all")
	assert.Error(t, cacheErr, "catalog cache must be invalidated")
}

func TestAvailabilityService_ApplyRejectedIsNotStored(t *testing.T) {
	f := newAvailabilityFixture(t, newStoreRepo())

	err := f.svc.Apply(context.Background(), domain.AvailabilityUpdate{SpotID: "1", Available: 61})
	assert.ErrorIs(t, err, domain.ErrOutOfRange)
	assert.Equal(t, 0, f.repo.sets)
	assert.Equal(t, 0, f.pub.count())
}

func TestAvailabilityService_IngestStoresWithoutRepublishing(t *testing.T) {
	f := newAvailabilityFixture(t, newStoreRepo())

	require.NoError(t, f.svc.Ingest(context.Background(), domain.AvailabilityUpdate{SpotID: "2", Available: 3}))

	got, _ := f.hub.Registry().Get("2")
	assert.Equal(t, 3, got.Available)
	assert.Equal(t, 1, f.repo.sets)
	assert.Equal(t, 0, f.pub.count())
}

func TestAvailabilityService_IngestDropsRejectedUpdates(t *testing.T) {
	f := newAvailabilityFixture(t, newStoreRepo())

	assert.NoError(t, f.svc.Ingest(context.Background(), domain.AvailabilityUpdate{SpotID: "missing", Available: 1}))
	assert.NoError(t, f.svc.Ingest(context.Background(), domain.AvailabilityUpdate{SpotID: "1", Available: -4}))
	assert.Equal(t, 0, f.repo.sets)
}

func TestAvailabilityService_IngestStoreFailureIsRetryable(t *testing.T) {
	repo := newStoreRepo()
	f := newAvailabilityFixture(t, repo)
	repo.setErr = errors.New("connection refused")

	err := f.svc.Ingest(context.Background(), domain.AvailabilityUpdate{SpotID: "1", Available: 10})
	assert.Error(t, err)
}

func TestAvailabilityService_FeedUpdateSurvivesRestart(t *testing.T) {
	repo := newStoreRepo()
	first := newAvailabilityFixture(t, repo)
	require.NoError(t, first.svc.Ingest(context.Background(), domain.AvailabilityUpdate{SpotID: "1", Available: 10}))

	// a restarted replica reloads its registry from the same store
	restarted := newAvailabilityFixture(t, repo)
	got, err := restarted.hub.Registry().Get("1")
	require.NoError(t, err)
	assert.Equal(t, 10, got.Available)
}

func TestAvailabilityService_PropagateWithoutAdapters(t *testing.T) {
	hub := newHub(t)
	svc := usecases.NewAvailabilityService(hub, nil, nil, nil)

	require.NoError(t, svc.Apply(context.Background(), domain.AvailabilityUpdate{SpotID: "4", Available: 0}))
	svc.Propagate(context.Background(), domain.AvailabilityUpdate{SpotID: "4", Available: 0})

	got, _ := hub.Registry().Get("4")
	assert.Equal(t, 0, got.Available)
}
