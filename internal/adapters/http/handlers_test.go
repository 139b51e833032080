package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"

	handler "github.com/samirrijal/parksmart/internal/adapters/http"
	"github.com/samirrijal/parksmart/internal/core/domain"
	"github.com/samirrijal/parksmart/internal/core/usecases"
)

// ---- Fakes ----

type recordingPublisher struct {
	mu      sync.Mutex
	updates []domain.AvailabilityUpdate
	err     error
}

func (p *recordingPublisher) PublishAvailability(ctx context.Context, u domain.AvailabilityUpdate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, u)
	return p.err
}

type recordingRepo struct {
	mu      sync.Mutex
	updates []domain.AvailabilityUpdate
}

func (r *recordingRepo) UpsertBatch(ctx context.Context, s []domain.ParkingSpot) error { return nil }
func (r *recordingRepo) List(ctx context.Context) ([]domain.ParkingSpot, error)         { return nil, nil }
func (r *recordingRepo) SetAvailability(ctx context.Context, u domain.AvailabilityUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
	return nil
}

func (r *recordingRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.updates)
}

// ---- Test helpers ----

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

func makeDeps(t *testing.T, opts ...func(*handler.Dependencies)) *handler.Dependencies {
	t.Helper()
	catalog := usecases.NewCatalogService(nil, nil)
	hub := usecases.NewSessionHub(usecases.NewSpotRegistry(), catalog, usecases.RankOptions{})
	if err := hub.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(hub.Shutdown)

	d := &handler.Dependencies{Hub: hub, Catalog: catalog}
	d.Availability = usecases.NewAvailabilityService(hub, nil, catalog, nil)
	for _, o := range opts {
		o(d)
	}
	return d
}

// withStore routes availability changes to repo and pub.
func withStore(repo *recordingRepo, pub *recordingPublisher) func(*handler.Dependencies) {
	return func(d *handler.Dependencies) {
		d.Availability = usecases.NewAvailabilityService(d.Hub, repo, d.Catalog, pub)
	}
}

func readBody(t *testing.T, body io.Reader) []byte {
	t.Helper()
	b, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return b
}

func decodeError(t *testing.T, body io.Reader) handler.APIError {
	t.Helper()
	var apiErr handler.APIError
	if err := json.NewDecoder(body).Decode(&apiErr); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return apiErr
}

// ---- Spot handler tests ----

func TestListSpots_Success(t *testing.T) {
	app := setupApp(makeDeps(t))

	req := httptest.NewRequest("GET", "/v1/spots", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data       []domain.ParkingSpot `json:"data"`
		Pagination struct {
			Total int `json:"total"`
		} `json:"pagination"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Pagination.Total != 4 {
		t.Errorf("expected total 4, got %d", result.Pagination.Total)
	}
	if len(result.Data) != 4 || result.Data[0].Name != "Kukatpally Parking Zone" {
		t.Errorf("unexpected spots: %+v", result.Data)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "public, max-age=5" {
		t.Errorf("expected short cache lifetime, got %q", cc)
	}
}

func TestListSpots_Pagination(t *testing.T) {
	app := setupApp(makeDeps(t))

	req := httptest.NewRequest("GET", "/v1/spots?offset=2&limit=1", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data       []domain.ParkingSpot `json:"data"`
		Pagination struct {
			Offset int `json:"offset"`
			Limit  int `json:"limit"`
			Total  int `json:"total"`
		} `json:"pagination"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if len(result.Data) != 1 || result.Data[0].ID != "3" {
		t.Errorf("expected spot 3 on the page, got %+v", result.Data)
	}
	if result.Pagination.Offset != 2 || result.Pagination.Limit != 1 {
		t.Errorf("unexpected pagination %+v", result.Pagination)
	}
	if link := resp.Header.Get("Link"); !strings.Contains(link, `rel="next"`) || !strings.Contains(link, `rel="prev"`) {
		t.Errorf("expected next and prev links, got %q", link)
	}
}

func TestGetSpot_Success(t *testing.T) {
	app := setupApp(makeDeps(t))

	req := httptest.NewRequest("GET", "/v1/spots/4", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var spot domain.ParkingSpot
	json.NewDecoder(resp.Body).Decode(&spot)
	if spot.Name != "Metro Station Parking" || spot.PricePerHour.Amount != 2000 {
		t.Errorf("unexpected spot %+v", spot)
	}
}

func TestGetSpot_NotFound(t *testing.T) {
	app := setupApp(makeDeps(t))

	req := httptest.NewRequest("GET", "/v1/spots/404", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	apiErr := decodeError(t, resp.Body)
	if apiErr.Code != "unknown_spot" {
		t.Errorf("expected unknown_spot, got %q", apiErr.Code)
	}
	if rid := resp.Header.Get(fiber.HeaderXRequestID); rid == "" || apiErr.RequestID != rid {
		t.Errorf("expected request_id %q in error body, got %q", rid, apiErr.RequestID)
	}
}

func TestETag_NotModified(t *testing.T) {
	app := setupApp(makeDeps(t))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/spots/1", nil), -1)
	etag := resp.Header.Get("ETag")
	if etag == "" {
		t.Fatal("expected ETag header")
	}

	req := httptest.NewRequest("GET", "/v1/spots/1", nil)
	req.Header.Set("If-None-Match", etag)
	resp, _ = app.Test(req, -1)
	if resp.StatusCode != 304 {
		t.Fatalf("expected 304, got %d", resp.StatusCode)
	}
}

// ---- Nearby tests ----

func TestNearbySpots_Success(t *testing.T) {
	app := setupApp(makeDeps(t))

	req := httptest.NewRequest("GET", "/v1/spots/nearby?lat=17.4947&lon=78.3996", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, readBody(t, resp.Body))
	}

	var result handler.NearbyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, r := range result.Results {
		ids = append(ids, r.Spot.ID)
	}
	if strings.Join(ids, ",") != "1,4,2,3" {
		t.Errorf("expected order 1,4,2,3, got %v", ids)
	}
	if result.Results[0].DistanceMeters != 0 {
		t.Errorf("expected 0m to the nearest spot, got %f", result.Results[0].DistanceMeters)
	}
}

func TestNearbySpots_Options(t *testing.T) {
	deps := makeDeps(t)
	if err := deps.Hub.Registry().UpdateAvailability("1", 0); err != nil {
		t.Fatal(err)
	}
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/spots/nearby?lat=17.4947&lon=78.3996&exclude_full=true&limit=2", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result handler.NearbyResponse
	json.NewDecoder(resp.Body).Decode(&result)
	if len(result.Results) != 2 || result.Results[0].Spot.ID != "4" || result.Results[1].Spot.ID != "2" {
		t.Errorf("unexpected results %+v", result.Results)
	}
}

func TestNearbySpots_ZeroCoordinatesAllowed(t *testing.T) {
	app := setupApp(makeDeps(t))

	req := httptest.NewRequest("GET", "/v1/spots/nearby?lat=0&lon=0", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 for the null island, got %d", resp.StatusCode)
	}
}

func TestNearbySpots_BadParams(t *testing.T) {
	app := setupApp(makeDeps(t))

	cases := []string{
		"/v1/spots/nearby",
		"/v1/spots/nearby?lat=17.49",
		"/v1/spots/nearby?lat=91&lon=0",
		"/v1/spots/nearby?lat=0&lon=181",
		"/v1/spots/nearby?lat=0&lon=0&radius=-1",
		"/v1/spots/nearby?lat=0&lon=0&radius=60000",
		"/v1/spots/nearby?lat=0&lon=0&limit=-1",
	}
	for _, url := range cases {
		resp, _ := app.Test(httptest.NewRequest("GET", url, nil), -1)
		if resp.StatusCode != 400 {
			t.Errorf("%s: expected 400, got %d", url, resp.StatusCode)
		}
	}
}

// ---- Availability tests ----

func putAvailability(t *testing.T, app *fiber.App, id, body string) *putResult {
	t.Helper()
	req := httptest.NewRequest("PUT", "/v1/spots/"+id+"/availability", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	return &putResult{status: resp.StatusCode, body: readBody(t, resp.Body)}
}

type putResult struct {
	status int
	body   []byte
}

func TestUpdateAvailability_Success(t *testing.T) {
	pub := &recordingPublisher{}
	repo := &recordingRepo{}
	deps := makeDeps(t, withStore(repo, pub))
	app := setupApp(deps)

	resp := putAvailability(t, app, "2", `{"available":0}`)
	if resp.status != 200 {
		t.Fatalf("expected 200, got %d: %s", resp.status, resp.body)
	}

	var spot domain.ParkingSpot
	json.Unmarshal(resp.body, &spot)
	if spot.Available != 0 {
		t.Errorf("expected 0 available, got %d", spot.Available)
	}
	if got, _ := deps.Hub.Registry().Get("2"); got.Available != 0 {
		t.Errorf("registry not updated: %+v", got)
	}
	if len(pub.updates) != 1 || pub.updates[0].SpotID != "2" {
		t.Errorf("expected one published update, got %+v", pub.updates)
	}
	if len(repo.updates) != 1 {
		t.Errorf("expected one persisted update, got %+v", repo.updates)
	}
}

func TestUpdateAvailability_PublishFailureStillApplies(t *testing.T) {
	deps := makeDeps(t, withStore(&recordingRepo{}, &recordingPublisher{err: errors.New("broker down")}))
	app := setupApp(deps)

	resp := putAvailability(t, app, "1", `{"available":7}`)
	if resp.status != 200 {
		t.Fatalf("expected 200, got %d", resp.status)
	}
	if got, _ := deps.Hub.Registry().Get("1"); got.Available != 7 {
		t.Errorf("expected 7 available, got %d", got.Available)
	}
}

func TestUpdateAvailability_Errors(t *testing.T) {
	deps := makeDeps(t)
	app := setupApp(deps)

	cases := []struct {
		id, body string
		status   int
		code     string
	}{
		{"1", `{"available":61}`, 422, "out_of_range"},
		{"missing", `{"available":1}`, 404, "unknown_spot"},
		{"1", `{}`, 400, "bad_request"},
		{"1", `{"available":-1}`, 400, "bad_request"},
		{"1", `not json`, 400, "bad_request"},
	}
	for _, tc := range cases {
		resp := putAvailability(t, app, tc.id, tc.body)
		if resp.status != tc.status {
			t.Errorf("%s %s: expected %d, got %d", tc.id, tc.body, tc.status, resp.status)
			continue
		}
		var apiErr handler.APIError
		json.Unmarshal(resp.body, &apiErr)
		if apiErr.Code != tc.code {
			t.Errorf("%s %s: expected code %s, got %s", tc.id, tc.body, tc.code, apiErr.Code)
		}
	}

	if got, _ := deps.Hub.Registry().Get("1"); got.Available != 25 {
		t.Errorf("rejected updates must not change the registry, got %d", got.Available)
	}
}

// ---- Status, health and GraphQL ----

func TestFeedStatus(t *testing.T) {
	deps := makeDeps(t)
	deps.Hub.Registry().UpdateAvailability("3", 0)
	app := setupApp(deps)

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/feeds/status", nil), -1)
	var st handler.FeedStatus
	json.NewDecoder(resp.Body).Decode(&st)
	if st.Spots != 4 || st.FullSpots != 1 || st.FreeCapacity != 25+15+35 {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestHealth(t *testing.T) {
	app := setupApp(makeDeps(t))
	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/health", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestReady_RegistryLoaded(t *testing.T) {
	app := setupApp(makeDeps(t))
	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/ready", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, readBody(t, resp.Body))
	}
}

func TestReady_EmptyRegistry(t *testing.T) {
	hub := usecases.NewSessionHub(usecases.NewSpotRegistry(), usecases.NewCatalogService(nil, nil), usecases.RankOptions{})
	app := setupApp(&handler.Dependencies{Hub: hub})

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/ready", nil), -1)
	if resp.StatusCode != 503 {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestGraphQL_Nearby(t *testing.T) {
	app := setupApp(makeDeps(t))

	body := `{"query":"{ nearby(lat: 17.4937, lon: 78.3923, limit: 2) { distance_meters full spot { id name price_per_hour { display } } } }"}`
	req := httptest.NewRequest("POST", "/graphql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data struct {
			Nearby []struct {
				Distance float64 `json:"distance_meters"`
				Spot     struct {
					ID    string `json:"id"`
					Price struct {
						Display string `json:"display"`
					} `json:"price_per_hour"`
				} `json:"spot"`
			} `json:"nearby"`
		} `json:"data"`
		Errors []interface{} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if len(result.Errors) > 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if len(result.Data.Nearby) != 2 {
		t.Fatalf("expected 2 results, got %d", len(result.Data.Nearby))
	}
	if first := result.Data.Nearby[0]; first.Spot.ID != "3" || first.Spot.Price.Display != "INR 50.00" {
		t.Errorf("unexpected first result %+v", first)
	}
}

func TestGraphQL_Spots(t *testing.T) {
	app := setupApp(makeDeps(t))

	body := `{"query":"{ spots { id available full } }"}`
	req := httptest.NewRequest("POST", "/graphql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)

	var result struct {
		Data struct {
			Spots []struct {
				ID        string `json:"id"`
				Available int    `json:"available"`
				Full      bool   `json:"full"`
			} `json:"spots"`
		} `json:"data"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if len(result.Data.Spots) != 4 {
		t.Fatalf("expected 4 spots, got %d", len(result.Data.Spots))
	}
	if result.Data.Spots[0].Available != 25 || result.Data.Spots[0].Full {
		t.Errorf("unexpected first spot %+v", result.Data.Spots[0])
	}
}

func TestWebSocket_RequiresUpgrade(t *testing.T) {
	app := setupApp(makeDeps(t))
	resp, _ := app.Test(httptest.NewRequest("GET", "/ws", nil), -1)
	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Fatalf("expected 426, got %d", resp.StatusCode)
	}
}
