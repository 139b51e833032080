// Package feedclient polls an external parking operator endpoint for live
// availability counts. Every request goes through a circuit breaker so a failing
// operator backend is not hammered by the poll loop.
package feedclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/samirrijal/parksmart/internal/core/domain"
	"github.com/samirrijal/parksmart/internal/pkg/metrics"
)

// ErrUnavailable is returned while the breaker is open or half-open and saturated.
var ErrUnavailable = errors.New("availability feed unavailable")

const maxBodyBytes = 4 << 20

// Settings configures the breaker around the feed endpoint.
type Settings struct {
	Name string
	// ConsecutiveFailures trips the breaker once exceeded.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

// DefaultSettings returns the breaker settings used by the feeder.
func DefaultSettings() Settings {
	return Settings{
		Name:                "availability-feed",
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
	}
}

// Client fetches availability snapshots from a JSON endpoint.
type Client struct {
	http    *http.Client
	url     string
	breaker *gobreaker.CircuitBreaker[[]domain.AvailabilityUpdate]
}

// New creates a Client for url.
func New(httpClient *http.Client, url string, s Settings) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	cb := gobreaker.NewCircuitBreaker[[]domain.AvailabilityUpdate](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > s.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("feed breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &Client{http: httpClient, url: url, breaker: cb}
}

// State reports the breaker state.
func (c *Client) State() gobreaker.State { return c.breaker.State() }

// Fetch returns the current availability of every spot the operator reports.
// The endpoint answers with a JSON array of {"spot_id","available"} objects.
func (c *Client) Fetch(ctx context.Context) ([]domain.AvailabilityUpdate, error) {
	start := time.Now()
	updates, err := c.breaker.Execute(func() ([]domain.AvailabilityUpdate, error) {
		return c.fetch(ctx)
	})
	metrics.FeedPollDuration.WithLabelValues("http").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.FeedPollErrors.WithLabelValues("http").Inc()
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, err
	}
	return updates, nil
}

func (c *Client) fetch(ctx context.Context) ([]domain.AvailabilityUpdate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned %d", resp.StatusCode)
	}

	var updates []domain.AvailabilityUpdate
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&updates); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	now := time.Now().UTC()
	for i := range updates {
		if updates[i].ObservedAt.IsZero() {
			updates[i].ObservedAt = now
		}
	}
	return updates, nil
}

// Differ remembers the last count published per spot so only changes are
// republished. Counts are recorded with Mark once they were published, so a
// failed publish is retried on the next poll.
type Differ struct {
	last map[string]int
}

// NewDiffer creates an empty Differ.
func NewDiffer() *Differ { return &Differ{last: make(map[string]int)} }

// Changed returns the updates whose count differs from the last marked one.
func (d *Differ) Changed(updates []domain.AvailabilityUpdate) []domain.AvailabilityUpdate {
	var out []domain.AvailabilityUpdate
	for _, u := range updates {
		if prev, ok := d.last[u.SpotID]; ok && prev == u.Available {
			continue
		}
		out = append(out, u)
	}
	return out
}

// Mark records u as published.
func (d *Differ) Mark(u domain.AvailabilityUpdate) {
	d.last[u.SpotID] = u.Available
}
