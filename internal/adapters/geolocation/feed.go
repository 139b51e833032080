// Package geolocation adapts a device-reported location stream into a
// ports.PositionSource. The device (the user's browser) owns the actual
// geolocation capability; the presentation session forwards whatever it reports
// through Push and PushFailure.
package geolocation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/samirrijal/parksmart/internal/core/domain"
	"github.com/samirrijal/parksmart/internal/core/ports"
)

// DefaultFixTimeout bounds the wait for a fix before a timeout failure is reported.
const DefaultFixTimeout = 10 * time.Second

// Locator asks the device for a fresh one-shot reading. The reading itself
// arrives later through Push or PushFailure.
type Locator func(ctx context.Context) error

// Fix is a raw reading as reported by the device.
type Fix struct {
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	Accuracy   float64   `json:"accuracy"`
	CapturedAt time.Time `json:"captured_at,omitempty"`
}

type result struct {
	pos domain.UserPosition
	err error
}

// FeedSource implements ports.PositionSource on top of pushed device readings.
// While tracking, a watchdog reports domain.ErrTimeout whenever no reading
// arrives within the timeout, then re-arms.
type FeedSource struct {
	timeout time.Duration
	locate  Locator
	now     func() time.Time

	mu      sync.Mutex
	cb      ports.PositionCallback
	gen     uint64
	timer   *time.Timer
	armSeq  uint64
	waiters map[int]chan result
	nextID  int

	// held while a callback runs so StopTracking can wait for it
	delivering sync.Mutex
}

var _ ports.PositionSource = (*FeedSource)(nil)

// NewFeedSource creates a source. A zero timeout uses DefaultFixTimeout; locate
// may be nil when the device cannot be asked for one-shot readings.
func NewFeedSource(timeout time.Duration, locate Locator) *FeedSource {
	if timeout <= 0 {
		timeout = DefaultFixTimeout
	}
	return &FeedSource{
		timeout: timeout,
		locate:  locate,
		now:     time.Now,
		waiters: make(map[int]chan result),
	}
}

// StartTracking begins delivering readings to cb. Calling it again replaces the
// callback.
func (s *FeedSource) StartTracking(cb ports.PositionCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.cb = cb
	s.armLocked()
}

// StopTracking ends delivery. It waits for a callback already in progress, so
// it must not be called from inside the callback.
func (s *FeedSource) StopTracking() {
	s.mu.Lock()
	s.gen++
	s.cb = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	// wait out a callback that is already running
	s.delivering.Lock()
	s.delivering.Unlock()
}

// RequestSingleFix asks the device for a reading and waits for the next one.
func (s *FeedSource) RequestSingleFix(ctx context.Context) (domain.UserPosition, error) {
	ch := make(chan result, 1)
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.waiters[id] = ch
	s.mu.Unlock()
	defer s.dropWaiter(id)

	if s.locate != nil {
		if err := s.locate(ctx); err != nil {
			return domain.UserPosition{}, fmt.Errorf("%w: locate: %v", domain.ErrPositionUnavailable, err)
		}
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		return r.pos, r.err
	case <-timer.C:
		return domain.UserPosition{}, domain.ErrTimeout
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.UserPosition{}, fmt.Errorf("%w: %v", domain.ErrTimeout, ctx.Err())
		}
		return domain.UserPosition{}, ctx.Err()
	}
}

// Push forwards a device reading. Readings with out-of-range coordinates or a
// negative accuracy are delivered as domain.ErrPositionUnavailable, which is
// also returned.
func (s *FeedSource) Push(fix Fix) error {
	pos, err := s.toPosition(fix)
	s.dispatch(pos, err)
	return err
}

// PushFailure forwards a device failure; err should be one of the domain
// position errors.
func (s *FeedSource) PushFailure(err error) {
	if err == nil {
		return
	}
	s.dispatch(domain.UserPosition{}, err)
}

func (s *FeedSource) toPosition(fix Fix) (domain.UserPosition, error) {
	point := domain.GeoPoint{Lat: fix.Lat, Lon: fix.Lon}
	if !point.Valid() {
		return domain.UserPosition{}, fmt.Errorf("%w: coordinates %s out of range", domain.ErrPositionUnavailable, point)
	}
	if fix.Accuracy < 0 || math.IsNaN(fix.Accuracy) {
		return domain.UserPosition{}, fmt.Errorf("%w: invalid accuracy %f", domain.ErrPositionUnavailable, fix.Accuracy)
	}
	captured := fix.CapturedAt
	if captured.IsZero() {
		captured = s.now()
	}
	return domain.UserPosition{Point: point, AccuracyMeters: fix.Accuracy, CapturedAt: captured}, nil
}

func (s *FeedSource) dispatch(pos domain.UserPosition, err error) {
	s.mu.Lock()
	gen := s.gen
	if s.cb != nil {
		s.armLocked()
	}
	waiters := make([]chan result, 0, len(s.waiters))
	for id, ch := range s.waiters {
		waiters = append(waiters, ch)
		delete(s.waiters, id)
	}
	s.mu.Unlock()

	// a reading requested through RequestSingleFix belongs to the requester only
	if len(waiters) > 0 {
		for _, ch := range waiters {
			ch <- result{pos: pos, err: err}
		}
		return
	}
	s.emit(gen, pos, err)
}

func (s *FeedSource) emit(gen uint64, pos domain.UserPosition, err error) {
	s.delivering.Lock()
	defer s.delivering.Unlock()

	s.mu.Lock()
	cb := s.cb
	current := s.gen
	s.mu.Unlock()

	if cb == nil || current != gen {
		return
	}
	cb(pos, err)
}

// armLocked restarts the watchdog; s.mu must be held.
func (s *FeedSource) armLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.armSeq++
	gen, seq := s.gen, s.armSeq
	s.timer = time.AfterFunc(s.timeout, func() { s.fireTimeout(gen, seq) })
}

func (s *FeedSource) fireTimeout(gen, seq uint64) {
	s.mu.Lock()
	if s.cb == nil || s.gen != gen || s.armSeq != seq {
		s.mu.Unlock()
		return
	}
	s.armLocked()
	s.mu.Unlock()

	s.emit(gen, domain.UserPosition{}, domain.ErrTimeout)
}

func (s *FeedSource) dropWaiter(id int) {
	s.mu.Lock()
	delete(s.waiters, id)
	s.mu.Unlock()
}
