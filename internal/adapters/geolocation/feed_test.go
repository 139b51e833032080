package geolocation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/parksmart/internal/core/domain"
)

type recorder struct {
	mu     sync.Mutex
	fixes  []domain.UserPosition
	errs   []error
	notify chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan struct{}, 64)}
}

func (r *recorder) callback(pos domain.UserPosition, err error) {
	r.mu.Lock()
	if err != nil {
		r.errs = append(r.errs, err)
	} else {
		r.fixes = append(r.fixes, pos)
	}
	r.mu.Unlock()
	r.notify <- struct{}{}
}

func (r *recorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fixes), len(r.errs)
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.notify:
	case <-time.After(time.Second):
		t.Fatal("callback was not invoked")
	}
}

func TestFeedSource_PushDeliversWhileTracking(t *testing.T) {
	src := NewFeedSource(time.Minute, nil)
	rec := newRecorder()
	src.StartTracking(rec.callback)
	defer src.StopTracking()

	err := src.Push(Fix{Lat: 17.4947, Lon: 78.3996, Accuracy: 12})
	require.NoError(t, err)

	fixes, errs := rec.counts()
	assert.Equal(t, 1, fixes)
	assert.Equal(t, 0, errs)
	assert.Equal(t, 17.4947, rec.fixes[0].Point.Lat)
	assert.Equal(t, 12.0, rec.fixes[0].AccuracyMeters)
	assert.False(t, rec.fixes[0].CapturedAt.IsZero())
}

func TestFeedSource_PushWithoutTrackingIsDropped(t *testing.T) {
	src := NewFeedSource(time.Minute, nil)
	assert.NoError(t, src.Push(Fix{Lat: 1, Lon: 1}))
}

func TestFeedSource_StopTrackingIsIdempotent(t *testing.T) {
	src := NewFeedSource(time.Minute, nil)
	src.StopTracking()

	rec := newRecorder()
	src.StartTracking(rec.callback)
	src.StopTracking()
	src.StopTracking()

	_ = src.Push(Fix{Lat: 1, Lon: 1})
	src.PushFailure(domain.ErrPermissionDenied)

	fixes, errs := rec.counts()
	assert.Zero(t, fixes)
	assert.Zero(t, errs)
}

func TestFeedSource_InvalidFixReportsUnavailable(t *testing.T) {
	src := NewFeedSource(time.Minute, nil)
	rec := newRecorder()
	src.StartTracking(rec.callback)
	defer src.StopTracking()

	err := src.Push(Fix{Lat: 95, Lon: 0})
	assert.ErrorIs(t, err, domain.ErrPositionUnavailable)

	err = src.Push(Fix{Lat: 0, Lon: 0, Accuracy: -1})
	assert.ErrorIs(t, err, domain.ErrPositionUnavailable)

	_, errs := rec.counts()
	assert.Equal(t, 2, errs)
}

func TestFeedSource_FailuresDoNotEndTheStream(t *testing.T) {
	src := NewFeedSource(time.Minute, nil)
	rec := newRecorder()
	src.StartTracking(rec.callback)
	defer src.StopTracking()

	src.PushFailure(domain.ErrPermissionDenied)
	src.PushFailure(domain.ErrPositionUnavailable)
	require.NoError(t, src.Push(Fix{Lat: 10, Lon: 10}))

	fixes, errs := rec.counts()
	assert.Equal(t, 1, fixes)
	require.Equal(t, 2, errs)
	assert.ErrorIs(t, rec.errs[0], domain.ErrPermissionDenied)
	assert.ErrorIs(t, rec.errs[1], domain.ErrPositionUnavailable)
}

func TestFeedSource_WatchdogReportsTimeoutRepeatedly(t *testing.T) {
	src := NewFeedSource(20*time.Millisecond, nil)
	rec := newRecorder()
	src.StartTracking(rec.callback)
	defer src.StopTracking()

	rec.wait(t)
	rec.wait(t)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.GreaterOrEqual(t, len(rec.errs), 2)
	for _, err := range rec.errs {
		assert.ErrorIs(t, err, domain.ErrTimeout)
	}
}

func TestFeedSource_RequestSingleFix(t *testing.T) {
	var src *FeedSource
	located := 0
	src = NewFeedSource(time.Second, func(ctx context.Context) error {
		located++
		go func() { _ = src.Push(Fix{Lat: 17.4957, Lon: 78.4008, Accuracy: 5}) }()
		return nil
	})

	pos, err := src.RequestSingleFix(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, located)
	assert.Equal(t, domain.GeoPoint{Lat: 17.4957, Lon: 78.4008}, pos.Point)
}

func TestFeedSource_RequestSingleFixFailure(t *testing.T) {
	var src *FeedSource
	src = NewFeedSource(time.Second, func(ctx context.Context) error {
		go src.PushFailure(domain.ErrPermissionDenied)
		return nil
	})

	_, err := src.RequestSingleFix(context.Background())
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestFeedSource_RequestSingleFixTimeout(t *testing.T) {
	src := NewFeedSource(20*time.Millisecond, nil)
	_, err := src.RequestSingleFix(context.Background())
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

func TestFeedSource_RequestSingleFixLocatorError(t *testing.T) {
	src := NewFeedSource(time.Second, func(ctx context.Context) error {
		return errors.New("socket closed")
	})
	_, err := src.RequestSingleFix(context.Background())
	assert.ErrorIs(t, err, domain.ErrPositionUnavailable)
}

func TestFeedSource_SingleFixIsNotAlsoTracked(t *testing.T) {
	var src *FeedSource
	src = NewFeedSource(time.Minute, func(ctx context.Context) error {
		go func() { _ = src.Push(Fix{Lat: 17.4957, Lon: 78.4008, Accuracy: 5}) }()
		return nil
	})
	rec := newRecorder()
	src.StartTracking(rec.callback)
	defer src.StopTracking()

	_, err := src.RequestSingleFix(context.Background())
	require.NoError(t, err)

	select {
	case <-rec.notify:
		t.Fatal("requested reading was also delivered to the tracking callback")
	case <-time.After(50 * time.Millisecond):
	}

	// the next unrequested reading goes to tracking again
	require.NoError(t, src.Push(Fix{Lat: 17.49, Lon: 78.39, Accuracy: 5}))
	rec.wait(t)
	fixes, errs := rec.counts()
	assert.Equal(t, 1, fixes)
	assert.Equal(t, 0, errs)
}
