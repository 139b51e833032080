package usecases

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samirrijal/parksmart/internal/core/domain"
	"github.com/samirrijal/parksmart/internal/core/ports"
	"github.com/samirrijal/parksmart/internal/pkg/metrics"
)

// EngineConfig configures a single ranking session.
type EngineConfig struct {
	SessionID string
	Options   RankOptions
	// QueueSize bounds the update queue; producers block when it is full.
	QueueSize int
	Logger    *slog.Logger
}

// Engine binds a PositionSource to the ranker and publishes the latest ranked
// state to subscribers.
//
// All state below the queue is owned by the loop goroutine. Position fixes,
// failures, availability updates and lifecycle transitions are applied one at a
// time in arrival order. Subscribers are called synchronously from the loop and
// must not call back into the engine from inside the callback.
type Engine struct {
	source   ports.PositionSource
	registry *SpotRegistry
	log      *slog.Logger
	id       string

	queue    chan func()
	refresh  chan struct{}
	done     chan struct{}
	loopDone chan struct{}
	closing  sync.Once

	// serializes Start/Stop/Close so the source subscription matches the state
	lifecycle sync.Mutex

	// loop-owned
	status        domain.TrackingStatus
	gen           uint64
	position      *domain.UserPosition
	results       []domain.RankedResult
	posErr        error
	opts          RankOptions
	rankedVersion uint64
	seq           uint64

	last atomic.Pointer[domain.EngineState]

	smu    sync.Mutex
	subs   map[int]func(domain.EngineState)
	nextID int

	unsubscribeRegistry func()
}

// NewEngine creates an idle engine and starts its update loop.
func NewEngine(source ports.PositionSource, registry *SpotRegistry, cfg EngineConfig) *Engine {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.SessionID != "" {
		log = log.With("session_id", cfg.SessionID)
	}

	e := &Engine{
		source:   source,
		registry: registry,
		log:      log,
		id:       cfg.SessionID,
		queue:    make(chan func(), cfg.QueueSize),
		refresh:  make(chan struct{}, 1),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
		status:   domain.StatusIdle,
		opts:     cfg.Options,
		subs:     make(map[int]func(domain.EngineState)),
	}
	e.last.Store(&domain.EngineState{SessionID: cfg.SessionID, Status: domain.StatusIdle, Results: []domain.RankedResult{}})
	e.unsubscribeRegistry = registry.Subscribe(func(uint64) { e.Refresh() })

	go e.loop()
	return e
}

// ID returns the session id the engine was created with.
func (e *Engine) ID() string { return e.id }

// Subscribe registers fn for every published state. The returned func removes it.
func (e *Engine) Subscribe(fn func(domain.EngineState)) (unsubscribe func()) {
	e.smu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = fn
	e.smu.Unlock()

	return func() {
		e.smu.Lock()
		delete(e.subs, id)
		e.smu.Unlock()
	}
}

// State returns the most recently published state.
func (e *Engine) State() domain.EngineState {
	return *e.last.Load()
}

// Start moves an idle engine to AwaitingFix and begins tracking. Starting a
// tracking engine does nothing.
func (e *Engine) Start() error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	var gen uint64
	started := false
	err := e.call(func() error {
		if e.status.Tracking() {
			return nil
		}
		e.gen++
		gen = e.gen
		e.status = domain.StatusAwaitingFix
		e.position = nil
		e.posErr = nil
		e.results = []domain.RankedResult{}
		started = true
		e.publish(nil)
		return nil
	})
	if err != nil || !started {
		return err
	}

	e.source.StartTracking(func(pos domain.UserPosition, err error) {
		e.onPosition(gen, pos, err)
	})
	e.log.Info("tracking started")
	return nil
}

// Stop returns the engine to Idle and discards the current position. The
// registry is left untouched.
func (e *Engine) Stop() error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	e.source.StopTracking()
	return e.call(func() error {
		if !e.status.Tracking() {
			return nil
		}
		e.gen++
		e.status = domain.StatusIdle
		e.position = nil
		e.posErr = nil
		e.results = []domain.RankedResult{}
		e.publish(nil)
		e.log.Info("tracking stopped")
		return nil
	})
}

// Recenter requests a one-shot fix and applies it like a tracking update. It
// returns ErrNotTracking when the engine is idle, including when Stop was called
// while the request was outstanding; the late fix is then discarded. A fix
// failure is published and returned without changing state. Cancelling ctx
// abandons the request without publishing.
func (e *Engine) Recenter(ctx context.Context) error {
	var gen uint64
	if err := e.call(func() error {
		if !e.status.Tracking() {
			return domain.ErrNotTracking
		}
		gen = e.gen
		return nil
	}); err != nil {
		return err
	}

	pos, fixErr := e.source.RequestSingleFix(ctx)
	if errors.Is(fixErr, context.Canceled) {
		// the caller gave up; nothing to report to subscribers
		return fixErr
	}

	if err := e.call(func() error {
		if gen != e.gen || !e.status.Tracking() {
			metrics.LateFixesDiscarded.Inc()
			e.log.Debug("discarding recenter result from a stopped session")
			return domain.ErrNotTracking
		}
		e.applyPosition(pos, fixErr)
		return nil
	}); err != nil {
		return err
	}
	return fixErr
}

// UpdateAvailability applies a live availability change through this engine's
// queue and re-ranks. Registry errors are published and returned.
func (e *Engine) UpdateAvailability(id string, available int) error {
	return e.call(func() error {
		if err := e.registry.UpdateAvailability(id, available); err != nil {
			metrics.AvailabilityUpdates.WithLabelValues(domain.ErrorCode(err)).Inc()
			e.publish(err)
			return err
		}
		metrics.AvailabilityUpdates.WithLabelValues("ok").Inc()
		if e.status.Tracking() {
			e.recompute()
			e.publish(nil)
		}
		return nil
	})
}

// SetOptions replaces the ranking options and re-ranks.
func (e *Engine) SetOptions(opts RankOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	return e.call(func() error {
		e.opts = opts
		if e.status == domain.StatusActive {
			e.recompute()
			e.publish(nil)
		}
		return nil
	})
}

// Refresh schedules a re-rank after an external registry change. Multiple
// pending refreshes collapse into one; it never blocks.
func (e *Engine) Refresh() {
	select {
	case e.refresh <- struct{}{}:
	default:
	}
}

// Close stops tracking and terminates the update loop. Later calls return
// ErrEngineClosed.
func (e *Engine) Close() {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	e.closing.Do(func() {
		e.source.StopTracking()
		e.unsubscribeRegistry()
		close(e.done)
		<-e.loopDone
	})
}

func (e *Engine) loop() {
	defer close(e.loopDone)
	for {
		select {
		case fn := <-e.queue:
			fn()
		case <-e.refresh:
			if e.status == domain.StatusActive && e.registry.Version() != e.rankedVersion {
				e.recompute()
				e.publish(nil)
			}
		case <-e.done:
			return
		}
	}
}

func (e *Engine) enqueue(fn func()) error {
	select {
	case <-e.done:
		return domain.ErrEngineClosed
	default:
	}
	select {
	case e.queue <- fn:
		return nil
	case <-e.done:
		return domain.ErrEngineClosed
	}
}

// call runs fn on the loop goroutine and waits for its result.
func (e *Engine) call(fn func() error) error {
	reply := make(chan error, 1)
	if err := e.enqueue(func() { reply <- fn() }); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-e.loopDone:
		return domain.ErrEngineClosed
	}
}

func (e *Engine) onPosition(gen uint64, pos domain.UserPosition, err error) {
	_ = e.enqueue(func() {
		if gen != e.gen || !e.status.Tracking() {
			metrics.LateFixesDiscarded.Inc()
			return
		}
		e.applyPosition(pos, err)
	})
}

// applyPosition must run on the loop goroutine.
func (e *Engine) applyPosition(pos domain.UserPosition, err error) {
	if err != nil {
		metrics.PositionFailures.WithLabelValues(domain.ErrorCode(err)).Inc()
		e.log.Warn("position failure", "error", err)
		e.posErr = err
		e.publish(nil)
		return
	}
	p := pos
	e.position = &p
	e.posErr = nil
	e.status = domain.StatusActive
	e.recompute()
	e.publish(nil)
}

// recompute must run on the loop goroutine.
func (e *Engine) recompute() {
	spots, version := e.registry.Snapshot()
	e.rankedVersion = version
	if e.position == nil {
		e.results = []domain.RankedResult{}
		return
	}

	start := time.Now()
	results, err := Rank(e.position, spots, e.opts)
	metrics.RankingDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		// options are validated on the way in, so only a missing position can fail
		e.log.Error("ranking failed", "error", err)
		e.results = []domain.RankedResult{}
		return
	}
	metrics.RankingsComputed.Inc()
	e.results = results
}

// publish must run on the loop goroutine. transient is reported with this state
// only; position failures persist until the next successful fix.
func (e *Engine) publish(transient error) {
	e.seq++
	failure := e.posErr
	if transient != nil {
		failure = transient
	}

	results := make([]domain.RankedResult, len(e.results))
	copy(results, e.results)
	st := domain.EngineState{
		SessionID: e.id,
		Status:    e.status,
		Results:   results,
		Error:     domain.FailureFrom(failure),
		Seq:       e.seq,
	}
	if e.position != nil {
		p := *e.position
		st.Position = &p
	}
	e.last.Store(&st)

	e.smu.Lock()
	fns := make([]func(domain.EngineState), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.smu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}
