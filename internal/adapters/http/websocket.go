package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/parksmart/internal/adapters/geolocation"
	"github.com/samirrijal/parksmart/internal/core/domain"
	"github.com/samirrijal/parksmart/internal/core/usecases"
	"github.com/samirrijal/parksmart/internal/pkg/metrics"
)

// wsMessage is sent from the client. Action selects which of the other fields apply.
//
//	{"action":"start"}
//	{"action":"stop"}
//	{"action":"recenter"}
//	{"action":"fix","lat":17.49,"lon":78.39,"accuracy":12}
//	{"action":"failure","code":"permission_denied"}
//	{"action":"options","max_results":5,"exclude_full":true}
//	{"action":"availability","spot_id":"1","available":0}
type wsMessage struct {
	Action string `json:"action"`

	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Accuracy float64 `json:"accuracy"`

	Code string `json:"code"`

	MaxResults  int     `json:"max_results"`
	ExcludeFull bool    `json:"exclude_full"`
	MaxDistance float64 `json:"max_distance_meters"`

	SpotID    string `json:"spot_id"`
	Available int    `json:"available"`
}

// wsFrame is sent to the client.
type wsFrame struct {
	Type      string              `json:"type"` // "session" | "state" | "locate" | "error"
	SessionID string              `json:"session_id,omitempty"`
	State     *domain.EngineState `json:"state,omitempty"`
	Error     *domain.Failure     `json:"error,omitempty"`
}

// WebSocketHandler returns a handler that runs one ranking session per
// connection. The client is the device: it pushes fixes and failures, answers
// "locate" frames with a fix, and receives every published state.
func WebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		log := slog.Default().With("remote_addr", c.RemoteAddr().String())
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		var mu sync.Mutex
		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		source := geolocation.NewFeedSource(deps.FixTimeout, func(ctx context.Context) error {
			return writeJSON(wsFrame{Type: "locate"})
		})
		engine := deps.Hub.Open(source)
		defer deps.Hub.Close(engine.ID())
		log = log.With("session_id", engine.ID())
		log.Info("ws session opened")

		// The engine publishes from its loop; only the latest state is kept for a
		// slow client so the loop never waits on the network.
		pending := make(chan domain.EngineState, 1)
		unsubscribe := engine.Subscribe(func(st domain.EngineState) {
			for {
				select {
				case pending <- st:
					return
				default:
				}
				select {
				case <-pending:
				default:
				}
			}
		})
		defer unsubscribe()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case st := <-pending:
					if err := writeJSON(wsFrame{Type: "state", State: &st}); err != nil {
						return
					}
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}()

		initial := engine.State()
		_ = writeJSON(wsFrame{Type: "session", SessionID: engine.ID(), State: &initial})

		sendError := func(err error) {
			_ = writeJSON(wsFrame{Type: "error", Error: domain.FailureFrom(err)})
		}

		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(raw, &m); err != nil {
				_ = writeJSON(wsFrame{Type: "error", Error: &domain.Failure{Code: "bad_request", Message: "invalid JSON"}})
				continue
			}

			switch m.Action {
			case "start":
				if err := engine.Start(); err != nil {
					sendError(err)
				}
			case "stop":
				if err := engine.Stop(); err != nil {
					sendError(err)
				}
			case "recenter":
				// the fix arrives through this read loop, so wait elsewhere
				wg.Add(1)
				go func() {
					defer wg.Done()
					rctx, rcancel := context.WithTimeout(ctx, deps.FixTimeout+time.Second)
					defer rcancel()
					if err := engine.Recenter(rctx); errors.Is(err, domain.ErrNotTracking) || errors.Is(err, domain.ErrEngineClosed) {
						sendError(err)
					}
				}()
			case "fix":
				if err := source.Push(geolocation.Fix{Lat: m.Lat, Lon: m.Lon, Accuracy: m.Accuracy, CapturedAt: time.Now().UTC()}); err != nil {
					sendError(err)
				}
			case "failure":
				source.PushFailure(domain.PositionErrorFromCode(m.Code))
			case "options":
				opts := usecases.RankOptions{MaxResults: m.MaxResults, ExcludeFull: m.ExcludeFull, MaxDistanceMeters: m.MaxDistance}
				if err := engine.SetOptions(opts); err != nil {
					_ = writeJSON(wsFrame{Type: "error", Error: &domain.Failure{Code: "bad_request", Message: err.Error()}})
				}
			case "availability":
				// failures are published on the state stream
				if err := engine.UpdateAvailability(m.SpotID, m.Available); err == nil {
					deps.Availability.Propagate(ctx, domain.AvailabilityUpdate{
						SpotID:     m.SpotID,
						Available:  m.Available,
						ObservedAt: time.Now().UTC(),
					})
				}
			default:
				_ = writeJSON(wsFrame{Type: "error", Error: &domain.Failure{Code: "bad_request", Message: "unknown action: " + m.Action}})
			}
		}

		cancel()
		_ = engine.Stop()
		wg.Wait()
		log.Info("ws session closed")
	}
}
