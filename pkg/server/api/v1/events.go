package v1

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/framecast/framecast/pkg/event"
	"github.com/framecast/framecast/pkg/server/api"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsReadLimit  = 512
	wsBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// CORS middleware already allows any origin for the API
	CheckOrigin: func(*http.Request) bool { return true },
}

// ParseEventNames validates the comma-separated events query parameter.
// Empty input selects every event.
func ParseEventNames(raw string) ([]event.Name, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	known := make(map[event.Name]struct{}, len(event.Names))
	for _, n := range event.Names {
		known[n] = struct{}{}
	}
	var out []event.Name
	for _, part := range strings.Split(raw, ",") {
		n := event.Name(strings.TrimSpace(part))
		if _, ok := known[n]; !ok {
			return nil, &ValidationError{Field: "events", Reason: "unknown event " + string(n)}
		}
		out = append(out, n)
	}
	return out, nil
}

// EventsHandler handles GET /api/v1/events
//
// Upgrades to a websocket and forwards job lifecycle events as JSON text
// frames ({"event":..,"seq":..,"time":..,"job":{..}}) until the client goes
// away or the server shuts down.
//
// Query parameters:
//   - job: only forward events of this job id
//   - events: comma-separated event names (default: all)
//
// Client messages are ignored; the connection is kept alive with pings.
func EventsHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Events == nil {
			api.WriteJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "event bus is not configured")
			return
		}
		jobID := strings.TrimSpace(r.URL.Query().Get("job"))
		names, err := ParseEventNames(r.URL.Query().Get("events"))
		if err != nil {
			api.WriteError(w, r, err)
			return
		}

		out := make(chan event.Event, wsBuffer)
		done := make(chan struct{})
		sub := deps.Events.Subscribe(func(_ context.Context, e event.Event) {
			if jobID != "" && e.Job.ID != jobID {
				return
			}
			select {
			case out <- e:
			case <-done:
			}
		}, names...)
		defer sub.Unsubscribe()
		defer close(done)

		// subscribed first so that no event published after the handshake
		// is missed
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already answered the client
			log.Warn().Str("component", "api").Err(err).Msg("Websocket upgrade failed")
			return
		}
		defer func() { _ = conn.Close() }()

		readerDone := make(chan struct{})
		go readPump(conn, readerDone)

		logger := log.With().Str("component", "api").Str("remote", r.RemoteAddr).Str("job_filter", jobID).Logger()
		logger.Debug().Msg("Event stream opened")
		defer logger.Debug().Msg("Event stream closed")

		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case e := <-out:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(e); err != nil {
					logger.Debug().Err(err).Msg("Event write failed")
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			case <-readerDone:
				return
			case <-deps.Closing:
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
				return
			}
		}
	}
}

// readPump drains client frames so pongs and close frames are processed.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
