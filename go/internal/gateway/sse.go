package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/planning-poker/go/internal/models"
	"github.com/mcdev12/planning-poker/go/internal/room"
	"github.com/rs/zerolog/log"
)

const (
	eventUpdate = "update"
	eventPing   = "ping"
)

// DefaultHeartbeatInterval keeps idle streams alive through proxies.
const DefaultHeartbeatInterval = 30 * time.Second

// EventStreamHandler serves a room's snapshots as Server-Sent Events.
type EventStreamHandler struct {
	app       *room.App
	hub       *Hub
	clock     clockwork.Clock
	heartbeat time.Duration
}

// NewEventStreamHandler creates an SSE handler.
func NewEventStreamHandler(app *room.App, hub *Hub, clock clockwork.Clock, heartbeat time.Duration) *EventStreamHandler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}
	return &EventStreamHandler{
		app:       app,
		hub:       hub,
		clock:     clock,
		heartbeat: heartbeat,
	}
}

// ServeHTTP streams the current snapshot, then every later one, with a
// ping event on each heartbeat until the client goes away.
func (h *EventStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := roomCode(r, h.app.DefaultRoom())
	userID := r.URL.Query().Get("userId")

	rc := http.NewResponseController(w)

	// Subscribe before reading the state so no mutation falls in between.
	sub := h.hub.Subscribe(code, userID)
	defer h.hub.Unsubscribe(sub)

	state, err := h.app.State(ctx, code)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeState(w, rc, state); err != nil {
		log.Debug().Err(err).Str("room", code).Msg("failed to write initial state")
		return
	}

	log.Info().
		Str("subscription_id", sub.ID).
		Str("room", code).
		Str("user_id", userID).
		Msg("event stream opened")

	ticker := h.clock.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().
				Str("subscription_id", sub.ID).
				Str("room", code).
				Msg("event stream closed")
			return
		case state := <-sub.C():
			if err := writeState(w, rc, state); err != nil {
				log.Debug().Err(err).Str("subscription_id", sub.ID).Msg("failed to write update")
				return
			}
		case <-ticker.Chan():
			if err := writeEvent(w, rc, eventPing, []byte("ping")); err != nil {
				log.Debug().Err(err).Str("subscription_id", sub.ID).Msg("failed to write ping")
				return
			}
			h.touch(ctx, code, userID)
		}
	}
}

func (h *EventStreamHandler) touch(ctx context.Context, code, userID string) {
	if userID == "" {
		return
	}
	if err := h.app.Touch(ctx, code, userID); err != nil {
		log.Debug().Err(err).Str("room", code).Str("user_id", userID).Msg("heartbeat touch failed")
	}
}

func writeState(w http.ResponseWriter, rc *http.ResponseController, state models.SessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	return writeEvent(w, rc, eventUpdate, data)
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, event string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return rc.Flush()
}
