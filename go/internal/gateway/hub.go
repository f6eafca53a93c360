package gateway

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/planning-poker/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Subscription is a single listener on a room's snapshots. Its channel
// holds at most one pending snapshot: a slow reader skips intermediate
// states but always receives the latest one. The channel is never closed.
type Subscription struct {
	ID     string
	Room   string
	UserID string

	ch chan models.SessionState
	mu sync.Mutex
}

// C returns the channel snapshots are delivered on.
func (s *Subscription) C() <-chan models.SessionState {
	return s.ch
}

// deliver replaces any undelivered snapshot with state without blocking.
func (s *Subscription) deliver(state models.SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		select {
		case s.ch <- state:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// Hub fans room snapshots out to subscribers.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*Subscription
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[string]*Subscription)}
}

// Subscribe registers a new listener for code.
func (h *Hub) Subscribe(code, userID string) *Subscription {
	sub := &Subscription{
		ID:     uuid.New().String(),
		Room:   code,
		UserID: userID,
		ch:     make(chan models.SessionState, 1),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[code] == nil {
		h.rooms[code] = make(map[string]*Subscription)
	}
	h.rooms[code][sub.ID] = sub

	log.Debug().
		Str("subscription_id", sub.ID).
		Str("room", code).
		Str("user_id", userID).
		Int("subscribers", len(h.rooms[code])).
		Msg("subscriber registered")
	return sub
}

// Unsubscribe removes sub and reports whether it was still registered.
// Calling it more than once is harmless.
func (h *Hub) Unsubscribe(sub *Subscription) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.rooms[sub.Room]
	if !ok {
		return false
	}
	if _, ok := subs[sub.ID]; !ok {
		return false
	}
	delete(subs, sub.ID)
	if len(subs) == 0 {
		delete(h.rooms, sub.Room)
	}

	log.Debug().
		Str("subscription_id", sub.ID).
		Str("room", sub.Room).
		Int("subscribers", len(subs)).
		Msg("subscriber removed")
	return true
}

// Publish delivers state to every subscriber of its room.
func (h *Hub) Publish(ctx context.Context, state models.SessionState) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.rooms[state.Code] {
		sub.deliver(state)
	}
}

// HubStats is a point-in-time count of subscribers.
type HubStats struct {
	Subscribers int            `json:"subscribers"`
	Rooms       map[string]int `json:"rooms"`
}

// Stats returns the number of subscribers per room.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := HubStats{Rooms: make(map[string]int, len(h.rooms))}
	for code, subs := range h.rooms {
		stats.Rooms[code] = len(subs)
		stats.Subscribers += len(subs)
	}
	return stats
}
