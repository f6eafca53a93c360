package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/planning-poker/go/internal/models"
	"github.com/mcdev12/planning-poker/go/internal/room"
	"github.com/rs/zerolog/log"
)

// Service is the planning poker HTTP gateway: JSON endpoints, SSE and WebSocket streams
type Service struct {
	app               *room.App
	hub               *Hub
	sweeper           *room.Sweeper
	events            *EventStreamHandler
	connectionManager *ConnectionManager
	team              models.Team
	clock             clockwork.Clock
	startedAt         time.Time
}

// Config holds configuration for the gateway service
type Config struct {
	HeartbeatInterval time.Duration
	ConnectionConfig  ConnectionConfig
	Team              models.Team
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: DefaultHeartbeatInterval,
		ConnectionConfig:  DefaultConnectionConfig(),
	}
}

// NewService creates a new gateway service. hub must already be registered
// as a publisher on app. sweeper may be nil.
func NewService(config Config, app *room.App, hub *Hub, sweeper *room.Sweeper, clock clockwork.Clock) *Service {
	connCfg := config.ConnectionConfig
	if config.HeartbeatInterval > 0 {
		connCfg.PingInterval = config.HeartbeatInterval
	}

	return &Service{
		app:               app,
		hub:               hub,
		sweeper:           sweeper,
		events:            NewEventStreamHandler(app, hub, clock, config.HeartbeatInterval),
		connectionManager: NewConnectionManager(app, hub, clock, connCfg),
		team:              config.Team,
		clock:             clock,
		startedAt:         clock.Now(),
	}
}

// Start runs background work until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Str("default_room", s.app.DefaultRoom()).Msg("starting planning poker gateway")

	if s.sweeper != nil {
		go s.sweeper.Run(ctx)
	}

	<-ctx.Done()

	log.Info().Msg("planning poker gateway shutting down")
	return s.Stop()
}

// Stop closes open WebSocket connections. SSE streams end with their requests.
func (s *Service) Stop() error {
	s.connectionManager.CloseAll()
	log.Info().Msg("planning poker gateway stopped")
	return nil
}

// RegisterRoutes registers every HTTP route on mux
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	for _, prefix := range []string{"", "/rooms/{code}"} {
		mux.Handle("GET "+prefix+"/events", s.events)
		mux.Handle("GET "+prefix+"/ws", s.connectionManager)
		mux.HandleFunc("GET "+prefix+"/state", s.HandleState)
		mux.HandleFunc("POST "+prefix+"/vote", s.HandleVote)
		mux.HandleFunc("POST "+prefix+"/init-votes", s.HandleInitVotes)
		mux.HandleFunc("POST "+prefix+"/reveal", s.HandleReveal)
		mux.HandleFunc("POST "+prefix+"/reset", s.HandleReset)
		mux.HandleFunc("POST "+prefix+"/leave", s.HandleLeave)
	}

	mux.HandleFunc("POST /rooms", s.HandleCreateRoom)
	mux.HandleFunc("GET /team", s.HandleTeam)
	mux.HandleFunc("GET /scale", s.HandleScale)
	mux.HandleFunc("GET /health", s.HandleHealth)
	mux.HandleFunc("GET /info", s.HandleInfo)

	log.Info().Msg("gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	hubStats := s.hub.Stats()
	stats["service"] = "planning-poker"
	stats["status"] = "running"
	stats["subscribers"] = hubStats.Subscribers
	stats["room_subscribers"] = hubStats.Rooms
	stats["uptime_seconds"] = int64(s.clock.Since(s.startedAt) / time.Second)
	return stats
}
