package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/planning-poker/go/internal/models"
	"github.com/mcdev12/planning-poker/go/internal/room"
	"github.com/rs/zerolog/log"
)

// ConnectionManager manages WebSocket connections subscribed to room snapshots
type ConnectionManager struct {
	app   *room.App
	hub   *Hub
	clock clockwork.Clock

	connections map[string]*Connection
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID      string
	UserID  string
	Room    string
	Conn    *websocket.Conn
	Manager *ConnectionManager

	sub       *Subscription
	done      chan struct{}
	closeOnce sync.Once

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// Frame is the envelope written to WebSocket clients.
type Frame struct {
	Event string              `json:"event"`
	Data  models.SessionState `json:"data"`
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     75 * time.Second,
		PingInterval:    DefaultHeartbeatInterval,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager. A read
// timeout shorter than two ping intervals is replaced by 2.5 intervals so
// an idle client's pong always lands before its deadline.
func NewConnectionManager(app *room.App, hub *Hub, clock clockwork.Clock, config ConnectionConfig) *ConnectionManager {
	if config.PingInterval <= 0 {
		config.PingInterval = DefaultHeartbeatInterval
	}
	if config.ReadTimeout < 2*config.PingInterval {
		config.ReadTimeout = config.PingInterval * 5 / 2
	}
	return &ConnectionManager{
		app:         app,
		hub:         hub,
		clock:       clock,
		connections: make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

// ServeHTTP upgrades the request and streams the room's snapshots as frames.
func (cm *ConnectionManager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	code := roomCode(r, cm.app.DefaultRoom())
	userID := r.URL.Query().Get("userId")

	// Reject unknown rooms before the upgrade so the client gets a JSON error.
	state, err := cm.app.State(r.Context(), code)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := cm.UpgradeConnection(w, r, code, userID, state); err != nil {
		log.Warn().Err(err).Str("room", code).Msg("websocket connection rejected")
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and sends initial as the first frame
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, code, userID string, initial models.SessionState) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		Room:        code,
		Conn:        conn,
		Manager:     cm,
		sub:         cm.hub.Subscribe(code, userID),
		done:        make(chan struct{}),
		ConnectedAt: cm.clock.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump(initial)
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", userID).
		Str("room", code).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.connections[conn.ID] = conn
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.connections, conn.ID)
}

// CloseAll closes every open connection, used on shutdown
func (cm *ConnectionManager) CloseAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for _, c := range cm.connections {
		conns = append(conns, c)
	}
	cm.mu.RUnlock()

	for _, c := range conns {
		c.close()
	}
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	roomCounts := make(map[string]int)
	for _, c := range cm.connections {
		roomCounts[c.Room]++
	}

	return map[string]interface{}{
		"total_connections": len(cm.connections),
		"room_connections":  roomCounts,
	}
}

// close tears the connection down exactly once
func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.Manager.hub.Unsubscribe(c.sub)
		c.Manager.unregisterConnection(c)
		c.Conn.Close()

		log.Info().
			Str("connection_id", c.ID).
			Str("user_id", c.UserID).
			Str("room", c.Room).
			Msg("connection closed")
	})
}

// writePump is the only writer on the connection
func (c *Connection) writePump(initial models.SessionState) {
	cfg := c.Manager.config
	ticker := c.Manager.clock.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	if err := c.writeState(initial); err != nil {
		return
	}

	for {
		select {
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case state := <-c.sub.C():
			if err := c.writeState(state); err != nil {
				return
			}

		case <-ticker.Chan():
			c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
			c.touch()
		}
	}
}

func (c *Connection) writeState(state models.SessionState) error {
	data, err := json.Marshal(Frame{Event: eventUpdate, Data: state})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal frame")
		return err
	}

	c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
	if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Msg("failed to write message to WebSocket")
		return err
	}
	return nil
}

func (c *Connection) touch() {
	if c.UserID == "" {
		return
	}
	if err := c.Manager.app.Touch(context.Background(), c.Room, c.UserID); err != nil {
		log.Debug().Err(err).Str("connection_id", c.ID).Msg("heartbeat touch failed")
	}
}

// readPump only watches for closure; clients send nothing meaningful
func (c *Connection) readPump() {
	defer c.close()

	cfg := c.Manager.config
	c.Conn.SetReadLimit(cfg.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	}
}
