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
	"github.com/mcdev12/typerace/go/internal/race/events"
	"github.com/rs/zerolog/log"
)

// ConnectionManager owns the WebSocket connections. It keeps one connection per
// user for out-of-band delivery and the recipient list of every live session.
type ConnectionManager struct {
	// Latest connection per user
	users map[string]*Connection
	// Session group membership
	sessions map[string][]string
	mu       sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan BroadcastMessage
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID      string
	UserID  string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	handler MessageHandler
	// guarded by Manager.mu
	closed bool

	ConnectedAt time.Time
}

// MessageHandler receives client messages and the disconnect of a connection.
type MessageHandler interface {
	HandleMessage(c *Connection, raw []byte)
	HandleDisconnect(c *Connection)
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage is a queued delivery. Recipients are resolved when the
// message is enqueued so a session group torn down right after a broadcast
// still receives it.
type BroadcastMessage struct {
	Recipients []string
	// Conn targets one specific connection instead of users.
	Conn  *Connection
	Event events.Event
}

// ConnectionStats is served on /ws/stats.
type ConnectionStats struct {
	TotalConnections int `json:"total_connections"`
	ActiveSessions   int `json:"active_sessions"`
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  64 * 1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		users:    make(map[string]*Connection),
		sessions: make(map[string][]string),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// Start processes queued deliveries until ctx is done.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and registers it
// as the user's current connection.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID string, handler MessageHandler) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBuffer),
		Manager:     cm,
		handler:     handler,
		ConnectedAt: time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", userID).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if prev, ok := cm.users[conn.UserID]; ok {
		log.Debug().
			Str("user_id", conn.UserID).
			Str("previous_connection_id", prev.ID).
			Msg("replacing user connection")
	}
	cm.users[conn.UserID] = conn
}

// unregisterConnection reports whether this call closed the connection.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if conn.closed {
		return false
	}
	conn.closed = true
	close(conn.Send)
	if cm.users[conn.UserID] == conn {
		delete(cm.users, conn.UserID)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("user_id", conn.UserID).
		Msg("connection unregistered")
	return true
}

// closeConnection tears the connection down once and reports the disconnect.
func (cm *ConnectionManager) closeConnection(conn *Connection) {
	if !cm.unregisterConnection(conn) {
		return
	}
	conn.Conn.Close()
	if conn.handler != nil {
		conn.handler.HandleDisconnect(conn)
	}
}

// SendToUser delivers ev to the user's current connection, if any.
func (cm *ConnectionManager) SendToUser(userID string, ev events.Event) {
	cm.enqueue(BroadcastMessage{Recipients: []string{userID}, Event: ev})
}

// BroadcastToSession delivers ev to every member of the session except exceptUserID.
func (cm *ConnectionManager) BroadcastToSession(sessionID string, ev events.Event, exceptUserID string) {
	cm.mu.RLock()
	members := cm.sessions[sessionID]
	recipients := make([]string, 0, len(members))
	for _, userID := range members {
		if userID != exceptUserID {
			recipients = append(recipients, userID)
		}
	}
	cm.mu.RUnlock()

	if len(recipients) == 0 {
		return
	}
	cm.enqueue(BroadcastMessage{Recipients: recipients, Event: ev})
}

// JoinSession registers the session's recipient group.
func (cm *ConnectionManager) JoinSession(sessionID string, userIDs []string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.sessions[sessionID] = append([]string(nil), userIDs...)
}

// LeaveSession drops the session's recipient group.
func (cm *ConnectionManager) LeaveSession(sessionID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.sessions, sessionID)
}

// sendTo queues ev for one specific connection.
func (cm *ConnectionManager) sendTo(conn *Connection, ev events.Event) {
	cm.enqueue(BroadcastMessage{Conn: conn, Event: ev})
}

func (cm *ConnectionManager) enqueue(message BroadcastMessage) {
	select {
	case cm.broadcastCh <- message:
	default:
		log.Warn().
			Str("event_type", string(message.Event.Type)).
			Msg("broadcast channel full, dropping message")
	}
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	eventData, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	var slow []*Connection
	delivered := 0

	// Sends happen under the read lock so no connection closes mid-send.
	cm.mu.RLock()
	targets := make([]*Connection, 0, len(message.Recipients)+1)
	if message.Conn != nil {
		if !message.Conn.closed {
			targets = append(targets, message.Conn)
		}
	} else {
		for _, userID := range message.Recipients {
			if conn, ok := cm.users[userID]; ok {
				targets = append(targets, conn)
			}
		}
	}
	for _, conn := range targets {
		select {
		case conn.Send <- eventData:
			delivered++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("user_id", conn.UserID).
			Msg("connection send buffer full, closing connection")
		cm.closeConnection(conn)
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Int("connections", delivered).
		Msg("event delivered")
}

// IsOnline reports whether the user has a registered connection.
func (cm *ConnectionManager) IsOnline(userID string) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	_, ok := cm.users[userID]
	return ok
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return ConnectionStats{
		TotalConnections: len(cm.users),
		ActiveSessions:   len(cm.sessions),
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Manager.closeConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer c.Manager.closeConnection(c)

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		if c.handler != nil {
			c.handler.HandleMessage(c, message)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
