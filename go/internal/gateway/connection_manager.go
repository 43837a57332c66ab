package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/racetrack/go/internal/events"
	"github.com/mcdev12/racetrack/go/internal/models"
)

// MessageHandler receives connection lifecycle callbacks and client frames.
// Calls for one connection come from that connection's read goroutine.
type MessageHandler interface {
	OnConnect(conn *Connection)
	HandleMessage(conn *Connection, message []byte)
}

// ConnectionManager manages WebSocket connections. Every connection gets
// every broadcast; there is no per-role filtering.
type ConnectionManager struct {
	connections map[*Connection]bool
	mu          sync.RWMutex

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	// Connection configuration
	config ConnectionConfig

	// Broadcasts and direct replies share one queue so each connection sees
	// them in enqueue order.
	broadcastCh chan outbound

	handler MessageHandler
	clock   clockwork.Clock

	// dropped counts messages refused by a full queue. resyncing is set
	// while a forced disconnect of every client is in flight.
	dropped   atomic.Uint64
	resyncing atomic.Bool
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	// Connection metadata
	ConnectedAt time.Time
	LastPing    time.Time

	mu     sync.Mutex
	role   models.Role
	joined models.SessionID
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	QueueSize       int
	CheckOrigin     func(r *http.Request) bool
	Clock           clockwork.Clock
}

type outbound struct {
	target *Connection // nil means every connection
	event  string
	data   []byte
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		QueueSize:       1000,
		CheckOrigin: func(r *http.Request) bool {
			// Display screens are opened from arbitrary hosts on the track LAN
			return true
		},
		Clock: clockwork.NewRealClock(),
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, handler MessageHandler) *ConnectionManager {
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = 256
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 1000
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	return &ConnectionManager{
		connections: make(map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan outbound, config.QueueSize),
		handler:     handler,
		clock:       config.Clock,
	}
}

// SetHandler installs the message handler. Call before serving.
func (cm *ConnectionManager) SetHandler(handler MessageHandler) {
	cm.handler = handler
}

// Start begins processing outbound messages
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	now := cm.clock.Now()
	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: now,
		LastPing:    now,
	}

	cm.registerConnection(connection)

	if cm.handler != nil {
		cm.handler.OnConnect(connection)
	}

	// Start connection handlers
	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")

	return nil
}

// registerConnection adds a connection to the manager
func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.connections[conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
}

// unregisterConnection removes a connection from the manager
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.connections[conn]; exists {
		delete(cm.connections, conn)
		close(conn.Send)

		log.Info().
			Str("connection_id", conn.ID).
			Str("role", string(conn.Role())).
			Msg("connection unregistered")
	}
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range conns {
		cm.unregisterConnection(conn)
		if conn.Conn != nil {
			conn.Conn.Close()
		}
	}
}

// Publish broadcasts an engine event to every connection. It never blocks.
func (cm *ConnectionManager) Publish(ev *events.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("event", string(ev.Type)).Msg("failed to marshal event for broadcast")
		return
	}
	cm.enqueue(outbound{event: string(ev.Type), data: data})
}

// SendEvent delivers an event envelope to one connection.
func (cm *ConnectionManager) SendEvent(conn *Connection, typ events.Type, sessionID models.SessionID, payload any) {
	ev, err := events.New(typ, sessionID, cm.clock.Now(), payload)
	if err != nil {
		log.Error().Err(err).Str("connection_id", conn.ID).Msg("failed to build reply event")
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("connection_id", conn.ID).Msg("failed to marshal reply event")
		return
	}
	cm.enqueue(outbound{target: conn, event: string(typ), data: data})
}

// SendAck answers a command frame.
func (cm *ConnectionManager) SendAck(conn *Connection, ack int64, result AckResult) {
	data, err := json.Marshal(AckFrame{Event: eventAck, Ack: ack, Data: result})
	if err != nil {
		log.Error().Err(err).Str("connection_id", conn.ID).Msg("failed to marshal ack")
		return
	}
	cm.enqueue(outbound{target: conn, event: eventAck, data: data})
}

// enqueue never blocks. A client that misses a message has stale state, so
// a drop disconnects the affected clients; they get a fresh snapshot when
// they reconnect.
func (cm *ConnectionManager) enqueue(msg outbound) {
	select {
	case cm.broadcastCh <- msg:
		return
	default:
	}

	total := cm.dropped.Add(1)
	if msg.target != nil {
		log.Warn().
			Str("event", msg.event).
			Str("connection_id", msg.target.ID).
			Uint64("dropped_total", total).
			Msg("outbound queue full, disconnecting client")
		if msg.target.Conn != nil {
			msg.target.Conn.Close()
		}
		return
	}

	log.Warn().
		Str("event", msg.event).
		Uint64("dropped_total", total).
		Msg("outbound queue full, disconnecting all clients")
	if cm.resyncing.CompareAndSwap(false, true) {
		go func() {
			defer cm.resyncing.Store(false)
			cm.closeAll()
		}()
	}
}

// handleBroadcast processes an outbound message
func (cm *ConnectionManager) handleBroadcast(message outbound) {
	var slow []*Connection

	// Sends happen under the read lock so unregister cannot close a
	// channel mid-send.
	cm.mu.RLock()
	delivered := 0
	for conn := range cm.connections {
		if message.target != nil && conn != message.target {
			continue
		}
		select {
		case conn.Send <- message.data:
			delivered++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		// Connection is slow/dead, close it
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("event_type", message.event).
		Bool("direct", message.target != nil).
		Int("connections", delivered).
		Msg("event broadcasted")
}

// ConnectionStats summarizes live connections.
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	Roles            map[string]int `json:"roles"`
	Dropped          uint64         `json:"dropped"`
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		TotalConnections: len(cm.connections),
		Roles:            make(map[string]int),
		Dropped:          cm.dropped.Load(),
	}
	for conn := range cm.connections {
		role := string(conn.Role())
		if role == "" {
			role = "anonymous"
		}
		stats.Roles[role]++
	}
	return stats
}

// Role returns the role bound to the connection, if any.
func (c *Connection) Role() models.Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

// BindRole binds role once. Later calls fail and keep the first role.
func (c *Connection) BindRole(role models.Role) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.role != models.RoleNone {
		return false
	}
	c.role = role
	return true
}

// JoinSession records which session the client is following. It is
// informational only and does not filter broadcasts.
func (c *Connection) JoinSession(id models.SessionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined = id
}

// JoinedSession returns the session recorded by JoinSession.
func (c *Connection) JoinedSession() models.SessionID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
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
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.mu.Lock()
		c.LastPing = c.Manager.clock.Now()
		c.mu.Unlock()
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

		if c.Manager.handler != nil {
			c.Manager.handler.HandleMessage(c, message)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
