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
)

// ConnectionManager owns every open socket and the room membership used for
// broadcasts. It implements quiz.Emitter: all outbound traffic goes through a
// single queue so each connection sees events in emission order.
type ConnectionManager struct {
	conns map[string]*Connection
	rooms map[string]map[string]*Connection
	mu    sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	outbox     chan outbound
	dispatcher *Dispatcher
}

// Connection is one client socket
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	userID  atomic.Int64
	limiter *rateLimiter
	rooms   map[string]struct{} // guarded by Manager.mu
	closed  bool                // guarded by Manager.mu

	ConnectedAt time.Time
}

// UserID is the identity bound by auth:hello, the upgrade request or a join.
func (c *Connection) UserID() int64 { return c.userID.Load() }

func (c *Connection) bindUser(id int64) { c.userID.Store(id) }

// ConnectionConfig holds configuration for socket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	OutboxSize      int

	// RateLimit inbound frames per RateInterval, per connection
	RateLimit    int
	RateInterval time.Duration

	CheckOrigin func(r *http.Request) bool
	Clock       clockwork.Clock
}

// DefaultConnectionConfig returns default socket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    54 * time.Second,
		MaxMessageSize:  8 * 1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		OutboxSize:      4096,
		RateLimit:       20,
		RateInterval:    5 * time.Second,
		CheckOrigin:     NewOriginPolicy(nil).Check,
		Clock:           clockwork.NewRealClock(),
	}
}

type outboundKind int

const (
	toRoom outboundKind = iota
	toConn
	closeConn
)

type outbound struct {
	kind   outboundKind
	target string
	event  string
	data   []byte
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	if config.CheckOrigin == nil {
		config.CheckOrigin = NewOriginPolicy(nil).Check
	}
	if config.OutboxSize <= 0 {
		config.OutboxSize = 4096
	}
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = 256
	}

	return &ConnectionManager{
		conns: make(map[string]*Connection),
		rooms: make(map[string]map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
		outbox: make(chan outbound, config.OutboxSize),
	}
}

// SetDispatcher wires inbound frame handling. It must be called before Start.
func (cm *ConnectionManager) SetDispatcher(d *Dispatcher) {
	cm.dispatcher = d
}

// Start processes the outbound queue until ctx is done, then closes every socket.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			cm.CloseAll()
			log.Info().Msg("connection manager shutting down")
			return
		case msg := <-cm.outbox:
			cm.deliver(msg)
		}
	}
}

// UpgradeConnection upgrades an HTTP request to a socket bound to userID (0 when anonymous).
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID int64) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	c := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		limiter:     newRateLimiter(cm.config.Clock, cm.config.RateLimit, cm.config.RateInterval),
		rooms:       make(map[string]struct{}),
		ConnectedAt: cm.config.Clock.Now(),
	}
	c.bindUser(userID)

	cm.mu.Lock()
	cm.conns[c.ID] = c
	cm.mu.Unlock()

	go c.writePump()
	go c.readPump()

	log.Info().
		Str("connection_id", c.ID).
		Int64("user_id", userID).
		Msg("socket connection established")

	return c, nil
}

// Broadcast queues event for every connection attached to code.
func (cm *ConnectionManager) Broadcast(code, event string, payload any) {
	data, err := cm.encodeEvent(code, event, payload)
	if err != nil {
		log.Error().Err(err).Str("room_code", code).Str("event_type", event).Msg("failed to encode event")
		return
	}
	cm.enqueue(outbound{kind: toRoom, target: code, event: event, data: data})
}

// Send queues event for a single connection.
func (cm *ConnectionManager) Send(connID, event string, payload any) {
	data, err := cm.encodeEvent("", event, payload)
	if err != nil {
		log.Error().Err(err).Str("connection_id", connID).Str("event_type", event).Msg("failed to encode event")
		return
	}
	cm.enqueue(outbound{kind: toConn, target: connID, event: event, data: data})
}

// Disconnect closes connID after everything already queued for it is written.
func (cm *ConnectionManager) Disconnect(connID string) {
	cm.enqueue(outbound{kind: closeConn, target: connID})
}

// Attach subscribes connID to code's broadcasts.
func (cm *ConnectionManager) Attach(connID, code string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	c, ok := cm.conns[connID]
	if !ok || c.closed {
		return
	}
	members := cm.rooms[code]
	if members == nil {
		members = make(map[string]*Connection)
		cm.rooms[code] = members
	}
	members[connID] = c
	c.rooms[code] = struct{}{}
}

// Detach unsubscribes connID from code's broadcasts.
func (cm *ConnectionManager) Detach(connID, code string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if c, ok := cm.conns[connID]; ok {
		delete(c.rooms, code)
	}
	cm.removeMember(code, connID)
}

func (cm *ConnectionManager) removeMember(code, connID string) {
	members, ok := cm.rooms[code]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(cm.rooms, code)
	}
}

func (cm *ConnectionManager) ack(c *Connection, ackID string, data ack) {
	if ackID == "" {
		return
	}
	raw, err := json.Marshal(AckFrame{Type: ackType, AckID: ackID, Data: data})
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to encode ack")
		return
	}
	cm.enqueue(outbound{kind: toConn, target: c.ID, event: ackType, data: raw})
}

func (cm *ConnectionManager) encodeEvent(code, event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(RoomEvent{
		ID:        uuid.New().String(),
		Type:      event,
		RoomCode:  code,
		Timestamp: cm.config.Clock.Now().UTC(),
		Data:      data,
	})
}

func (cm *ConnectionManager) enqueue(msg outbound) {
	select {
	case cm.outbox <- msg:
	default:
		log.Warn().
			Str("target", msg.target).
			Str("event_type", msg.event).
			Msg("outbound queue full, dropping message")
	}
}

// deliver runs on the Start goroutine only.
func (cm *ConnectionManager) deliver(msg outbound) {
	if msg.kind == closeConn {
		cm.mu.Lock()
		c, ok := cm.conns[msg.target]
		if ok {
			cm.unregisterLocked(c)
		}
		cm.mu.Unlock()
		if ok {
			log.Debug().Str("connection_id", c.ID).Msg("connection closed by server")
		}
		return
	}

	var slow []*Connection
	targets := 0

	cm.mu.RLock()
	switch msg.kind {
	case toRoom:
		for _, c := range cm.rooms[msg.target] {
			targets++
			if !c.trySend(msg.data) {
				slow = append(slow, c)
			}
		}
	case toConn:
		if c, ok := cm.conns[msg.target]; ok {
			targets++
			if !c.trySend(msg.data) {
				slow = append(slow, c)
			}
		}
	}
	cm.mu.RUnlock()

	for _, c := range slow {
		log.Warn().
			Str("connection_id", c.ID).
			Int64("user_id", c.UserID()).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(c)
	}

	log.Debug().
		Str("event_type", msg.event).
		Str("target", msg.target).
		Int("connections", targets).
		Msg("event delivered")
}

// trySend must be called with Manager.mu held.
func (c *Connection) trySend(data []byte) bool {
	if c.closed {
		return true
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (cm *ConnectionManager) unregisterConnection(c *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.unregisterLocked(c)
}

func (cm *ConnectionManager) unregisterLocked(c *Connection) {
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
	delete(cm.conns, c.ID)
	for code := range c.rooms {
		cm.removeMember(code, c.ID)
	}

	log.Info().
		Str("connection_id", c.ID).
		Int64("user_id", c.UserID()).
		Msg("connection unregistered")
}

// CloseAll unregisters every connection; their write pumps send a close frame.
func (cm *ConnectionManager) CloseAll() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for _, c := range cm.conns {
		cm.unregisterLocked(c)
	}
}

// ConnectionStats is the body of GET /ws/stats
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveRooms      int            `json:"active_rooms"`
	RoomConnections  map[string]int `json:"room_connections"`
	QueuedMessages   int            `json:"queued_messages"`
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	counts := make(map[string]int, len(cm.rooms))
	for code, members := range cm.rooms {
		counts[code] = len(members)
	}
	return ConnectionStats{
		TotalConnections: len(cm.conns),
		ActiveRooms:      len(cm.rooms),
		RoomConnections:  counts,
		QueuedMessages:   len(cm.outbox),
	}
}

func (c *Connection) writePump() {
	ticker := c.Manager.config.Clock.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to socket")
				c.Manager.unregisterConnection(c)
				return
			}

		case <-ticker.Chan():
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				c.Manager.unregisterConnection(c)
				return
			}
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
		if d := c.Manager.dispatcher; d != nil {
			d.connectionClosed(c)
		}
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected socket close")
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))

		if d := c.Manager.dispatcher; d != nil {
			d.handle(c, message)
		}
	}
}
