// Package websocket streams committed registry events to browser clients.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"carbon-scribe/blue-carbon-registry/internal/notifications"
	"carbon-scribe/blue-carbon-registry/internal/registry"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
	sendBuffer     = 256
)

var (
	_ registry.Publisher = (*Manager)(nil)

	// ErrClosed is returned once the manager has shut down
	ErrClosed = errors.New("websocket manager closed")
	// ErrBroadcastFull is returned when the hub cannot keep up
	ErrBroadcastFull = errors.New("broadcast channel full")
)

// Manager handles WebSocket connections and event broadcast
type Manager struct {
	connections map[string]*Connection
	mu          sync.RWMutex
	hub         *Hub
	upgrader    websocket.Upgrader
	logger      *zap.Logger
	closeOnce   sync.Once
}

// Connection represents a WebSocket client connection. A connection with no
// project ids receives every event.
type Connection struct {
	ID          string
	ProjectIDs  []string
	Conn        *websocket.Conn
	Send        chan notifications.Message
	ConnectedAt time.Time
	UserAgent   string
	IPAddress   string
	mu          sync.Mutex
}

func (c *Connection) subscribed(projectID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.ProjectIDs) == 0 || projectID == "" {
		return true
	}
	for _, pid := range c.ProjectIDs {
		if pid == projectID {
			return true
		}
	}
	return false
}

func (c *Connection) setProjects(ids []string) {
	c.mu.Lock()
	c.ProjectIDs = ids
	c.mu.Unlock()
}

// Hub owns the connection set and is the only writer to Send channels
type Hub struct {
	connections map[*Connection]bool
	broadcast   chan notifications.Message
	register    chan *Connection
	unregister  chan *Connection
	stop        chan struct{}
	done        chan struct{}
}

// NewManager creates a new WebSocket manager and starts its hub
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	hub := &Hub{
		connections: make(map[*Connection]bool),
		broadcast:   make(chan notifications.Message, sendBuffer),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}

	m := &Manager{
		connections: make(map[string]*Connection),
		hub:         hub,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	go hub.run(logger)
	return m
}

// Handle is the gin handler for GET /ws. Clients may narrow the stream with
// ?project_id=a,b and later replace it with a presence message.
func (m *Manager) Handle(c *gin.Context) {
	if _, err := m.HandleConnection(c.Writer, c.Request); err != nil {
		m.logger.Warn("WebSocket connection rejected", zap.Error(err))
	}
}

// HandleConnection upgrades the request and starts the connection pumps
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request) (*Connection, error) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		ProjectIDs:  splitProjects(r.URL.Query().Get("project_id")),
		Conn:        conn,
		Send:        make(chan notifications.Message, sendBuffer),
		ConnectedAt: time.Now().UTC(),
		UserAgent:   r.Header.Get("User-Agent"),
		IPAddress:   r.RemoteAddr,
	}

	// queued before the hub knows the connection, so it is always the first frame
	connection.Send <- notifications.Message{
		Type:      notifications.MessageTypeStatus,
		Data:      map[string]any{"status": "connected", "connection_id": connection.ID},
		Timestamp: time.Now().UTC(),
		Channel:   "private",
	}

	select {
	case m.hub.register <- connection:
	case <-m.hub.done:
		conn.Close()
		return nil, ErrClosed
	}

	m.mu.Lock()
	m.connections[connection.ID] = connection
	m.mu.Unlock()

	go m.readPump(connection)
	go m.writePump(connection)

	return connection, nil
}

func splitProjects(raw string) []string {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// readPump handles presence updates until the client goes away
func (m *Manager) readPump(conn *Connection) {
	defer func() {
		select {
		case m.hub.unregister <- conn:
		case <-m.hub.done:
		}
		m.mu.Lock()
		delete(m.connections, conn.ID)
		m.mu.Unlock()
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(maxMessageSize)
	conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg notifications.Message
		if err := conn.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Debug("WebSocket read failed", zap.String("connection_id", conn.ID), zap.Error(err))
			}
			return
		}
		if msg.Type == notifications.MessageTypePresence {
			conn.setProjects(projectIDsFrom(msg.Data))
		}
	}
}

func projectIDsFrom(data map[string]any) []string {
	raw, ok := data["project_ids"].([]any)
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(raw))
	for _, id := range raw {
		if s, ok := id.(string); ok && s != "" {
			ids = append(ids, s)
		}
	}
	return ids
}

// writePump pumps messages from the hub to the WebSocket connection
func (m *Manager) writePump(conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// run runs the hub in its own goroutine
func (h *Hub) run(logger *zap.Logger) {
	defer close(h.done)
	for {
		select {
		case conn := <-h.register:
			h.connections[conn] = true
			logger.Debug("Connection registered", zap.String("connection_id", conn.ID))

		case conn := <-h.unregister:
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
				close(conn.Send)
				logger.Debug("Connection unregistered", zap.String("connection_id", conn.ID))
			}

		case message := <-h.broadcast:
			for conn := range h.connections {
				if !conn.subscribed(message.ProjectID) {
					continue
				}
				select {
				case conn.Send <- message:
				default:
					// slow consumer
					close(conn.Send)
					delete(h.connections, conn)
				}
			}

		case <-h.stop:
			for conn := range h.connections {
				close(conn.Send)
				delete(h.connections, conn)
			}
			return
		}
	}
}

// Publish broadcasts a committed event to subscribed connections
func (m *Manager) Publish(_ context.Context, event registry.Event) error {
	select {
	case <-m.hub.done:
		return ErrClosed
	default:
	}
	select {
	case m.hub.broadcast <- notifications.MessageFromEvent(event):
		return nil
	default:
		return ErrBroadcastFull
	}
}

// GetConnectionCount returns the number of active connections
func (m *Manager) GetConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// Close stops the hub; every connection receives a close frame
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.hub.stop)
		<-m.hub.done
	})
}
