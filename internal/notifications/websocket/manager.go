package websocket

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"propertyhub/owner-portal/owner-portal-backend/internal/auth"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 64
)

// Message is the envelope written to clients.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Connection represents a WebSocket client connection
type Connection struct {
	ID     string
	UserID uuid.UUID
	Role   auth.Role
	Conn   *websocket.Conn
	Send   chan Message
}

type delivery struct {
	message Message
	users   map[uuid.UUID]bool
	role    auth.Role
}

// Manager owns every live connection. Only the run loop touches the
// connection set and closes Send channels.
type Manager struct {
	register   chan *Connection
	unregister chan *Connection
	deliver    chan delivery
	count      chan chan int
	upgrader   websocket.Upgrader
	logger     *zap.Logger
	done       chan struct{}
}

// NewManager creates a manager; call Run to start it.
func NewManager(allowedOrigins []string, logger *zap.Logger) *Manager {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}

	return &Manager{
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		deliver:    make(chan delivery, 256),
		count:      make(chan chan int),
		logger:     logger,
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(origins) == 0 || origins[origin] || origins["*"]
			},
		},
	}
}

// Run processes registrations and deliveries until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)
	connections := make(map[*Connection]bool)

	for {
		select {
		case conn := <-m.register:
			connections[conn] = true
			m.logger.Debug("Connection registered",
				zap.String("connection_id", conn.ID),
				zap.String("user_id", conn.UserID.String()))

		case conn := <-m.unregister:
			if connections[conn] {
				delete(connections, conn)
				close(conn.Send)
			}

		case d := <-m.deliver:
			for conn := range connections {
				if !d.users[conn.UserID] && (d.role == "" || conn.Role != d.role) {
					continue
				}
				select {
				case conn.Send <- d.message:
				default:
					m.logger.Warn("Dropping slow connection", zap.String("connection_id", conn.ID))
					delete(connections, conn)
					close(conn.Send)
				}
			}

		case reply := <-m.count:
			reply <- len(connections)

		case <-ctx.Done():
			for conn := range connections {
				delete(connections, conn)
				close(conn.Send)
			}
			return
		}
	}
}

// HandleConnection upgrades the request and serves the connection for actor.
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request, actor auth.Actor) error {
	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	conn := &Connection{
		ID:     uuid.New().String(),
		UserID: actor.UserID,
		Role:   actor.Role,
		Conn:   ws,
		Send:   make(chan Message, sendBuffer),
	}

	select {
	case m.register <- conn:
	case <-m.done:
		ws.Close()
		return fmt.Errorf("websocket manager stopped")
	}

	go m.writePump(conn)
	go m.readPump(conn)
	return nil
}

// readPump only drains control frames; clients never send data.
func (m *Manager) readPump(conn *Connection) {
	defer func() {
		select {
		case m.unregister <- conn:
		case <-m.done:
		}
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(512)
	conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.Conn.SetPongHandler(func(string) error {
		return conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Debug("Websocket read error", zap.Error(err))
			}
			return
		}
	}
}

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

// PushToUsers queues event for every connection of userIDs.
func (m *Manager) PushToUsers(event string, payload interface{}, userIDs ...uuid.UUID) {
	if len(userIDs) == 0 {
		return
	}
	users := make(map[uuid.UUID]bool, len(userIDs))
	for _, id := range userIDs {
		users[id] = true
	}
	m.enqueue(delivery{message: newMessage(event, payload), users: users})
}

// PushToRole queues event for every connection whose actor has role.
func (m *Manager) PushToRole(role auth.Role, event string, payload interface{}) {
	m.enqueue(delivery{message: newMessage(event, payload), role: role})
}

func (m *Manager) enqueue(d delivery) {
	select {
	case m.deliver <- d:
	default:
		m.logger.Warn("Push queue full, dropping event", zap.String("event", d.message.Type))
	}
}

// ConnectionCount returns the number of live connections, or 0 once stopped.
func (m *Manager) ConnectionCount() int {
	reply := make(chan int, 1)
	select {
	case m.count <- reply:
		return <-reply
	case <-m.done:
		return 0
	}
}

func newMessage(event string, payload interface{}) Message {
	return Message{Type: event, Data: payload, Timestamp: time.Now().UTC()}
}
