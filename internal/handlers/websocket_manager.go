package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Manager tracks one WebSocket connection per chat identifier and delivers
// outbound notifications. Delivery is best effort: a user without an open
// socket just misses the push, the state they would learn from it is always
// queryable.
type Manager struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]*websocket.Conn
}

func NewWebSocketManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[string]*websocket.Conn),
	}
}

func (m *Manager) Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return m.upgrader.Upgrade(w, r, nil)
}

// Attach registers the connection for an identifier, replacing and closing
// any previous one.
func (m *Manager) Attach(identifier string, conn *websocket.Conn) {
	m.mu.Lock()
	prev := m.conns[identifier]
	m.conns[identifier] = conn
	m.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
}

// Detach removes the connection if it is still the registered one.
func (m *Manager) Detach(identifier string, conn *websocket.Conn) {
	m.mu.Lock()
	if m.conns[identifier] == conn {
		delete(m.conns, identifier)
	}
	m.mu.Unlock()
}

// Send pushes a text notification to the identifier's socket. Implements the
// outbound messenger; failures are logged and dropped.
func (m *Manager) Send(ctx context.Context, identifier, text string) {
	m.mu.RLock()
	conn := m.conns[identifier]
	m.mu.RUnlock()

	if conn == nil {
		m.logger.Debug("No open socket for notification", "identifier", identifier)
		return
	}

	payload := map[string]string{"type": "notification", "text": text}
	if err := conn.WriteJSON(payload); err != nil {
		m.logger.Warn("Failed to push notification", "identifier", identifier, "error", err)
	}
}
