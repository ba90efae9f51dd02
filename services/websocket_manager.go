package services

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"crm-backend/models"
)

// WebSocket errors
var (
	ErrConnectionNotFound   = errors.New("connection not found")
	ErrConnectionBufferFull = errors.New("connection buffer full")
)

// WebSocketManager manages WebSocket connections
type WebSocketManager struct {
	// Map of company ID to map of user ID to connections for that user.
	// A user may hold several sockets (the single-session invariant caps
	// browsers, not tabs).
	connections map[string]map[string][]*WebSocketConnection
	mu          sync.RWMutex
	broadcast   chan BroadcastMessage
}

// WebSocketConnection represents a single WebSocket connection
type WebSocketConnection struct {
	Conn      *websocket.Conn
	ConnID    string
	CompanyID string
	UserID    string
	UserEmail string
	Send      chan []byte
}

// BroadcastMessage represents a message to broadcast to a company
type BroadcastMessage struct {
	CompanyID string
	Type      string
	Data      interface{}
}

// MessagePayload represents the structure of WebSocket messages
type MessagePayload struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

var wsManager *WebSocketManager
var once sync.Once

// GetWebSocketManager returns the singleton WebSocket manager
func GetWebSocketManager() *WebSocketManager {
	once.Do(func() {
		wsManager = &WebSocketManager{
			connections: make(map[string]map[string][]*WebSocketConnection),
			broadcast:   make(chan BroadcastMessage, 100),
		}
		go wsManager.handleBroadcast()
	})
	return wsManager
}

// RegisterConnection registers a new WebSocket connection
func (m *WebSocketManager) RegisterConnection(conn *WebSocketConnection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connections[conn.CompanyID] == nil {
		m.connections[conn.CompanyID] = make(map[string][]*WebSocketConnection)
	}

	m.connections[conn.CompanyID][conn.UserID] = append(m.connections[conn.CompanyID][conn.UserID], conn)

	slog.Info("WebSocket connection registered",
		"companyID", conn.CompanyID,
		"userID", conn.UserID,
		"connID", conn.ConnID)
}

// UnregisterConnection removes a WebSocket connection
func (m *WebSocketManager) UnregisterConnection(companyID, userID, connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	companyConns, exists := m.connections[companyID]
	if !exists {
		return
	}

	conns := companyConns[userID]
	for i, conn := range conns {
		if conn.ConnID == connID {
			close(conn.Send)
			companyConns[userID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	if len(companyConns[userID]) == 0 {
		delete(companyConns, userID)
	}
	if len(companyConns) == 0 {
		delete(m.connections, companyID)
	}

	slog.Info("WebSocket connection unregistered",
		"companyID", companyID,
		"userID", userID,
		"connID", connID)
}

// BroadcastToCompany sends a message to all connections for a company
func (m *WebSocketManager) BroadcastToCompany(companyID string, message BroadcastMessage) {
	m.broadcast <- message
}

// BroadcastIdentityUpdate pushes the updated identity row to every socket the
// user holds. Monitors compare the forced-logout timestamp in the payload
// against their own session start.
func (m *WebSocketManager) BroadcastIdentityUpdate(user *models.User) {
	payload := MessagePayload{
		Type:      "identity_update",
		Data:      user,
		Timestamp: time.Now().Unix(),
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal identity update", "error", err)
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	companyConns, exists := m.connections[user.CompanyID]
	if !exists {
		return
	}

	for _, conn := range companyConns[user.ID.Hex()] {
		select {
		case conn.Send <- jsonData:
		default:
			slog.Warn("WebSocket connection buffer full, dropping identity update",
				"userID", user.ID.Hex(),
				"connID", conn.ConnID)
		}
	}
}

// handleBroadcast processes company-wide broadcast messages
func (m *WebSocketManager) handleBroadcast() {
	for message := range m.broadcast {
		payload := MessagePayload{
			Type:      message.Type,
			Data:      message.Data,
			Timestamp: time.Now().Unix(),
		}

		jsonData, err := json.Marshal(payload)
		if err != nil {
			slog.Error("Failed to marshal WebSocket message", "error", err)
			continue
		}

		m.mu.RLock()
		companyConns, exists := m.connections[message.CompanyID]
		if exists {
			for _, conns := range companyConns {
				for _, conn := range conns {
					select {
					case conn.Send <- jsonData:
					default:
						slog.Warn("WebSocket connection buffer full",
							"companyID", message.CompanyID,
							"userID", conn.UserID)
					}
				}
			}
		}
		m.mu.RUnlock()
	}
}

// GetConnectionCount returns the number of active connections for a company
func (m *WebSocketManager) GetConnectionCount(companyID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, conns := range m.connections[companyID] {
		count += len(conns)
	}
	return count
}
