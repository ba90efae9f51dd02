package handlers

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"crm-backend/services"
)

// WebSocketMessage represents an incoming WebSocket message
type WebSocketMessage struct {
	Type   string          `json:"type"`
	UserID string          `json:"user_id,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// WebSocketUpgrade upgrades HTTP connection to WebSocket
func WebSocketUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// HandleWebSocket handles the per-identity push channel. Each authenticated
// dashboard tab holds one connection; identity updates for the session's user
// and company-wide CRM change events arrive on it.
func HandleWebSocket(c *websocket.Conn) {
	companyID, ok := c.Locals("company_id").(string)
	if !ok || companyID == "" {
		slog.Error("WebSocket connection without company ID")
		c.Close()
		return
	}

	userID, _ := c.Locals("user_id").(string)
	userEmail, _ := c.Locals("email").(string)
	if userID == "" {
		slog.Error("WebSocket connection without user ID")
		c.Close()
		return
	}

	conn := &services.WebSocketConnection{
		Conn:      c,
		ConnID:    uuid.New().String(),
		CompanyID: companyID,
		UserID:    userID,
		UserEmail: userEmail,
		Send:      make(chan []byte, 256),
	}

	wsManager := services.GetWebSocketManager()
	wsManager.RegisterConnection(conn)
	defer wsManager.UnregisterConnection(companyID, userID, conn.ConnID)

	slog.Info("WebSocket connection established",
		"companyID", companyID,
		"userID", userID)

	welcomeMsg := map[string]interface{}{
		"type":    "connected",
		"user_id": userID,
	}
	if welcomeData, err := json.Marshal(welcomeMsg); err == nil {
		c.WriteMessage(websocket.TextMessage, welcomeData)
	}

	go handleWebSocketSend(conn)

	handleWebSocketReceive(conn)
}

// handleWebSocketSend handles sending messages to the WebSocket client
func handleWebSocketSend(conn *services.WebSocketConnection) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Channel closed
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Error("Failed to write WebSocket message", "error", err)
				return
			}

		case <-ticker.C:
			// Send ping to keep connection alive
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleWebSocketReceive handles receiving messages from the WebSocket client
func handleWebSocketReceive(conn *services.WebSocketConnection) {
	defer func() {
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(64 * 1024)
	conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, messageBytes, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket read error", "error", err)
			}
			break
		}

		conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		var msg WebSocketMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			slog.Error("Failed to parse WebSocket message", "error", err)
			continue
		}

		switch msg.Type {
		case "ping":
			pongMsg := map[string]string{"type": "pong"}
			if pongData, err := json.Marshal(pongMsg); err == nil {
				conn.Send <- pongData
			}

		case "subscribe":
			// Identity updates are scoped to the session's own user;
			// subscribing to someone else's identity is not a thing.
			slog.Info("WebSocket client subscribed",
				"companyID", conn.CompanyID,
				"userID", conn.UserID)

		default:
			slog.Warn("Unknown WebSocket message type",
				"type", msg.Type,
				"companyID", conn.CompanyID)
		}
	}
}
