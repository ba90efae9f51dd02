package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/fasthttp/websocket"

	"crm-backend/services"
)

// WSSubscription consumes the backend's per-identity push channel over a
// websocket and turns identity_update payloads into IdentityEvents.
type WSSubscription struct {
	conn      *websocket.Conn
	userID    string
	events    chan IdentityEvent
	closeOnce sync.Once
}

// DialSubscription connects to the dashboard websocket endpoint using the
// session cookie and starts decoding pushed updates. Reconnection is left to
// the caller; a dropped channel just closes the event stream and the Monitor
// degrades to heartbeat-only detection.
func DialSubscription(ctx context.Context, wsURL, sessionToken, userID string) (*WSSubscription, error) {
	header := http.Header{}
	header.Set("Cookie", services.SessionCookieName+"="+sessionToken)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, err
	}

	s := &WSSubscription{
		conn:   conn,
		userID: userID,
		events: make(chan IdentityEvent, 16),
	}

	if err := conn.WriteJSON(map[string]string{"type": "subscribe", "user_id": userID}); err != nil {
		conn.Close()
		return nil, err
	}

	go s.readLoop()

	return s, nil
}

func (s *WSSubscription) readLoop() {
	defer close(s.events)

	s.conn.SetPingHandler(func(appData string) error {
		return s.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(10*time.Second))
	})

	for {
		var payload struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := s.conn.ReadJSON(&payload); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("Push channel read error", "error", err)
			}
			return
		}

		if payload.Type != "identity_update" {
			continue
		}

		var identity struct {
			ID                string    `json:"id"`
			IsActive          bool      `json:"is_active"`
			LastForceLogoutAt time.Time `json:"last_force_logout_at"`
		}
		if err := json.Unmarshal(payload.Data, &identity); err != nil {
			slog.Warn("Failed to decode identity update", "error", err)
			continue
		}

		if s.userID != "" && identity.ID != s.userID {
			continue
		}

		// At-least-once delivery: duplicates are fine, the Monitor's
		// timestamp comparison makes them no-ops.
		select {
		case s.events <- IdentityEvent{
			UserID:            identity.ID,
			IsActive:          identity.IsActive,
			LastForceLogoutAt: identity.LastForceLogoutAt,
		}:
		default:
			slog.Warn("Identity event buffer full, dropping event")
		}
	}
}

// Events returns the stream of identity updates. It is closed when the
// underlying connection ends.
func (s *WSSubscription) Events() <-chan IdentityEvent {
	return s.events
}

// Close tears the subscription down. Safe to call more than once.
func (s *WSSubscription) Close() error {
	s.closeOnce.Do(func() {
		s.conn.Close()
	})
	return nil
}
