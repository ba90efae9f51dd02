package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"crm-backend/services"
)

// HTTPHeartbeater pings the backend's heartbeat endpoint, authenticating with
// the session cookie like every other request.
type HTTPHeartbeater struct {
	BaseURL      string
	SessionToken string
	Client       *http.Client
}

// Beat posts a liveness ping for the user
func (h *HTTPHeartbeater) Beat(ctx context.Context, userID string) (bool, error) {
	payload, err := json.Marshal(map[string]string{"user_id": userID})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", h.BaseURL+"/users/heartbeat", bytes.NewBuffer(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: services.SessionCookieName, Value: h.SessionToken})

	client := h.Client
	if client == nil {
		client = &http.Client{}
	}

	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("heartbeat returned status %d", resp.StatusCode)
	}

	var result struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, err
	}

	return result.Status == "active", nil
}
