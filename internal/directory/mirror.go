package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MirrorOrder is the row appended to the orders sheet.
type MirrorOrder struct {
	OrderID      string    `json:"orderId"`
	ClientName   string    `json:"clientName"`
	ClientEmail  string    `json:"clientEmail"`
	CreatedAt    time.Time `json:"createdAt"`
	CurrentStage string    `json:"currentStage"`
	Status       string    `json:"status"`
}

// AppsScriptMirror posts orders to the Apps Script web app fronting the sheet.
type AppsScriptMirror struct {
	endpoint   string
	httpClient *http.Client
}

// NewAppsScriptMirror constructs a mirror for the given web app URL.
func NewAppsScriptMirror(endpoint string, timeout time.Duration) *AppsScriptMirror {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &AppsScriptMirror{
		endpoint:   strings.TrimSpace(endpoint),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// AddOrder appends one order row.
func (m *AppsScriptMirror) AddOrder(ctx context.Context, order MirrorOrder) error {
	if m == nil || m.endpoint == "" {
		return errors.New("apps script mirror not configured")
	}
	body, err := json.Marshal(order)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint+"?action=addOrder", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("apps script returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
