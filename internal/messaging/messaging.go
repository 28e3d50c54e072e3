// Package messaging delivers outbound chat messages.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/joescharf/agenda/internal/output"
)

// Gateway sends text to a chat recipient. Sends are not deduplicated.
type Gateway interface {
	SendText(ctx context.Context, recipient, text string) error
}

// Webhook posts each message as JSON to a chat provider's send endpoint.
type Webhook struct {
	client *http.Client
	url    string
	token  string
}

// NewWebhook creates a webhook gateway. token is sent as the Client-Token
// header when non-empty.
func NewWebhook(url, token string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{
		client: &http.Client{Timeout: timeout},
		url:    url,
		token:  token,
	}
}

type sendTextRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

func (w *Webhook) SendText(ctx context.Context, recipient, text string) error {
	if w.url == "" {
		return fmt.Errorf("messaging webhook URL is not configured")
	}
	body, err := json.Marshal(sendTextRequest{Phone: recipient, Message: text})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Client-Token", w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("send message: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

// Console prints messages instead of sending them. Useful for local runs.
type Console struct {
	ui *output.UI
}

// NewConsole creates a gateway that writes to ui.
func NewConsole(ui *output.UI) *Console {
	return &Console{ui: ui}
}

func (c *Console) SendText(_ context.Context, recipient, text string) error {
	c.ui.Chat(recipient, text)
	return nil
}
