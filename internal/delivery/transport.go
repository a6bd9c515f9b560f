package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dmarin/chatrelay/pkg/logging"
)

// LogTransport writes outbound messages to the log instead of a messaging
// provider. Used when no webhook is configured, typically in development.
type LogTransport struct {
	logger *logging.Logger
}

// NewLogTransport creates a transport that only logs.
func NewLogTransport(logger *logging.Logger) *LogTransport {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Send(ctx context.Context, target, body string) error {
	t.logger.Info("outbound message", "target", target, "body", body)
	return nil
}

// WebhookTransport delivers outbound messages by POSTing them to a
// configured endpoint, where the actual messaging connection lives.
type WebhookTransport struct {
	url    string
	client *http.Client
}

// NewWebhookTransport creates a transport posting to url.
func NewWebhookTransport(url string, client *http.Client) *WebhookTransport {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookTransport{url: url, client: client}
}

func (t *WebhookTransport) Send(ctx context.Context, target, body string) error {
	payload, err := json.Marshal(map[string]string{
		"target": target,
		"body":   body,
	})
	if err != nil {
		return fmt.Errorf("delivery: failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("delivery: failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivery: webhook call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("delivery: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
