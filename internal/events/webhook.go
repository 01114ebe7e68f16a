package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookBus POSTs each event as JSON to a URL.
type WebhookBus struct {
	url    string
	client *http.Client
}

// NewWebhookBus builds a bus for url; a nil client gets a 10 second timeout.
func NewWebhookBus(url string, client *http.Client) *WebhookBus {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookBus{url: url, client: client}
}

func (w *WebhookBus) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("webhook: encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "lrcctl")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook: %s returned status %d", w.url, resp.StatusCode)
	}
	return nil
}
