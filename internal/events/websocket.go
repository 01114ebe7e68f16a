package events

import (
	"context"
	"fmt"

	"github.com/torosent/lrcctl/internal/websocket"
)

// WebSocketBus publishes each event as a JSON text message on a websocket
// connection that is dialed on first use.
type WebSocketBus struct {
	client *websocket.Client
}

func NewWebSocketBus(url string) *WebSocketBus {
	return &WebSocketBus{client: websocket.NewClient(websocket.Config{URL: url})}
}

func (w *WebSocketBus) Publish(ctx context.Context, e Event) error {
	if err := w.client.SendJSON(ctx, e); err != nil {
		return fmt.Errorf("websocket bus: %w", err)
	}
	return nil
}

// Metrics reports publisher activity.
func (w *WebSocketBus) Metrics() websocket.Metrics {
	return w.client.Metrics()
}

func (w *WebSocketBus) Close() error {
	return w.client.Close()
}
