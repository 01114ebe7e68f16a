// Package websocket is a small publishing client for websocket endpoints.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("websocket client closed")

// Metrics captures publisher activity.
type Metrics struct {
	ConnectionDuration time.Duration
	MessagesSent       int64
	BytesSent          int64
	Reconnects         int64
	Errors             int64
}

// Config configures the client.
type Config struct {
	URL              string
	Headers          http.Header
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// Client publishes text messages on a lazily dialed connection. A failed
// write drops the connection and the next Send dials again.
type Client struct {
	url          string
	headers      http.Header
	dialer       *websocket.Dialer
	writeTimeout time.Duration

	mu          sync.Mutex
	conn        *websocket.Conn
	closed      bool
	connectTime time.Time
	dials       int64
	sent        int64
	bytesSent   int64
	errors      int64
}

// NewClient creates a client; no connection is made until the first Send.
func NewClient(cfg Config) *Client {
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	return &Client{
		url:     cfg.URL,
		headers: cfg.Headers,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			Proxy:            http.ProxyFromEnvironment,
		},
		writeTimeout: cfg.WriteTimeout,
	}
}

// connectLocked dials when no connection is open. c.mu must be held.
func (c *Client) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.headers)
	if err != nil {
		c.errors++
		if resp != nil {
			return fmt.Errorf("websocket dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	c.conn = conn
	c.connectTime = time.Now()
	c.dials++
	return nil
}

// Send writes data as one text message.
func (c *Client) Send(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if err := c.connectLocked(ctx); err != nil {
		return err
	}

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.errors++
		_ = c.conn.Close()
		c.conn = nil
		return fmt.Errorf("write message: %w", err)
	}

	c.sent++
	c.bytesSent += int64(len(data))
	return nil
}

// SendJSON encodes v and sends it as one text message.
func (c *Client) SendJSON(ctx context.Context, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return c.Send(ctx, data)
}

// Close sends a close frame and releases the connection. It is safe to call
// more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.conn == nil {
		return nil
	}

	err := c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(5*time.Second),
	)
	closeErr := c.conn.Close()
	c.conn = nil

	if err != nil {
		return err
	}
	return closeErr
}

// Metrics returns the current metrics snapshot.
func (c *Client) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	var duration time.Duration
	if c.conn != nil && !c.connectTime.IsZero() {
		duration = time.Since(c.connectTime)
	}
	var reconnects int64
	if c.dials > 1 {
		reconnects = c.dials - 1
	}

	return Metrics{
		ConnectionDuration: duration,
		MessagesSent:       c.sent,
		BytesSent:          c.bytesSent,
		Reconnects:         reconnects,
		Errors:             c.errors,
	}
}
