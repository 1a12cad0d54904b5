package streaming

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned by Client.Send while no connection is up.
var ErrNotConnected = errors.New("not connected")

// ClientOptions configures a Client.
type ClientOptions struct {
	// URL is the service URL, e.g. ws://host:4649/Image.
	URL string

	HandshakeTimeout time.Duration
	ReconnectDelay   time.Duration
	WriteTimeout     time.Duration
	Header           http.Header

	// OnMessage handles every binary message received from the server.
	OnMessage func(data []byte)

	Logger *slog.Logger
}

// Client connects to a socket service and keeps the connection up.
type Client struct {
	opts   ClientOptions
	dialer *websocket.Dialer
	logger *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewClient creates a client. Call Run to connect.
func NewClient(opts ClientOptions) *Client {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 2 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		opts:   opts,
		dialer: &websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout},
		logger: logger.With("url", opts.URL),
	}
}

// Run connects and reads messages until ctx is done, reconnecting after
// failures.
func (c *Client) Run(ctx context.Context) error {
	if c.opts.URL == "" {
		return errors.New("client requires a URL")
	}

	for {
		conn, _, err := c.dialer.DialContext(ctx, c.opts.URL, c.opts.Header)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("Connect failed, retrying", "error", err, "delay", c.opts.ReconnectDelay)
		} else {
			c.logger.Info("Connected")
			c.serve(ctx, conn)
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("Connection lost, reconnecting", "delay", c.opts.ReconnectDelay)
		}

		reconnects.Inc()
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.opts.ReconnectDelay):
		}
	}
}

// serve reads from conn until it fails or ctx is done.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = conn.Close()
	})
	defer stop()

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		messagesReceived.WithLabelValues("client").Inc()
		if c.opts.OnMessage != nil {
			c.opts.OnMessage(data)
		}
	}
}

// Send writes one binary message to the server.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("failed to send: %w", err)
	}
	return nil
}

// Connected reports whether a connection is up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}
