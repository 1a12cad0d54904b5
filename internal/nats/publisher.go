package nats

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// ErrNotConnected is returned when publishing while offline.
var ErrNotConnected = errors.New("not connected to NATS")

// FramePublisher publishes wire messages on a frame channel. It implements
// sink.Broadcaster and degrades to dropping frames while NATS is
// unavailable.
type FramePublisher struct {
	url     string
	subject string
	conn    *nats.Conn
	logger  *slog.Logger
	mu      sync.RWMutex
	online  bool
}

// NewFramePublisher creates a publisher for channel. Call Connect before use.
func NewFramePublisher(url, channel string, logger *slog.Logger) *FramePublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if channel == "" {
		channel = DefaultChannel
	}

	return &FramePublisher{
		url:     url,
		subject: SubjectFrames(channel),
		logger:  logger.With("component", "nats-publisher", "subject", SubjectFrames(channel)),
	}
}

// Connect establishes the connection. On failure the publisher stays
// usable and drops frames until a later Connect succeeds.
func (p *FramePublisher) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	conn, err := nats.Connect(p.url,
		nats.Name("framestream-publisher"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			p.setOnline(false)
			if err != nil {
				p.logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			p.setOnline(true)
			p.logger.Info("NATS reconnected")
		}),
	)
	if err != nil {
		p.logger.Warn("Failed to connect to NATS, frames will be dropped", "error", err)
		return err
	}

	p.conn = conn
	p.online = true
	p.logger.Info("Connected to NATS", "url", p.url)
	return nil
}

func (p *FramePublisher) setOnline(online bool) {
	p.mu.Lock()
	p.online = online
	p.mu.Unlock()
}

// Subject returns the subject frames are published on.
func (p *FramePublisher) Subject() string {
	return p.subject
}

// Broadcast publishes data and flushes so it has reached the server on
// return.
func (p *FramePublisher) Broadcast(data []byte) error {
	conn, err := p.connection()
	if err != nil {
		return err
	}
	if err := conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish frame: %w", err)
	}
	if err := conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("failed to flush frame: %w", err)
	}
	return nil
}

// BroadcastAsync publishes data without waiting for the flush. onComplete
// runs once the message was buffered by the client and may be nil.
func (p *FramePublisher) BroadcastAsync(data []byte, onComplete func(error)) {
	conn, err := p.connection()
	if err == nil {
		err = conn.Publish(p.subject, data)
	}
	if onComplete != nil {
		onComplete(err)
	}
}

func (p *FramePublisher) connection() (*nats.Conn, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.conn == nil || !p.online {
		return nil, ErrNotConnected
	}
	return p.conn, nil
}

// IsConnected returns true if connected to NATS.
func (p *FramePublisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.online && p.conn != nil
}

// Close closes the NATS connection.
func (p *FramePublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	p.online = false
	p.logger.Debug("NATS publisher closed")
}
