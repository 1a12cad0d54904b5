package nats

import (
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// FrameSubscriber receives wire messages from frame channels.
type FrameSubscriber struct {
	url     string
	subject string
	handler func(data []byte)
	conn    *nats.Conn
	sub     *nats.Subscription
	logger  *slog.Logger
	mu      sync.Mutex
}

// NewFrameSubscriber creates a subscriber for channel, or for every channel
// when channel is empty or "*".
func NewFrameSubscriber(url, channel string, handler func(data []byte), logger *slog.Logger) *FrameSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	subject := SubjectAllFrames()
	if channel != "" && channel != "*" {
		subject = SubjectFrames(channel)
	}

	return &FrameSubscriber{
		url:     url,
		subject: subject,
		handler: handler,
		logger:  logger.With("component", "nats-subscriber", "subject", subject),
	}
}

// Start connects and subscribes. Messages are handed to the handler on the
// NATS delivery goroutine, in order.
func (s *FrameSubscriber) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := nats.Connect(s.url,
		nats.Name("framestream-subscriber"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				s.logger.Warn("NATS subscriber disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			s.logger.Info("NATS subscriber reconnected")
		}),
	)
	if err != nil {
		return err
	}

	sub, err := conn.Subscribe(s.subject, func(msg *nats.Msg) {
		s.handler(msg.Data)
	})
	if err != nil {
		conn.Close()
		return err
	}
	if err := conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		conn.Close()
		return err
	}

	s.conn = conn
	s.sub = sub
	s.logger.Info("NATS subscriber started", "url", s.url)
	return nil
}

// Stop unsubscribes and closes the connection.
func (s *FrameSubscriber) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sub != nil {
		_ = s.sub.Unsubscribe()
		s.sub = nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.logger.Info("NATS subscriber stopped")
}
