package sink

import (
	"log/slog"
	"time"

	"github.com/smazurov/framestream/internal/wire"
)

// Socket wraps frames in wire messages and broadcasts them.
type Socket struct {
	b      Broadcaster
	async  bool
	now    func() time.Time
	logger *slog.Logger
}

// SocketOption configures a Socket sink.
type SocketOption func(*Socket)

// WithAsync makes Write use SendAsync.
func WithAsync(async bool) SocketOption {
	return func(s *Socket) {
		s.async = async
	}
}

// WithSocketClock overrides the time source used when a frame has no timestamp.
func WithSocketClock(now func() time.Time) SocketOption {
	return func(s *Socket) {
		s.now = now
	}
}

// WithSocketLogger sets the logger.
func WithSocketLogger(logger *slog.Logger) SocketOption {
	return func(s *Socket) {
		s.logger = logger
	}
}

// NewSocket creates a socket sink publishing on b.
func NewSocket(b Broadcaster, opts ...SocketOption) *Socket {
	s := &Socket{
		b:      b,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Write implements Writer.
func (s *Socket) Write(f Frame) error {
	if s.async {
		s.SendAsync(f, nil)
		return nil
	}
	return s.Send(f)
}

// Send broadcasts the frame and waits for the handoff to every session.
func (s *Socket) Send(f Frame) error {
	msg := s.encode(f)
	if err := s.b.Broadcast(msg); err != nil {
		framesDropped.WithLabelValues("socket", "broadcast_error").Inc()
		return err
	}
	s.sent(msg)
	return nil
}

// SendAsync hands the frame to the transport and returns without waiting.
// onComplete runs when the broadcast finished and may be nil.
func (s *Socket) SendAsync(f Frame, onComplete func(error)) {
	msg := s.encode(f)
	s.b.BroadcastAsync(msg, func(err error) {
		if err != nil {
			framesDropped.WithLabelValues("socket", "broadcast_error").Inc()
			s.logger.Warn("Async broadcast failed", "source", f.Source, "error", err)
		} else {
			s.sent(msg)
		}
		if onComplete != nil {
			onComplete(err)
		}
	})
}

func (s *Socket) encode(f Frame) []byte {
	if f.Timestamp.IsZero() {
		f.Timestamp = s.now()
	}
	return wire.Encode(f.Name(), f.Data)
}

func (s *Socket) sent(msg []byte) {
	framesWritten.WithLabelValues("socket").Inc()
	bytesWritten.WithLabelValues("socket").Add(float64(len(msg)))
}
