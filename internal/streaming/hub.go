package streaming

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/smazurov/framestream/internal/events"
)

// ErrSessionClosed is returned when writing to a session that was removed.
var ErrSessionClosed = errors.New("session closed")

// Session is one connected websocket peer.
type Session struct {
	ID     string
	Remote string

	conn      *websocket.Conn
	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// write sends one binary message. Writes to a session are serialized.
func (s *Session) write(data []byte, timeout time.Duration) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	_ = s.conn.SetWriteDeadline(time.Now().Add(timeout))
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (s *Session) ping(timeout time.Duration) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout))
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// Hub tracks sessions on one service path and broadcasts to all of them.
// It implements sink.Broadcaster.
type Hub struct {
	sessions     map[string]*Session
	mu           sync.RWMutex
	writeTimeout time.Duration
	bus          *events.Bus
	logger       *slog.Logger
}

// NewHub creates an empty hub. bus may be nil.
func NewHub(writeTimeout time.Duration, bus *events.Bus, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Hub{
		sessions:     make(map[string]*Session),
		writeTimeout: writeTimeout,
		bus:          bus,
		logger:       logger,
	}
}

// add registers conn as a new session.
func (h *Hub) add(conn *websocket.Conn) *Session {
	s := &Session{
		ID:     uuid.NewString(),
		Remote: conn.RemoteAddr().String(),
		conn:   conn,
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	h.sessions[s.ID] = s
	count := len(h.sessions)
	h.mu.Unlock()

	sessionsConnected.Set(float64(count))
	sessionsTotal.Inc()
	h.logger.Info("Session connected", "session_id", s.ID, "remote", s.Remote, "sessions", count)
	h.publish(s, "connected", count)
	return s
}

// remove closes and forgets a session. Safe to call more than once.
func (h *Hub) remove(s *Session) {
	h.mu.Lock()
	_, ok := h.sessions[s.ID]
	delete(h.sessions, s.ID)
	count := len(h.sessions)
	h.mu.Unlock()

	s.close()
	if !ok {
		return
	}

	sessionsConnected.Set(float64(count))
	h.logger.Info("Session disconnected", "session_id", s.ID, "remote", s.Remote, "sessions", count)
	h.publish(s, "disconnected", count)
}

func (h *Hub) publish(s *Session, action string, count int) {
	if h.bus == nil {
		return
	}
	h.bus.Publish(events.SessionEvent{
		SessionID: s.ID,
		Action:    action,
		Remote:    s.Remote,
		Sessions:  count,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (h *Hub) snapshot() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	list := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		list = append(list, s)
	}
	return list
}

// Broadcast writes data to every session and returns once each write
// finished. Sessions whose write fails are closed; their errors are joined.
func (h *Hub) Broadcast(data []byte) error {
	var errs []error
	for _, s := range h.snapshot() {
		if err := s.write(data, h.writeTimeout); err != nil {
			sendErrors.Inc()
			h.logger.Debug("Session write failed", "session_id", s.ID, "error", err)
			errs = append(errs, fmt.Errorf("session %s: %w", s.ID, err))
			h.remove(s)
			continue
		}
		messagesSent.Inc()
		bytesSent.Add(float64(len(data)))
	}
	return errors.Join(errs...)
}

// BroadcastAsync broadcasts on a new goroutine. onComplete may be nil.
func (h *Hub) BroadcastAsync(data []byte, onComplete func(error)) {
	go func() {
		err := h.Broadcast(data)
		if onComplete != nil {
			onComplete(err)
		}
	}()
}

// Sessions returns the number of connected sessions.
func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// CloseAll disconnects every session.
func (h *Hub) CloseAll() {
	for _, s := range h.snapshot() {
		h.remove(s)
	}
}
