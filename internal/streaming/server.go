package streaming

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Defaults for ServerOptions.
const (
	DefaultPort        = 4649
	DefaultServicePath = "/Image"
	defaultPongWait    = 60 * time.Second
	defaultReadLimit   = 64 << 20
)

// MessageHandler receives binary messages read from a peer.
type MessageHandler func(sessionID string, data []byte)

// ServerOptions configures a Server.
type ServerOptions struct {
	// Addr is the listen address, ":4649" when empty.
	Addr string
	// Path is the service path, "/Image" when empty.
	Path string

	WriteTimeout time.Duration
	PingInterval time.Duration
	// ReadLimit caps inbound message size in bytes.
	ReadLimit int64

	// OnMessage handles inbound binary frames. Nil ignores them.
	OnMessage MessageHandler

	Logger *slog.Logger
}

// Server accepts websocket sessions on one service path and feeds them to a
// Hub.
type Server struct {
	hub      *Hub
	opts     ServerOptions
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer creates a server for hub.
func NewServer(hub *Hub, opts ServerOptions) *Server {
	if opts.Addr == "" {
		opts.Addr = fmt.Sprintf(":%d", DefaultPort)
	}
	if opts.Path == "" {
		opts.Path = DefaultServicePath
	}
	if !strings.HasPrefix(opts.Path, "/") {
		opts.Path = "/" + opts.Path
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = defaultReadLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		hub:  hub,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 << 10,
			WriteBufferSize: 64 << 10,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Path returns the service path.
func (s *Server) Path() string {
	return s.opts.Path
}

// Handler returns the HTTP handler serving the service path.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.opts.Path, s.handleUpgrade)
	return mux
}

// Start binds the listen address and serves in the background. Bind errors
// are returned.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.srv = srv
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("Socket server started", "addr", ln.Addr().String(), "path", s.opts.Path)

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Socket server stopped", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener, disconnects every session and waits for the
// session goroutines.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	s.hub.CloseAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.Info("Socket server stopped")
	return err
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	session := s.hub.add(conn)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.pingLoop(session)
	}()
	go func() {
		defer s.wg.Done()
		s.readLoop(session)
	}()
}

// readLoop reads until the peer goes away, then removes the session.
func (s *Server) readLoop(session *Session) {
	defer s.hub.remove(session)

	conn := session.conn
	conn.SetReadLimit(s.opts.ReadLimit)
	pongWait := max(defaultPongWait, 2*s.opts.PingInterval)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("Session read failed", "session_id", session.ID, "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if msgType != websocket.BinaryMessage {
			continue
		}
		messagesReceived.WithLabelValues("server").Inc()
		if s.opts.OnMessage != nil {
			s.opts.OnMessage(session.ID, data)
		}
	}
}

func (s *Server) pingLoop(session *Session) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-session.done:
			return
		case <-ticker.C:
			if err := session.ping(s.hub.writeTimeout); err != nil {
				s.hub.remove(session)
				return
			}
		}
	}
}
