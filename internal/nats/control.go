package nats

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Controller is the streaming state a ControlBridge drives.
type Controller interface {
	SetEnabled(enabled bool, reason string)
	Enabled() bool
	SetDelay(delay int)
	Delay() int
}

// ControlBridge applies control messages received over NATS to a
// Controller and reports the resulting state.
type ControlBridge struct {
	url    string
	ctrl   Controller
	conn   *nats.Conn
	sub    *nats.Subscription
	logger *slog.Logger
	mu     sync.Mutex
}

// NewControlBridge creates a bridge for ctrl.
func NewControlBridge(url string, ctrl Controller, logger *slog.Logger) *ControlBridge {
	if logger == nil {
		logger = slog.Default()
	}

	return &ControlBridge{
		url:    url,
		ctrl:   ctrl,
		logger: logger.With("component", "nats-control"),
	}
}

// Start connects to NATS and subscribes to the control subject.
func (b *ControlBridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	conn, err := nats.Connect(b.url,
		nats.Name("framestream-control"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				b.logger.Warn("NATS control bridge disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			b.logger.Info("NATS control bridge reconnected")
		}),
	)
	if err != nil {
		return err
	}

	sub, err := conn.Subscribe(SubjectControl, func(msg *nats.Msg) {
		b.handleControl(conn, msg)
	})
	if err != nil {
		conn.Close()
		return err
	}

	b.conn = conn
	b.sub = sub
	b.logger.Info("NATS control bridge subscribed", "subject", SubjectControl)
	return nil
}

func (b *ControlBridge) handleControl(conn *nats.Conn, msg *nats.Msg) {
	ctrl, err := UnmarshalControl(msg.Data)
	if err == nil {
		err = ctrl.Validate()
	}
	if err != nil {
		b.logger.Warn("Invalid control message", "error", err, "subject", msg.Subject)
		return
	}

	reason := ctrl.Reason
	if reason == "" {
		reason = "nats"
	}

	switch ctrl.Action {
	case ActionEnable:
		b.ctrl.SetEnabled(true, reason)
	case ActionDisable:
		b.ctrl.SetEnabled(false, reason)
	case ActionDelay:
		b.ctrl.SetDelay(ctrl.Delay)
	}
	b.logger.Info("Applied control command", "action", ctrl.Action, "reason", reason)

	state := StateMessage{
		Enabled:   b.ctrl.Enabled(),
		Delay:     b.ctrl.Delay(),
		Timestamp: time.Now().Format(time.RFC3339),
		Reason:    reason,
	}
	data, err := state.Marshal()
	if err != nil {
		b.logger.Warn("Failed to marshal state", "error", err)
		return
	}

	if msg.Reply != "" {
		if err := msg.Respond(data); err != nil {
			b.logger.Warn("Failed to reply to control command", "error", err)
		}
	}
	if err := conn.Publish(SubjectState, data); err != nil {
		b.logger.Warn("Failed to publish state", "error", err)
	}
}

// Stop closes the bridge connection.
func (b *ControlBridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sub != nil {
		_ = b.sub.Unsubscribe()
		b.sub = nil
	}
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
	b.logger.Info("NATS control bridge stopped")
}

// IsConnected returns true if the bridge is connected to NATS.
func (b *ControlBridge) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil && b.conn.IsConnected()
}

// ControlPublisher sends control commands to a running instance.
type ControlPublisher struct {
	conn    *nats.Conn
	timeout time.Duration
	logger  *slog.Logger
}

// NewControlPublisher connects a publisher for control commands.
func NewControlPublisher(url string, timeout time.Duration, logger *slog.Logger) (*ControlPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	conn, err := nats.Connect(url,
		nats.Name("framestream-control-client"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(5),
	)
	if err != nil {
		return nil, err
	}

	return &ControlPublisher{
		conn:    conn,
		timeout: timeout,
		logger:  logger.With("component", "nats-control"),
	}, nil
}

// Send delivers msg and waits for the instance to report its new state.
func (p *ControlPublisher) Send(msg ControlMessage) (StateMessage, error) {
	if err := msg.Validate(); err != nil {
		return StateMessage{}, err
	}
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().Format(time.RFC3339)
	}

	data, err := msg.Marshal()
	if err != nil {
		return StateMessage{}, err
	}

	reply, err := p.conn.Request(SubjectControl, data, p.timeout)
	if err != nil {
		return StateMessage{}, fmt.Errorf("control request failed: %w", err)
	}

	state, err := UnmarshalState(reply.Data)
	if err != nil {
		return StateMessage{}, fmt.Errorf("invalid state reply: %w", err)
	}

	p.logger.Info("Sent control command", "action", msg.Action, "enabled", state.Enabled, "delay", state.Delay)
	return state, nil
}

// Enable turns streaming on.
func (p *ControlPublisher) Enable(reason string) (StateMessage, error) {
	return p.Send(ControlMessage{Action: ActionEnable, Reason: reason})
}

// Disable turns streaming off.
func (p *ControlPublisher) Disable(reason string) (StateMessage, error) {
	return p.Send(ControlMessage{Action: ActionDisable, Reason: reason})
}

// SetDelay changes the per-source delay.
func (p *ControlPublisher) SetDelay(delay int, reason string) (StateMessage, error) {
	return p.Send(ControlMessage{Action: ActionDelay, Delay: delay, Reason: reason})
}

// Close closes the control publisher connection.
func (p *ControlPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
