package events

// Event type constants for kelindar/event.
const (
	TypeFrameProduced uint32 = iota + 1
	TypeFrameDropped
	TypeRotation
	TypeStreamingStateChanged
	TypeSession
	TypeFrameIngested
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// FrameProducedEvent is fired once a frame was dispatched (sync) or scheduled
// for dispatch (async).
type FrameProducedEvent struct {
	ID        string `json:"id" example:"4f7c2b1e-..." doc:"Frame identifier"`
	Source    string `json:"source" example:"cam1" doc:"Source name"`
	Mode      string `json:"mode" example:"disk" doc:"Sink mode"`
	Async     bool   `json:"async" doc:"Whether encode and dispatch run on a worker"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Capture timestamp"`
}

// Type returns the event type identifier for FrameProducedEvent.
func (e FrameProducedEvent) Type() uint32 { return TypeFrameProduced }

// FrameDroppedEvent reports a frame that was not delivered.
type FrameDroppedEvent struct {
	Source    string `json:"source" example:"cam1" doc:"Source name"`
	Reason    string `json:"reason" example:"capture_unavailable" doc:"Drop reason"`
	Error     string `json:"error,omitempty" doc:"Underlying error"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for FrameDroppedEvent.
func (e FrameDroppedEvent) Type() uint32 { return TypeFrameDropped }

// RotationEvent reports that the active source window moved.
type RotationEvent struct {
	Window    []string `json:"window" example:"[\"cam3\",\"cam4\"]" doc:"Sources now active"`
	Timestamp string   `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for RotationEvent.
func (e RotationEvent) Type() uint32 { return TypeRotation }

// StreamingStateChangedEvent reports the global streaming toggle.
type StreamingStateChangedEvent struct {
	Enabled   bool   `json:"enabled" doc:"Whether streaming is enabled"`
	Reason    string `json:"reason,omitempty" example:"api" doc:"What changed the state"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamingStateChangedEvent.
func (e StreamingStateChangedEvent) Type() uint32 { return TypeStreamingStateChanged }

// SessionEvent reports socket sessions joining or leaving.
type SessionEvent struct {
	SessionID string `json:"session_id" doc:"Session identifier"`
	Action    string `json:"action" example:"connected" doc:"connected or disconnected"`
	Remote    string `json:"remote" example:"192.168.1.20:51234" doc:"Remote address"`
	Sessions  int    `json:"sessions" doc:"Sessions connected after the change"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionEvent.
func (e SessionEvent) Type() uint32 { return TypeSession }

// FrameIngestedEvent reports a frame received from the network and saved.
type FrameIngestedEvent struct {
	Name      string `json:"name" example:"cam1/2025-01-27_10-30-00-000.png" doc:"Wire message name"`
	Path      string `json:"path" doc:"File written"`
	Bytes     int    `json:"bytes" doc:"Payload size"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for FrameIngestedEvent.
func (e FrameIngestedEvent) Type() uint32 { return TypeFrameIngested }
