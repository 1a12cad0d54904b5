package nats

import (
	"encoding/json"
	"fmt"
)

// Subject prefixes for NATS topics.
const (
	SubjectFramesPrefix = "framestream.frames"
	SubjectControl      = "framestream.control.streaming"
	SubjectState        = "framestream.state"
)

// DefaultChannel is the frame channel used when none is configured.
const DefaultChannel = "Image"

// Control actions.
const (
	ActionEnable  = "enable"
	ActionDisable = "disable"
	ActionDelay   = "delay"
)

// SubjectFrames returns the subject frames for channel are published on.
func SubjectFrames(channel string) string {
	return fmt.Sprintf("%s.%s", SubjectFramesPrefix, channel)
}

// SubjectAllFrames matches the frames of every channel.
func SubjectAllFrames() string {
	return SubjectFramesPrefix + ".>"
}

// ControlMessage changes the streaming state of a running instance.
type ControlMessage struct {
	Action    string `json:"action"` // enable, disable, delay
	Delay     int    `json:"delay,omitempty"`
	Timestamp string `json:"timestamp"`
	Reason    string `json:"reason,omitempty"`
}

// Marshal serializes the message to JSON.
func (m ControlMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// Validate reports whether the action is known.
func (m ControlMessage) Validate() error {
	switch m.Action {
	case ActionEnable, ActionDisable:
		return nil
	case ActionDelay:
		if m.Delay < 0 {
			return fmt.Errorf("delay must not be negative, got %d", m.Delay)
		}
		return nil
	default:
		return fmt.Errorf("unknown control action %q", m.Action)
	}
}

// StateMessage reports the streaming state after a control message.
type StateMessage struct {
	Enabled   bool   `json:"enabled"`
	Delay     int    `json:"delay"`
	Timestamp string `json:"timestamp"`
	Reason    string `json:"reason,omitempty"`
}

// Marshal serializes the message to JSON.
func (m StateMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalControl deserializes a ControlMessage from JSON.
func UnmarshalControl(data []byte) (ControlMessage, error) {
	var m ControlMessage
	err := json.Unmarshal(data, &m)
	return m, err
}

// UnmarshalState deserializes a StateMessage from JSON.
func UnmarshalState(data []byte) (StateMessage, error) {
	var m StateMessage
	err := json.Unmarshal(data, &m)
	return m, err
}
