// Package sink delivers encoded frames to disk or to a broadcast channel.
package sink

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultFolder is the folder frames are saved under inside the save root.
const DefaultFolder = "Streamed"

// ErrUnknownMode is returned by ParseMode for unrecognized mode names.
var ErrUnknownMode = errors.New("unknown streaming mode")

// Mode selects the sink used by the pipeline.
type Mode int

// Streaming modes. The zero value writes nothing.
const (
	ModeNone Mode = iota
	ModeDisk
	ModeSocket
)

// String returns the mode name used in configuration.
func (m Mode) String() string {
	switch m {
	case ModeDisk:
		return "disk"
	case ModeSocket:
		return "socket"
	case ModeNone:
		return "none"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses "disk", "socket" or "none".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disk":
		return ModeDisk, nil
	case "socket":
		return ModeSocket, nil
	case "none", "":
		return ModeNone, nil
	default:
		return ModeNone, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Frame is one encoded image ready for delivery.
type Frame struct {
	Source    string
	Data      []byte
	Ext       string
	Timestamp time.Time
}

// Name returns the logical name of the frame: source/timestamp.ext.
func (f Frame) Name() string {
	return f.Source + "/" + Timestamp(f.Timestamp) + f.Ext
}

// Writer consumes encoded frames. Implementations must not retain f.Data
// after Write returns; the pipeline reuses the buffer.
type Writer interface {
	Write(f Frame) error
}

// Broadcaster is the transport a socket sink publishes on.
type Broadcaster interface {
	// Broadcast sends data to every session and returns once it was handed
	// to all of them.
	Broadcast(data []byte) error
	// BroadcastAsync returns immediately; onComplete may be nil.
	BroadcastAsync(data []byte, onComplete func(error))
}

// Discard drops every frame. Used for ModeNone.
type Discard struct{}

// Write implements Writer.
func (Discard) Write(Frame) error { return nil }

// Config carries what New needs to build any of the sinks.
type Config struct {
	Root        string
	Sources     []string
	Broadcaster Broadcaster
	Async       bool
	DiskOptions []DiskOption
}

// New resolves mode into a concrete Writer.
func New(mode Mode, cfg Config) (Writer, error) {
	switch mode {
	case ModeDisk:
		return NewDisk(cfg.Root, cfg.Sources, cfg.DiskOptions...)
	case ModeSocket:
		if cfg.Broadcaster == nil {
			return nil, errors.New("socket mode requires a broadcaster")
		}
		return NewSocket(cfg.Broadcaster, WithAsync(cfg.Async)), nil
	case ModeNone:
		return Discard{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMode, mode)
	}
}
