package config

import (
	"log/slog"
	"sync"
)

// Keys of the [streamer] table that are applied on reload.
const (
	KeyStreamerEnabled = "streamer.enabled"
	KeyStreamerDelay   = "streamer.delay"
)

// ReasonConfig is the reason reported when a reload toggles streaming.
const ReasonConfig = "config"

// StreamerTarget receives [streamer] changes.
type StreamerTarget interface {
	SetEnabled(enabled bool, reason string)
	SetDelay(delay int)
}

// StreamerApplier forwards reloaded [streamer] values to a target, but only
// the keys whose file value changed since the previous snapshot. State set
// at runtime through the API or NATS survives edits to unrelated keys.
// Keys overridden by env or flags are never applied.
type StreamerApplier struct {
	mu         sync.Mutex
	last       StreamerConfig
	target     StreamerTarget
	overridden map[string]bool
	logger     *slog.Logger
}

// NewStreamerApplier starts from initial, the snapshot the target was
// configured with.
func NewStreamerApplier(initial StreamerConfig, target StreamerTarget, overridden map[string]bool, logger *slog.Logger) *StreamerApplier {
	if logger == nil {
		logger = slog.Default()
	}
	if overridden == nil {
		overridden = map[string]bool{}
	}
	return &StreamerApplier{
		last:       initial,
		target:     target,
		overridden: overridden,
		logger:     logger,
	}
}

// Apply is a Watcher handler.
func (a *StreamerApplier) Apply(cfg StreamerConfig) {
	a.mu.Lock()
	prev := a.last
	a.last = cfg
	a.mu.Unlock()

	if cfg.Enabled != prev.Enabled {
		if a.overridden[KeyStreamerEnabled] {
			a.logger.Info("Ignoring reloaded key set by env or flag", "key", KeyStreamerEnabled)
		} else {
			a.target.SetEnabled(cfg.Enabled, ReasonConfig)
		}
	}
	if cfg.Delay != prev.Delay {
		if a.overridden[KeyStreamerDelay] {
			a.logger.Info("Ignoring reloaded key set by env or flag", "key", KeyStreamerDelay)
		} else {
			a.target.SetDelay(cfg.Delay)
		}
	}
}
