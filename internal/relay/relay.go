// Package relay saves wire messages received from the network under a local
// root, reconstructing the folder layout from each message name.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/smazurov/framestream/internal/codec"
	"github.com/smazurov/framestream/internal/events"
	"github.com/smazurov/framestream/internal/wire"
	"github.com/smazurov/framestream/internal/worker"
)

// DefaultFolder is the folder ingested frames are saved under.
const DefaultFolder = "StreamedFrames"

// ErrInvalidImage is returned when verification is on and a payload is not
// a decodable image.
var ErrInvalidImage = errors.New("payload is not a valid image")

// Options configures a Relay.
type Options struct {
	// Root is where folders are created.
	Root string
	// Verify checks every payload's image header before saving.
	Verify bool
	// Pool runs saves off the receive goroutine. Nil saves inline.
	Pool     *worker.Pool
	EventBus *events.Bus
	Logger   *slog.Logger
}

// Relay writes received wire messages to disk.
type Relay struct {
	root   string
	verify bool
	pool   *worker.Pool
	bus    *events.Bus
	logger *slog.Logger
}

// New creates the root folder and returns a relay writing into it.
func New(opts Options) (*Relay, error) {
	if opts.Root == "" {
		return nil, errors.New("relay requires a root folder")
	}
	if err := os.MkdirAll(opts.Root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create relay root %s: %w", opts.Root, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("Relay ready", "root", opts.Root, "verify", opts.Verify, "async", opts.Pool != nil)
	return &Relay{
		root:   opts.Root,
		verify: opts.Verify,
		pool:   opts.Pool,
		bus:    opts.EventBus,
		logger: logger,
	}, nil
}

// Root returns the folder messages are saved under.
func (r *Relay) Root() string {
	return r.root
}

// Save decodes one wire message and writes its payload. It returns the
// written path.
func (r *Relay) Save(data []byte) (string, error) {
	msg, err := wire.Decode(data)
	if err != nil {
		ingestErrors.WithLabelValues("malformed").Inc()
		return "", err
	}

	if r.verify {
		if _, _, err := codec.DecodeConfig(msg.Payload); err != nil {
			ingestErrors.WithLabelValues("invalid_image").Inc()
			return "", fmt.Errorf("%w: %s", ErrInvalidImage, msg.Name)
		}
	}

	path, err := wire.Place(r.root, msg.Name)
	if err != nil {
		ingestErrors.WithLabelValues("unsafe_name").Inc()
		return "", err
	}
	if err := os.WriteFile(path, msg.Payload, 0o644); err != nil {
		ingestErrors.WithLabelValues("write_error").Inc()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	framesIngested.Inc()
	bytesIngested.Add(float64(len(msg.Payload)))
	r.logger.Debug("Frame saved", "name", msg.Name, "path", path, "bytes", len(msg.Payload))

	if r.bus != nil {
		r.bus.Publish(events.FrameIngestedEvent{
			Name:      msg.Name,
			Path:      path,
			Bytes:     len(msg.Payload),
			Timestamp: time.Now().Format(time.RFC3339),
		})
	}
	return path, nil
}

// Handle saves data on the pool, or inline without one. Errors are logged.
// The relay owns data after the call.
func (r *Relay) Handle(data []byte) {
	if r.pool == nil {
		r.save(data)
		return
	}

	err := r.pool.Submit(func(context.Context) {
		r.save(data)
	})
	if err != nil {
		ingestErrors.WithLabelValues("pool_rejected").Inc()
		r.logger.Warn("Frame not saved", "error", err)
	}
}

// HandleSession adapts Handle to the socket server's message handler.
func (r *Relay) HandleSession(_ string, data []byte) {
	r.Handle(data)
}

func (r *Relay) save(data []byte) {
	if _, err := r.Save(data); err != nil {
		r.logger.Warn("Frame not saved", "error", err)
	}
}
