// Package capture produces raw frames for the pipeline.
//
// Capturer is the synchronous contract; AsyncCapturer returns a future that
// resolves once the frame is ready. Async adapts any Capturer.
package capture

import (
	"context"
	"errors"

	"github.com/smazurov/framestream/internal/codec"
)

var (
	// ErrCaptureUnavailable is returned when a frame could not be read.
	ErrCaptureUnavailable = errors.New("capture unavailable")

	// ErrSourceDisposed is returned when the target surface went away
	// between request and completion.
	ErrSourceDisposed = errors.New("capture source disposed")
)

// Target identifies what to capture.
type Target struct {
	Name   string
	Width  int
	Height int
	Format codec.PixelFormat
}

// Result is the outcome of an asynchronous capture.
type Result struct {
	Buffer codec.RawBuffer
	Err    error
}

// Capturer reads one frame synchronously.
type Capturer interface {
	Capture(ctx context.Context, t Target) (codec.RawBuffer, error)
}

// AsyncCapturer requests a frame and returns a channel that receives exactly
// one Result.
type AsyncCapturer interface {
	RequestCapture(ctx context.Context, t Target) <-chan Result
}

// Async runs a Capturer on its own goroutine per request.
func Async(c Capturer) AsyncCapturer {
	if ac, ok := c.(AsyncCapturer); ok {
		return ac
	}
	return asyncAdapter{c: c}
}

type asyncAdapter struct {
	c Capturer
}

func (a asyncAdapter) RequestCapture(ctx context.Context, t Target) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		buf, err := a.c.Capture(ctx, t)
		ch <- Result{Buffer: buf, Err: err}
	}()
	return ch
}

// Await waits for a future or ctx, whichever comes first.
func Await(ctx context.Context, future <-chan Result) (codec.RawBuffer, error) {
	select {
	case res := <-future:
		return res.Buffer, res.Err
	case <-ctx.Done():
		return codec.RawBuffer{}, ctx.Err()
	}
}
