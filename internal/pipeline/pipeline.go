// Package pipeline turns capture events into encoded frames delivered to a
// sink.
//
// HandleCapture is called from a single coordination goroutine (Run) for
// every source on every capture tick. It gates the event through the
// scheduler, captures the frame and either encodes and writes it inline or
// hands the encode and write to a worker pool job.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/framestream/internal/capture"
	"github.com/smazurov/framestream/internal/codec"
	"github.com/smazurov/framestream/internal/events"
	"github.com/smazurov/framestream/internal/scheduler"
	"github.com/smazurov/framestream/internal/sink"
	"github.com/smazurov/framestream/internal/worker"
)

// Drop reasons reported to OnFrameDropped and metrics.
const (
	ReasonCaptureUnavailable = "capture_unavailable"
	ReasonSourceDisposed     = "source_disposed"
	ReasonCanceled           = "canceled"
	ReasonEncodeError        = "encode_error"
	ReasonWriteError         = "write_error"
	ReasonPoolRejected       = "pool_rejected"
)

// FrameInfo describes a produced frame.
type FrameInfo struct {
	ID        string
	Source    string
	Mode      sink.Mode
	Async     bool
	Timestamp time.Time
}

// Options configures a Pipeline.
type Options struct {
	Sources []Source

	Mode     sink.Mode
	Sink     sink.Writer
	Encoder  codec.Encoder
	Capturer capture.Capturer

	// Async moves capture completion, encoding and the sink write onto Pool.
	Async bool
	// Pool runs async jobs. Required when Async is set.
	Pool *worker.Pool

	Scheduler scheduler.Options

	// Enabled is the initial streaming state.
	Enabled bool

	// EventBus receives produced, dropped, rotation and state events. Optional.
	EventBus *events.Bus

	OnFrameProduced func(FrameInfo)
	OnFrameDropped  func(source, reason string, err error)

	// Now overrides the clock used for frame timestamps.
	Now func() time.Time

	Logger *slog.Logger
}

// Status is a snapshot of the pipeline for the API.
type Status struct {
	Enabled bool
	Mode    sink.Mode
	Async   bool
	Sources []string
	Window  []string
	Sched   scheduler.State
	Pool    *worker.Stats
}

// Pipeline orchestrates capture, scheduling, encoding and delivery.
type Pipeline struct {
	reg      *registry
	sched    *scheduler.Scheduler
	mode     sink.Mode
	sink     sink.Writer
	encoder  codec.Encoder
	capturer capture.Capturer
	future   capture.AsyncCapturer
	async    bool
	pool     *worker.Pool
	bus      *events.Bus
	now      func() time.Time
	logger   *slog.Logger

	enabled atomic.Bool

	hookMu     sync.RWMutex
	onProduced func(FrameInfo)
	onDropped  func(source, reason string, err error)
}

// New validates opts and builds a pipeline.
func New(opts Options) (*Pipeline, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reg, err := newRegistry(opts.Sources)
	if err != nil {
		return nil, err
	}

	if opts.Mode != sink.ModeNone {
		if opts.Sink == nil {
			return nil, fmt.Errorf("mode %s requires a sink", opts.Mode)
		}
		if opts.Capturer == nil {
			return nil, errors.New("pipeline requires a capturer")
		}
		if opts.Async && opts.Pool == nil {
			return nil, errors.New("async pipeline requires a worker pool")
		}
	}

	encoder := opts.Encoder
	if encoder == nil {
		encoder = codec.PNG{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	p := &Pipeline{
		reg:        reg,
		sched:      scheduler.New(len(reg.sources), opts.Scheduler, logger),
		mode:       opts.Mode,
		sink:       opts.Sink,
		encoder:    encoder,
		capturer:   opts.Capturer,
		async:      opts.Async,
		pool:       opts.Pool,
		bus:        opts.EventBus,
		now:        now,
		logger:     logger,
		onProduced: opts.OnFrameProduced,
		onDropped:  opts.OnFrameDropped,
	}
	if opts.Capturer != nil {
		p.future = capture.Async(opts.Capturer)
	}
	p.enabled.Store(opts.Enabled)
	streamingEnabled.Set(boolGauge(opts.Enabled))

	logger.Info("Pipeline ready",
		"mode", opts.Mode,
		"sources", len(reg.sources),
		"async", opts.Async,
		"delay", opts.Scheduler.Delay,
		"iterate", opts.Scheduler.Iterate,
		"quota", p.sched.Quota())
	return p, nil
}

// SetHooks replaces the frame hooks. Either may be nil.
func (p *Pipeline) SetHooks(onProduced func(FrameInfo), onDropped func(source, reason string, err error)) {
	p.hookMu.Lock()
	defer p.hookMu.Unlock()
	p.onProduced = onProduced
	p.onDropped = onDropped
}

// Run raises a capture event for every source on each tick until ctx is done.
func (p *Pipeline) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("capture interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.logger.Info("Capture loop started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Capture loop stopped")
			return nil
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick raises one capture event for every registered source, in order.
func (p *Pipeline) Tick(ctx context.Context) {
	for _, src := range p.reg.sources {
		p.HandleCapture(ctx, src.Name)
	}
}

// HandleCapture processes one capture event for the named source. It must
// not be called concurrently.
func (p *Pipeline) HandleCapture(ctx context.Context, name string) {
	if !p.enabled.Load() || p.mode == sink.ModeNone {
		return
	}

	idx, src, ok := p.reg.lookup(name)
	if !ok {
		p.logger.Debug("Capture event for unknown source", "source", name)
		return
	}

	decision := p.sched.Admit(idx)
	captureEvents.WithLabelValues(decision.String()).Inc()
	if decision != scheduler.Due {
		return
	}

	if p.sched.Processed(idx) {
		p.rotated()
	}

	ts := p.now()
	if p.async {
		p.dispatchAsync(ctx, src, ts)
		return
	}
	p.dispatchSync(ctx, src, ts)
}

func (p *Pipeline) dispatchSync(ctx context.Context, src Source, ts time.Time) {
	raw, err := p.capturer.Capture(ctx, src.target())
	if err != nil {
		p.dropped(src.Name, captureReason(err), err)
		return
	}

	data, err := p.encode(&bytes.Buffer{}, raw)
	if err != nil {
		p.dropped(src.Name, ReasonEncodeError, err)
		return
	}
	if err := p.write(src.Name, data, ts); err != nil {
		p.dropped(src.Name, ReasonWriteError, err)
		return
	}
	p.produced(src.Name, ts)
}

// dispatchAsync requests the capture now and completes it on the pool. The
// encoded bytes live in the slot's scratch buffer until the sink returns.
func (p *Pipeline) dispatchAsync(ctx context.Context, src Source, ts time.Time) {
	future := p.future.RequestCapture(ctx, src.target())

	err := p.pool.SubmitWithScratch(func(jobCtx context.Context, scratch []byte) {
		raw, err := capture.Await(jobCtx, future)
		if err != nil {
			p.dropped(src.Name, captureReason(err), err)
			return
		}

		data, err := p.encode(bytes.NewBuffer(scratch[:0]), raw)
		if err != nil {
			p.dropped(src.Name, ReasonEncodeError, err)
			return
		}
		if err := p.write(src.Name, data, ts); err != nil {
			p.dropped(src.Name, ReasonWriteError, err)
		}
	}, src.rawSize)
	if err != nil {
		p.dropped(src.Name, ReasonPoolRejected, err)
		return
	}
	p.produced(src.Name, ts)
}

func (p *Pipeline) encode(buf *bytes.Buffer, raw codec.RawBuffer) ([]byte, error) {
	start := time.Now()
	if err := p.encoder.Encode(buf, raw); err != nil {
		return nil, err
	}
	encodeSeconds.Observe(time.Since(start).Seconds())
	return buf.Bytes(), nil
}

func (p *Pipeline) write(source string, data []byte, ts time.Time) error {
	return p.sink.Write(sink.Frame{
		Source:    source,
		Data:      data,
		Ext:       p.encoder.Extension(),
		Timestamp: ts,
	})
}

func (p *Pipeline) produced(source string, ts time.Time) {
	info := FrameInfo{
		ID:        uuid.NewString(),
		Source:    source,
		Mode:      p.mode,
		Async:     p.async,
		Timestamp: ts,
	}
	framesProduced.WithLabelValues(source, p.mode.String()).Inc()

	p.hookMu.RLock()
	hook := p.onProduced
	p.hookMu.RUnlock()
	if hook != nil {
		hook(info)
	}

	if p.bus != nil {
		p.bus.Publish(events.FrameProducedEvent{
			ID:        info.ID,
			Source:    source,
			Mode:      p.mode.String(),
			Async:     p.async,
			Timestamp: ts.Format(time.RFC3339Nano),
		})
	}
}

func (p *Pipeline) dropped(source, reason string, err error) {
	framesDropped.WithLabelValues(source, reason).Inc()
	p.logger.Warn("Frame dropped", "source", source, "reason", reason, "error", err)

	p.hookMu.RLock()
	hook := p.onDropped
	p.hookMu.RUnlock()
	if hook != nil {
		hook(source, reason, err)
	}

	if p.bus != nil {
		ev := events.FrameDroppedEvent{
			Source:    source,
			Reason:    reason,
			Timestamp: p.now().Format(time.RFC3339),
		}
		if err != nil {
			ev.Error = err.Error()
		}
		p.bus.Publish(ev)
	}
}

func (p *Pipeline) rotated() {
	rotations.Inc()
	window := p.Window()
	p.logger.Debug("Active window rotated", "window", window)
	if p.bus != nil {
		p.bus.Publish(events.RotationEvent{
			Window:    window,
			Timestamp: p.now().Format(time.RFC3339),
		})
	}
}

func captureReason(err error) string {
	switch {
	case errors.Is(err, capture.ErrSourceDisposed):
		return ReasonSourceDisposed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCanceled
	default:
		return ReasonCaptureUnavailable
	}
}

// SetEnabled toggles streaming. reason is reported on the event bus.
func (p *Pipeline) SetEnabled(enabled bool, reason string) {
	if p.enabled.Swap(enabled) == enabled {
		return
	}
	streamingEnabled.Set(boolGauge(enabled))
	p.logger.Info("Streaming state changed", "enabled", enabled, "reason", reason)

	if p.bus != nil {
		p.bus.Publish(events.StreamingStateChangedEvent{
			Enabled:   enabled,
			Reason:    reason,
			Timestamp: p.now().Format(time.RFC3339),
		})
	}
}

// Enabled reports whether streaming is enabled.
func (p *Pipeline) Enabled() bool {
	return p.enabled.Load()
}

// SetDelay changes the per-source delay.
func (p *Pipeline) SetDelay(delay int) {
	p.sched.SetDelay(delay)
	p.logger.Info("Delay changed", "delay", p.sched.Delay())
}

// Delay returns the per-source delay.
func (p *Pipeline) Delay() int {
	return p.sched.Delay()
}

// Sources returns the registered source names in index order.
func (p *Pipeline) Sources() []string {
	return p.reg.names()
}

// Window returns the names of the active sources, or nil when not iterating.
func (p *Pipeline) Window() []string {
	idx := p.sched.Window()
	if idx == nil {
		return nil
	}
	names := make([]string, len(idx))
	for i, n := range idx {
		names[i] = p.reg.sources[n].Name
	}
	return names
}

// Status returns a snapshot of the pipeline.
func (p *Pipeline) Status() Status {
	st := Status{
		Enabled: p.enabled.Load(),
		Mode:    p.mode,
		Async:   p.async,
		Sources: p.reg.names(),
		Window:  p.Window(),
		Sched:   p.sched.Snapshot(),
	}
	if p.pool != nil {
		stats := p.pool.Stats()
		st.Pool = &stats
	}
	return st
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
