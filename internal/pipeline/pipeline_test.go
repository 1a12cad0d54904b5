package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/smazurov/framestream/internal/capture"
	"github.com/smazurov/framestream/internal/codec"
	"github.com/smazurov/framestream/internal/events"
	"github.com/smazurov/framestream/internal/scheduler"
	"github.com/smazurov/framestream/internal/sink"
	"github.com/smazurov/framestream/internal/wire"
	"github.com/smazurov/framestream/internal/worker"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var fixedTime = time.Date(2025, 1, 27, 10, 30, 0, 125_000_000, time.UTC)

func fixedClock() time.Time { return fixedTime }

// captureFunc adapts a function to capture.Capturer.
type captureFunc func(ctx context.Context, t capture.Target) (codec.RawBuffer, error)

func (f captureFunc) Capture(ctx context.Context, t capture.Target) (codec.RawBuffer, error) {
	return f(ctx, t)
}

// zeroCapture returns an all-zero buffer of the target size.
func zeroCapture(calls *atomic.Int32) capture.Capturer {
	return captureFunc(func(_ context.Context, t capture.Target) (codec.RawBuffer, error) {
		if calls != nil {
			calls.Add(1)
		}
		return codec.NewRawBuffer(t.Width, t.Height, t.Format), nil
	})
}

type recorder struct {
	mu     sync.Mutex
	frames []sink.Frame
	err    error
}

func (r *recorder) Write(f sink.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	f.Data = bytes.Clone(f.Data)
	r.frames = append(r.frames, f)
	return nil
}

func (r *recorder) sources() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.frames))
	for i, f := range r.frames {
		out[i] = f.Source
	}
	return out
}

func (r *recorder) all() []sink.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sink.Frame(nil), r.frames...)
}

func sources(names ...string) []Source {
	out := make([]Source, len(names))
	for i, n := range names {
		out[i] = Source{Name: n, Width: 4, Height: 4, Format: codec.RGBA32}
	}
	return out
}

func TestEndToEndDisk(t *testing.T) {
	root := t.TempDir()
	disk, err := sink.NewDisk(root, []string{"cam1"}, sink.WithDiskLogger(testLogger()))
	if err != nil {
		t.Fatal(err)
	}

	p, err := New(Options{
		Sources:  sources("cam1"),
		Mode:     sink.ModeDisk,
		Sink:     disk,
		Capturer: zeroCapture(nil),
		Enabled:  true,
		Now:      fixedClock,
		Logger:   testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}

	p.HandleCapture(context.Background(), "cam1")

	path := filepath.Join(root, "cam1", "2025-01-27_10-30-00-125.png")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected frame at %s: %v", path, err)
	}

	raw, format, err := codec.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if format != "png" || raw.Width != 4 || raw.Height != 4 {
		t.Errorf("got %s %dx%d, want png 4x4", format, raw.Width, raw.Height)
	}
	if !bytes.Equal(raw.Pix, make([]byte, 4*4*4)) {
		t.Error("expected a fully transparent frame")
	}
}

func TestDelaySkipsEvents(t *testing.T) {
	rec := &recorder{}
	p, err := New(Options{
		Sources:   sources("cam1"),
		Mode:      sink.ModeDisk,
		Sink:      rec,
		Capturer:  zeroCapture(nil),
		Scheduler: scheduler.Options{Delay: 3},
		Enabled:   true,
		Logger:    testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for i := 1; i <= 8; i++ {
		p.HandleCapture(ctx, "cam1")
		want := i / 4
		if got := len(rec.all()); got != want {
			t.Fatalf("after event %d: %d frames, want %d", i, got, want)
		}
	}
}

func TestDisabledAndUnknownSource(t *testing.T) {
	rec := &recorder{}
	var calls atomic.Int32
	p, err := New(Options{
		Sources:  sources("cam1"),
		Mode:     sink.ModeDisk,
		Sink:     rec,
		Capturer: zeroCapture(&calls),
		Logger:   testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	p.HandleCapture(ctx, "cam1")
	if calls.Load() != 0 || len(rec.all()) != 0 {
		t.Fatal("disabled pipeline captured a frame")
	}

	p.SetEnabled(true, "test")
	p.HandleCapture(ctx, "nope")
	if calls.Load() != 0 {
		t.Fatal("unknown source triggered a capture")
	}

	p.HandleCapture(ctx, "cam1")
	if len(rec.all()) != 1 {
		t.Errorf("frames = %d, want 1", len(rec.all()))
	}
}

func TestModeNoneSkipsCapture(t *testing.T) {
	var calls atomic.Int32
	p, err := New(Options{
		Sources:  sources("cam1"),
		Mode:     sink.ModeNone,
		Capturer: zeroCapture(&calls),
		Enabled:  true,
		Logger:   testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}

	for range 3 {
		p.HandleCapture(context.Background(), "cam1")
	}
	if calls.Load() != 0 {
		t.Errorf("capture called %d times in mode none", calls.Load())
	}
}

func TestCaptureErrorDropsFrame(t *testing.T) {
	rec := &recorder{}
	var produced atomic.Int32
	var reasons []string

	p, err := New(Options{
		Sources: sources("drop-cam"),
		Mode:    sink.ModeDisk,
		Sink:    rec,
		Capturer: captureFunc(func(context.Context, capture.Target) (codec.RawBuffer, error) {
			return codec.RawBuffer{}, capture.ErrSourceDisposed
		}),
		Enabled:         true,
		OnFrameProduced: func(FrameInfo) { produced.Add(1) },
		OnFrameDropped: func(_, reason string, err error) {
			reasons = append(reasons, reason)
			if !errors.Is(err, capture.ErrSourceDisposed) {
				t.Errorf("unexpected drop error %v", err)
			}
		},
		Logger: testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}

	p.HandleCapture(context.Background(), "drop-cam")
	p.HandleCapture(context.Background(), "drop-cam")

	if produced.Load() != 0 || len(rec.all()) != 0 {
		t.Error("dropped frame reached the sink")
	}
	if !slices.Equal(reasons, []string{ReasonSourceDisposed, ReasonSourceDisposed}) {
		t.Errorf("reasons = %v", reasons)
	}
	if got := testutil.ToFloat64(framesDropped.WithLabelValues("drop-cam", ReasonSourceDisposed)); got != 2 {
		t.Errorf("dropped metric = %v, want 2", got)
	}
}

func TestWriteErrorDropsFrame(t *testing.T) {
	rec := &recorder{err: errors.New("disk full")}
	var dropped []string

	p, err := New(Options{
		Sources:        sources("full-cam"),
		Mode:           sink.ModeDisk,
		Sink:           rec,
		Capturer:       zeroCapture(nil),
		Enabled:        true,
		OnFrameDropped: func(_, reason string, _ error) { dropped = append(dropped, reason) },
		Logger:         testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}

	p.HandleCapture(context.Background(), "full-cam")
	if !slices.Equal(dropped, []string{ReasonWriteError}) {
		t.Errorf("dropped = %v", dropped)
	}
}

func TestAsyncProducedBeforeCompletion(t *testing.T) {
	rec := &recorder{}
	pool := worker.New(worker.Options{Name: "pipeline-test-async", Logger: testLogger()})
	defer pool.ShutdownAll()

	release := make(chan struct{})
	var produced atomic.Int32

	p, err := New(Options{
		Sources: sources("cam1"),
		Mode:    sink.ModeDisk,
		Sink:    rec,
		Capturer: captureFunc(func(_ context.Context, t capture.Target) (codec.RawBuffer, error) {
			<-release
			return codec.NewRawBuffer(t.Width, t.Height, t.Format), nil
		}),
		Async:           true,
		Pool:            pool,
		Enabled:         true,
		OnFrameProduced: func(info FrameInfo) {
			if !info.Async {
				t.Error("expected async frame info")
			}
			produced.Add(1)
		},
		Logger: testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}

	p.HandleCapture(context.Background(), "cam1")

	if produced.Load() != 1 {
		t.Fatal("produced hook must fire once the job is scheduled")
	}
	if len(rec.all()) != 0 {
		t.Fatal("frame written before capture completed")
	}

	close(release)
	if !pool.WaitTimeout(2 * time.Second) {
		t.Fatal("async job did not finish")
	}

	frames := rec.all()
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
	if _, _, err := codec.DecodeConfig(frames[0].Data); err != nil {
		t.Errorf("async frame is not a valid image: %v", err)
	}
}

func TestAsyncSequentialReusesSlot(t *testing.T) {
	rec := &recorder{}
	pool := worker.New(worker.Options{Name: "pipeline-test-reuse", Logger: testLogger()})
	defer pool.ShutdownAll()

	p, err := New(Options{
		Sources:  sources("cam1"),
		Mode:     sink.ModeDisk,
		Sink:     rec,
		Capturer: zeroCapture(nil),
		Async:    true,
		Pool:     pool,
		Enabled:  true,
		Logger:   testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}

	for range 3 {
		p.HandleCapture(context.Background(), "cam1")
		if !pool.WaitTimeout(2 * time.Second) {
			t.Fatal("job did not finish")
		}
	}

	if pool.Slots() != 1 {
		t.Errorf("slots = %d, want 1", pool.Slots())
	}
	frames := rec.all()
	if len(frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(frames))
	}
	for i := 1; i < len(frames); i++ {
		if !bytes.Equal(frames[i].Data, frames[0].Data) {
			t.Errorf("frame %d differs from frame 0 for identical input", i)
		}
	}
}

func TestAsyncPoolClosedDropsFrame(t *testing.T) {
	pool := worker.New(worker.Options{Name: "pipeline-test-closed", Logger: testLogger()})
	pool.ShutdownAll()

	var produced atomic.Int32
	var reason string
	p, err := New(Options{
		Sources:         sources("closed-cam"),
		Mode:            sink.ModeDisk,
		Sink:            &recorder{},
		Capturer:        zeroCapture(nil),
		Async:           true,
		Pool:            pool,
		Enabled:         true,
		OnFrameProduced: func(FrameInfo) { produced.Add(1) },
		OnFrameDropped: func(_, r string, err error) {
			reason = r
			if !errors.Is(err, worker.ErrPoolClosed) {
				t.Errorf("expected ErrPoolClosed, got %v", err)
			}
		},
		Logger: testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}

	p.HandleCapture(context.Background(), "closed-cam")
	if produced.Load() != 0 || reason != ReasonPoolRejected {
		t.Errorf("produced=%d reason=%q", produced.Load(), reason)
	}
}

func TestRotationWindow(t *testing.T) {
	rec := &recorder{}
	bus := events.New()
	rotated := make(chan events.RotationEvent, 4)
	unsub := bus.Subscribe(func(e events.RotationEvent) { rotated <- e })
	defer unsub()

	p, err := New(Options{
		Sources:   sources("cam0", "cam1", "cam2", "cam3", "cam4"),
		Mode:      sink.ModeDisk,
		Sink:      rec,
		Capturer:  zeroCapture(nil),
		Scheduler: scheduler.Options{Iterate: true, Quota: 2},
		Enabled:   true,
		EventBus:  bus,
		Logger:    testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if w := p.Window(); !slices.Equal(w, []string{"cam0", "cam1"}) {
		t.Fatalf("initial window = %v", w)
	}

	p.HandleCapture(ctx, "cam2")
	if len(rec.all()) != 0 {
		t.Fatal("inactive source produced a frame")
	}

	p.HandleCapture(ctx, "cam0")
	p.HandleCapture(ctx, "cam1")

	if w := p.Window(); !slices.Equal(w, []string{"cam2", "cam3"}) {
		t.Errorf("window after rotation = %v, want [cam2 cam3]", w)
	}
	if got := rec.sources(); !slices.Equal(got, []string{"cam0", "cam1"}) {
		t.Errorf("frames from %v", got)
	}

	select {
	case e := <-rotated:
		if !slices.Equal(e.Window, []string{"cam2", "cam3"}) {
			t.Errorf("rotation event window = %v", e.Window)
		}
	case <-time.After(time.Second):
		t.Fatal("no rotation event")
	}
}

func TestSocketModeSendsWireMessage(t *testing.T) {
	b := &captureBroadcaster{}
	p, err := New(Options{
		Sources:  sources("cam1"),
		Mode:     sink.ModeSocket,
		Sink:     sink.NewSocket(b, sink.WithSocketLogger(testLogger())),
		Capturer: zeroCapture(nil),
		Enabled:  true,
		Now:      fixedClock,
		Logger:   testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}

	p.HandleCapture(context.Background(), "cam1")

	if len(b.messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(b.messages))
	}
	msg, err := wire.Decode(b.messages[0])
	if err != nil {
		t.Fatal(err)
	}
	if msg.Name != "cam1/2025-01-27_10-30-00-125.png" {
		t.Errorf("name = %q", msg.Name)
	}
	if _, format, err := codec.DecodeConfig(msg.Payload); err != nil || format != "png" {
		t.Errorf("payload is not a png: %v", err)
	}
}

type captureBroadcaster struct {
	messages [][]byte
}

func (c *captureBroadcaster) Broadcast(data []byte) error {
	c.messages = append(c.messages, data)
	return nil
}

func (c *captureBroadcaster) BroadcastAsync(data []byte, onComplete func(error)) {
	err := c.Broadcast(data)
	if onComplete != nil {
		onComplete(err)
	}
}

func TestSetEnabledPublishesOnChange(t *testing.T) {
	bus := events.New()
	changes := make(chan events.StreamingStateChangedEvent, 4)
	unsub := bus.Subscribe(func(e events.StreamingStateChangedEvent) { changes <- e })
	defer unsub()

	p, err := New(Options{
		Sources:  sources("cam1"),
		Mode:     sink.ModeNone,
		Enabled:  true,
		EventBus: bus,
		Logger:   testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}

	p.SetEnabled(true, "noop")
	p.SetEnabled(false, "api")

	select {
	case e := <-changes:
		if e.Enabled || e.Reason != "api" {
			t.Errorf("unexpected event %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("no state change event")
	}
	select {
	case e := <-changes:
		t.Errorf("unexpected extra event %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
	if p.Enabled() {
		t.Error("pipeline still enabled")
	}
}

func TestRunTicksUntilCancelled(t *testing.T) {
	got := make(chan struct{}, 16)
	p, err := New(Options{
		Sources: sources("cam1", "cam2"),
		Mode:    sink.ModeDisk,
		Sink: writerFunc(func(sink.Frame) error {
			select {
			case got <- struct{}{}:
			default:
			}
			return nil
		}),
		Capturer: zeroCapture(nil),
		Enabled:  true,
		Logger:   testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, 5*time.Millisecond) }()

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("no frame produced by Run")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}

	if err := p.Run(context.Background(), 0); err == nil {
		t.Error("expected error for zero interval")
	}
}

type writerFunc func(sink.Frame) error

func (f writerFunc) Write(fr sink.Frame) error { return f(fr) }

func TestNewValidation(t *testing.T) {
	pool := worker.New(worker.Options{Name: "pipeline-test-validation", Logger: testLogger()})
	defer pool.ShutdownAll()

	tests := []struct {
		name string
		opts Options
	}{
		{"duplicate source", Options{Sources: sources("cam1", "cam1")}},
		{"nested source name", Options{Sources: sources("a/b")}},
		{"escaping source name", Options{Sources: sources("..")}},
		{"zero size", Options{Sources: []Source{{Name: "cam1"}}}},
		{"disk without sink", Options{Sources: sources("cam1"), Mode: sink.ModeDisk, Capturer: zeroCapture(nil)}},
		{"missing capturer", Options{Sources: sources("cam1"), Mode: sink.ModeDisk, Sink: &recorder{}}},
		{"async without pool", Options{Sources: sources("cam1"), Mode: sink.ModeDisk, Sink: &recorder{}, Capturer: zeroCapture(nil), Async: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Logger = testLogger()
			if _, err := New(tt.opts); err == nil {
				t.Error("expected error")
			}
		})
	}

	p, err := New(Options{Sources: sources("cam1"), Pool: pool, Logger: testLogger()})
	if err != nil {
		t.Fatalf("unset mode should not need a sink: %v", err)
	}
	if st := p.Status(); st.Mode != sink.ModeNone {
		t.Errorf("unset mode = %s, want none", st.Mode)
	}
}

func TestStatus(t *testing.T) {
	pool := worker.New(worker.Options{Name: "pipeline-test-status", Logger: testLogger()})
	defer pool.ShutdownAll()

	p, err := New(Options{
		Sources:   sources("cam1", "cam2", "cam3"),
		Mode:      sink.ModeDisk,
		Sink:      &recorder{},
		Capturer:  zeroCapture(nil),
		Async:     true,
		Pool:      pool,
		Scheduler: scheduler.Options{Delay: 2, Iterate: true, Quota: 9},
		Enabled:   true,
		Logger:    testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	p.SetDelay(5)

	st := p.Status()
	if !st.Enabled || !st.Async || st.Mode != sink.ModeDisk {
		t.Errorf("unexpected status %+v", st)
	}
	if st.Sched.Delay != 5 || st.Sched.Quota != 1 {
		t.Errorf("sched = %+v, want delay 5 quota 1", st.Sched)
	}
	if !slices.Equal(st.Window, []string{"cam1"}) {
		t.Errorf("window = %v", st.Window)
	}
	if st.Pool == nil || st.Pool.Name != "pipeline-test-status" {
		t.Errorf("pool stats = %+v", st.Pool)
	}
}
