package capture

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/smazurov/framestream/internal/codec"
)

func TestPatternCapture(t *testing.T) {
	p := NewPattern()
	target := Target{Name: "cam1", Width: 8, Height: 4, Format: codec.RGBA32}

	first, err := p.Capture(context.Background(), target)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if err := first.Validate(); err != nil {
		t.Fatalf("invalid buffer: %v", err)
	}

	second, err := p.Capture(context.Background(), target)
	if err != nil {
		t.Fatal(err)
	}
	if slices.Equal(first.Pix, second.Pix) {
		t.Error("expected consecutive frames to differ")
	}
	if p.Frames("cam1") != 2 {
		t.Errorf("frames = %d, want 2", p.Frames("cam1"))
	}
}

func TestPatternDisposed(t *testing.T) {
	p := NewPattern()
	p.Dispose("cam1")

	_, err := p.Capture(context.Background(), Target{Name: "cam1", Width: 2, Height: 2})
	if !errors.Is(err, ErrSourceDisposed) {
		t.Errorf("expected ErrSourceDisposed, got %v", err)
	}
}

func TestPatternNoSize(t *testing.T) {
	_, err := NewPattern().Capture(context.Background(), Target{Name: "cam1"})
	if !errors.Is(err, ErrCaptureUnavailable) {
		t.Errorf("expected ErrCaptureUnavailable, got %v", err)
	}
}

func TestAsyncResolvesFuture(t *testing.T) {
	ac := Async(NewPattern())
	future := ac.RequestCapture(context.Background(), Target{Name: "cam1", Width: 2, Height: 2, Format: codec.RGB24})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	buf, err := Await(ctx, future)
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if len(buf.Pix) != 2*2*3 {
		t.Errorf("pix = %d bytes, want 12", len(buf.Pix))
	}
}

func TestAwaitHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Await(ctx, make(chan Result))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDeviceArgs(t *testing.T) {
	d := NewDevice(DeviceOptions{})
	args := d.Args("/dev/video0", Target{Width: 640, Height: 480, Format: codec.RGB24})

	for _, want := range []string{"/dev/video0", "640x480", "rgb24", "rawvideo", "pipe:1"} {
		if !slices.Contains(args, want) {
			t.Errorf("args %v missing %q", args, want)
		}
	}
}

func TestDeviceUnknownSource(t *testing.T) {
	d := NewDevice(DeviceOptions{Devices: map[string]string{"cam1": "/dev/does-not-exist"}})

	if _, err := d.Capture(context.Background(), Target{Name: "other", Width: 1, Height: 1}); !errors.Is(err, ErrCaptureUnavailable) {
		t.Errorf("expected ErrCaptureUnavailable, got %v", err)
	}
	if _, err := d.Capture(context.Background(), Target{Name: "cam1", Width: 1, Height: 1}); !errors.Is(err, ErrSourceDisposed) {
		t.Errorf("expected ErrSourceDisposed for missing device, got %v", err)
	}
}

type namedCapturer string

func (n namedCapturer) Capture(_ context.Context, t Target) (codec.RawBuffer, error) {
	buf := codec.NewRawBuffer(t.Width, t.Height, t.Format)
	buf.Pix[0] = n[0]
	return buf, nil
}

func TestMuxRoutes(t *testing.T) {
	m := NewMux(namedCapturer("f"))
	m.Handle("cam1", namedCapturer("d"))

	tests := []struct {
		source string
		want   byte
	}{
		{"cam1", 'd'},
		{"cam2", 'f'},
	}
	for _, tt := range tests {
		buf, err := m.Capture(context.Background(), Target{Name: tt.source, Width: 1, Height: 1, Format: codec.RGBA32})
		if err != nil {
			t.Fatalf("%s: %v", tt.source, err)
		}
		if buf.Pix[0] != tt.want {
			t.Errorf("%s routed to %q, want %q", tt.source, buf.Pix[0], tt.want)
		}
	}
}

func TestMuxWithoutFallback(t *testing.T) {
	m := NewMux(nil)
	_, err := m.Capture(context.Background(), Target{Name: "cam1", Width: 1, Height: 1})
	if !errors.Is(err, ErrCaptureUnavailable) {
		t.Errorf("expected ErrCaptureUnavailable, got %v", err)
	}
}
