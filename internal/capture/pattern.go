package capture

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/smazurov/framestream/internal/codec"
)

// Pattern renders a moving test pattern per source. Each call advances the
// source's frame counter so consecutive frames differ.
type Pattern struct {
	mu       sync.Mutex
	frames   map[string]int
	disposed map[string]bool
}

// NewPattern creates a pattern capturer.
func NewPattern() *Pattern {
	return &Pattern{
		frames:   make(map[string]int),
		disposed: make(map[string]bool),
	}
}

// Dispose marks a source as gone; later captures fail with ErrSourceDisposed.
func (p *Pattern) Dispose(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disposed[name] = true
}

// Capture implements Capturer.
func (p *Pattern) Capture(ctx context.Context, t Target) (codec.RawBuffer, error) {
	if err := ctx.Err(); err != nil {
		return codec.RawBuffer{}, err
	}
	if t.Width <= 0 || t.Height <= 0 {
		return codec.RawBuffer{}, fmt.Errorf("%w: %s has no size", ErrCaptureUnavailable, t.Name)
	}

	p.mu.Lock()
	if p.disposed[t.Name] {
		p.mu.Unlock()
		return codec.RawBuffer{}, fmt.Errorf("%w: %s", ErrSourceDisposed, t.Name)
	}
	frame := p.frames[t.Name]
	p.frames[t.Name] = frame + 1
	p.mu.Unlock()

	h := fnv.New32a()
	_, _ = h.Write([]byte(t.Name))
	hue := byte(h.Sum32())

	buf := codec.NewRawBuffer(t.Width, t.Height, t.Format)
	bpp := t.Format.BytesPerPixel()
	for y := range t.Height {
		for x := range t.Width {
			i := (y*t.Width + x) * bpp
			buf.Pix[i] = byte(x*255/t.Width) + byte(frame)
			buf.Pix[i+1] = byte(y*255/t.Height)
			buf.Pix[i+2] = hue
			if bpp == 4 {
				buf.Pix[i+3] = 0xFF
			}
		}
	}
	return buf, nil
}

// Frames returns how many frames were rendered for name.
func (p *Pattern) Frames(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames[name]
}
