package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/smazurov/framestream/internal/codec"
)

// Mux routes captures to the capturer registered for the target's source,
// or to a fallback.
type Mux struct {
	mu       sync.RWMutex
	routes   map[string]Capturer
	fallback Capturer
}

// NewMux creates a mux. fallback may be nil, in which case unrouted sources
// fail with ErrCaptureUnavailable.
func NewMux(fallback Capturer) *Mux {
	return &Mux{
		routes:   make(map[string]Capturer),
		fallback: fallback,
	}
}

// Handle routes captures of source name to c.
func (m *Mux) Handle(name string, c Capturer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[name] = c
}

// Capture implements Capturer.
func (m *Mux) Capture(ctx context.Context, t Target) (codec.RawBuffer, error) {
	m.mu.RLock()
	c, ok := m.routes[t.Name]
	if !ok {
		c = m.fallback
	}
	m.mu.RUnlock()

	if c == nil {
		return codec.RawBuffer{}, fmt.Errorf("%w: no capturer for %s", ErrCaptureUnavailable, t.Name)
	}
	return c.Capture(ctx, t)
}
