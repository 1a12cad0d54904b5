package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/smazurov/framestream/internal/capture"
	"github.com/smazurov/framestream/internal/codec"
)

// ErrInvalidSource is returned for sources that cannot be registered.
var ErrInvalidSource = errors.New("invalid source")

// Source is a registered frame producer.
type Source struct {
	Name   string
	Width  int
	Height int
	Format codec.PixelFormat
}

func (s Source) target() capture.Target {
	return capture.Target{
		Name:   s.Name,
		Width:  s.Width,
		Height: s.Height,
		Format: s.Format,
	}
}

// rawSize is the scratch size an encode of this source starts from.
func (s Source) rawSize() int {
	return s.Width * s.Height * s.Format.BytesPerPixel()
}

// registry maps source names to their stable index.
type registry struct {
	sources []Source
	index   map[string]int
}

func newRegistry(sources []Source) (*registry, error) {
	r := &registry{
		sources: make([]Source, 0, len(sources)),
		index:   make(map[string]int, len(sources)),
	}
	for _, src := range sources {
		if src.Name == "" || !filepath.IsLocal(src.Name) || filepath.Base(src.Name) != src.Name {
			return nil, fmt.Errorf("%w: name %q", ErrInvalidSource, src.Name)
		}
		if src.Width <= 0 || src.Height <= 0 {
			return nil, fmt.Errorf("%w: %s has size %dx%d", ErrInvalidSource, src.Name, src.Width, src.Height)
		}
		if _, dup := r.index[src.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidSource, src.Name)
		}
		r.index[src.Name] = len(r.sources)
		r.sources = append(r.sources, src)
	}
	return r, nil
}

func (r *registry) lookup(name string) (int, Source, bool) {
	i, ok := r.index[name]
	if !ok {
		return -1, Source{}, false
	}
	return i, r.sources[i], true
}

func (r *registry) names() []string {
	names := make([]string, len(r.sources))
	for i, src := range r.sources {
		names[i] = src.Name
	}
	return names
}
