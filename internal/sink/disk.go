package sink

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Disk writes frames to root/source/timestamp.ext.
type Disk struct {
	root   string
	now    func() time.Time
	logger *slog.Logger
}

// DiskOption configures a Disk sink.
type DiskOption func(*Disk)

// WithClock overrides the time source used when a frame has no timestamp.
func WithClock(now func() time.Time) DiskOption {
	return func(d *Disk) {
		d.now = now
	}
}

// WithDiskLogger sets the logger.
func WithDiskLogger(logger *slog.Logger) DiskOption {
	return func(d *Disk) {
		d.logger = logger
	}
}

// NewDisk creates root and one folder per source. Folders are never created
// on the write path.
func NewDisk(root string, sources []string, opts ...DiskOption) (*Disk, error) {
	d := &Disk{
		root:   root,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}

	if root == "" {
		return nil, fmt.Errorf("disk sink requires a root folder")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create save root %s: %w", root, err)
	}
	for _, src := range sources {
		if !filepath.IsLocal(src) {
			return nil, fmt.Errorf("source name %q is not a valid folder name", src)
		}
		if err := os.MkdirAll(filepath.Join(root, src), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create folder for source %s: %w", src, err)
		}
	}

	d.logger.Info("Disk sink ready", "root", root, "sources", len(sources))
	return d, nil
}

// Root returns the save root.
func (d *Disk) Root() string {
	return d.root
}

// Path returns where a frame from source taken at t with extension ext is
// written.
func (d *Disk) Path(source string, t time.Time, ext string) string {
	return filepath.Join(d.root, source, Timestamp(t)+ext)
}

// Write stores the frame. A missing source folder drops the frame with a
// warning instead of failing.
func (d *Disk) Write(f Frame) error {
	dir := filepath.Join(d.root, f.Source)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		framesDropped.WithLabelValues("disk", "missing_folder").Inc()
		d.logger.Warn("Destination folder missing, frame dropped", "source", f.Source, "folder", dir)
		return nil
	}

	ts := f.Timestamp
	if ts.IsZero() {
		ts = d.now()
	}

	path := d.Path(f.Source, ts, f.Ext)
	if err := os.WriteFile(path, f.Data, 0o644); err != nil {
		framesDropped.WithLabelValues("disk", "write_error").Inc()
		return fmt.Errorf("failed to write frame %s: %w", path, err)
	}

	framesWritten.WithLabelValues("disk").Inc()
	bytesWritten.WithLabelValues("disk").Add(float64(len(f.Data)))
	d.logger.Debug("Frame written", "source", f.Source, "path", path, "bytes", len(f.Data))
	return nil
}
