package capture

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/smazurov/framestream/internal/codec"
)

// Device grabs single frames from V4L2 devices with ffmpeg, decoded to raw
// pixels on stdout.
type Device struct {
	ffmpeg  string
	devices map[string]string // source name -> device path
	timeout time.Duration
	logger  *slog.Logger
}

// DeviceOptions configures a Device capturer.
type DeviceOptions struct {
	// FFmpegPath defaults to "ffmpeg" from PATH.
	FFmpegPath string
	// Devices maps source names to device paths such as /dev/video0.
	Devices map[string]string
	// Timeout bounds a single grab. Default 10s.
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewDevice creates an ffmpeg-backed capturer.
func NewDevice(opts DeviceOptions) *Device {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Device{
		ffmpeg:  opts.FFmpegPath,
		devices: opts.Devices,
		timeout: opts.Timeout,
		logger:  opts.Logger,
	}
}

// Args returns the ffmpeg arguments used to grab one frame of t from path.
func (d *Device) Args(path string, t Target) []string {
	pixFmt := "rgba"
	if t.Format == codec.RGB24 {
		pixFmt = "rgb24"
	}
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "v4l2",
		"-video_size", strconv.Itoa(t.Width) + "x" + strconv.Itoa(t.Height),
		"-i", path,
		"-frames:v", "1",
		"-f", "rawvideo",
		"-pix_fmt", pixFmt,
		"pipe:1",
	}
}

// Capture implements Capturer.
func (d *Device) Capture(ctx context.Context, t Target) (codec.RawBuffer, error) {
	path, ok := d.devices[t.Name]
	if !ok {
		return codec.RawBuffer{}, fmt.Errorf("%w: no device for source %s", ErrCaptureUnavailable, t.Name)
	}
	if _, err := os.Stat(path); err != nil {
		return codec.RawBuffer{}, fmt.Errorf("%w: device %s: %v", ErrSourceDisposed, path, err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.ffmpeg, d.Args(path, t)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		d.logger.Debug("ffmpeg grab failed", "source", t.Name, "device", path, "stderr", stderr.String())
		return codec.RawBuffer{}, fmt.Errorf("%w: %s: %v", ErrCaptureUnavailable, t.Name, err)
	}

	buf := codec.RawBuffer{Width: t.Width, Height: t.Height, Format: t.Format, Pix: stdout.Bytes()}
	if err := buf.Validate(); err != nil {
		return codec.RawBuffer{}, fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}
	return buf, nil
}
