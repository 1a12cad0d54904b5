// Package codec converts raw pixel buffers to compressed images and back.
package codec

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"
)

// ErrInvalidBuffer is returned when a buffer's size does not match its
// dimensions and pixel format.
var ErrInvalidBuffer = errors.New("invalid raw buffer")

// PixelFormat tags the layout of RawBuffer.Pix.
type PixelFormat int

// Supported pixel formats.
const (
	RGBA32 PixelFormat = iota // 4 bytes per pixel, non-premultiplied
	RGB24                     // 3 bytes per pixel
)

// BytesPerPixel returns the pixel stride of f.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case RGB24:
		return 3
	default:
		return 4
	}
}

// String returns the format tag.
func (f PixelFormat) String() string {
	switch f {
	case RGBA32:
		return "rgba32"
	case RGB24:
		return "rgb24"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// ParsePixelFormat parses a format tag such as "rgba32".
func ParsePixelFormat(s string) (PixelFormat, error) {
	switch strings.ToLower(s) {
	case "rgba32", "rgba", "":
		return RGBA32, nil
	case "rgb24", "rgb":
		return RGB24, nil
	default:
		return 0, fmt.Errorf("unknown pixel format %q", s)
	}
}

// RawBuffer is an uncompressed frame, rows top to bottom.
type RawBuffer struct {
	Width  int
	Height int
	Format PixelFormat
	Pix    []byte
}

// NewRawBuffer allocates a zeroed buffer.
func NewRawBuffer(width, height int, format PixelFormat) RawBuffer {
	return RawBuffer{
		Width:  width,
		Height: height,
		Format: format,
		Pix:    make([]byte, width*height*format.BytesPerPixel()),
	}
}

// Size returns the expected length of Pix.
func (b RawBuffer) Size() int {
	return b.Width * b.Height * b.Format.BytesPerPixel()
}

// Validate checks dimensions against the pixel slice.
func (b RawBuffer) Validate() error {
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidBuffer, b.Width, b.Height)
	}
	if len(b.Pix) != b.Size() {
		return fmt.Errorf("%w: %dx%d %s needs %d bytes, got %d",
			ErrInvalidBuffer, b.Width, b.Height, b.Format, b.Size(), len(b.Pix))
	}
	return nil
}

// Image wraps the buffer as an image.Image. RGBA32 buffers share Pix.
func (b RawBuffer) Image() (image.Image, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	rect := image.Rect(0, 0, b.Width, b.Height)
	switch b.Format {
	case RGBA32:
		return &image.NRGBA{Pix: b.Pix, Stride: b.Width * 4, Rect: rect}, nil
	case RGB24:
		img := image.NewNRGBA(rect)
		for src, dst := 0, 0; src < len(b.Pix); src, dst = src+3, dst+4 {
			img.Pix[dst] = b.Pix[src]
			img.Pix[dst+1] = b.Pix[src+1]
			img.Pix[dst+2] = b.Pix[src+2]
			img.Pix[dst+3] = 0xFF
		}
		return img, nil
	default:
		return nil, fmt.Errorf("%w: unsupported format %s", ErrInvalidBuffer, b.Format)
	}
}

// FromImage converts any image to an RGBA32 buffer.
func FromImage(img image.Image) RawBuffer {
	bounds := img.Bounds()
	buf := NewRawBuffer(bounds.Dx(), bounds.Dy(), RGBA32)

	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Stride == bounds.Dx()*4 {
		copy(buf.Pix, nrgba.Pix[nrgba.PixOffset(bounds.Min.X, bounds.Min.Y):])
		return buf
	}

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			buf.Pix[i], buf.Pix[i+1], buf.Pix[i+2], buf.Pix[i+3] = c.R, c.G, c.B, c.A
			i += 4
		}
	}
	return buf
}
