package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"strings"
)

// ErrUnknownFormat is returned for unsupported image formats.
var ErrUnknownFormat = errors.New("unknown image format")

// Encoder compresses raw frames.
type Encoder interface {
	Encode(w io.Writer, raw RawBuffer) error
	// Extension returns the file extension including the dot.
	Extension() string
}

// PNG encodes lossless PNG images.
type PNG struct {
	Level png.CompressionLevel
}

// Encode implements Encoder.
func (e PNG) Encode(w io.Writer, raw RawBuffer) error {
	img, err := raw.Image()
	if err != nil {
		return err
	}
	enc := png.Encoder{CompressionLevel: e.Level}
	return enc.Encode(w, img)
}

// Extension implements Encoder.
func (PNG) Extension() string { return ".png" }

// JPEG encodes lossy JPEG images. Alpha is dropped.
type JPEG struct {
	Quality int
}

// Encode implements Encoder.
func (e JPEG) Encode(w io.Writer, raw RawBuffer) error {
	img, err := raw.Image()
	if err != nil {
		return err
	}
	quality := e.Quality
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
}

// Extension implements Encoder.
func (JPEG) Extension() string { return ".jpg" }

// NewEncoder returns the encoder for a format name ("png", "jpeg").
func NewEncoder(format string, quality int) (Encoder, error) {
	switch strings.ToLower(format) {
	case "png", "":
		return PNG{}, nil
	case "jpeg", "jpg":
		return JPEG{Quality: quality}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// EncodeBytes encodes raw into a fresh byte slice.
func EncodeBytes(enc Encoder, raw RawBuffer) ([]byte, error) {
	var buf bytes.Buffer
	if err := enc.Encode(&buf, raw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode decompresses a PNG or JPEG image into an RGBA32 buffer and reports
// the detected format name.
func Decode(data []byte) (RawBuffer, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return RawBuffer{}, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return FromImage(img), format, nil
}

// DecodeConfig reads only the image header.
func DecodeConfig(data []byte) (image.Config, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, "", fmt.Errorf("failed to decode image header: %w", err)
	}
	return cfg, format, nil
}
