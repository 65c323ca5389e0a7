package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"time"

	xdraw "golang.org/x/image/draw"
)

// Frame is an immutable snapshot captured from a Source. Consumers must not
// write into Image; use Clone when the pixels need to outlive the caller.
type Frame struct {
	Image      *image.RGBA
	Width      int
	Height     int
	CapturedAt time.Time
	Seq        uint64
}

// IsZero reports whether the frame carries no pixels.
func (f Frame) IsZero() bool {
	return f.Image == nil
}

// Clone returns a deep copy of the frame.
func (f Frame) Clone() Frame {
	if f.Image == nil {
		return f
	}
	dst := image.NewRGBA(f.Image.Bounds())
	copy(dst.Pix, f.Image.Pix)
	f.Image = dst
	return f
}

// NewFrame wraps an image as a Frame, converting it to RGBA if needed.
func NewFrame(img image.Image, capturedAt time.Time, seq uint64) Frame {
	rgba, ok := img.(*image.RGBA)
	if !ok {
		b := img.Bounds()
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}
	b := rgba.Bounds()
	return Frame{
		Image:      rgba,
		Width:      b.Dx(),
		Height:     b.Dy(),
		CapturedAt: capturedAt,
		Seq:        seq,
	}
}

// EncodeJPEG encodes a frame as JPEG.
func EncodeJPEG(f Frame, quality int) ([]byte, error) {
	if f.Image == nil {
		return nil, fmt.Errorf("cannot encode empty frame")
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f.Image, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

// Source produces frames on demand.
type Source interface {
	// Capture returns the most recent frame. Backlog is dropped.
	Capture(ctx context.Context) (Frame, error)
	// Configure sets the resolution applied to every captured frame.
	// A zero size disables resizing.
	Configure(resizeTo image.Point)
	// Close releases the underlying device.
	Close() error
}

var (
	// ErrTimeout is returned when no new frame arrived within the read timeout.
	ErrTimeout = errors.New("camera read timed out")
	// ErrDisconnected is returned when the capture stream ended.
	ErrDisconnected = errors.New("camera disconnected")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("camera closed")
)

// CaptureError reports a failed capture.
type CaptureError struct {
	Device string
	Err    error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture from %s: %v", e.Device, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// Interpolator maps a configured resize filter name to an x/image scaler.
func Interpolator(name string) xdraw.Interpolator {
	switch name {
	case "nearest":
		return xdraw.NearestNeighbor
	case "catmullrom":
		return xdraw.CatmullRom
	default:
		return xdraw.ApproxBiLinear
	}
}

// Resize returns a copy of f scaled to size. The input is never modified.
func Resize(f Frame, size image.Point, scaler xdraw.Scaler) Frame {
	if f.Image == nil || size.X <= 0 || size.Y <= 0 {
		return f
	}
	if f.Width == size.X && f.Height == size.Y {
		return f
	}
	dst := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	scaler.Scale(dst, dst.Bounds(), f.Image, f.Image.Bounds(), xdraw.Src, nil)
	f.Image = dst
	f.Width = size.X
	f.Height = size.Y
	return f
}
