package camera

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"
	"time"

	xdraw "golang.org/x/image/draw"
)

// Static replays a single still image as a frame stream. Each Capture
// returns a fresh sequence number. Used by the check and popup-test commands.
type Static struct {
	mu     sync.Mutex
	img    *image.RGBA
	seq    uint64
	resize image.Point
	scaler xdraw.Scaler
	closed bool
}

// NewStatic builds a Static source from an image.
func NewStatic(img image.Image) *Static {
	f := NewFrame(img, time.Now(), 0)
	return &Static{img: f.Image, scaler: xdraw.ApproxBiLinear}
}

// LoadImage decodes a JPEG or PNG file.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return img, nil
}

func (s *Static) Capture(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, &CaptureError{Device: "static", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Frame{}, &CaptureError{Device: "static", Err: ErrClosed}
	}
	s.seq++
	f := NewFrame(s.img, time.Now(), s.seq)
	return Resize(f, s.resize, s.scaler), nil
}

func (s *Static) Configure(resizeTo image.Point) {
	s.mu.Lock()
	s.resize = resizeTo
	s.mu.Unlock()
}

func (s *Static) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
