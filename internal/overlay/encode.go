package overlay

import (
	"fmt"

	"slouchless/internal/camera"
)

// Stream formats understood by the player backend.
const (
	FormatMJPEG    = "mjpeg"
	FormatRawVideo = "rawvideo"
)

// EncodeRaw returns the frame as packed rgb24, row-major.
func EncodeRaw(f camera.Frame) []byte {
	if f.Image == nil {
		return nil
	}
	b := f.Image.Bounds()
	out := make([]byte, 0, b.Dx()*b.Dy()*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := f.Image.Pix[f.Image.PixOffset(b.Min.X, y):f.Image.PixOffset(b.Max.X, y)]
		for i := 0; i < len(row); i += 4 {
			out = append(out, row[i], row[i+1], row[i+2])
		}
	}
	return out
}

// Encode serialises a frame for a player stream.
func Encode(f camera.Frame, format string, quality int) ([]byte, error) {
	switch format {
	case FormatMJPEG, "":
		return camera.EncodeJPEG(f, quality)
	case FormatRawVideo:
		if f.Image == nil {
			return nil, fmt.Errorf("cannot encode empty frame")
		}
		return EncodeRaw(f), nil
	default:
		return nil, fmt.Errorf("unknown stream format: %s", format)
	}
}
