package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"slouchless/internal/telemetry"

	xdraw "golang.org/x/image/draw"
)

// Config describes how to open a capture device.
type Config struct {
	// Device is a V4L2 path (/dev/video0) or an http(s)/rtsp URL.
	Device      string
	FFmpeg      string
	CaptureSize image.Point
	FPS         int
	ReadTimeout time.Duration
	ResizeTo    image.Point
	Filter      string
}

// ResolveDevice returns the device path, falling back to /dev/video<index>.
func ResolveDevice(device string, index int) string {
	if device != "" {
		return device
	}
	return "/dev/video" + strconv.Itoa(index)
}

// isNetworkSource checks if device is an HTTP/RTSP URL
func isNetworkSource(device string) bool {
	return strings.HasPrefix(device, "http://") ||
		strings.HasPrefix(device, "https://") ||
		strings.HasPrefix(device, "rtsp://")
}

// Device streams raw frames from an ffmpeg subprocess and keeps only the
// newest one. It is safe for concurrent use.
type Device struct {
	name        string
	frameSize   image.Point
	readTimeout time.Duration

	mu           sync.Mutex
	latest       Frame
	lastReturned uint64
	newFrame     chan struct{}
	readErr      error
	resize       image.Point
	scaler       xdraw.Scaler

	done      chan struct{}
	closeOnce sync.Once
	closeFn   func() error
	stderr    *tailBuffer
	drops     atomic.Uint64
	seq       uint64
}

// Open starts ffmpeg on the configured device. It fails when the device does
// not exist or the process cannot be started.
func Open(cfg Config) (*Device, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("camera device is required")
	}
	if cfg.CaptureSize.X <= 0 || cfg.CaptureSize.Y <= 0 {
		return nil, fmt.Errorf("invalid capture size %v", cfg.CaptureSize)
	}
	if !isNetworkSource(cfg.Device) {
		if _, err := os.Stat(cfg.Device); err != nil {
			return nil, fmt.Errorf("camera device %s does not exist: %w", cfg.Device, err)
		}
	}

	bin := cfg.FFmpeg
	if bin == "" {
		bin = "ffmpeg"
	}

	cmd := exec.Command(bin, ffmpegArgs(cfg)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open ffmpeg stdout: %w", err)
	}
	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", bin, err)
	}
	telemetry.LogDebug("Camera stream started", "device", cfg.Device, "pid", cmd.Process.Pid)

	closeFn := func() error {
		_ = cmd.Process.Kill()
		err := cmd.Wait()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Killed on purpose.
			return nil
		}
		return err
	}

	return newDevice(cfg, stdout, closeFn, stderr), nil
}

func ffmpegArgs(cfg Config) []string {
	size := fmt.Sprintf("%dx%d", cfg.CaptureSize.X, cfg.CaptureSize.Y)
	args := []string{"-hide_banner", "-loglevel", "error"}

	if isNetworkSource(cfg.Device) {
		args = append(args, "-i", cfg.Device)
	} else {
		args = append(args, "-f", "v4l2")
		if cfg.FPS > 0 {
			args = append(args, "-framerate", strconv.Itoa(cfg.FPS))
		}
		args = append(args, "-video_size", size, "-i", cfg.Device)
	}

	return append(args,
		"-vf", fmt.Sprintf("scale=%d:%d", cfg.CaptureSize.X, cfg.CaptureSize.Y),
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-",
	)
}

// newDevice wires a Device to an rgb24 byte stream of cfg.CaptureSize frames.
func newDevice(cfg Config, r io.Reader, closeFn func() error, stderr *tailBuffer) *Device {
	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	d := &Device{
		name:        cfg.Device,
		frameSize:   cfg.CaptureSize,
		readTimeout: timeout,
		newFrame:    make(chan struct{}),
		resize:      cfg.ResizeTo,
		scaler:      Interpolator(cfg.Filter),
		done:        make(chan struct{}),
		closeFn:     closeFn,
		stderr:      stderr,
	}
	go d.readLoop(r)
	return d
}

func (d *Device) readLoop(r io.Reader) {
	w, h := d.frameSize.X, d.frameSize.Y
	buf := make([]byte, w*h*3)

	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			d.mu.Lock()
			if d.readErr == nil {
				d.readErr = fmt.Errorf("%w: %v%s", ErrDisconnected, err, d.stderrSuffix())
			}
			close(d.newFrame)
			d.newFrame = make(chan struct{})
			d.mu.Unlock()
			return
		}

		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for i, j := 0, 0; i < len(buf); i, j = i+3, j+4 {
			img.Pix[j] = buf[i]
			img.Pix[j+1] = buf[i+1]
			img.Pix[j+2] = buf[i+2]
			img.Pix[j+3] = 0xff
		}

		d.publish(img, time.Now())
	}
}

// publish overwrites the mailbox with a new frame and wakes waiting readers.
func (d *Device) publish(img *image.RGBA, at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.latest.Seq > d.lastReturned {
		d.drops.Add(1)
	}
	d.seq++
	d.latest = Frame{Image: img, Width: img.Rect.Dx(), Height: img.Rect.Dy(), CapturedAt: at, Seq: d.seq}
	close(d.newFrame)
	d.newFrame = make(chan struct{})
}

// Capture returns the newest frame not yet handed out, waiting up to the
// read timeout for one to arrive.
func (d *Device) Capture(ctx context.Context) (Frame, error) {
	timer := time.NewTimer(d.readTimeout)
	defer timer.Stop()

	for {
		d.mu.Lock()
		select {
		case <-d.done:
			d.mu.Unlock()
			return Frame{}, &CaptureError{Device: d.name, Err: ErrClosed}
		default:
		}
		if d.latest.Seq > d.lastReturned {
			f := d.latest
			d.lastReturned = f.Seq
			size, scaler := d.resize, d.scaler
			d.mu.Unlock()
			return Resize(f, size, scaler), nil
		}
		if d.readErr != nil {
			err := d.readErr
			d.mu.Unlock()
			return Frame{}, &CaptureError{Device: d.name, Err: err}
		}
		wait := d.newFrame
		d.mu.Unlock()

		select {
		case <-wait:
		case <-d.done:
		case <-timer.C:
			return Frame{}, &CaptureError{Device: d.name, Err: ErrTimeout}
		case <-ctx.Done():
			return Frame{}, &CaptureError{Device: d.name, Err: ctx.Err()}
		}
	}
}

// Configure sets the target resolution for subsequent captures.
func (d *Device) Configure(resizeTo image.Point) {
	d.mu.Lock()
	d.resize = resizeTo
	d.mu.Unlock()
}

// Dropped returns how many frames were overwritten before anyone read them.
func (d *Device) Dropped() uint64 {
	return d.drops.Load()
}

// Name returns the device path or URL.
func (d *Device) Name() string {
	return d.name
}

// Close stops the capture process. Safe to call more than once.
func (d *Device) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.done)
		if d.closeFn != nil {
			err = d.closeFn()
		}
		telemetry.LogDebug("Camera released", "device", d.name, "dropped_frames", d.drops.Load())
	})
	return err
}

func (d *Device) stderrSuffix() string {
	if d.stderr == nil {
		return ""
	}
	if s := strings.TrimSpace(d.stderr.String()); s != "" {
		return " (stderr: " + s + ")"
	}
	return ""
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.max; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}
