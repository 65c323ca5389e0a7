package popup

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"slouchless/internal/camera"
	"slouchless/internal/overlay"

	"github.com/kballard/go-shellquote"
)

// StreamConfig configures a backend that pipes frames into an external
// video program (ffplay by default) through stdin.
type StreamConfig struct {
	Binary string
	// ExtraArgs is shell-quoted and inserted before the input options.
	ExtraArgs string
	// Format is the stdin stream format: mjpeg or rawvideo (rgb24).
	Format  string
	Quality int
	// Grace is how long the program must stay alive after the first frame
	// before the popup counts as open.
	Grace time.Duration
}

// Stream is the player and window backend.
type Stream struct {
	kind     Kind
	blocking bool
	cfg      StreamConfig
	extra    []string

	// argsFn overrides command-line construction in tests.
	argsFn func(s Session) []string
}

// NewPlayer creates the video-player backend: a live or feedback stream
// that never blocks monitoring.
func NewPlayer(cfg StreamConfig) (*Stream, error) {
	return newStream(KindPlayer, false, cfg)
}

// NewWindow creates the preview-window backend. It honours all modes and,
// when blocking, suspends monitoring while open.
func NewWindow(cfg StreamConfig, blocking bool) (*Stream, error) {
	return newStream(KindWindow, blocking, cfg)
}

func newStream(kind Kind, blocking bool, cfg StreamConfig) (*Stream, error) {
	if cfg.Binary == "" {
		cfg.Binary = "ffplay"
	}
	if cfg.Format == "" {
		cfg.Format = overlay.FormatMJPEG
	}
	if cfg.Format != overlay.FormatMJPEG && cfg.Format != overlay.FormatRawVideo {
		return nil, fmt.Errorf("unknown stream format: %s", cfg.Format)
	}
	if cfg.Quality <= 0 {
		cfg.Quality = 80
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 300 * time.Millisecond
	}

	extra, err := shellquote.Split(cfg.ExtraArgs)
	if err != nil {
		return nil, fmt.Errorf("invalid %s arguments %q: %w", kind, cfg.ExtraArgs, err)
	}

	return &Stream{kind: kind, blocking: blocking, cfg: cfg, extra: extra}, nil
}

func (b *Stream) Kind() Kind {
	return b.kind
}

func (b *Stream) Blocking() bool {
	return b.blocking
}

// Binary returns the external program used by the backend.
func (b *Stream) Binary() string {
	return b.cfg.Binary
}

func (b *Stream) args(s Session) []string {
	if b.argsFn != nil {
		return b.argsFn(s)
	}

	fps := strconv.Itoa(max(1, s.FPS))
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-window_title", s.Title,
		"-x", strconv.Itoa(s.Size.X), "-y", strconv.Itoa(s.Size.Y),
		"-fflags", "nobuffer", "-flags", "low_delay", "-framedrop",
	}
	args = append(args, b.extra...)

	if b.cfg.Format == overlay.FormatRawVideo {
		args = append(args,
			"-f", "rawvideo",
			"-pixel_format", "rgb24",
			"-video_size", fmt.Sprintf("%dx%d", s.Size.X, s.Size.Y),
			"-framerate", fps)
	} else {
		args = append(args, "-f", "mjpeg", "-framerate", fps)
	}
	return append(args, "-i", "pipe:0")
}

// Open starts the program, writes the first frame and waits for the grace
// period. A program that exits in that window fails the open.
func (b *Stream) Open(ctx context.Context, s Session, first camera.Frame) (Handle, error) {
	p, err := startProcess(b.cfg.Binary, b.args(s))
	if err != nil {
		return nil, err
	}

	data, err := overlay.Encode(first, b.cfg.Format, b.cfg.Quality)
	if err != nil {
		p.stop(0)
		return nil, err
	}
	if err := p.write(data); err != nil {
		p.stop(0)
		return nil, fmt.Errorf("failed to write first frame: %w", err)
	}
	if err := p.awaitReady(b.cfg.Grace, ctx.Done()); err != nil {
		p.stop(0)
		return nil, err
	}

	static := s.Mode == ModeStatic
	if static {
		// EOF leaves the last frame on screen until the user closes it.
		p.closeInput()
	}

	return &streamHandle{proc: p, format: b.cfg.Format, quality: b.cfg.Quality, static: static}, nil
}

type streamHandle struct {
	proc    *process
	format  string
	quality int
	static  bool
}

func (h *streamHandle) Push(frame camera.Frame, fb overlay.Feedback) error {
	if h.static {
		return nil
	}
	data, err := overlay.Encode(frame, h.format, h.quality)
	if err != nil {
		return err
	}
	return h.proc.write(data)
}

func (h *streamHandle) Done() <-chan struct{} {
	return h.proc.done
}

func (h *streamHandle) Close() error {
	return h.proc.stop(time.Second)
}
