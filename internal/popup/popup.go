package popup

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"os/exec"
	"time"

	"slouchless/internal/camera"
	"slouchless/internal/overlay"
)

// Kind names a popup backend.
type Kind string

const (
	KindAuto   Kind = "auto"
	KindPlayer Kind = "player"
	KindWindow Kind = "window"
	KindNotify Kind = "notify"
)

// DefaultOrder is the auto-selection preference.
var DefaultOrder = []Kind{KindPlayer, KindWindow, KindNotify}

// Mode is what the popup shows.
type Mode string

const (
	// ModeLive streams the raw preview: no overlay, no inference.
	ModeLive Mode = "live"
	// ModeFeedback streams the preview with the overlay and runs its own
	// inference at the feedback interval.
	ModeFeedback Mode = "feedback"
	// ModeStatic shows one frame with the triggering result.
	ModeStatic Mode = "static"
)

// State of the popup session.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Session describes one popup. The controller owns it; backends get a copy.
type Session struct {
	ID       string
	Backend  Kind
	Mode     Mode
	State    State
	Blocking bool
	Title    string
	Size     image.Point
	FPS      int
	OpenedAt time.Time
	LastPush time.Time
	Feedback overlay.Feedback
}

// Backend opens popups of one kind.
type Backend interface {
	Kind() Kind
	// Blocking reports whether an open popup should suspend monitoring.
	Blocking() bool
	// Open shows the popup with its first frame. It returns only once the
	// popup is ready, or an error.
	Open(ctx context.Context, s Session, first camera.Frame) (Handle, error)
}

// Handle controls an open popup.
type Handle interface {
	// Push shows a new (already composed) frame.
	Push(frame camera.Frame, fb overlay.Feedback) error
	// Done is closed when the popup went away on its own, e.g. the user
	// closed the window.
	Done() <-chan struct{}
	Close() error
}

var (
	// ErrDisabled is returned once every backend has failed.
	ErrDisabled = errors.New("popups disabled")
	// ErrBusy is returned when a session is opening or closing.
	ErrBusy = errors.New("popup is opening or closing")
)

// Error reports a popup failure.
type Error struct {
	Op      string
	Backend Kind
	Err     error
}

func (e *Error) Error() string {
	if e.Backend != "" {
		return fmt.Sprintf("popup %s (%s): %v", e.Op, e.Backend, e.Err)
	}
	return fmt.Sprintf("popup %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Availability is what the environment offers to popup backends.
type Availability struct {
	Display  bool
	Player   bool
	Viewer   bool
	Notifier bool
}

// DetectAvailability inspects the environment and PATH.
func DetectAvailability(player, viewer, notifier string) Availability {
	return Availability{
		Display:  os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != "",
		Player:   onPath(player),
		Viewer:   onPath(viewer),
		Notifier: onPath(notifier),
	}
}

func onPath(bin string) bool {
	if bin == "" {
		return false
	}
	_, err := exec.LookPath(bin)
	return err == nil
}

// Candidates returns the usable backends from order, preserving order.
func Candidates(order []Kind, a Availability) []Kind {
	if len(order) == 0 {
		order = DefaultOrder
	}

	seen := map[Kind]bool{}
	var out []Kind
	for _, k := range order {
		if seen[k] {
			continue
		}
		seen[k] = true

		var ok bool
		switch k {
		case KindPlayer:
			ok = a.Display && a.Player
		case KindWindow:
			ok = a.Display && a.Viewer
		case KindNotify:
			ok = a.Notifier
		}
		if ok {
			out = append(out, k)
		}
	}
	return out
}
