package popup

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"slouchless/internal/camera"
	"slouchless/internal/detector"
	"slouchless/internal/overlay"
	"slouchless/internal/telemetry"

	"github.com/google/uuid"
)

// Config controls popup behaviour.
type Config struct {
	Backend          Kind
	Order            []Kind
	Mode             Mode
	Size             image.Point
	PreviewFPS       int
	FeedbackInterval time.Duration
	AutoClose        time.Duration
	Title            string
	Request          detector.Request
}

// Hooks observe the controller.
type Hooks struct {
	// OnFeedback is called with each result of the popup's own inference.
	OnFeedback func(res detector.Result, frame camera.Frame)
}

type activeSession struct {
	session  Session
	handle   Handle
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	once     sync.Once
	released chan struct{}
}

// Controller owns the popup lifecycle: Closed -> Opening -> Open -> Closing
// -> Closed. At most one session exists at a time.
type Controller struct {
	cfg      Config
	backends map[Kind]Backend
	avail    func() Availability
	source   camera.Source
	det      detector.Detector
	renderer overlay.Renderer
	hooks    Hooks

	mu            sync.Mutex
	state         State
	active        *activeSession
	last          Session
	released      chan struct{}
	feedback      overlay.Feedback
	lastFrame     camera.Frame
	nextInference time.Time
	disabled      bool
}

// NewController creates a controller. det should be the shared single
// in-flight detector; it may be nil to disable popup inference.
func NewController(cfg Config, source camera.Source, det detector.Detector, backends ...Backend) *Controller {
	if cfg.Backend == "" {
		cfg.Backend = KindAuto
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeFeedback
	}
	if cfg.Size.X <= 0 || cfg.Size.Y <= 0 {
		cfg.Size = overlay.DefaultSize
	}
	if cfg.PreviewFPS <= 0 {
		cfg.PreviewFPS = 15
	}
	if cfg.Title == "" {
		cfg.Title = "Slouchless"
	}

	released := make(chan struct{})
	close(released)

	c := &Controller{
		cfg:      cfg,
		backends: map[Kind]Backend{},
		avail: func() Availability {
			return Availability{Display: true, Player: true, Viewer: true, Notifier: true}
		},
		source:   source,
		det:      det,
		renderer: overlay.Renderer{Size: cfg.Size},
		released: released,
	}
	for _, b := range backends {
		c.backends[b.Kind()] = b
	}
	return c
}

// WithAvailability sets the environment probe used by auto selection.
func (c *Controller) WithAvailability(fn func() Availability) *Controller {
	c.avail = fn
	return c
}

// WithHooks sets observer callbacks.
func (c *Controller) WithHooks(h Hooks) *Controller {
	c.hooks = h
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns a snapshot of the open session.
func (c *Controller) Session() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return Session{}, false
	}
	s := c.active.session
	s.State = c.state
	s.Feedback = c.feedback
	return s, true
}

// LastSession returns the most recently opened session, even if it has
// ended since.
func (c *Controller) LastSession() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.last.ID != ""
}

// IsOpen reports whether a session is open.
func (c *Controller) IsOpen() bool {
	return c.State() == StateOpen
}

// Disabled reports whether popups were given up for this run.
func (c *Controller) Disabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disabled
}

// Blocking reports whether an open session suspends monitoring.
func (c *Controller) Blocking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil && c.active.session.Blocking
}

// Released is closed when the current (or opening) session ends. With no
// session it returns a closed channel.
func (c *Controller) Released() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

func (c *Controller) candidates() []Kind {
	if c.cfg.Backend != KindAuto {
		return []Kind{c.cfg.Backend}
	}
	return Candidates(c.cfg.Order, c.avail())
}

func (c *Controller) modeFor(kind Kind) Mode {
	switch kind {
	case KindNotify:
		return ModeStatic
	case KindPlayer:
		if c.cfg.Mode == ModeLive {
			return ModeLive
		}
		return ModeFeedback
	default:
		return c.cfg.Mode
	}
}

// compose renders what a popup in mode shows for frame.
func (c *Controller) compose(frame camera.Frame, mode Mode, fb overlay.Feedback) camera.Frame {
	if mode == ModeLive {
		return c.renderer.Letterbox(frame)
	}
	return c.renderer.Render(frame, fb)
}

// Open shows a popup for res. If a session is already open its feedback is
// updated instead. The popup is Open only after a backend confirmed
// readiness; when every candidate fails the controller returns to Closed,
// disables popups for the rest of the run and returns an *Error.
func (c *Controller) Open(ctx context.Context, frame camera.Frame, res detector.Result) error {
	c.mu.Lock()
	if c.disabled {
		c.mu.Unlock()
		return &Error{Op: "open", Err: ErrDisabled}
	}
	switch c.state {
	case StateOpen:
		c.mu.Unlock()
		c.UpdateFeedback(res)
		return nil
	case StateOpening, StateClosing:
		c.mu.Unlock()
		return &Error{Op: "open", Err: ErrBusy}
	}
	fb := overlay.FromResult(res)
	c.state = StateOpening
	c.feedback = fb
	c.lastFrame = frame
	c.nextInference = time.Time{}
	c.released = make(chan struct{})
	released := c.released
	c.mu.Unlock()

	kinds := c.candidates()
	var errs []error
	for _, kind := range kinds {
		b, ok := c.backends[kind]
		if !ok {
			errs = append(errs, fmt.Errorf("%s: backend not configured", kind))
			continue
		}

		s := Session{
			ID:       uuid.NewString(),
			Backend:  kind,
			Mode:     c.modeFor(kind),
			State:    StateOpening,
			Blocking: b.Blocking(),
			Title:    c.cfg.Title,
			Size:     c.cfg.Size,
			FPS:      c.cfg.PreviewFPS,
			OpenedAt: time.Now(),
			Feedback: fb,
		}

		h, err := b.Open(ctx, s, c.compose(frame, s.Mode, fb))
		if err != nil {
			telemetry.LogWarn("Popup backend failed to open", "backend", kind, "error", err)
			telemetry.TrackPopupSession(string(kind), "failed")
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		c.start(ctx, s, h, released)
		return nil
	}

	if len(kinds) == 0 {
		errs = append(errs, errors.New("no popup backend available"))
	}

	c.mu.Lock()
	c.state = StateClosed
	if ctx.Err() == nil && !c.disabled {
		c.disabled = true
		telemetry.LogError("All popup backends failed, popups disabled for this run", errors.Join(errs...), "candidates", kinds)
	}
	c.mu.Unlock()
	close(released)

	return &Error{Op: "open", Backend: c.cfg.Backend, Err: errors.Join(errs...)}
}

func (c *Controller) start(parent context.Context, s Session, h Handle, released chan struct{}) {
	ctx, cancel := context.WithCancel(parent)
	s.State = StateOpen
	as := &activeSession{session: s, handle: h, cancel: cancel, released: released}

	c.mu.Lock()
	c.active = as
	c.last = s
	c.state = StateOpen
	c.mu.Unlock()

	telemetry.TrackPopupSession(string(s.Backend), "opened")
	telemetry.LogInfo("Popup opened", "session", s.ID, "backend", s.Backend, "mode", s.Mode, "blocking", s.Blocking)

	if s.Backend != KindNotify && s.Mode != ModeStatic && c.source != nil {
		as.wg.Add(1)
		go c.pump(ctx, as)
		if s.Mode == ModeFeedback && c.det != nil && c.cfg.FeedbackInterval > 0 {
			as.wg.Add(1)
			go c.feedbackLoop(ctx, as)
		}
	}
	go c.watch(ctx, as)
}

func (c *Controller) watch(ctx context.Context, as *activeSession) {
	var autoClose <-chan time.Time
	if c.cfg.AutoClose > 0 {
		t := time.NewTimer(c.cfg.AutoClose)
		defer t.Stop()
		autoClose = t.C
	}

	reason := "closed"
	select {
	case <-as.handle.Done():
		reason = "user_closed"
		if as.session.Backend == KindNotify {
			reason = "dispatched"
		}
	case <-autoClose:
		reason = "auto_closed"
	case <-ctx.Done():
	}
	c.end(as, reason)
}

// end tears a session down once: Closing, stop sub-loops, close the
// backend, Closed, then release waiters.
func (c *Controller) end(as *activeSession, reason string) {
	as.once.Do(func() {
		c.mu.Lock()
		if c.active == as {
			c.state = StateClosing
		}
		c.mu.Unlock()

		as.cancel()
		as.wg.Wait()
		if err := as.handle.Close(); err != nil {
			telemetry.LogWarn("Failed to close popup", "session", as.session.ID, "error", err)
		}

		c.mu.Lock()
		if c.active == as {
			c.active = nil
			c.state = StateClosed
		}
		c.mu.Unlock()
		close(as.released)

		telemetry.TrackPopupSession(string(as.session.Backend), reason)
		telemetry.LogInfo("Popup closed", "session", as.session.ID, "backend", as.session.Backend, "reason", reason)
	})
}

// Close ends the open session, if any, and waits for it to be torn down.
func (c *Controller) Close() error {
	c.mu.Lock()
	as := c.active
	c.mu.Unlock()
	if as != nil {
		c.end(as, "closed")
	}
	return nil
}

// UpdateFeedback shows a result from the monitor loop. Streaming sessions
// pick it up on the next frame; a notify session dispatches again.
func (c *Controller) UpdateFeedback(res detector.Result) {
	fb := overlay.FromResult(res)

	c.mu.Lock()
	c.feedback = fb
	as := c.active
	frame := c.lastFrame
	c.mu.Unlock()

	if as != nil && as.session.Backend == KindNotify {
		if err := as.handle.Push(c.compose(frame, ModeStatic, fb), fb); err != nil {
			telemetry.LogWarn("Failed to update notification", "error", err)
		}
	}
}

func (c *Controller) setFeedback(fb overlay.Feedback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.feedback = fb
}

// pump streams the latest camera frame into the popup at the preview rate.
func (c *Controller) pump(ctx context.Context, as *activeSession) {
	defer as.wg.Done()

	ticker := time.NewTicker(time.Second / time.Duration(c.cfg.PreviewFPS))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, err := c.source.Capture(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			telemetry.LogDebug("Popup preview capture failed", "error", err)
			continue
		}

		c.mu.Lock()
		c.lastFrame = frame
		fb := c.feedback
		next := c.nextInference
		c.mu.Unlock()

		if !next.IsZero() {
			fb.Countdown = max(0, time.Until(next))
		}

		if err := as.handle.Push(c.compose(frame, as.session.Mode, fb), fb); err != nil {
			if ctx.Err() != nil {
				return
			}
			telemetry.LogWarn("Popup stream ended", "session", as.session.ID, "error", err)
			// end waits for this goroutine, so it must run elsewhere.
			go c.end(as, "stream_error")
			return
		}

		c.mu.Lock()
		if c.active == as {
			c.active.session.LastPush = time.Now()
		}
		c.mu.Unlock()
	}
}

// feedbackLoop runs the popup's own inference on the latest preview frame.
func (c *Controller) feedbackLoop(ctx context.Context, as *activeSession) {
	defer as.wg.Done()

	interval := c.cfg.FeedbackInterval
	for {
		c.mu.Lock()
		c.nextInference = time.Now().Add(interval)
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		c.mu.Lock()
		frame := c.lastFrame
		c.mu.Unlock()
		if frame.IsZero() {
			continue
		}

		res, err := c.det.Classify(ctx, frame, c.cfg.Request)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			telemetry.LogWarn("Popup inference failed", "session", as.session.ID, "error", err)
			c.setFeedback(overlay.Feedback{Status: detector.StatusUncertain, Message: err.Error()})
			continue
		}

		c.setFeedback(overlay.FromResult(res))
		if c.hooks.OnFeedback != nil {
			c.hooks.OnFeedback(res, frame)
		}
	}
}
