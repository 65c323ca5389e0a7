// Package monitor schedules posture checks: it captures a frame on fixed
// interval boundaries, runs at most one inference at a time, and fans the
// verdict out to the popup, the notification manager and the debug log.
package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"slouchless/internal/camera"
	"slouchless/internal/debugframes"
	"slouchless/internal/detector"
	"slouchless/internal/notify"
	"slouchless/internal/popup"
	"slouchless/internal/telemetry"
)

// Outcome describes what a tick did.
type Outcome string

const (
	OutcomeStarted      Outcome = "started"
	OutcomeBusy         Outcome = "busy"
	OutcomePopupBlocked Outcome = "popup_blocked"
	OutcomeCaptureError Outcome = "capture_error"
	OutcomeDisabled     Outcome = "disabled"
)

// Popup is the part of the popup controller the monitor drives.
type Popup interface {
	Open(ctx context.Context, frame camera.Frame, res detector.Result) error
	UpdateFeedback(res detector.Result)
	IsOpen() bool
	Blocking() bool
	Released() <-chan struct{}
	Close() error
}

// sessionReporter is implemented by popups that can tell which backend
// served the last session.
type sessionReporter interface {
	LastSession() (popup.Session, bool)
}

// Hooks observe the loop. All hooks run on the loop goroutine.
type Hooks struct {
	OnTick   func(o Outcome)
	OnResult func(res detector.Result, frame camera.Frame)
	OnError  func(err error)
}

// Stats counts loop activity since start.
type Stats struct {
	Ticks           uint64
	Checks          uint64
	Skipped         uint64
	CaptureErrors   uint64
	InferenceErrors uint64
}

type completion struct {
	frame camera.Frame
	saved debugframes.Saved
	res   detector.Result
	err   error
}

// Monitor is the posture check scheduler.
type Monitor struct {
	cfg      Config
	source   camera.Source
	det      detector.Detector
	popup    Popup
	notifier *notify.Manager
	frames   *debugframes.Writer
	hooks    Hooks
	now      func() time.Time

	enabled  atomic.Bool
	inFlight atomic.Bool
	results  chan completion
	wg       sync.WaitGroup

	lastStatus detector.Status

	ticks, checks, skipped, captureErrs, inferErrs atomic.Uint64
}

// New creates a monitor. det should be the shared single in-flight detector.
func New(cfg Config, source camera.Source, det detector.Detector) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	m := &Monitor{
		cfg:     cfg,
		source:  source,
		det:     det,
		now:     time.Now,
		results: make(chan completion, 1),
	}
	m.enabled.Store(true)
	return m
}

// WithPopup sets the popup controller.
func (m *Monitor) WithPopup(p Popup) *Monitor {
	m.popup = p
	return m
}

// WithNotifier sets the notification manager.
func (m *Monitor) WithNotifier(n *notify.Manager) *Monitor {
	m.notifier = n
	return m
}

// WithDebugFrames enables saving every checked frame.
func (m *Monitor) WithDebugFrames(w *debugframes.Writer) *Monitor {
	m.frames = w
	return m
}

// WithHooks sets observer callbacks.
func (m *Monitor) WithHooks(h Hooks) *Monitor {
	m.hooks = h
	return m
}

// SetEnabled pauses or resumes checks. Ticks keep their schedule while paused.
func (m *Monitor) SetEnabled(enabled bool) {
	if m.enabled.Swap(enabled) != enabled {
		state := "disabled"
		if enabled {
			state = "enabled"
		}
		telemetry.LogInfo("Monitoring " + state)
	}
}

// Enabled reports whether checks run.
func (m *Monitor) Enabled() bool {
	return m.enabled.Load()
}

// Stats returns a snapshot of the counters.
func (m *Monitor) Stats() Stats {
	return Stats{
		Ticks:           m.ticks.Load(),
		Checks:          m.checks.Load(),
		Skipped:         m.skipped.Load(),
		CaptureErrors:   m.captureErrs.Load(),
		InferenceErrors: m.inferErrs.Load(),
	}
}

// nextBoundary returns last + k*interval for the smallest k >= 1 that lies
// after now. Missed boundaries are dropped rather than caught up.
func nextBoundary(last time.Time, interval time.Duration, now time.Time) time.Time {
	if interval <= 0 {
		return now
	}
	next := last.Add(interval)
	if next.After(now) {
		return next
	}
	k := now.Sub(last)/interval + 1
	return last.Add(k * interval)
}

// Run checks posture until ctx is cancelled. On return any in-flight
// inference has finished, the popup is closed and the source is released.
func (m *Monitor) Run(ctx context.Context) error {
	if m.source == nil || m.det == nil {
		return errors.New("monitor requires a frame source and a detector")
	}

	telemetry.LogInfo("Starting monitor", "interval", m.cfg.Interval, "detector", m.det.Name())
	defer m.shutdown()

	boundary := m.now()
	next := boundary
	var released <-chan struct{}

	for {
		timer := time.NewTimer(max(0, next.Sub(m.now())))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case c := <-m.results:
			timer.Stop()
			m.handle(ctx, c)
			continue
		case <-released:
			timer.Stop()
			released = nil
			// The popup held the user's attention; start a fresh interval.
			boundary = m.now()
			next = boundary.Add(m.cfg.Interval)
			telemetry.LogDebug("Blocking popup released, resuming checks", "next", next)
			continue
		case <-timer.C:
		}

		boundary = next
		if m.tick(ctx) == OutcomePopupBlocked {
			released = m.popup.Released()
		}
		next = nextBoundary(boundary, m.cfg.Interval, m.now())
	}
}

func (m *Monitor) tick(ctx context.Context) Outcome {
	o := m.runTick(ctx)

	m.ticks.Add(1)
	if o != OutcomeStarted {
		m.skipped.Add(1)
	}
	telemetry.TrackTick(string(o))
	if o != OutcomeStarted {
		telemetry.LogDebug("Tick skipped", "outcome", o)
	}
	if m.hooks.OnTick != nil {
		m.hooks.OnTick(o)
	}
	return o
}

func (m *Monitor) runTick(ctx context.Context) Outcome {
	if !m.enabled.Load() {
		return OutcomeDisabled
	}
	if m.popup != nil && m.popup.Blocking() {
		return OutcomePopupBlocked
	}
	if !m.inFlight.CompareAndSwap(false, true) {
		return OutcomeBusy
	}

	telemetry.LogDebug("Capturing frame")
	frame, err := m.source.Capture(ctx)
	if err != nil {
		m.inFlight.Store(false)
		if ctx.Err() == nil {
			m.captureErrs.Add(1)
			telemetry.TrackCaptureError()
			telemetry.LogError("Error capturing frame", err)
		}
		return OutcomeCaptureError
	}

	saved := m.saveFrame(frame)

	m.checks.Add(1)
	m.wg.Add(1)
	go m.infer(ctx, frame, saved)
	return OutcomeStarted
}

// infer runs on its own goroutine; results has room for the single
// in-flight completion, so the send never blocks.
func (m *Monitor) infer(ctx context.Context, frame camera.Frame, saved debugframes.Saved) {
	defer m.wg.Done()

	telemetry.LogDebug("Analyzing frame", "seq", frame.Seq)
	res, err := m.det.Classify(ctx, frame, m.cfg.Request)
	m.results <- completion{frame: frame, saved: saved, res: res, err: err}
}

func (m *Monitor) handle(ctx context.Context, c completion) {
	m.inFlight.Store(false)

	if c.err != nil {
		if ctx.Err() != nil {
			return
		}
		m.handleError(ctx, c)
		return
	}

	res := c.res
	m.debugLog(debugframes.EventInferenceOK, c.saved, map[string]any{
		"status":     string(res.Status),
		"raw":        res.Raw,
		"backend":    res.Backend,
		"latency_ms": res.Latency.Milliseconds(),
	})

	if res.Status == detector.StatusSlouching {
		telemetry.LogWarn("Slouch detected", "message", res.Message, "latency", res.Latency)
	} else {
		telemetry.LogInfo("Posture checked", "status", res.Status, "latency", res.Latency)
	}

	if m.hooks.OnResult != nil {
		m.hooks.OnResult(res, c.frame)
	}

	viaDesktop := m.updatePopup(ctx, c.frame, res)
	m.notifyResult(ctx, c, res, viaDesktop)

	if res.Status != detector.StatusUncertain {
		m.lastStatus = res.Status
	}
}

func (m *Monitor) handleError(ctx context.Context, c completion) {
	m.inferErrs.Add(1)
	kind := detector.KindOf(c.err)
	telemetry.LogError("Posture check failed", c.err, "kind", kind)
	m.debugLog(debugframes.EventInferenceError, c.saved, map[string]any{
		"error": c.err.Error(),
		"kind":  kind,
	})

	if detector.IsFatal(c.err) && m.notifier != nil {
		msg := notify.Message{
			Title:  "Slouchless: detector error",
			Body:   c.err.Error(),
			Urgent: true,
		}
		m.send(ctx, func(ctx context.Context) error {
			return m.notifier.NotifyOnce(ctx, notify.EventError, msg)
		})
	}

	if m.hooks.OnError != nil {
		m.hooks.OnError(c.err)
	}
}

// updatePopup reports whether the popup was delivered as a desktop
// notification.
func (m *Monitor) updatePopup(ctx context.Context, frame camera.Frame, res detector.Result) bool {
	if m.popup == nil {
		return false
	}

	if m.cfg.opens(res.Status) {
		err := m.popup.Open(ctx, frame, res)
		switch {
		case err == nil:
			if r, ok := m.popup.(sessionReporter); ok {
				s, ok := r.LastSession()
				return ok && s.Backend == popup.KindNotify
			}
		case errors.Is(err, popup.ErrDisabled):
			telemetry.LogDebug("Popup disabled, not opening")
		case errors.Is(err, popup.ErrBusy):
			telemetry.LogDebug("Popup busy, not opening")
		default:
			telemetry.LogWarn("Failed to open popup", "error", err)
		}
		return false
	}

	if m.popup.IsOpen() && !m.popup.Blocking() {
		m.popup.UpdateFeedback(res)
	}
	return false
}

// notifyResult sends slouch and recovery notifications. The desktop provider
// is skipped when the popup already showed this result as a notification.
func (m *Monitor) notifyResult(ctx context.Context, c completion, res detector.Result, viaDesktop bool) {
	if m.notifier == nil {
		return
	}

	var event string
	var msg notify.Message
	switch {
	case res.Status == detector.StatusSlouching:
		event = notify.EventSlouch
		msg = notify.Message{Title: "Slouch detected", Body: res.Message, ImagePath: c.saved.Path, Urgent: true}
	case res.Status == detector.StatusOK && m.lastStatus == detector.StatusSlouching:
		event = notify.EventRecovered
		msg = notify.Message{Title: "Posture recovered", Body: res.Message, ImagePath: c.saved.Path}
	default:
		return
	}

	var skip []string
	if viaDesktop {
		skip = append(skip, notify.DesktopProvider)
	}
	m.send(ctx, func(ctx context.Context) error {
		return m.notifier.NotifyExcept(ctx, event, msg, skip...)
	})
}

// send delivers a notification off the loop goroutine. Shutdown waits for it.
func (m *Monitor) send(ctx context.Context, fn func(ctx context.Context) error) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		// Provider failures are already logged by the manager.
		_ = fn(ctx)
	}()
}

func (m *Monitor) saveFrame(frame camera.Frame) debugframes.Saved {
	if m.frames == nil {
		return debugframes.Saved{}
	}
	saved, err := m.frames.SaveFrame(frame)
	if err != nil {
		telemetry.LogWarn("Failed to save debug frame", "error", err)
		return saved
	}
	fields := map[string]any{"frame_path": saved.Path, "seq": frame.Seq}
	if named, ok := m.source.(interface{ Name() string }); ok {
		fields["camera"] = named.Name()
	}
	m.debugLog(debugframes.EventFrameCaptured, saved, fields)
	return saved
}

func (m *Monitor) debugLog(event string, saved debugframes.Saved, fields map[string]any) {
	if m.frames == nil {
		return
	}
	if saved.ID != "" {
		fields["frame_id"] = saved.ID
	}
	if err := m.frames.Log(event, fields); err != nil {
		telemetry.LogWarn("Failed to write debug log", "error", err)
	}
}

// RecordFeedback logs a popup inference to the debug frames directory. It
// is meant to be installed as the popup controller's OnFeedback hook.
func (m *Monitor) RecordFeedback(res detector.Result, frame camera.Frame) {
	if m.frames == nil {
		return
	}
	saved := m.saveFrame(frame)
	m.debugLog(debugframes.EventInferenceOK, saved, map[string]any{
		"status":  string(res.Status),
		"raw":     res.Raw,
		"backend": res.Backend,
		"source":  "popup",
	})
}

func (m *Monitor) shutdown() {
	telemetry.LogInfo("Stopping monitor")
	m.wg.Wait()

	// Drain a completion that raced with cancellation.
	select {
	case <-m.results:
		m.inFlight.Store(false)
	default:
	}

	if m.popup != nil {
		if err := m.popup.Close(); err != nil {
			telemetry.LogWarn("Failed to close popup", "error", err)
		}
	}
	telemetry.LogInfo("Releasing camera")
	if err := m.source.Close(); err != nil {
		telemetry.LogWarn("Failed to release camera", "error", err)
	}
	telemetry.LogInfo("Monitor stopped", "checks", m.checks.Load(), "skipped", m.skipped.Load())
}
