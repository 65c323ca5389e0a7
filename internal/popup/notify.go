package popup

import (
	"context"
	"fmt"
	"os"
	"time"

	"slouchless/internal/camera"
	"slouchless/internal/detector"
	"slouchless/internal/notify"
	"slouchless/internal/overlay"
)

// Notify is the fire-and-forget backend: every open dispatches one desktop
// notification with the frame attached, and the session ends immediately.
type Notify struct {
	sender  notify.Notifier
	tempDir string
	quality int
	timeout time.Duration
}

// NewNotify creates the notification backend.
func NewNotify(sender notify.Notifier) *Notify {
	return &Notify{sender: sender, quality: 85, timeout: 10 * time.Second}
}

func (n *Notify) Kind() Kind {
	return KindNotify
}

func (n *Notify) Blocking() bool {
	return false
}

func (n *Notify) Open(ctx context.Context, s Session, first camera.Frame) (Handle, error) {
	if err := n.dispatch(ctx, s.Title, first, s.Feedback); err != nil {
		return nil, err
	}
	done := make(chan struct{})
	close(done)
	return &notifyHandle{backend: n, title: s.Title, done: done}, nil
}

func (n *Notify) dispatch(ctx context.Context, title string, frame camera.Frame, fb overlay.Feedback) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	msg := notify.Message{
		Title:  title,
		Body:   body(fb),
		Urgent: fb.Status == detector.StatusSlouching,
	}

	if !frame.IsZero() {
		path, err := n.writeTemp(frame)
		if err != nil {
			return err
		}
		defer os.Remove(path)
		msg.ImagePath = path
	}

	if err := n.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to dispatch notification: %w", err)
	}
	return nil
}

func (n *Notify) writeTemp(frame camera.Frame) (string, error) {
	data, err := camera.EncodeJPEG(frame, n.quality)
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp(n.tempDir, "slouchless-*.jpg")
	if err != nil {
		return "", fmt.Errorf("failed to create temp image: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write temp image: %w", err)
	}
	return f.Name(), nil
}

func body(fb overlay.Feedback) string {
	if fb.Message == "" {
		return detector.Message(fb.Status, "")
	}
	if fb.Status == "" {
		return fb.Message
	}
	return overlay.Headline(fb.Status) + ": " + fb.Message
}

type notifyHandle struct {
	backend *Notify
	title   string
	done    chan struct{}
}

// Push sends another notification.
func (h *notifyHandle) Push(frame camera.Frame, fb overlay.Feedback) error {
	return h.backend.dispatch(context.Background(), h.title, frame, fb)
}

func (h *notifyHandle) Done() <-chan struct{} {
	return h.done
}

func (h *notifyHandle) Close() error {
	return nil
}
