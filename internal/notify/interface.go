package notify

import "context"

// DesktopProvider is the name of the notify-send provider.
const DesktopProvider = "desktop"

// Event types
const (
	EventSlouch    = "on_slouch"
	EventRecovered = "on_recovered"
	EventError     = "on_error"
)

// Message is one notification payload.
type Message struct {
	Title string
	Body  string
	// ImagePath is an optional JPEG attachment; providers that cannot
	// attach images ignore it.
	ImagePath string
	Urgent    bool
}

// Notifier defines the interface for sending notifications.
type Notifier interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}
