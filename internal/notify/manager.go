package notify

import (
	"context"
	"errors"
	"os"
	"slices"
	"sync"

	"slouchless/internal/telemetry"
)

// Config selects providers and the events they fire on.
type Config struct {
	DesktopEnabled bool
	DesktopBinary  string
	AppName        string

	SlackEnabled    bool
	SlackToken      string
	SlackChannel    string
	SlackWebhookURL string

	// Events maps an event type (EventSlouch, ...) to whether it is sent.
	Events map[string]bool
}

// Manager fans notifications out to the enabled providers.
type Manager struct {
	mu        sync.Mutex
	providers []Notifier
	events    map[string]bool
	sentOnce  map[string]bool
}

// NewManager creates a Notification Manager from configuration.
func NewManager(cfg Config) *Manager {
	m := &Manager{events: cfg.Events, sentOnce: map[string]bool{}}
	if m.events == nil {
		m.events = map[string]bool{EventSlouch: true, EventError: true}
	}

	if cfg.DesktopEnabled {
		m.providers = append(m.providers, NewDesktop(cfg.DesktopBinary, cfg.AppName))
	}
	m.initSlack(cfg)

	return m
}

func (m *Manager) initSlack(cfg Config) {
	if !cfg.SlackEnabled {
		return
	}

	if cfg.SlackWebhookURL != "" {
		m.providers = append(m.providers, NewSlackWebhookNotifier(cfg.SlackWebhookURL))
		return
	}

	token := cfg.SlackToken
	if token == "" {
		token = os.Getenv("SLACK_BOT_USER_TOKEN")
	}
	if token == "" {
		telemetry.LogWarn("SLACK_BOT_USER_TOKEN not set, slack notifications disabled")
		return
	}
	m.providers = append(m.providers, NewSlackNotifier(token, cfg.SlackChannel))
}

// WithProvider adds a provider (used by tests and the popup-test command).
func (m *Manager) WithProvider(n Notifier) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers = append(m.providers, n)
	return m
}

// Providers returns the names of the active providers.
func (m *Manager) Providers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.providers))
	for _, p := range m.providers {
		names = append(names, p.Name())
	}
	return names
}

// IsEnabled reports whether notifications fire for eventType.
func (m *Manager) IsEnabled(eventType string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.providers) > 0 && m.events[eventType]
}

// Notify sends msg to every provider if the event is enabled. Provider
// failures are logged and returned joined; they never stop other providers.
func (m *Manager) Notify(ctx context.Context, eventType string, msg Message) error {
	return m.NotifyExcept(ctx, eventType, msg)
}

// NotifyExcept is Notify without the named providers, for when one of them
// already delivered the message another way.
func (m *Manager) NotifyExcept(ctx context.Context, eventType string, msg Message, skip ...string) error {
	if !m.IsEnabled(eventType) {
		telemetry.LogDebug("Notification skipped", "event", eventType)
		return nil
	}

	m.mu.Lock()
	providers := make([]Notifier, 0, len(m.providers))
	for _, p := range m.providers {
		if !slices.Contains(skip, p.Name()) {
			providers = append(providers, p)
		}
	}
	m.mu.Unlock()

	telemetry.LogDebug("Sending notification", "event", eventType, "providers", len(providers))

	var errs []error
	for _, p := range providers {
		err := p.Send(ctx, msg)
		telemetry.TrackNotification(p.Name(), err)
		if err != nil {
			telemetry.LogError("Failed to send notification", err, "provider", p.Name(), "event", eventType)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NotifyOnce is Notify but sends a given event at most once per Manager.
func (m *Manager) NotifyOnce(ctx context.Context, eventType string, msg Message) error {
	m.mu.Lock()
	if m.sentOnce[eventType] {
		m.mu.Unlock()
		return nil
	}
	m.sentOnce[eventType] = true
	m.mu.Unlock()

	return m.Notify(ctx, eventType, msg)
}
