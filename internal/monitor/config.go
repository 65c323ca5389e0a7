package monitor

import (
	"slices"
	"time"

	"slouchless/internal/detector"
)

// Config holds the monitor configuration
type Config struct {
	// Interval between check boundaries.
	Interval time.Duration
	Request  detector.Request
	// OpenOn lists the statuses that open a popup.
	OpenOn []detector.Status
}

// DefaultConfig returns a 30 second cadence that opens popups on slouching.
func DefaultConfig() Config {
	return Config{
		Interval: 30 * time.Second,
		OpenOn:   []detector.Status{detector.StatusSlouching},
	}
}

func (c Config) opens(s detector.Status) bool {
	return slices.Contains(c.OpenOn, s)
}
