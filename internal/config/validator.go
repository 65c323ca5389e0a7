package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/viper"
)

var (
	providers     = []string{"ollama", "openai", "gemini", "mock"}
	backends      = []string{"auto", "player", "window", "notify"}
	orderKinds    = []string{"player", "window", "notify"}
	modes         = []string{"live", "feedback", "static"}
	statuses      = []string{"ok", "slouching", "uncertain"}
	streamFormats = []string{"mjpeg", "rawvideo"}
	filters       = []string{"bilinear", "nearest", "catmullrom"}
)

// ValidateConfig validates the global viper configuration.
func ValidateConfig() error {
	return Validate(viper.GetViper())
}

// Validate checks every key and returns all problems in one error.
func Validate(v *viper.Viper) error {
	var errors []string
	add := func(format string, args ...any) {
		errors = append(errors, fmt.Sprintf(format, args...))
	}

	positiveDurations := []string{"monitor.interval", "detector.timeout", "camera.read_timeout", "popup.feedback_interval"}
	for _, key := range positiveDurations {
		d, err := duration(v, key)
		if err != nil {
			add("%v", err)
		} else if d <= 0 {
			add("%s must be positive, got: %v", key, d)
		}
	}
	for _, key := range []string{"detector.backoff", "popup.auto_close"} {
		d, err := duration(v, key)
		if err != nil {
			add("%v", err)
		} else if d < 0 {
			add("%s must not be negative, got: %v", key, d)
		}
	}

	for _, key := range []string{"camera.capture_size", "camera.resize_to", "popup.size"} {
		if _, err := ParseSize(v.GetString(key)); err != nil {
			add("%s: %v", key, err)
		}
	}

	for _, key := range []string{"camera.fps", "popup.preview_fps"} {
		if n := v.GetInt(key); n < 1 {
			add("%s must be at least 1, got: %d", key, n)
		}
	}

	if n := v.GetInt("detector.max_tokens"); n < 1 {
		add("detector.max_tokens must be at least 1, got: %d", n)
	}
	if t := v.GetFloat64("detector.temperature"); t < 0 {
		add("detector.temperature must not be negative, got: %v", t)
	}
	if n := v.GetInt("detector.max_retries"); n < 0 {
		add("detector.max_retries must not be negative, got: %d", n)
	}
	if r := v.GetFloat64("detector.rate_limit"); r < 0 {
		add("detector.rate_limit must not be negative, got: %v", r)
	}
	if n := v.GetInt("camera.index"); n < 0 {
		add("camera.index must not be negative, got: %d", n)
	}
	if v.GetBool("debug.save_frames") && v.GetInt("debug.max_frames") < 1 {
		add("debug.max_frames must be at least 1, got: %d", v.GetInt("debug.max_frames"))
	}

	oneOf := func(key string, allowed []string) {
		if val := strings.ToLower(v.GetString(key)); !slices.Contains(allowed, val) {
			add("%s must be one of %s, got: %q", key, strings.Join(allowed, ", "), val)
		}
	}
	allOf := func(key string, allowed []string) {
		for _, val := range v.GetStringSlice(key) {
			if !slices.Contains(allowed, strings.ToLower(val)) {
				add("%s must only contain %s, got: %q", key, strings.Join(allowed, ", "), val)
			}
		}
	}

	oneOf("detector.provider", providers)
	oneOf("popup.backend", backends)
	oneOf("popup.mode", modes)
	oneOf("popup.stream_format", streamFormats)
	oneOf("camera.resize_filter", filters)
	allOf("popup.order", orderKinds)
	allOf("popup.open_on", statuses)

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  %s", strings.Join(errors, "\n  "))
	}
	return nil
}
