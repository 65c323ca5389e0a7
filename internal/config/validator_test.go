package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(v *viper.Viper)
		wantError bool
		errMsg    string
	}{
		{
			name:      "Valid Defaults",
			setup:     func(v *viper.Viper) {},
			wantError: false,
		},
		{
			name: "Valid Overrides",
			setup: func(v *viper.Viper) {
				v.Set("monitor.interval", "5s")
				v.Set("detector.provider", "Gemini")
				v.Set("popup.backend", "window")
				v.Set("popup.order", []string{"notify", "player"})
				v.Set("popup.auto_close", 20)
			},
			wantError: false,
		},
		{
			name: "Invalid Interval (Negative Duration)",
			setup: func(v *viper.Viper) {
				v.Set("monitor.interval", -10*time.Second)
			},
			wantError: true,
			errMsg:    "monitor.interval must be positive",
		},
		{
			name: "Invalid Interval (Zero Int)",
			setup: func(v *viper.Viper) {
				v.Set("monitor.interval", 0)
			},
			wantError: true,
			errMsg:    "monitor.interval must be positive",
		},
		{
			name: "Unparseable Timeout",
			setup: func(v *viper.Viper) {
				v.Set("detector.timeout", "soon")
			},
			wantError: true,
			errMsg:    "detector.timeout: invalid duration",
		},
		{
			name: "Invalid Size",
			setup: func(v *viper.Viper) {
				v.Set("popup.size", "600")
			},
			wantError: true,
			errMsg:    "popup.size",
		},
		{
			name: "Invalid Preview FPS",
			setup: func(v *viper.Viper) {
				v.Set("popup.preview_fps", 0)
			},
			wantError: true,
			errMsg:    "popup.preview_fps must be at least 1",
		},
		{
			name: "Unknown Provider",
			setup: func(v *viper.Viper) {
				v.Set("detector.provider", "vllm")
			},
			wantError: true,
			errMsg:    "detector.provider must be one of",
		},
		{
			name: "Unknown Backend In Order",
			setup: func(v *viper.Viper) {
				v.Set("popup.order", []string{"player", "tray"})
			},
			wantError: true,
			errMsg:    "popup.order must only contain",
		},
		{
			name: "Negative Temperature",
			setup: func(v *viper.Viper) {
				v.Set("detector.temperature", -0.5)
			},
			wantError: true,
			errMsg:    "detector.temperature must not be negative",
		},
		{
			name: "Zero Max Tokens",
			setup: func(v *viper.Viper) {
				v.Set("detector.max_tokens", 0)
			},
			wantError: true,
			errMsg:    "detector.max_tokens must be at least 1",
		},
		{
			name: "Multiple Errors",
			setup: func(v *viper.Viper) {
				v.Set("popup.mode", "fullscreen")
				v.Set("camera.fps", 0)
			},
			wantError: true,
			errMsg:    "configuration validation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			SetDefaults(v)
			tt.setup(v)

			err := Validate(v)
			if tt.wantError {
				if err == nil {
					t.Errorf("Validate() expected error, got nil")
				} else if tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Validate() error = %v, want error containing %v", err, tt.errMsg)
				}
			} else if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestValidate_AggregatesErrors(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("popup.mode", "fullscreen")
	v.Set("camera.fps", 0)

	err := Validate(v)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "popup.mode") || !strings.Contains(err.Error(), "camera.fps") {
		t.Errorf("expected both problems reported, got: %v", err)
	}
}

func TestFromViper_RejectsInvalid(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("popup.backend", "hologram")

	if _, err := FromViper(v); err == nil {
		t.Error("FromViper() expected error for unknown backend")
	}
}
