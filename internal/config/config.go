package config

import (
	"fmt"
	"image"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the effective configuration, built once at startup.
type Config struct {
	Camera        CameraConfig
	Detector      DetectorConfig
	Monitor       MonitorConfig
	Popup         PopupConfig
	Notifications NotificationsConfig
	Debug         DebugConfig
	Log           LogConfig
	MetricsAddr   string
	Mock          bool
}

type CameraConfig struct {
	Device       string
	Index        int
	FFmpeg       string
	CaptureSize  image.Point
	ResizeTo     image.Point
	ResizeFilter string
	ReadTimeout  time.Duration
	FPS          int
}

type DetectorConfig struct {
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
	Backoff     time.Duration
	RateLimit   float64
	KeepAlive   string
	NumGPU      int
	Prompt      string

	OKMarkers        []string
	SlouchMarkers    []string
	UncertainMarkers []string
	NegationMarkers  []string
}

type MonitorConfig struct {
	Interval time.Duration
}

type PopupConfig struct {
	Backend          string
	Order            []string
	Mode             string
	Blocking         bool
	Size             image.Point
	PreviewFPS       int
	FeedbackInterval time.Duration
	AutoClose        time.Duration
	OpenOn           []string
	Player           string
	PlayerArgs       string
	StreamFormat     string
	Viewer           string
	ViewerArgs       string
	NotifyBinary     string
	Title            string
}

type NotificationsConfig struct {
	DesktopEnabled  bool
	SlackEnabled    bool
	SlackChannel    string
	SlackWebhookURL string
	Events          map[string]bool
}

type DebugConfig struct {
	SaveFrames   bool
	FramesDir    string
	MaxFrames    int
	ClearOnStart bool
}

type LogConfig struct {
	Level string
	File  string
}

// Get validates the global viper state and builds a Config from it.
func Get() (*Config, error) {
	return FromViper(viper.GetViper())
}

// FromViper validates v and builds a Config from it.
func FromViper(v *viper.Viper) (*Config, error) {
	if err := Validate(v); err != nil {
		return nil, err
	}

	// Validate has checked every parsed value below.
	dur := func(key string) time.Duration {
		d, _ := duration(v, key)
		return d
	}
	size := func(key string) image.Point {
		p, _ := ParseSize(v.GetString(key))
		return p
	}

	return &Config{
		Camera: CameraConfig{
			Device:       v.GetString("camera.device"),
			Index:        v.GetInt("camera.index"),
			FFmpeg:       v.GetString("camera.ffmpeg"),
			CaptureSize:  size("camera.capture_size"),
			ResizeTo:     size("camera.resize_to"),
			ResizeFilter: v.GetString("camera.resize_filter"),
			ReadTimeout:  dur("camera.read_timeout"),
			FPS:          v.GetInt("camera.fps"),
		},
		Detector: DetectorConfig{
			Provider:         strings.ToLower(v.GetString("detector.provider")),
			Model:            v.GetString("detector.model"),
			BaseURL:          v.GetString("detector.base_url"),
			APIKey:           v.GetString("detector.api_key"),
			MaxTokens:        v.GetInt("detector.max_tokens"),
			Temperature:      v.GetFloat64("detector.temperature"),
			Timeout:          dur("detector.timeout"),
			MaxRetries:       v.GetInt("detector.max_retries"),
			Backoff:          dur("detector.backoff"),
			RateLimit:        v.GetFloat64("detector.rate_limit"),
			KeepAlive:        v.GetString("detector.keep_alive"),
			NumGPU:           v.GetInt("detector.num_gpu"),
			Prompt:           v.GetString("detector.prompt"),
			OKMarkers:        v.GetStringSlice("detector.markers.ok"),
			SlouchMarkers:    v.GetStringSlice("detector.markers.slouch"),
			UncertainMarkers: v.GetStringSlice("detector.markers.uncertain"),
			NegationMarkers:  v.GetStringSlice("detector.markers.negation"),
		},
		Monitor: MonitorConfig{
			Interval: dur("monitor.interval"),
		},
		Popup: PopupConfig{
			Backend:          strings.ToLower(v.GetString("popup.backend")),
			Order:            v.GetStringSlice("popup.order"),
			Mode:             strings.ToLower(v.GetString("popup.mode")),
			Blocking:         v.GetBool("popup.blocking"),
			Size:             size("popup.size"),
			PreviewFPS:       v.GetInt("popup.preview_fps"),
			FeedbackInterval: dur("popup.feedback_interval"),
			AutoClose:        dur("popup.auto_close"),
			OpenOn:           v.GetStringSlice("popup.open_on"),
			Player:           v.GetString("popup.player"),
			PlayerArgs:       v.GetString("popup.player_args"),
			StreamFormat:     v.GetString("popup.stream_format"),
			Viewer:           v.GetString("popup.viewer"),
			ViewerArgs:       v.GetString("popup.viewer_args"),
			NotifyBinary:     v.GetString("popup.notify_binary"),
			Title:            v.GetString("popup.title"),
		},
		Notifications: NotificationsConfig{
			DesktopEnabled:  v.GetBool("notifications.desktop.enabled"),
			SlackEnabled:    v.GetBool("notifications.slack.enabled"),
			SlackChannel:    v.GetString("notifications.slack.channel"),
			SlackWebhookURL: v.GetString("notifications.slack.webhook_url"),
			Events: map[string]bool{
				"on_slouch":    v.GetBool("notifications.events.on_slouch"),
				"on_recovered": v.GetBool("notifications.events.on_recovered"),
				"on_error":     v.GetBool("notifications.events.on_error"),
			},
		},
		Debug: DebugConfig{
			SaveFrames:   v.GetBool("debug.save_frames"),
			FramesDir:    v.GetString("debug.frames_dir"),
			MaxFrames:    v.GetInt("debug.max_frames"),
			ClearOnStart: v.GetBool("debug.clear_on_start"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
			File:  v.GetString("log.file"),
		},
		MetricsAddr: v.GetString("metrics.addr"),
		Mock:        v.GetBool("mock"),
	}, nil
}

// ParseSize parses "WxH".
func ParseSize(s string) (image.Point, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return image.Point{}, fmt.Errorf("invalid size %q, want WxH", s)
	}
	x, errW := strconv.Atoi(w)
	y, errH := strconv.Atoi(h)
	if errW != nil || errH != nil || x <= 0 || y <= 0 {
		return image.Point{}, fmt.Errorf("invalid size %q, want WxH", s)
	}
	return image.Pt(x, y), nil
}

// duration reads key as a Go duration string; bare numbers are seconds.
func duration(v *viper.Viper, key string) (time.Duration, error) {
	switch val := v.Get(key).(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return val, nil
	case int:
		return time.Duration(val) * time.Second, nil
	case int64:
		return time.Duration(val) * time.Second, nil
	case float64:
		return time.Duration(val * float64(time.Second)), nil
	case string:
		if n, err := strconv.ParseFloat(val, 64); err == nil {
			return time.Duration(n * float64(time.Second)), nil
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return 0, fmt.Errorf("%s: invalid duration %q", key, val)
		}
		return d, nil
	default:
		return 0, fmt.Errorf("%s: invalid duration %v", key, val)
	}
}
