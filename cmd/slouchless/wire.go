package main

import (
	"context"
	"fmt"
	"path/filepath"

	"slouchless/internal/camera"
	"slouchless/internal/config"
	"slouchless/internal/debugframes"
	"slouchless/internal/detector"
	"slouchless/internal/monitor"
	"slouchless/internal/notify"
	"slouchless/internal/popup"
	"slouchless/internal/telemetry"
)

func detectorConfig(cfg *config.Config) detector.Config {
	d := cfg.Detector
	return detector.Config{
		Provider:   d.Provider,
		Model:      d.Model,
		BaseURL:    d.BaseURL,
		APIKey:     d.APIKey,
		Timeout:    d.Timeout,
		MaxRetries: d.MaxRetries,
		Backoff:    d.Backoff,
		RateLimit:  d.RateLimit,
		KeepAlive:  d.KeepAlive,
		NumGPU:     d.NumGPU,
		Markers: detector.Markers{
			OK:        d.OKMarkers,
			Slouch:    d.SlouchMarkers,
			Uncertain: d.UncertainMarkers,
			Negations: d.NegationMarkers,
		},
	}
}

func detectorRequest(cfg *config.Config) detector.Request {
	return detector.Request{
		Prompt:      cfg.Detector.Prompt,
		MaxTokens:   cfg.Detector.MaxTokens,
		Temperature: cfg.Detector.Temperature,
	}
}

// buildDetector creates the backend client and, for Ollama, checks that the
// model can be loaded. A fatal probe failure stops startup.
func buildDetector(ctx context.Context, cfg *config.Config) (*detector.Client, error) {
	client, err := detector.New(ctx, detectorConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create detector: %w", err)
	}

	if cfg.Detector.Provider == "ollama" {
		if err := client.Probe(ctx); err != nil {
			if detector.IsFatal(err) {
				client.Close()
				return nil, fmt.Errorf("detector not ready: %w", err)
			}
			telemetry.LogWarn("Detector probe failed, continuing", "error", err)
		}
	}
	return client, nil
}

func buildCamera(cfg *config.Config) (*camera.Device, error) {
	c := cfg.Camera
	return camera.Open(camera.Config{
		Device:      camera.ResolveDevice(c.Device, c.Index),
		FFmpeg:      c.FFmpeg,
		CaptureSize: c.CaptureSize,
		FPS:         c.FPS,
		ReadTimeout: c.ReadTimeout,
		ResizeTo:    c.ResizeTo,
		Filter:      c.ResizeFilter,
	})
}

func notifyConfig(cfg *config.Config) notify.Config {
	n := cfg.Notifications
	return notify.Config{
		DesktopEnabled:  n.DesktopEnabled,
		DesktopBinary:   cfg.Popup.NotifyBinary,
		AppName:         cfg.Popup.Title,
		SlackEnabled:    n.SlackEnabled,
		SlackChannel:    n.SlackChannel,
		SlackWebhookURL: n.SlackWebhookURL,
		Events: map[string]bool{
			notify.EventSlouch:    n.Events["on_slouch"],
			notify.EventRecovered: n.Events["on_recovered"],
			notify.EventError:     n.Events["on_error"],
		},
	}
}

func popupConfig(cfg *config.Config) popup.Config {
	p := cfg.Popup
	order := make([]popup.Kind, 0, len(p.Order))
	for _, k := range p.Order {
		order = append(order, popup.Kind(k))
	}
	return popup.Config{
		Backend:          popup.Kind(p.Backend),
		Order:            order,
		Mode:             popup.Mode(p.Mode),
		Size:             p.Size,
		PreviewFPS:       p.PreviewFPS,
		FeedbackInterval: p.FeedbackInterval,
		AutoClose:        p.AutoClose,
		Title:            p.Title,
		Request:          detectorRequest(cfg),
	}
}

// buildPopup creates the controller with every backend it may select.
func buildPopup(cfg *config.Config, src camera.Source, det detector.Detector) (*popup.Controller, error) {
	p := cfg.Popup

	player, err := popup.NewPlayer(popup.StreamConfig{
		Binary:    p.Player,
		ExtraArgs: p.PlayerArgs,
		Format:    p.StreamFormat,
	})
	if err != nil {
		return nil, err
	}
	window, err := popup.NewWindow(popup.StreamConfig{
		Binary:    p.Viewer,
		ExtraArgs: p.ViewerArgs,
		Format:    p.StreamFormat,
	}, p.Blocking)
	if err != nil {
		return nil, err
	}
	desktop := notify.NewDesktop(p.NotifyBinary, p.Title)

	ctrl := popup.NewController(popupConfig(cfg), src, det, player, window, popup.NewNotify(desktop)).
		WithAvailability(func() popup.Availability {
			return popup.DetectAvailability(p.Player, p.Viewer, p.NotifyBinary)
		})
	return ctrl, nil
}

func monitorConfig(cfg *config.Config) monitor.Config {
	openOn := make([]detector.Status, 0, len(cfg.Popup.OpenOn))
	for _, s := range cfg.Popup.OpenOn {
		openOn = append(openOn, detector.Status(s))
	}
	return monitor.Config{
		Interval: cfg.Monitor.Interval,
		Request:  detectorRequest(cfg),
		OpenOn:   openOn,
	}
}

// buildDebugFrames prepares the debug frames directory, or returns nil when
// saving is off.
func buildDebugFrames(cfg *config.Config) (*debugframes.Writer, error) {
	d := cfg.Debug
	dir, err := filepath.Abs(d.FramesDir)
	if err != nil {
		return nil, err
	}
	if d.ClearOnStart {
		if err := debugframes.Clear(dir); err != nil {
			return nil, err
		}
		telemetry.LogDebug("Cleared debug frames dir", "dir", dir)
	}
	if !d.SaveFrames {
		return nil, nil
	}
	return debugframes.NewWriter(dir, d.MaxFrames)
}
