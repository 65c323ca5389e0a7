package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"slouchless/internal/camera"
	"slouchless/internal/config"
	"slouchless/internal/detector"
	"slouchless/internal/monitor"
	"slouchless/internal/notify"
	"slouchless/internal/popup"
	"slouchless/internal/telemetry"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Monitor posture until interrupted (default command)",
	Long: `Capture a frame every monitor.interval, classify it with the configured
detector and show a popup when you are slouching.

Send SIGUSR1 to pause or resume monitoring.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := telemetry.StartMetricsServer(cfg.MetricsAddr); err != nil {
				telemetry.LogError("Metrics server stopped", err, "addr", cfg.MetricsAddr)
			}
		}()
	}

	frames, err := buildDebugFrames(cfg)
	if err != nil {
		return err
	}

	client, err := buildDetector(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()
	det := detector.NewExclusive(client)

	src, err := buildCamera(cfg)
	if err != nil {
		return err
	}

	m, err := assemble(cfg, src, det, newStatusPrinter(cmd.OutOrStdout()))
	if err != nil {
		src.Close()
		return err
	}
	m.WithDebugFrames(frames)

	go toggleOnSignal(ctx, m)

	telemetry.LogInfo("Slouchless started",
		"detector", det.Name(),
		"model", cfg.Detector.Model,
		"interval", cfg.Monitor.Interval,
		"popup", cfg.Popup.Backend)
	return m.Run(ctx)
}

// assemble wires the monitor to its popup, notifications and console output.
func assemble(cfg *config.Config, src camera.Source, det detector.Detector, out *statusPrinter) (*monitor.Monitor, error) {
	m := monitor.New(monitorConfig(cfg), src, det)

	ctrl, err := buildPopup(cfg, src, det)
	if err != nil {
		return nil, err
	}
	ctrl.WithHooks(popup.Hooks{OnFeedback: m.RecordFeedback})

	mgr := notify.NewManager(notifyConfig(cfg))
	telemetry.LogDebug("Notification providers", "providers", mgr.Providers())

	m.WithPopup(ctrl).
		WithNotifier(mgr).
		WithHooks(monitor.Hooks{
			OnTick:   out.tick,
			OnResult: func(res detector.Result, _ camera.Frame) { out.result(res) },
			OnError:  out.failure,
		})
	return m, nil
}

// toggleOnSignal pauses and resumes monitoring on SIGUSR1.
func toggleOnSignal(ctx context.Context, m *monitor.Monitor) {
	toggle := make(chan os.Signal, 1)
	signal.Notify(toggle, syscall.SIGUSR1)
	defer signal.Stop(toggle)

	for {
		select {
		case <-ctx.Done():
			return
		case <-toggle:
			m.SetEnabled(!m.Enabled())
		}
	}
}
