package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"slouchless/internal/camera"
	"slouchless/internal/detector"

	"github.com/spf13/cobra"
)

var popupTestCmd = &cobra.Command{
	Use:   "popup-test",
	Short: "Open the posture popup with a scripted detector",
	Long: `Open the configured popup backend using the mock detector, so the popup
pipeline can be checked without a model server. Frames come from the webcam,
or from --image when given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *appConfig
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		duration, _ := cmd.Flags().GetDuration("duration")
		imagePath, _ := cmd.Flags().GetString("image")
		if b, _ := cmd.Flags().GetString("backend"); b != "" {
			cfg.Popup.Backend = b
		}
		if m, _ := cmd.Flags().GetString("mode"); m != "" {
			cfg.Popup.Mode = m
		}

		var src camera.Source
		if imagePath != "" {
			img, err := camera.LoadImage(imagePath)
			if err != nil {
				return err
			}
			src = camera.NewStatic(img)
			src.Configure(cfg.Camera.ResizeTo)
		} else {
			dev, err := buildCamera(&cfg)
			if err != nil {
				return err
			}
			src = dev
		}
		defer src.Close()

		mock := detector.NewMock("Yes, the shoulders are hunched forward.", "No, the person is sitting upright.")
		det := detector.NewExclusive(detector.NewClient(mock, nil))

		ctrl, err := buildPopup(&cfg, src, det)
		if err != nil {
			return err
		}
		defer ctrl.Close()

		frame, err := src.Capture(ctx)
		if err != nil {
			return err
		}
		res, err := det.Classify(ctx, frame, detectorRequest(&cfg))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if err := ctrl.Open(ctx, frame, res); err != nil {
			return fmt.Errorf("popup failed: %w", err)
		}
		if s, ok := ctrl.LastSession(); ok {
			fmt.Fprintf(out, "Popup open: backend=%s mode=%s blocking=%t session=%s\n", s.Backend, s.Mode, s.Blocking, s.ID)
		}

		select {
		case <-ctrl.Released():
			fmt.Fprintln(out, "Popup closed")
		case <-time.After(duration):
			fmt.Fprintf(out, "Closing popup after %s\n", duration)
		case <-ctx.Done():
		}
		fmt.Fprintf(out, "Mock detector calls: %d\n", mock.Calls())
		return nil
	},
}

func init() {
	popupTestCmd.Flags().Duration("duration", 10*time.Second, "How long to keep the popup open")
	popupTestCmd.Flags().String("image", "", "Use a still image instead of the webcam")
	popupTestCmd.Flags().String("backend", "", "Override popup.backend (auto, player, window, notify)")
	popupTestCmd.Flags().String("mode", "", "Override popup.mode (live, feedback, static)")
	rootCmd.AddCommand(popupTestCmd)
}
