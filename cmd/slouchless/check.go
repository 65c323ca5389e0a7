package main

import (
	"fmt"

	"slouchless/internal/camera"

	"github.com/spf13/cobra"
)

// checkCmd classifies a single image file
var checkCmd = &cobra.Command{
	Use:   "check <image>",
	Short: "Classify the posture in a JPEG or PNG file",
	Long: `Run one detector call on an image file and print the verdict. Useful for
trying prompts, markers and models without a webcam.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appConfig
		ctx := cmd.Context()

		img, err := camera.LoadImage(args[0])
		if err != nil {
			return err
		}
		src := camera.NewStatic(img)
		defer src.Close()
		src.Configure(cfg.Camera.ResizeTo)

		frame, err := src.Capture(ctx)
		if err != nil {
			return err
		}

		client, err := buildDetector(ctx, cfg)
		if err != nil {
			return err
		}
		defer client.Close()

		res, err := client.Classify(ctx, frame, detectorRequest(cfg))
		if err != nil {
			return fmt.Errorf("classification failed: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), formatResult(res))
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			fmt.Fprintf(cmd.OutOrStdout(), "raw: %q\n", res.Raw)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
