package main

import (
	"fmt"
	"os"

	"slouchless/internal/config"
	"slouchless/internal/telemetry"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var exit = os.Exit
var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "slouchless",
	Short: "Webcam posture monitor",
	Long: `Slouchless periodically samples your webcam, asks a vision-language model
whether you are slouching, and tells you about it through a popup or a
desktop notification.`,
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command and exits non-zero when it fails.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintln(os.Stderr, "Run 'slouchless --help' for usage.")
		exit(1)
	}
}

func init() {
	// Default behavior: start monitoring
	rootCmd.RunE = runMonitor

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose/debug logging")
	rootCmd.PersistentFlags().String("provider", "", "Detector provider (ollama, openai, gemini, mock)")
	rootCmd.PersistentFlags().String("model", "", "Model to use (overrides config and SLOUCHLESS_DETECTOR_MODEL)")
	rootCmd.PersistentFlags().Bool("mock", false, "Use the scripted mock detector (no model server required)")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
}

// bindFlags maps persistent flags onto config keys. Only flags the user set
// override config, so viper.BindPFlag defaults never shadow config files.
func bindFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	for flag, key := range map[string]string{
		"provider": "detector.provider",
		"model":    "detector.model",
		"mock":     "mock",
	} {
		if f := flags.Lookup(flag); f != nil && f.Changed {
			viper.Set(key, f.Value.String())
		}
	}
	if verbose, _ := flags.GetBool("verbose"); verbose {
		viper.Set("log.level", "debug")
	}
}

// appConfig is the effective configuration of the running command.
var appConfig *config.Config

func loadConfig(cmd *cobra.Command, args []string) error {
	if err := config.Load(cfgFile); err != nil {
		return err
	}
	bindFlags(cmd)

	cfg, err := config.Get()
	if err != nil {
		return err
	}
	if cfg.Mock {
		cfg.Detector.Provider = "mock"
	}
	appConfig = cfg

	telemetry.InitLogger(cfg.Log.Level, cfg.Log.File)

	noColor, _ := cmd.Flags().GetBool("no-color")
	setupColor(cmd.OutOrStdout(), noColor)
	return nil
}
