package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var secretKeys = []string{"api_key", "token", "webhook_url"}

var configCmd = &cobra.Command{
	Use:   "config [key]",
	Short: "Print the effective configuration",
	Long: `Print every configuration key with its effective value after defaults,
config file, .env, environment and flags are applied. Secrets are masked.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		if len(args) == 1 {
			key := args[0]
			if !viper.IsSet(key) {
				return fmt.Errorf("key not found in configuration: %s", key)
			}
			fmt.Fprintf(out, "%v\n", displayValue(key, viper.Get(key)))
			return nil
		}

		keys := viper.AllKeys()
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(out, "%s: %v\n", key, displayValue(key, viper.Get(key)))
		}
		if used := viper.ConfigFileUsed(); used != "" {
			fmt.Fprintf(out, "# config file: %s\n", used)
		}
		return nil
	},
}

func displayValue(key string, value any) any {
	s, ok := value.(string)
	if !ok || s == "" {
		return value
	}
	for _, secret := range secretKeys {
		if strings.HasSuffix(key, secret) {
			return "********"
		}
	}
	if strings.Contains(s, "\n") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

func init() {
	rootCmd.AddCommand(configCmd)
}
