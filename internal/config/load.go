package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultPrompt asks for an answer the default markers can classify.
const DefaultPrompt = "Look at the person's posture. If they are slouching (rounded shoulders, " +
	"forward head/neck, hunched/curved upper back), answer 'Yes'. If they are " +
	"sitting/standing upright with a neutral spine, answer 'No'.\n" +
	"If you cannot determine from the image, answer with 'Error: <short reason>'.\n" +
	"Your response must start with exactly one of: Yes, No, or Error:."

// Load initializes the configuration from file and environment variables.
// An explicitly named file must exist; the default config.yaml is optional.
func Load(cfgFile string) error {
	// .env is optional
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("SLOUCHLESS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
		return nil
	}
	fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	return nil
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("camera.device", "")
	v.SetDefault("camera.index", 0)
	v.SetDefault("camera.ffmpeg", "ffmpeg")
	v.SetDefault("camera.capture_size", "640x480")
	v.SetDefault("camera.resize_to", "640x480")
	v.SetDefault("camera.resize_filter", "bilinear")
	v.SetDefault("camera.read_timeout", "5s")
	v.SetDefault("camera.fps", 15)

	v.SetDefault("detector.provider", "ollama")
	v.SetDefault("detector.model", "llava")
	v.SetDefault("detector.base_url", "")
	v.SetDefault("detector.api_key", "")
	v.SetDefault("detector.max_tokens", 64)
	v.SetDefault("detector.temperature", 0.0)
	v.SetDefault("detector.timeout", "60s")
	v.SetDefault("detector.max_retries", 3)
	v.SetDefault("detector.backoff", "1s")
	v.SetDefault("detector.rate_limit", 0.5)
	v.SetDefault("detector.keep_alive", "10m")
	v.SetDefault("detector.num_gpu", -1)
	v.SetDefault("detector.prompt", DefaultPrompt)
	v.SetDefault("detector.markers.ok", []string{"no", "upright", "good posture", "straight", "neutral spine"})
	v.SetDefault("detector.markers.slouch", []string{"yes", "slouch", "slouched", "slouching", "hunched", "hunching", "rounded shoulders", "forward head"})
	v.SetDefault("detector.markers.uncertain", []string{"error", "cannot determine", "unclear", "not visible"})
	v.SetDefault("detector.markers.negation", []string{"not", "no", "never", "without", "nor", "isn't", "aren't", "don't", "doesn't"})

	v.SetDefault("monitor.interval", "30s")

	v.SetDefault("popup.backend", "auto")
	v.SetDefault("popup.order", []string{"player", "window", "notify"})
	v.SetDefault("popup.mode", "feedback")
	v.SetDefault("popup.blocking", false)
	v.SetDefault("popup.size", "600x600")
	v.SetDefault("popup.preview_fps", 15)
	v.SetDefault("popup.feedback_interval", "2s")
	v.SetDefault("popup.auto_close", "0s")
	v.SetDefault("popup.open_on", []string{"slouching"})
	v.SetDefault("popup.player", "ffplay")
	v.SetDefault("popup.player_args", "")
	v.SetDefault("popup.stream_format", "mjpeg")
	v.SetDefault("popup.viewer", "ffplay")
	v.SetDefault("popup.viewer_args", "")
	v.SetDefault("popup.notify_binary", "notify-send")
	v.SetDefault("popup.title", "Slouchless")

	v.SetDefault("notifications.desktop.enabled", true)
	v.SetDefault("notifications.slack.enabled", os.Getenv("SLACK_BOT_USER_TOKEN") != "")
	v.SetDefault("notifications.slack.channel", "#general")
	v.SetDefault("notifications.slack.webhook_url", "")
	v.SetDefault("notifications.events.on_slouch", true)
	v.SetDefault("notifications.events.on_recovered", false)
	v.SetDefault("notifications.events.on_error", true)

	v.SetDefault("debug.save_frames", false)
	v.SetDefault("debug.frames_dir", "debug_frames")
	v.SetDefault("debug.max_frames", 20)
	v.SetDefault("debug.clear_on_start", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("mock", false)
}
