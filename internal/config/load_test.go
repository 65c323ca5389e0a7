package config

import (
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	defer viper.Reset()

	t.Run("Defaults", func(t *testing.T) {
		viper.Reset()
		t.Chdir(t.TempDir())

		require.NoError(t, Load(""))
		cfg, err := Get()
		require.NoError(t, err)

		assert.Equal(t, "ollama", cfg.Detector.Provider)
		assert.Equal(t, 30*time.Second, cfg.Monitor.Interval)
		assert.Equal(t, image.Pt(600, 600), cfg.Popup.Size)
		assert.Equal(t, image.Pt(640, 480), cfg.Camera.CaptureSize)
		assert.Equal(t, []string{"player", "window", "notify"}, cfg.Popup.Order)
		assert.Equal(t, []string{"slouching"}, cfg.Popup.OpenOn)
		assert.Equal(t, -1, cfg.Detector.NumGPU)
		assert.Equal(t, DefaultPrompt, cfg.Detector.Prompt)
		assert.Contains(t, cfg.Detector.SlouchMarkers, "rounded shoulders")
		assert.Contains(t, cfg.Detector.NegationMarkers, "not")
		assert.True(t, cfg.Notifications.Events["on_slouch"])
		assert.False(t, cfg.Notifications.Events["on_recovered"])
		assert.Zero(t, cfg.Popup.AutoClose)
	})

	t.Run("Load From Env", func(t *testing.T) {
		viper.Reset()
		t.Chdir(t.TempDir())
		t.Setenv("SLOUCHLESS_DETECTOR_PROVIDER", "openai")
		t.Setenv("SLOUCHLESS_MONITOR_INTERVAL", "45s")

		require.NoError(t, Load(""))
		cfg, err := Get()
		require.NoError(t, err)
		assert.Equal(t, "openai", cfg.Detector.Provider)
		assert.Equal(t, 45*time.Second, cfg.Monitor.Interval)
	})

	t.Run("Load From File", func(t *testing.T) {
		viper.Reset()
		dir := t.TempDir()
		path := filepath.Join(dir, "slouchless.yaml")
		yaml := "monitor:\n  interval: 10\npopup:\n  backend: notify\n  size: 320x240\n"
		require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

		require.NoError(t, Load(path))
		cfg, err := Get()
		require.NoError(t, err)
		assert.Equal(t, 10*time.Second, cfg.Monitor.Interval)
		assert.Equal(t, "notify", cfg.Popup.Backend)
		assert.Equal(t, image.Pt(320, 240), cfg.Popup.Size)
	})

	t.Run("Missing Explicit File", func(t *testing.T) {
		viper.Reset()
		err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("Dotenv", func(t *testing.T) {
		viper.Reset()
		dir := t.TempDir()
		t.Chdir(dir)
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SLOUCHLESS_POPUP_MODE=live\n"), 0o644))
		t.Cleanup(func() { os.Unsetenv("SLOUCHLESS_POPUP_MODE") })

		require.NoError(t, Load(""))
		assert.Equal(t, "live", viper.GetString("popup.mode"))
	})
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    image.Point
		wantErr bool
	}{
		{"640x480", image.Pt(640, 480), false},
		{" 600X600 ", image.Pt(600, 600), false},
		{"640", image.Point{}, true},
		{"0x480", image.Point{}, true},
		{"axb", image.Point{}, true},
		{"", image.Point{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
