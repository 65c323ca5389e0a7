package detector

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config selects and tunes a backend. It is read once at startup.
type Config struct {
	Provider   string
	Model      string
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	RateLimit  float64
	KeepAlive  string
	NumGPU     int
	Markers    Markers
}

// Providers lists the accepted provider names.
var Providers = []string{"ollama", "openai", "gemini", "mock"}

// New creates a Client for the configured provider.
func New(ctx context.Context, cfg Config) (*Client, error) {
	var backend Backend

	switch strings.ToLower(cfg.Provider) {
	case "ollama", "":
		backend = NewOllama(cfg.BaseURL, cfg.Model, cfg.Timeout).
			WithKeepAlive(cfg.KeepAlive).
			WithNumGPU(cfg.NumGPU)
	case "openai":
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		b, err := NewOpenAI(key, cfg.BaseURL, cfg.Model, cfg.Timeout, cfg.RateLimit)
		if err != nil {
			return nil, err
		}
		backend = b
	case "gemini":
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("GEMINI_API_KEY")
		}
		b, err := NewGemini(ctx, key, cfg.BaseURL, cfg.Model)
		if err != nil {
			return nil, err
		}
		backend = b
	case "mock":
		backend = NewMock("No, the person is sitting upright.", "Yes, the shoulders are hunched forward.")
	default:
		return nil, fmt.Errorf("unknown detector provider: %s", cfg.Provider)
	}

	markers := cfg.Markers
	if len(markers.OK)+len(markers.Slouch)+len(markers.Uncertain) == 0 {
		markers = DefaultMarkers()
	}

	client := NewClient(backend, NewClassifier(markers)).WithRetries(cfg.MaxRetries)
	if cfg.Backoff > 0 {
		client.WithBackoff(ExponentialBackoff(cfg.Backoff))
	}
	return client, nil
}
