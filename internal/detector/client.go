package detector

import (
	"context"
	"fmt"
	"io"
	"time"

	"slouchless/internal/camera"
	"slouchless/internal/telemetry"
)

// Backend performs a single inference request without retries.
type Backend interface {
	Name() string
	SendOnce(ctx context.Context, image []byte, req Request) (string, error)
}

// Prober is implemented by backends that can verify readiness at startup.
type Prober interface {
	Probe(ctx context.Context) error
}

// Client turns a Backend into a Detector: it encodes the frame, retries
// transient failures and classifies the raw text.
type Client struct {
	backend     Backend
	classifier  *Classifier
	maxRetries  int
	backoffFn   func(int) time.Duration
	jpegQuality int
}

// NewClient wraps a backend.
func NewClient(b Backend, c *Classifier) *Client {
	if c == nil {
		c = NewClassifier(DefaultMarkers())
	}
	return &Client{
		backend:     b,
		classifier:  c,
		maxRetries:  3,
		backoffFn:   ExponentialBackoff(time.Second),
		jpegQuality: 85,
	}
}

// WithRetries sets the number of retries after the first attempt.
func (c *Client) WithRetries(n int) *Client {
	if n >= 0 {
		c.maxRetries = n
	}
	return c
}

// WithBackoff overrides the backoff function (useful in tests).
func (c *Client) WithBackoff(fn func(int) time.Duration) *Client {
	if fn != nil {
		c.backoffFn = fn
	}
	return c
}

// Name returns the backend name.
func (c *Client) Name() string {
	return c.backend.Name()
}

// Probe checks backend readiness when the backend supports it.
func (c *Client) Probe(ctx context.Context) error {
	if p, ok := c.backend.(Prober); ok {
		return p.Probe(ctx)
	}
	return nil
}

// Close releases backend resources.
func (c *Client) Close() error {
	if closer, ok := c.backend.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Classify runs one inference with bounded retries.
func (c *Client) Classify(ctx context.Context, frame camera.Frame, req Request) (Result, error) {
	name := c.backend.Name()
	if frame.IsZero() {
		return Result{}, fatalErr(name, fmt.Errorf("empty frame"))
	}

	img, err := camera.EncodeJPEG(frame, c.jpegQuality)
	if err != nil {
		return Result{}, fatalErr(name, err)
	}

	start := time.Now()
	raw, err := SendWithRetry(ctx, c.backend, img, req, c.maxRetries, c.backoffFn)
	latency := time.Since(start)
	telemetry.ObserveInferenceLatency(name, latency)
	if err != nil {
		telemetry.TrackInferenceError(name, KindOf(err))
		return Result{}, err
	}

	status := c.classifier.Status(raw)
	telemetry.TrackVerdict(string(status))
	telemetry.LogDebug("Detector output", "backend", name, "raw", raw, "status", status, "latency", latency)

	return Result{
		Status:      status,
		Raw:         raw,
		Message:     Message(status, raw),
		Backend:     name,
		GeneratedAt: time.Now(),
		Latency:     latency,
	}, nil
}
