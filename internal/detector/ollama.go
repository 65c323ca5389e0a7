package detector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Ollama talks to a local Ollama server over its native generate API.
type Ollama struct {
	baseURL    string
	model      string
	keepAlive  string
	numGPU     int
	httpClient *http.Client
}

// NewOllama creates an Ollama backend.
// baseURL defaults to http://localhost:11434 if empty.
func NewOllama(baseURL, model string, timeout time.Duration) *Ollama {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		numGPU:  -1,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// WithKeepAlive controls how long the server keeps the model loaded.
func (c *Ollama) WithKeepAlive(keepAlive string) *Ollama {
	c.keepAlive = keepAlive
	return c
}

// WithNumGPU limits GPU layers; negative leaves the server default.
func (c *Ollama) WithNumGPU(n int) *Ollama {
	c.numGPU = n
	return c
}

func (c *Ollama) Name() string {
	return "ollama"
}

type ollamaGenerateRequest struct {
	Model     string         `json:"model"`
	Prompt    string         `json:"prompt"`
	Images    []string       `json:"images"`
	Stream    bool           `json:"stream"`
	KeepAlive string         `json:"keep_alive,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// SendOnce performs one /api/generate call.
func (c *Ollama) SendOnce(ctx context.Context, image []byte, req Request) (string, error) {
	if c.model == "" {
		return "", fatalErr(c.Name(), fmt.Errorf("model is required for Ollama"))
	}

	options := map[string]any{
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if c.numGPU >= 0 {
		options["num_gpu"] = c.numGPU
	}

	body := ollamaGenerateRequest{
		Model:     c.model,
		Prompt:    req.Prompt,
		Images:    []string{base64.StdEncoding.EncodeToString(image)},
		Stream:    false,
		KeepAlive: c.keepAlive,
		Options:   options,
	}

	resp, err := c.post(ctx, "/api/generate", body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", c.statusError(resp.StatusCode, string(bodyBytes))
	}

	var response ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", transientErr(c.Name(), fmt.Errorf("failed to decode response: %w", err))
	}

	if response.Error != "" {
		if isModelMissing(response.Error) {
			return "", fatalErr(c.Name(), fmt.Errorf("Ollama API error: %s", response.Error))
		}
		return "", transientErr(c.Name(), fmt.Errorf("Ollama API error: %s", response.Error))
	}

	if !response.Done {
		return "", transientErr(c.Name(), fmt.Errorf("Ollama response incomplete"))
	}

	return response.Response, nil
}

// Probe asks the server for model metadata so a missing model fails at
// startup rather than on the first tick.
func (c *Ollama) Probe(ctx context.Context) error {
	if c.model == "" {
		return fatalErr(c.Name(), fmt.Errorf("model is required for Ollama"))
	}

	resp, err := c.post(ctx, "/api/show", map[string]string{"model": c.model})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return c.statusError(resp.StatusCode, string(bodyBytes))
	}
	return nil
}

func (c *Ollama) post(ctx context.Context, path string, body any) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fatalErr(c.Name(), fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fatalErr(c.Name(), fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, transientErr(c.Name(), fmt.Errorf("failed to send request to Ollama: %w", err))
	}
	return resp, nil
}

func (c *Ollama) statusError(code int, body string) error {
	err := fmt.Errorf("Ollama API returned status %d: %s", code, strings.TrimSpace(body))
	switch {
	case code == http.StatusNotFound || isModelMissing(body):
		return fatalErr(c.Name(), err)
	case code >= 500, code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return transientErr(c.Name(), err)
	default:
		return fatalErr(c.Name(), err)
	}
}

func isModelMissing(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "not found") && strings.Contains(msg, "model")
}
