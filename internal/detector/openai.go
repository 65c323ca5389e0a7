package detector

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// OpenAI calls a chat-completions API (OpenAI or any compatible server)
// with the frame attached as a JPEG data URL.
type OpenAI struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
}

// NewOpenAI creates a remote backend. ratePerSec <= 0 disables limiting.
func NewOpenAI(apiKey, baseURL, model string, timeout time.Duration, ratePerSec float64) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fatalErr("openai", fmt.Errorf("API key is required"))
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}

	return &OpenAI{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

func (c *OpenAI) Name() string {
	return "openai"
}

// SendOnce performs one chat completion.
func (c *OpenAI) SendOnce(ctx context.Context, image []byte, req Request) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", transientErr(c.Name(), fmt.Errorf("rate limiter: %w", err))
	}

	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)
	messages := []openai.ChatCompletionMessage{
		{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{
					Type: openai.ChatMessagePartTypeText,
					Text: req.Prompt,
				},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    dataURL,
						Detail: openai.ImageURLDetailLow,
					},
				},
			},
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", c.classifyError(err)
	}

	if len(resp.Choices) == 0 {
		return "", transientErr(c.Name(), fmt.Errorf("no content in response"))
	}

	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAI) classifyError(err error) error {
	code := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		code = reqErr.HTTPStatusCode
	}

	wrapped := fmt.Errorf("OpenAI API error: %w", err)
	switch {
	case code == 0:
		// no HTTP response: network failure or timeout
		return transientErr(c.Name(), wrapped)
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout, code >= 500:
		return transientErr(c.Name(), wrapped)
	default:
		return fatalErr(c.Name(), wrapped)
	}
}
