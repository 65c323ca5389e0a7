package detector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Gemini calls the Google Gemini API.
type Gemini struct {
	client    *genai.Client
	modelName string
}

// NewGemini creates a Gemini backend. endpoint is optional.
func NewGemini(ctx context.Context, apiKey, endpoint, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fatalErr("gemini", errors.New("gemini API key is required"))
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}

	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fatalErr("gemini", fmt.Errorf("failed to create client: %w", err))
	}

	return &Gemini{client: client, modelName: model}, nil
}

func (g *Gemini) Name() string {
	return "gemini"
}

// SendOnce performs one GenerateContent call.
func (g *Gemini) SendOnce(ctx context.Context, image []byte, req Request) (string, error) {
	model := g.client.GenerativeModel(g.modelName)
	model.SetTemperature(float32(req.Temperature))
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	res, err := model.GenerateContent(ctx, genai.ImageData("jpeg", image), genai.Text(req.Prompt))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", classifyGeminiError(err)
	}

	if len(res.Candidates) == 0 || res.Candidates[0].Content == nil || len(res.Candidates[0].Content.Parts) == 0 {
		return "", transientErr(g.Name(), errors.New("no response from Gemini API"))
	}

	var sb strings.Builder
	for _, part := range res.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", transientErr(g.Name(), errors.New("unexpected response format from Gemini API"))
	}
	return sb.String(), nil
}

func classifyGeminiError(err error) error {
	wrapped := fmt.Errorf("Gemini API error: %w", err)

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return transientErr("gemini", wrapped)
	}
	switch {
	case gerr.Code == http.StatusTooManyRequests, gerr.Code == http.StatusRequestTimeout, gerr.Code >= 500:
		return transientErr("gemini", wrapped)
	default:
		return fatalErr("gemini", wrapped)
	}
}

// Close releases the underlying gRPC/HTTP client.
func (g *Gemini) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
