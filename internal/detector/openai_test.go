package detector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openAIServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestOpenAI_SendOnce_Success(t *testing.T) {
	server := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body struct {
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
			Messages  []struct {
				Role    string `json:"role"`
				Content []struct {
					Type     string `json:"type"`
					Text     string `json:"text"`
					ImageURL struct {
						URL string `json:"url"`
					} `json:"image_url"`
				} `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body.Model)
		assert.Equal(t, 32, body.MaxTokens)
		require.Len(t, body.Messages, 1)
		require.Len(t, body.Messages[0].Content, 2)
		assert.Equal(t, "Slouching?", body.Messages[0].Content[0].Text)
		assert.True(t, strings.HasPrefix(body.Messages[0].Content[1].ImageURL.URL, "data:image/jpeg;base64,"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"No"},"finish_reason":"stop"}]}`))
	})

	client, err := NewOpenAI("test-key", server.URL+"/v1", "gpt-4o-mini", time.Second, 0)
	require.NoError(t, err)

	raw, err := client.SendOnce(context.Background(), []byte{0xff, 0xd8}, Request{Prompt: "Slouching?", MaxTokens: 32})
	require.NoError(t, err)
	assert.Equal(t, "No", raw)
}

func TestOpenAI_ErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{"unauthorized", http.StatusUnauthorized, false},
		{"forbidden", http.StatusForbidden, false},
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusInternalServerError, true},
		{"bad gateway", http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":{"message":"nope","type":"test_error"}}`))
			})

			client, err := NewOpenAI("test-key", server.URL+"/v1", "gpt-4o-mini", time.Second, 0)
			require.NoError(t, err)

			_, err = client.SendOnce(context.Background(), []byte{1}, Request{Prompt: "?"})
			require.Error(t, err)
			assert.Equal(t, tt.transient, IsTransient(err), err.Error())
			assert.Equal(t, !tt.transient, IsFatal(err), err.Error())
		})
	}
}

func TestOpenAI_NoChoicesIsTransient(t *testing.T) {
	server := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","choices":[]}`))
	})

	client, err := NewOpenAI("test-key", server.URL+"/v1", "", time.Second, 0)
	require.NoError(t, err)

	_, err = client.SendOnce(context.Background(), []byte{1}, Request{})
	assert.True(t, IsTransient(err))
}

func TestOpenAI_RateLimiterHonoursContext(t *testing.T) {
	server := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":"No"}}]}`))
	})

	// One request per minute: the second call must wait and is cancelled.
	client, err := NewOpenAI("test-key", server.URL+"/v1", "", time.Second, 1.0/60)
	require.NoError(t, err)

	_, err = client.SendOnce(context.Background(), []byte{1}, Request{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.SendOnce(ctx, []byte{1}, Request{})
	require.Error(t, err)
	assert.False(t, IsFatal(err))
}

func TestOpenAI_RequiresKey(t *testing.T) {
	_, err := NewOpenAI("", "", "", 0, 0)
	assert.True(t, IsFatal(err))
}
