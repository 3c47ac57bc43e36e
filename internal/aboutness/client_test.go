package aboutness

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/songmatch-mcp/internal/config"
)

func TestChatClientGenerate(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  hello [confidence: high] \n"}}]}`))
	}))
	defer server.Close()

	c := NewChatClient("sk-test", WithChatBaseURL(server.URL+"/v1/"), WithChatModel("test-model"), WithTemperature(0.2))
	out, err := c.Generate(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "hello [confidence: high]", out)

	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, 0.2, got.Temperature)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, chatMessage{Role: "system", Content: "sys"}, got.Messages[0])
	assert.Equal(t, chatMessage{Role: "user", Content: "user"}, got.Messages[1])
	assert.Equal(t, "test-model", c.Model())
}

func TestChatClientNoKeyNoHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	out, err := NewChatClient("", WithChatBaseURL(server.URL)).Generate(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestChatClientErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"status", http.StatusTooManyRequests, `{"error":"slow down"}`, "status 429"},
		{"no choices", http.StatusOK, `{"choices":[]}`, "no choices"},
		{"bad json", http.StatusOK, `{`, "decode chat response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewChatClient("k", WithChatBaseURL(server.URL)).Generate(context.Background(), "s", "u")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestChatClientContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewChatClient("k", WithChatBaseURL(server.URL)).Generate(ctx, "s", "u")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewChatClientFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Embedding.OpenAIAPIKey = "shared"
	cfg.Generation.Model = "m1"
	cfg.Generation.BaseURL = "http://llm.local/v1"

	c := NewChatClientFromConfig(cfg)
	assert.Equal(t, "shared", c.apiKey)
	assert.Equal(t, "m1", c.model)
	assert.Equal(t, "http://llm.local/v1", c.baseURL)

	cfg.Generation.APIKey = "own"
	assert.Equal(t, "own", NewChatClientFromConfig(cfg).apiKey)
}
