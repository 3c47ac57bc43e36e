package aboutness

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/dshills/songmatch-mcp/internal/config"
)

const (
	DefaultChatBaseURL = "https://api.openai.com/v1"
	DefaultChatModel   = "gpt-4o-mini"
	defaultChatTimeout = 60 * time.Second
	maxErrorBody       = 512
)

// TextGenerator produces free text from a system and user prompt.
type TextGenerator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
	Model() string
}

// ChatClient talks to an OpenAI-compatible chat completions endpoint.
type ChatClient struct {
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	client      *http.Client
}

// ChatOption configures a ChatClient.
type ChatOption func(*ChatClient)

func WithChatBaseURL(url string) ChatOption {
	return func(c *ChatClient) { c.baseURL = strings.TrimRight(url, "/") }
}

func WithChatModel(model string) ChatOption {
	return func(c *ChatClient) { c.model = model }
}

func WithTemperature(t float64) ChatOption {
	return func(c *ChatClient) { c.temperature = t }
}

func WithChatHTTPClient(client *http.Client) ChatOption {
	return func(c *ChatClient) { c.client = client }
}

// NewChatClient creates a client. An empty apiKey sends no Authorization
// header, which suits local OpenAI-compatible servers.
func NewChatClient(apiKey string, opts ...ChatOption) *ChatClient {
	c := &ChatClient{
		apiKey:      apiKey,
		model:       DefaultChatModel,
		baseURL:     DefaultChatBaseURL,
		temperature: 0.7,
		client:      &http.Client{Timeout: defaultChatTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewChatClientFromConfig builds a client from the generation section. The
// OpenAI embedding key is reused when no generation key is set.
func NewChatClientFromConfig(cfg *config.Config) *ChatClient {
	gc := cfg.Generation
	key := gc.APIKey
	if key == "" {
		key = cfg.Embedding.OpenAIAPIKey
	}
	opts := []ChatOption{WithTemperature(gc.Temperature)}
	if gc.BaseURL != "" {
		opts = append(opts, WithChatBaseURL(gc.BaseURL))
	}
	if gc.Model != "" {
		opts = append(opts, WithChatModel(gc.Model))
	}
	if gc.Timeout > 0 {
		opts = append(opts, WithChatHTTPClient(&http.Client{Timeout: gc.Timeout}))
	}
	return NewChatClient(key, opts...)
}

// Model returns the chat model name.
func (c *ChatClient) Model() string {
	return c.model
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate sends one chat completion and returns the first choice.
func (c *ChatClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("chat API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("no choices in chat response")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
