package embedder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/dshills/songmatch-mcp/internal/vecmath"
)

// Provider configuration
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultLocalModel  = "all-minilm"

	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultJinaBaseURL   = "https://api.jina.ai/v1"
	DefaultLocalURL      = "http://127.0.0.1:11434"

	JinaDimension   = 1024
	OpenAIDimension = 1536
	LocalDimension  = 384

	// Texts per provider call
	RemoteBatchSize = 100
	LocalBatchSize  = 32

	localProbeTTL = 5 * time.Second

	// Environment fallbacks for API keys
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvJinaAPIKey   = "JINA_API_KEY"

	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// Option configures a provider.
type Option func(*options)

type options struct {
	baseURL    string
	model      string
	dimension  int
	httpClient *http.Client
	cache      *Cache
	batchDelay time.Duration
	retry      RetryConfig
}

// WithBaseURL overrides the provider endpoint, e.g. for a proxy or a test server.
func WithBaseURL(url string) Option {
	return func(o *options) {
		if url != "" {
			o.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithModel overrides the embedding model.
func WithModel(model string) Option {
	return func(o *options) {
		if model != "" {
			o.model = model
		}
	}
}

// WithDimension overrides the expected vector dimension for a non-default model.
func WithDimension(dim int) Option {
	return func(o *options) {
		if dim > 0 {
			o.dimension = dim
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithCache enables embedding caching.
func WithCache(c *Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithBatchDelay spaces consecutive batch calls at least d apart.
func WithBatchDelay(d time.Duration) Option {
	return func(o *options) { o.batchDelay = d }
}

// WithRetry replaces the retry policy.
func WithRetry(rc RetryConfig) Option {
	return func(o *options) { o.retry = rc }
}

func buildOptions(baseURL, model string, dim int, opts []Option) options {
	o := options{
		baseURL:    baseURL,
		model:      model,
		dimension:  dim,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retry:      DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// batchRunner holds the batching, caching and pacing shared by all providers.
// call embeds one batch no larger than batchSize.
type batchRunner struct {
	provider  string
	model     string
	dimension int
	batchSize int
	cache     *Cache
	limiter   *rate.Limiter
	call      func(ctx context.Context, texts []string) ([][]float32, error)
}

func newLimiter(d time.Duration) *rate.Limiter {
	if d <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(d), 1)
}

func (b *batchRunner) embedOne(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	resp, err := b.embedBatch(ctx, BatchEmbeddingRequest{Texts: []string{req.Text}})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}

func (b *batchRunner) embedBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	out := make([]*Embedding, len(req.Texts))
	pending := make([]int, 0, len(req.Texts))
	for i, text := range req.Texts {
		if b.cache != nil {
			if emb, ok := b.cache.Get(CacheKey(b.model, text)); ok {
				out[i] = emb
				continue
			}
		}
		pending = append(pending, i)
	}

	for start := 0; start < len(pending); start += b.batchSize {
		end := min(start+b.batchSize, len(pending))
		chunk := pending[start:end]

		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		texts := make([]string, len(chunk))
		for j, idx := range chunk {
			texts[j] = req.Texts[idx]
		}

		vectors, err := b.call(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrProviderFailed, b.provider, err)
		}
		if err := b.checkVectors(vectors, len(texts)); err != nil {
			return nil, err
		}

		for j, idx := range chunk {
			key := CacheKey(b.model, texts[j])
			emb := &Embedding{
				Vector:    vectors[j],
				Dimension: len(vectors[j]),
				Provider:  b.provider,
				Model:     b.model,
				Hash:      key,
			}
			if b.cache != nil {
				b.cache.Set(key, emb)
			}
			out[idx] = emb
		}
	}

	return &BatchEmbeddingResponse{Embeddings: out, Provider: b.provider, Model: b.model}, nil
}

// checkVectors rejects responses that would silently corrupt retrieval:
// wrong count, wrong dimension, or all-zero vectors.
func (b *batchRunner) checkVectors(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return fmt.Errorf("%w: %s returned %d vectors for %d texts", ErrProviderFailed, b.provider, len(vectors), want)
	}
	for i, v := range vectors {
		if len(v) != b.dimension {
			return fmt.Errorf("%w: %s vector %d: %w: got %d, want %d",
				ErrProviderFailed, b.provider, i, vecmath.ErrDimensionMismatch, len(v), b.dimension)
		}
		if vecmath.Magnitude(v) == 0 {
			return fmt.Errorf("%w: %s returned a zero vector at %d", ErrProviderFailed, b.provider, i)
		}
	}
	return nil
}

// postJSON sends body to url and decodes a 200 response into out.
func postJSON(ctx context.Context, client *http.Client, url, apiKey string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{Code: resp.StatusCode, Body: string(b)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// RemoteProvider implements Embedder for OpenAI-compatible /embeddings APIs.
// OpenAI and Jina share the wire format.
type RemoteProvider struct {
	batchRunner
	name       string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	retry      RetryConfig
}

// NewOpenAIProvider creates an OpenAI embedder. An empty apiKey falls back to
// OPENAI_API_KEY.
func NewOpenAIProvider(apiKey string, opts ...Option) (*RemoteProvider, error) {
	o := buildOptions(DefaultOpenAIBaseURL, DefaultOpenAIModel, OpenAIDimension, opts)
	return newRemoteProvider(ProviderOpenAI, apiKey, EnvOpenAIAPIKey, o)
}

// NewJinaProvider creates a Jina AI embedder. An empty apiKey falls back to
// JINA_API_KEY.
func NewJinaProvider(apiKey string, opts ...Option) (*RemoteProvider, error) {
	o := buildOptions(DefaultJinaBaseURL, DefaultJinaModel, JinaDimension, opts)
	return newRemoteProvider(ProviderJina, apiKey, EnvJinaAPIKey, o)
}

func newRemoteProvider(name, apiKey, envKey string, o options) (*RemoteProvider, error) {
	if apiKey == "" {
		apiKey = getenv(envKey)
	}
	if apiKey == "" {
		return nil, &ProviderError{Provider: name, Err: fmt.Errorf("%w: %s not set", ErrProviderUnavailable, envKey)}
	}

	p := &RemoteProvider{
		name:       name,
		apiKey:     apiKey,
		baseURL:    o.baseURL,
		httpClient: o.httpClient,
		retry:      o.retry,
	}
	p.batchRunner = batchRunner{
		provider:  name,
		model:     o.model,
		dimension: o.dimension,
		batchSize: RemoteBatchSize,
		cache:     o.cache,
		limiter:   newLimiter(o.batchDelay),
		call:      p.callAPI,
	}
	return p, nil
}

func (p *RemoteProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return p.embedOne(ctx, req)
}

func (p *RemoteProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	return p.embedBatch(ctx, req)
}

func (p *RemoteProvider) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	return retryWithBackoff(ctx, p.retry, func() ([][]float32, error) {
		var apiResp struct {
			Data []struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			} `json:"data"`
		}
		body := map[string]any{"input": texts, "model": p.model}
		if err := postJSON(ctx, p.httpClient, p.baseURL+"/embeddings", p.apiKey, body, &apiResp); err != nil {
			return nil, err
		}

		if len(apiResp.Data) != len(texts) {
			return nil, fmt.Errorf("got %d embeddings for %d texts", len(apiResp.Data), len(texts))
		}

		vectors := make([][]float32, len(texts))
		for i, d := range apiResp.Data {
			idx := d.Index
			if idx < 0 || idx >= len(vectors) || vectors[idx] != nil {
				idx = i
			}
			vectors[idx] = d.Embedding
		}
		return vectors, nil
	})
}

// Available reports the provider usable once it holds an API key. It does
// not spend a request on a network probe.
func (p *RemoteProvider) Available(ctx context.Context) error {
	if p.apiKey == "" {
		return &ProviderError{Provider: p.name, Err: ErrProviderUnavailable}
	}
	return ctx.Err()
}

func (p *RemoteProvider) Dimension() int   { return p.dimension }
func (p *RemoteProvider) BatchSize() int   { return p.batchSize }
func (p *RemoteProvider) Provider() string { return p.name }
func (p *RemoteProvider) Model() string    { return p.model }

func (p *RemoteProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// LocalProvider embeds through an on-box model server speaking the Ollama
// /api/embed protocol. No text leaves the host.
type LocalProvider struct {
	batchRunner
	baseURL    string
	httpClient *http.Client

	probeTTL time.Duration
	lastOK   atomic.Int64 // unix nanos of the last successful probe
}

// NewLocalProvider creates a local embedder. Reachability is checked by
// Available, not here.
func NewLocalProvider(opts ...Option) (*LocalProvider, error) {
	o := buildOptions(DefaultLocalURL, DefaultLocalModel, LocalDimension, opts)

	p := &LocalProvider{baseURL: o.baseURL, httpClient: o.httpClient, probeTTL: localProbeTTL}
	p.batchRunner = batchRunner{
		provider:  ProviderLocal,
		model:     o.model,
		dimension: o.dimension,
		batchSize: LocalBatchSize,
		cache:     o.cache,
		limiter:   nil,
		call:      p.callAPI,
	}
	return p, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return l.embedOne(ctx, req)
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	return l.embedBatch(ctx, req)
}

func (l *LocalProvider) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	var apiResp struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	body := map[string]any{"model": l.model, "input": texts}
	if err := postJSON(ctx, l.httpClient, l.baseURL+"/api/embed", "", body, &apiResp); err != nil {
		return nil, err
	}
	return apiResp.Embeddings, nil
}

// Available probes the model server. A successful probe is trusted for a
// few seconds so the query path does not pay an extra round trip per call.
func (l *LocalProvider) Available(ctx context.Context) error {
	if last := l.lastOK.Load(); last != 0 && time.Since(time.Unix(0, last)) < l.probeTTL {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/api/tags", nil)
	if err != nil {
		return &ProviderError{Provider: ProviderLocal, Err: err}
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return &ProviderError{Provider: ProviderLocal, Err: fmt.Errorf("%w: %w", ErrProviderUnavailable, err)}
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &ProviderError{Provider: ProviderLocal, Err: fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)}
	}
	l.lastOK.Store(time.Now().UnixNano())
	return nil
}

func (l *LocalProvider) Dimension() int   { return l.dimension }
func (l *LocalProvider) BatchSize() int   { return l.batchSize }
func (l *LocalProvider) Provider() string { return ProviderLocal }
func (l *LocalProvider) Model() string    { return l.model }

func (l *LocalProvider) Close() error {
	l.httpClient.CloseIdleConnections()
	return nil
}
