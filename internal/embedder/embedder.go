package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Common errors
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrEmptyText           = errors.New("text cannot be empty")
	ErrBatchTooLarge       = errors.New("batch size exceeds limit")
	ErrUnsupportedProvider = errors.New("unsupported embedding provider")
	ErrProviderFailed      = errors.New("embedding provider failed")
	ErrProviderUnavailable = errors.New("embedding provider unavailable")
	ErrAllProvidersFailed  = errors.New("all embedding providers failed")
)

// ProviderError tags a failure with the provider that produced it.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embedding provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Embedding represents a vector embedding with metadata
type Embedding struct {
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
	Hash      string // cache key
}

// EmbeddingRequest represents a request to embed one text
type EmbeddingRequest struct {
	Text string
}

// BatchEmbeddingRequest represents a batch request
type BatchEmbeddingRequest struct {
	Texts []string
}

// BatchEmbeddingResponse holds one embedding per input text, in input order
type BatchEmbeddingResponse struct {
	Embeddings []*Embedding
	Provider   string
	Model      string
}

// Embedder is a single embedding provider.
type Embedder interface {
	// GenerateEmbedding embeds one text
	GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error)

	// GenerateBatch embeds many texts, chunking into provider-sized batches
	GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error)

	// Available reports whether the provider can currently serve requests
	Available(ctx context.Context) error

	// Dimension returns the vector dimension this provider produces
	Dimension() int

	// BatchSize returns the maximum number of texts sent per provider call
	BatchSize() int

	Provider() string
	Model() string
	Close() error
}

// Cache is an LRU of embeddings keyed by CacheKey.
type Cache struct {
	cache *lru.Cache[string, *Embedding]
}

// NewCache creates a cache holding at most maxLen embeddings
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 10000
	}
	cache, err := lru.New[string, *Embedding](maxLen)
	if err != nil {
		cache, _ = lru.New[string, *Embedding](10000)
	}
	return &Cache{cache: cache}
}

// Get returns a deep copy so callers cannot mutate cached vectors
func (c *Cache) Get(key string) (*Embedding, bool) {
	emb, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}

	vec := make([]float32, len(emb.Vector))
	copy(vec, emb.Vector)

	cp := *emb
	cp.Vector = vec
	return &cp, true
}

// Set stores an embedding
func (c *Cache) Set(key string, emb *Embedding) {
	c.cache.Add(key, emb)
}

// Size returns the number of cached embeddings
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}

// ComputeHash returns the hex SHA-256 of text
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// CacheKey scopes a text hash to a provider model, so switching models never
// serves vectors of the wrong dimension.
func CacheKey(model, text string) string {
	return model + ":" + ComputeHash(text)
}

// ValidateRequest validates an embedding request
func ValidateRequest(req EmbeddingRequest) error {
	if req.Text == "" {
		return ErrEmptyText
	}
	return nil
}

// ValidateBatchRequest validates a batch embedding request
func ValidateBatchRequest(req BatchEmbeddingRequest) error {
	if len(req.Texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}
	for i, text := range req.Texts {
		if text == "" {
			return fmt.Errorf("%w: text at index %d is empty", ErrInvalidInput, i)
		}
	}
	return nil
}

// Vectors extracts the raw vectors from a batch response.
func (r *BatchEmbeddingResponse) Vectors() [][]float32 {
	out := make([][]float32, len(r.Embeddings))
	for i, e := range r.Embeddings {
		out[i] = e.Vector
	}
	return out
}
