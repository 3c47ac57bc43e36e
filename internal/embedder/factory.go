package embedder

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/songmatch-mcp/internal/config"
)

var getenv = os.Getenv

// Config describes one provider.
type Config struct {
	Provider   string
	APIKey     string
	Model      string
	BaseURL    string
	BatchDelay time.Duration
	Timeout    time.Duration
	Cache      *Cache
}

// New constructs a provider from cfg.
func New(cfg Config) (Embedder, error) {
	opts := []Option{
		WithBaseURL(cfg.BaseURL),
		WithModel(cfg.Model),
		WithCache(cfg.Cache),
		WithBatchDelay(cfg.BatchDelay),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.APIKey, opts...)
	case ProviderJina:
		return NewJinaProvider(cfg.APIKey, opts...)
	case ProviderLocal:
		return NewLocalProvider(opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}
}

// FactoryFor defers construction of cfg's provider to first use.
func FactoryFor(cfg Config) Factory {
	return func(context.Context) (Embedder, error) {
		return New(cfg)
	}
}

// ProviderConfig extracts the settings for one named provider from the
// embedding section.
func ProviderConfig(ec config.EmbeddingConfig, name string, cache *Cache) Config {
	cfg := Config{
		Provider:   name,
		BatchDelay: ec.BatchDelay,
		Timeout:    ec.Timeout,
		Cache:      cache,
	}
	switch name {
	case ProviderOpenAI:
		cfg.APIKey = ec.OpenAIAPIKey
		cfg.Model = ec.OpenAIModel
		cfg.BaseURL = ec.OpenAIBaseURL
	case ProviderJina:
		cfg.APIKey = ec.JinaAPIKey
		cfg.BaseURL = ec.JinaBaseURL
	case ProviderLocal:
		cfg.Model = ec.LocalModel
		cfg.BaseURL = ec.LocalURL
		cfg.BatchDelay = 0
	}
	return cfg
}

// NewServiceFromConfig wires the primary and optional fallback providers
// named in ec into a Service sharing one cache.
func NewServiceFromConfig(ec config.EmbeddingConfig, logger zerolog.Logger) *Service {
	cache := NewCache(ec.CacheSize)

	sc := ServiceConfig{
		PrimaryName: ec.Provider,
		Primary:     FactoryFor(ProviderConfig(ec, ec.Provider, cache)),
		Logger:      logger,
	}
	if ec.Fallback != "" {
		sc.FallbackName = ec.Fallback
		sc.Fallback = FactoryFor(ProviderConfig(ec, ec.Fallback, cache))
	}
	return NewService(sc)
}
