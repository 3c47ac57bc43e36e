// Package config loads songmatch configuration in three layers: built-in
// defaults, an optional YAML file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// PathEnvVar names the environment variable holding the config file path.
const PathEnvVar = "SONGMATCH_CONFIG"

// Config is the full persisted configuration surface.
type Config struct {
	Embedding   EmbeddingConfig   `koanf:"embedding"`
	Ranking     RankingConfig     `koanf:"ranking"`
	ThreeSignal ThreeSignalConfig `koanf:"three_signal"`
	Content     ContentConfig     `koanf:"content"`
	Generation  GenerationConfig  `koanf:"generation"`
	Backfill    BackfillConfig    `koanf:"backfill"`
	Storage     StorageConfig     `koanf:"storage"`
	Log         LogConfig         `koanf:"log"`
	Metrics     MetricsConfig     `koanf:"metrics"`
}

// EmbeddingConfig selects the primary and fallback embedding providers.
type EmbeddingConfig struct {
	Provider      string        `koanf:"provider"`
	Fallback      string        `koanf:"fallback"`
	OpenAIAPIKey  string        `koanf:"openai_api_key"`
	OpenAIModel   string        `koanf:"openai_model"`
	OpenAIBaseURL string        `koanf:"openai_base_url"`
	JinaAPIKey    string        `koanf:"jina_api_key"`
	JinaBaseURL   string        `koanf:"jina_base_url"`
	LocalURL      string        `koanf:"local_url"`
	LocalModel    string        `koanf:"local_model"`
	BatchDelay    time.Duration `koanf:"batch_delay"`
	CacheSize     int           `koanf:"cache_size"`
	Timeout       time.Duration `koanf:"timeout"`
}

// RankingConfig holds the reranker weights.
type RankingConfig struct {
	Semantic          float64 `koanf:"semantic"`
	Keyword           float64 `koanf:"keyword"`
	Popularity        float64 `koanf:"popularity"`
	Clarity           float64 `koanf:"clarity"`
	RepetitionPenalty float64 `koanf:"repetition_penalty"`
}

// ThreeSignalConfig controls aboutness-aware retrieval.
type ThreeSignalConfig struct {
	Enabled       bool    `koanf:"enabled"`
	MetaWeight    float64 `koanf:"meta_weight"`
	EmotionWeight float64 `koanf:"emotion_weight"`
	MomentWeight  float64 `koanf:"moment_weight"`
	MetadataK     int     `koanf:"metadata_k"`
	EmotionK      int     `koanf:"emotion_k"`
}

// ContentConfig controls the explicit-content filter.
type ContentConfig struct {
	Strict bool `koanf:"strict"`
}

// GenerationConfig points at the chat-completions API used for aboutness text.
type GenerationConfig struct {
	BaseURL     string        `koanf:"base_url"`
	APIKey      string        `koanf:"api_key"`
	Model       string        `koanf:"model"`
	Temperature float64       `koanf:"temperature"`
	Timeout     time.Duration `koanf:"timeout"`
}

// BackfillConfig holds backfill job defaults.
type BackfillConfig struct {
	BatchSize   int    `koanf:"batch_size"`
	Concurrency int    `koanf:"concurrency"`
	Schedule    string `koanf:"schedule"`
}

// StorageConfig locates the song database.
type StorageConfig struct {
	Path             string `koanf:"path"`
	StrictDimensions bool   `koanf:"strict_dimensions"`
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider:      "local",
			OpenAIModel:   "text-embedding-3-small",
			OpenAIBaseURL: "https://api.openai.com/v1",
			JinaBaseURL:   "https://api.jina.ai/v1",
			LocalURL:      "http://127.0.0.1:11434",
			LocalModel:    "all-minilm",
			BatchDelay:    100 * time.Millisecond,
			CacheSize:     10000,
			Timeout:       30 * time.Second,
		},
		Ranking: RankingConfig{
			Semantic:          0.45,
			Keyword:           0.30,
			Popularity:        0.15,
			Clarity:           0.10,
			RepetitionPenalty: 0.2,
		},
		ThreeSignal: ThreeSignalConfig{
			Enabled:       false,
			MetaWeight:    0.2,
			EmotionWeight: 0.5,
			MomentWeight:  0.3,
			MetadataK:     50,
			EmotionK:      50,
		},
		Generation: GenerationConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			Temperature: 0.7,
			Timeout:     60 * time.Second,
		},
		Backfill: BackfillConfig{
			BatchSize:   16,
			Concurrency: 4,
		},
		Storage: StorageConfig{
			Path:             "songmatch.db",
			StrictDimensions: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration. path may be empty, in which case the
// SONGMATCH_CONFIG environment variable is consulted; a missing file layer is
// not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(PathEnvVar)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// envAliases maps provider-conventional variables that do not carry the
// SONGMATCH_ prefix.
var envAliases = map[string]string{
	"openai_api_key": "embedding.openai_api_key",
	"jina_api_key":   "embedding.jina_api_key",
}

var envSections = []string{
	"embedding", "ranking", "three_signal", "content",
	"generation", "backfill", "storage", "log", "metrics",
}

// envTransform maps SONGMATCH_THREE_SIGNAL_ENABLED to three_signal.enabled.
// Variables that match no section are dropped.
func envTransform(key string) string {
	key = strings.ToLower(key)
	if alias, ok := envAliases[key]; ok {
		return alias
	}

	rest, ok := strings.CutPrefix(key, "songmatch_")
	if !ok {
		return ""
	}
	for _, section := range envSections {
		if field, ok := strings.CutPrefix(rest, section+"_"); ok && field != "" {
			return section + "." + field
		}
	}
	return ""
}

// Validate checks value ranges across all sections.
func (c *Config) Validate() error {
	var errs []error

	switch c.Embedding.Provider {
	case "local", "openai", "jina":
	default:
		errs = append(errs, fmt.Errorf("embedding.provider: unknown provider %q", c.Embedding.Provider))
	}
	switch c.Embedding.Fallback {
	case "", "local", "openai", "jina":
	default:
		errs = append(errs, fmt.Errorf("embedding.fallback: unknown provider %q", c.Embedding.Fallback))
	}
	if c.Embedding.Fallback != "" && c.Embedding.Fallback == c.Embedding.Provider {
		errs = append(errs, errors.New("embedding.fallback must differ from embedding.provider"))
	}
	if c.Embedding.BatchDelay < 0 {
		errs = append(errs, errors.New("embedding.batch_delay must not be negative"))
	}

	r := c.Ranking
	for name, w := range map[string]float64{
		"ranking.semantic":            r.Semantic,
		"ranking.keyword":             r.Keyword,
		"ranking.popularity":          r.Popularity,
		"ranking.clarity":             r.Clarity,
		"ranking.repetition_penalty":  r.RepetitionPenalty,
		"three_signal.meta_weight":    c.ThreeSignal.MetaWeight,
		"three_signal.emotion_weight": c.ThreeSignal.EmotionWeight,
		"three_signal.moment_weight":  c.ThreeSignal.MomentWeight,
	} {
		if w < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %v", name, w))
		}
	}

	if c.ThreeSignal.MetadataK <= 0 || c.ThreeSignal.EmotionK <= 0 {
		errs = append(errs, errors.New("three_signal.metadata_k and emotion_k must be positive"))
	}
	if c.Backfill.BatchSize <= 0 || c.Backfill.Concurrency <= 0 {
		errs = append(errs, errors.New("backfill.batch_size and concurrency must be positive"))
	}
	if c.Storage.Path == "" {
		errs = append(errs, errors.New("storage.path is required"))
	}

	return errors.Join(errs...)
}
