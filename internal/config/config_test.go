package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(PathEnvVar, "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.Equal(t, 0.45, cfg.Ranking.Semantic)
	assert.Equal(t, 0.30, cfg.Ranking.Keyword)
	assert.Equal(t, 0.15, cfg.Ranking.Popularity)
	assert.Equal(t, 0.10, cfg.Ranking.Clarity)
	assert.Equal(t, 0.2, cfg.Ranking.RepetitionPenalty)
	assert.False(t, cfg.ThreeSignal.Enabled)
	assert.Equal(t, 0.5, cfg.ThreeSignal.EmotionWeight)
	assert.Equal(t, 100*time.Millisecond, cfg.Embedding.BatchDelay)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "songmatch.yaml")
	yaml := `
embedding:
  provider: openai
  fallback: local
  batch_delay: 250ms
three_signal:
  enabled: true
  emotion_k: 80
storage:
  path: /tmp/songs.db
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv("SONGMATCH_THREE_SIGNAL_EMOTION_K", "120")
	t.Setenv("SONGMATCH_LOG_LEVEL", "debug")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, "local", cfg.Embedding.Fallback)
	assert.Equal(t, 250*time.Millisecond, cfg.Embedding.BatchDelay)
	assert.True(t, cfg.ThreeSignal.Enabled)
	assert.Equal(t, 120, cfg.ThreeSignal.EmotionK, "env overrides file")
	assert.Equal(t, 50, cfg.ThreeSignal.MetadataK, "unset keys keep defaults")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "sk-test", cfg.Embedding.OpenAIAPIKey)
	assert.Equal(t, "/tmp/songs.db", cfg.Storage.Path)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestEnvTransform(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"SONGMATCH_THREE_SIGNAL_ENABLED", "three_signal.enabled"},
		{"SONGMATCH_EMBEDDING_OPENAI_BASE_URL", "embedding.openai_base_url"},
		{"SONGMATCH_RANKING_SEMANTIC", "ranking.semantic"},
		{"JINA_API_KEY", "embedding.jina_api_key"},
		{"SONGMATCH_UNKNOWN_THING", ""},
		{"SONGMATCH_LOG_", ""},
		{"PATH", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, envTransform(tt.in))
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults valid", func(*Config) {}, ""},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "bert" }, "embedding.provider"},
		{"same fallback", func(c *Config) { c.Embedding.Fallback = "local" }, "must differ"},
		{"negative weight", func(c *Config) { c.Ranking.Keyword = -0.1 }, "ranking.keyword"},
		{"zero k", func(c *Config) { c.ThreeSignal.EmotionK = 0 }, "emotion_k"},
		{"zero concurrency", func(c *Config) { c.Backfill.Concurrency = 0 }, "concurrency"},
		{"no storage path", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
