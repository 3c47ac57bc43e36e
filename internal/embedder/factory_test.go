package embedder

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/songmatch-mcp/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		wantDim  int
		wantErr  error
		provider string
	}{
		{"local", Config{Provider: "local"}, LocalDimension, nil, ProviderLocal},
		{"openai", Config{Provider: "OpenAI", APIKey: "k"}, OpenAIDimension, nil, ProviderOpenAI},
		{"jina", Config{Provider: "jina", APIKey: "k"}, JinaDimension, nil, ProviderJina},
		{"unknown", Config{Provider: "word2vec"}, 0, ErrUnsupportedProvider, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDim, e.Dimension())
			assert.Equal(t, tt.provider, e.Provider())
		})
	}
}

func TestProviderConfig(t *testing.T) {
	ec := config.Default().Embedding
	ec.OpenAIAPIKey = "sk"

	oc := ProviderConfig(ec, ProviderOpenAI, nil)
	assert.Equal(t, "sk", oc.APIKey)
	assert.Equal(t, ec.OpenAIBaseURL, oc.BaseURL)
	assert.Equal(t, ec.BatchDelay, oc.BatchDelay)

	lc := ProviderConfig(ec, ProviderLocal, nil)
	assert.Equal(t, ec.LocalURL, lc.BaseURL)
	assert.Zero(t, lc.BatchDelay, "no courtesy delay for on-box models")
}

func TestNewServiceFromConfig_Lazy(t *testing.T) {
	ec := config.Default().Embedding
	ec.Fallback = "openai"

	svc := NewServiceFromConfig(ec, zerolog.Nop())
	require.NotNil(t, svc)
	assert.Equal(t, "local", svc.cfg.PrimaryName)
	assert.Equal(t, "openai", svc.cfg.FallbackName)
	assert.False(t, svc.ready, "construction must not contact providers")
}
