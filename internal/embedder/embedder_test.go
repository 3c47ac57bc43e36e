package embedder

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeHash(t *testing.T) {
	h1 := ComputeHash("hello")
	h2 := ComputeHash("hello")
	h3 := ComputeHash("world")

	assert.Len(t, h1, 64)
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
}

func TestCacheKey_ScopedByModel(t *testing.T) {
	assert.NotEqual(t, CacheKey("all-minilm", "rain"), CacheKey("text-embedding-3-small", "rain"))
	assert.Equal(t, CacheKey("m", "rain"), CacheKey("m", "rain"))
}

func TestValidateBatchRequest(t *testing.T) {
	tests := []struct {
		name    string
		texts   []string
		wantErr bool
	}{
		{"valid", []string{"a", "b"}, false},
		{"empty batch", nil, true},
		{"empty text", []string{"a", ""}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBatchRequest(BatchEmbeddingRequest{Texts: tt.texts})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.ErrorIs(t, ValidateRequest(EmbeddingRequest{}), ErrEmptyText)
}

func TestCache(t *testing.T) {
	t.Run("get returns copy", func(t *testing.T) {
		c := NewCache(4)
		c.Set("k", &Embedding{Vector: []float32{1, 2}, Dimension: 2, Model: "m"})

		got, ok := c.Get("k")
		require.True(t, ok)
		got.Vector[0] = 99

		again, _ := c.Get("k")
		assert.Equal(t, float32(1), again.Vector[0])
		assert.Equal(t, "m", again.Model)
	})

	t.Run("lru eviction", func(t *testing.T) {
		c := NewCache(2)
		c.Set("a", &Embedding{})
		c.Set("b", &Embedding{})
		c.Set("c", &Embedding{})

		assert.Equal(t, 2, c.Size())
		_, ok := c.Get("a")
		assert.False(t, ok)

		c.Clear()
		assert.Equal(t, 0, c.Size())
	})

	t.Run("non-positive size uses default", func(t *testing.T) {
		c := NewCache(0)
		c.Set("a", &Embedding{})
		assert.Equal(t, 1, c.Size())
	})
}

func TestProviderError(t *testing.T) {
	err := &ProviderError{Provider: "local", Err: ErrProviderUnavailable}

	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Contains(t, err.Error(), "local")

	var pe *ProviderError
	require.True(t, errors.As(error(err), &pe))
	assert.Equal(t, "local", pe.Provider)
}
