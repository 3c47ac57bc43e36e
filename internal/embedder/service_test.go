package embedder

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/songmatch-mcp/internal/vecmath"
)

// mockEmbedder is a scriptable provider.
type mockEmbedder struct {
	name  string
	dim   int
	err   error
	unav  error
	calls atomic.Int32
}

func (m *mockEmbedder) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	resp, err := m.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{req.Text}})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}

func (m *mockEmbedder) GenerateBatch(_ context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	out := make([]*Embedding, len(req.Texts))
	for i := range req.Texts {
		out[i] = &Embedding{Vector: testVector(m.dim, 1), Dimension: m.dim, Provider: m.name}
	}
	return &BatchEmbeddingResponse{Embeddings: out, Provider: m.name}, nil
}

func (m *mockEmbedder) Available(context.Context) error { return m.unav }
func (m *mockEmbedder) Dimension() int                  { return m.dim }
func (m *mockEmbedder) BatchSize() int                  { return 32 }
func (m *mockEmbedder) Provider() string                { return m.name }
func (m *mockEmbedder) Model() string                   { return m.name + "-model" }
func (m *mockEmbedder) Close() error                    { return nil }

func staticFactory(e Embedder, builds *atomic.Int32) Factory {
	return func(context.Context) (Embedder, error) {
		if builds != nil {
			builds.Add(1)
		}
		return e, nil
	}
}

func newTestService(primary, fallback *mockEmbedder, builds *atomic.Int32) *Service {
	cfg := ServiceConfig{
		PrimaryName: primary.name,
		Primary:     staticFactory(primary, builds),
		Logger:      zerolog.Nop(),
	}
	if fallback != nil {
		cfg.FallbackName = fallback.name
		cfg.Fallback = staticFactory(fallback, builds)
	}
	return NewService(cfg)
}

func TestService_EmptyInputSkipsInit(t *testing.T) {
	var builds atomic.Int32
	primary := &mockEmbedder{name: "local", dim: 384}
	svc := newTestService(primary, nil, &builds)

	got, err := svc.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
	assert.Equal(t, int32(0), builds.Load())
	assert.Equal(t, int32(0), primary.calls.Load())
}

func TestService_SingleFlightInit(t *testing.T) {
	var builds atomic.Int32
	primary := &mockEmbedder{name: "local", dim: 384}
	svc := newTestService(primary, nil, &builds)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.EmbedSingle(context.Background(), "sunny")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load())
	assert.Equal(t, int32(32), primary.calls.Load())
}

func TestService_InitFailureIsRetried(t *testing.T) {
	attempts := 0
	primary := &mockEmbedder{name: "local", dim: 384}
	svc := NewService(ServiceConfig{
		PrimaryName: "local",
		Primary: func(context.Context) (Embedder, error) {
			attempts++
			if attempts == 1 {
				return nil, errors.New("model server starting")
			}
			return primary, nil
		},
		Logger: zerolog.Nop(),
	})

	_, err := svc.EmbedSingle(context.Background(), "x")
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	vec, err := svc.EmbedSingle(context.Background(), "x")
	require.NoError(t, err)
	assert.Len(t, vec, 384)
}

func TestService_FallbackChain(t *testing.T) {
	t.Run("primary failure falls back", func(t *testing.T) {
		primary := &mockEmbedder{name: "local", dim: 384, err: errors.New("oom")}
		fallback := &mockEmbedder{name: "openai", dim: 1536}
		svc := newTestService(primary, fallback, nil)

		vecs, served, err := svc.EmbedServed(context.Background(), []string{"a", "b"})
		require.NoError(t, err)
		require.Len(t, vecs, 2)
		assert.Len(t, vecs[0], 1536)
		assert.Equal(t, int32(1), fallback.calls.Load())
		assert.Equal(t, Served{Provider: "openai", Model: "openai-model"}, served)
	})

	t.Run("primary success names the primary", func(t *testing.T) {
		primary := &mockEmbedder{name: "local", dim: 384}
		fallback := &mockEmbedder{name: "openai", dim: 1536}
		svc := newTestService(primary, fallback, nil)

		_, served, err := svc.EmbedServed(context.Background(), []string{"a"})
		require.NoError(t, err)
		assert.Equal(t, Served{Provider: "local", Model: "local-model"}, served)
		assert.Equal(t, int32(0), fallback.calls.Load())
	})

	t.Run("both fail with typed error tagged by last provider", func(t *testing.T) {
		primary := &mockEmbedder{name: "local", dim: 384, err: errors.New("oom")}
		fallback := &mockEmbedder{name: "openai", dim: 1536, err: errors.New("quota")}
		svc := newTestService(primary, fallback, nil)

		vecs, err := svc.Embed(context.Background(), []string{"a"})
		assert.Nil(t, vecs)
		require.ErrorIs(t, err, ErrAllProvidersFailed)

		var pe *ProviderError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "openai", pe.Provider)
	})

	t.Run("no fallback configured", func(t *testing.T) {
		primary := &mockEmbedder{name: "local", dim: 384, err: errors.New("oom")}
		svc := newTestService(primary, nil, nil)

		_, err := svc.Embed(context.Background(), []string{"a"})
		require.ErrorIs(t, err, ErrAllProvidersFailed)

		var pe *ProviderError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "local", pe.Provider)
	})

	t.Run("unavailable primary skipped at init", func(t *testing.T) {
		primary := &mockEmbedder{name: "local", dim: 384, unav: ErrProviderUnavailable}
		fallback := &mockEmbedder{name: "openai", dim: 1536}
		svc := newTestService(primary, fallback, nil)

		dim, err := svc.ActiveDimensions(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1536, dim)
		assert.Equal(t, int32(0), primary.calls.Load())
	})
}

func TestService_ProbesAvailabilityPerCall(t *testing.T) {
	primary := &mockEmbedder{name: "local", dim: 384, unav: ErrProviderUnavailable}
	fallback := &mockEmbedder{name: "openai", dim: 1536}
	svc := newTestService(primary, fallback, nil)
	ctx := context.Background()

	vec, err := svc.EmbedSingle(ctx, "x")
	require.NoError(t, err)
	assert.Len(t, vec, 1536)
	assert.Equal(t, int32(0), primary.calls.Load())

	primary.unav = nil
	vec, err = svc.EmbedSingle(ctx, "x")
	require.NoError(t, err)
	assert.Len(t, vec, 384, "recovered primary is used again")
}

func TestService_BreakerSkipsFailingPrimary(t *testing.T) {
	primary := &mockEmbedder{name: "local", dim: 384, err: errors.New("down")}
	fallback := &mockEmbedder{name: "openai", dim: 1536}
	svc := NewService(ServiceConfig{
		PrimaryName:     "local",
		Primary:         staticFactory(primary, nil),
		FallbackName:    "openai",
		Fallback:        staticFactory(fallback, nil),
		Logger:          zerolog.Nop(),
		BreakerFailures: 2,
	})

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := svc.EmbedSingle(ctx, "x")
		require.NoError(t, err)
	}

	assert.Equal(t, int32(2), primary.calls.Load(), "breaker opens after two failures")
	assert.Equal(t, int32(5), fallback.calls.Load())

	st := svc.Status(ctx, false)
	assert.Equal(t, "fallback", st.State)
	assert.Equal(t, "open", st.Breakers["local"])
}

func TestService_Dimensions(t *testing.T) {
	svc := newTestService(&mockEmbedder{name: "local", dim: 384}, nil, nil)
	ctx := context.Background()

	assert.NoError(t, svc.AssertDimensions(ctx, 384))
	assert.ErrorIs(t, svc.AssertDimensions(ctx, 1536), vecmath.ErrDimensionMismatch)

	provider, model, err := svc.ActiveModel(ctx)
	require.NoError(t, err)
	assert.Equal(t, "local", provider)
	assert.Equal(t, "local-model", model)

	st := svc.Status(ctx, true)
	assert.Equal(t, "primary", st.State)
	assert.Equal(t, 384, st.Dimensions)
	assert.Greater(t, st.ProbeMagnitude, 0.0)
}

func TestService_InvalidInputDoesNotFallBack(t *testing.T) {
	primary := &mockEmbedder{name: "local", dim: 384}
	svc := newTestService(primary, nil, nil)

	_, err := svc.Embed(context.Background(), []string{"ok", ""})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, int32(0), primary.calls.Load())
}
