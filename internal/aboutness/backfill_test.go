package aboutness

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/songmatch-mcp/internal/embedder"
	"github.com/dshills/songmatch-mcp/internal/storage"
)

type fakeEmbedder struct {
	dim    int
	err    error
	served *embedder.Served // defaults to the active model
	calls  atomic.Int32
}

func (f *fakeEmbedder) EmbedServed(ctx context.Context, texts []string) ([][]float32, embedder.Served, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, embedder.Served{}, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.dim)
		v[i%f.dim] = 1
		out[i] = v
	}
	served := embedder.Served{Provider: "local", Model: "all-minilm"}
	if f.served != nil {
		served = *f.served
	}
	return out, served, nil
}

func (f *fakeEmbedder) ActiveDimensions(ctx context.Context) (int, error) { return f.dim, nil }

func (f *fakeEmbedder) ActiveModel(ctx context.Context) (string, string, error) {
	return "local", "all-minilm", nil
}

// failingTitleLLM returns empty output for one title and valid text otherwise.
type failingTitleLLM struct {
	failTitle string
	calls     atomic.Int32
}

func (f *failingTitleLLM) Model() string { return "test-llm" }

func (f *failingTitleLLM) Generate(ctx context.Context, system, prompt string) (string, error) {
	f.calls.Add(1)
	if f.failTitle != "" && strings.Contains(prompt, f.failTitle) {
		return "", nil
	}
	return valid(ConfidenceMedium), nil
}

func newBackfillStore(t *testing.T, ids ...string) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	for _, id := range ids {
		require.NoError(t, store.UpsertSong(context.Background(), &storage.Song{
			ID: id, Title: "Title " + id, Artist: "Artist", Embedding: []float32{1, 0, 0, 0},
		}))
	}
	return store
}

func TestBackfillRunAndIdempotence(t *testing.T) {
	ctx := context.Background()
	store := newBackfillStore(t, "a", "b", "c", "d", "e")
	llm := &failingTitleLLM{}
	emb := &fakeEmbedder{dim: 4}
	bf := NewBackfill(store, NewGenerator(llm, zerolog.Nop()), emb, zerolog.Nop())

	stats, err := bf.Run(ctx, BackfillConfig{BatchSize: 2, Concurrency: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Selected)
	assert.Equal(t, 5, stats.Generated)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 0, stats.Skipped)

	row, err := store.GetAboutness(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, row.Version)
	assert.Equal(t, "medium", row.EmotionsConfidence)
	assert.Equal(t, "test-llm", row.GenerationModel)
	assert.Equal(t, "local", row.Provider)
	assert.Equal(t, "all-minilm", row.EmbeddingModel)
	assert.Equal(t, 4, row.Dimension)
	assert.Len(t, row.MomentsVector, 4)

	llmCalls, embCalls := llm.calls.Load(), emb.calls.Load()
	before, err := store.GetAboutnessBatch(ctx, []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)

	stats, err = bf.Run(ctx, BackfillConfig{})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Selected)
	assert.Equal(t, 0, stats.Generated)
	assert.Equal(t, 5, stats.Skipped)
	assert.Equal(t, llmCalls, llm.calls.Load())
	assert.Equal(t, embCalls, emb.calls.Load())

	after, err := store.GetAboutnessBatch(ctx, []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	for id, row := range before {
		assert.Equal(t, row.UpdatedAt, after[id].UpdatedAt, id)
	}
}

func TestBackfillIDsLimitAndForce(t *testing.T) {
	ctx := context.Background()
	store := newBackfillStore(t, "a", "b", "c")
	llm := &failingTitleLLM{}
	bf := NewBackfill(store, NewGenerator(llm, zerolog.Nop()), &fakeEmbedder{dim: 4}, zerolog.Nop())

	stats, err := bf.Run(ctx, BackfillConfig{IDs: []string{"b", "c", "missing"}, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Selected)
	assert.Equal(t, 2, stats.Skipped)
	_, err = store.GetAboutness(ctx, "b")
	require.NoError(t, err)
	_, err = store.GetAboutness(ctx, "c")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	stats, err = bf.Run(ctx, BackfillConfig{IDs: []string{"b"}, Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Generated)
}

func TestBackfillSkippedCountsCurrentRows(t *testing.T) {
	ctx := context.Background()
	store := newBackfillStore(t, "a", "b", "c", "d")
	bf := NewBackfill(store, NewGenerator(&failingTitleLLM{}, zerolog.Nop()), &fakeEmbedder{dim: 4}, zerolog.Nop())

	stats, err := bf.Run(ctx, BackfillConfig{IDs: []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Skipped)

	stats, err = bf.Run(ctx, BackfillConfig{})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Selected)
	assert.Equal(t, 1, stats.Skipped)
}

func TestBackfillRecordsServingProvider(t *testing.T) {
	ctx := context.Background()
	store := newBackfillStore(t, "a")
	emb := &fakeEmbedder{dim: 4, served: &embedder.Served{Provider: "openai", Model: "text-embedding-3-small"}}
	bf := NewBackfill(store, NewGenerator(&failingTitleLLM{}, zerolog.Nop()), emb, zerolog.Nop())

	_, err := bf.Run(ctx, BackfillConfig{})
	require.NoError(t, err)

	row, err := store.GetAboutness(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "openai", row.Provider)
	assert.Equal(t, "text-embedding-3-small", row.EmbeddingModel)
}

func TestBackfillPerSongFailureDoesNotAbort(t *testing.T) {
	ctx := context.Background()
	store := newBackfillStore(t, "a", "b", "c")
	llm := &failingTitleLLM{failTitle: "Title b"}
	bf := NewBackfill(store, NewGenerator(llm, zerolog.Nop()), &fakeEmbedder{dim: 4}, zerolog.Nop())

	stats, err := bf.Run(ctx, BackfillConfig{BatchSize: 1, Concurrency: 3})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Generated)
	assert.Equal(t, 1, stats.Failed)
	require.Len(t, stats.ErrorMessages, 1)
	assert.Contains(t, stats.ErrorMessages[0], "b:")

	_, err = store.GetAboutness(ctx, "b")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// the failed song is picked up again next run
	stats, err = bf.Run(ctx, BackfillConfig{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Selected)
}

func TestBackfillDimensionMismatchFailsSong(t *testing.T) {
	ctx := context.Background()
	store := newBackfillStore(t, "a")
	bf := NewBackfill(store, NewGenerator(&failingTitleLLM{}, zerolog.Nop()), &fakeEmbedder{dim: 8}, zerolog.Nop())

	stats, err := bf.Run(ctx, BackfillConfig{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Contains(t, stats.ErrorMessages[0], "dimension mismatch")
}

func TestBackfillEmbedFailureFailsSong(t *testing.T) {
	ctx := context.Background()
	store := newBackfillStore(t, "a", "b")
	emb := &fakeEmbedder{dim: 4, err: errors.New("provider down")}
	bf := NewBackfill(store, NewGenerator(&failingTitleLLM{}, zerolog.Nop()), emb, zerolog.Nop())

	stats, err := bf.Run(ctx, BackfillConfig{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Failed)
}

// blockingLLM parks every call until released.
type blockingLLM struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingLLM) Model() string { return "blocking" }

func (b *blockingLLM) Generate(ctx context.Context, system, prompt string) (string, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
		return valid(ConfidenceHigh), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestBackfillLockAndCancel(t *testing.T) {
	store := newBackfillStore(t, "a", "b")
	llm := &blockingLLM{started: make(chan struct{}), release: make(chan struct{})}
	bf := NewBackfill(store, NewGenerator(llm, zerolog.Nop()), &fakeEmbedder{dim: 4}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := bf.Run(ctx, BackfillConfig{})
		done <- err
	}()

	<-llm.started
	assert.True(t, bf.Running())
	_, err := bf.Run(context.Background(), BackfillConfig{})
	assert.ErrorIs(t, err, ErrBackfillInProgress)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.False(t, bf.Running())

	status, err := store.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, status.Aboutness)
}
