package phrase

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/songmatch-mcp/internal/storage"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := New(zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })

	require.NoError(t, ix.Add(
		Document{ID: "road", Title: "On the Road Again", Artist: "Willie Nelson",
			Phrases: []string{"on the road again", "cant wait to get on the road"}},
		Document{ID: "rain", Title: "Set Fire to the Rain", Artist: "Adele",
			Phrases: []string{"set fire to the rain", "watched it pour"}},
		Document{ID: "happy", Title: "Happy", Artist: "Pharrell Williams",
			Phrases: []string{"clap along if you feel"}},
	))
	return ix
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "dont stop believin", Normalize("Don't  Stop, Believin'!"))
	assert.Equal(t, "", Normalize("  ?! "))
	assert.True(t, ContainsPhrase("i am on the road again", "on the road"))
	assert.False(t, ContainsPhrase("broadway", "road"))
}

func TestSearchExactPhraseScoresOne(t *testing.T) {
	ix := newTestIndex(t)

	hits, err := ix.Search(context.Background(), "Finally on the road again, let's go!", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "road", hits[0].SongID)
	assert.True(t, hits[0].Exact)
	assert.Equal(t, 1.0, hits[0].Score)
	assert.Equal(t, "On the Road Again", hits[0].Matched)
}

func TestSearchFuzzyScoresBelowExact(t *testing.T) {
	ix := newTestIndex(t)

	hits, err := ix.Search(context.Background(), "it is going to rain all day", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "rain", hits[0].SongID)
	assert.False(t, hits[0].Exact)
	assert.Greater(t, hits[0].Score, 0.0)
	assert.LessOrEqual(t, hits[0].Score, fuzzyCeiling)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
}

func TestSearchEdgeCases(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	hits, err := ix.Search(ctx, "   ", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = ix.Search(ctx, "rain", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = ix.Search(ctx, "xylophone quantum", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestRemoveAndClose(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()
	assert.Equal(t, 3, ix.Len())

	require.NoError(t, ix.Remove("rain"))
	assert.Equal(t, 2, ix.Len())
	hits, err := ix.Search(ctx, "set fire to the rain", 5)
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, "rain", h.SongID)
	}

	require.NoError(t, ix.Close())
	_, err = ix.Search(ctx, "road", 5)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, ix.Add(Document{ID: "x"}), ErrClosed)
}

func TestBuildFromStore(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.UpsertSong(ctx, &storage.Song{
		ID: "s1", Title: "Dancing Queen", Artist: "ABBA", Phrases: []string{"you can dance"},
	}))
	require.NoError(t, store.UpsertSong(ctx, &storage.Song{
		ID: "s2", Title: "Yesterday", Artist: "The Beatles",
	}))

	ix, err := Build(ctx, store, zerolog.Nop())
	require.NoError(t, err)
	defer func() { _ = ix.Close() }()
	assert.Equal(t, 2, ix.Len())

	hits, err := ix.Search(ctx, "you can dance tonight", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "s1", hits[0].SongID)
	assert.True(t, hits[0].Exact)
}
