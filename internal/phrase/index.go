package phrase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/rs/zerolog"

	"github.com/dshills/songmatch-mcp/internal/storage"
)

const (
	fieldTitle   = "title"
	fieldArtist  = "artist"
	fieldPhrases = "phrases"

	// Non-verbatim hits are scaled below an exact match.
	fuzzyCeiling = 0.8

	loadPageSize = 500
)

// ErrClosed is returned by operations on a closed index.
var ErrClosed = errors.New("phrase index closed")

// Document is the indexed view of a song.
type Document struct {
	ID      string
	Title   string
	Artist  string
	Phrases []string
}

// Hit is one keyword match.
type Hit struct {
	SongID string
	Score  float64
	// Exact is set when the title or a phrase occurs verbatim in the message.
	Exact bool
	// Matched is the verbatim text for exact hits.
	Matched string
}

// Index is safe for concurrent use.
type Index struct {
	mu     sync.RWMutex
	idx    bleve.Index
	docs   map[string]Document
	logger zerolog.Logger
}

// New creates an empty in-memory index.
func New(logger zerolog.Logger) (*Index, error) {
	idx, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return nil, fmt.Errorf("create phrase index: %w", err)
	}
	return &Index{
		idx:    idx,
		docs:   make(map[string]Document),
		logger: logger.With().Str("component", "phrase").Logger(),
	}, nil
}

func newMapping() mapping.IndexMapping {
	text := bleve.NewTextFieldMapping()
	text.Store = false
	text.IncludeTermVectors = false

	song := bleve.NewDocumentMapping()
	song.AddFieldMappingsAt(fieldTitle, text)
	song.AddFieldMappingsAt(fieldArtist, text)
	song.AddFieldMappingsAt(fieldPhrases, text)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = song
	return m
}

// Build loads every song of the store into a new index.
func Build(ctx context.Context, store storage.Storage, logger zerolog.Logger) (*Index, error) {
	ix, err := New(logger)
	if err != nil {
		return nil, err
	}
	for offset := 0; ; offset += loadPageSize {
		songs, err := store.ListSongs(ctx, storage.ListOptions{Limit: loadPageSize, Offset: offset})
		if err != nil {
			_ = ix.Close()
			return nil, fmt.Errorf("load songs: %w", err)
		}
		docs := make([]Document, len(songs))
		for i, s := range songs {
			docs[i] = Document{ID: s.ID, Title: s.Title, Artist: s.Artist, Phrases: s.Phrases}
		}
		if err := ix.Add(docs...); err != nil {
			_ = ix.Close()
			return nil, err
		}
		if len(songs) < loadPageSize {
			break
		}
	}
	ix.logger.Info().Int("songs", ix.Len()).Msg("phrase index built")
	return ix, nil
}

// Add indexes or replaces documents in one batch.
func (ix *Index) Add(docs ...Document) error {
	if len(docs) == 0 {
		return nil
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.idx == nil {
		return ErrClosed
	}

	batch := ix.idx.NewBatch()
	for _, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("phrase document without id")
		}
		if err := batch.Index(d.ID, map[string]interface{}{
			fieldTitle:   d.Title,
			fieldArtist:  d.Artist,
			fieldPhrases: d.Phrases,
		}); err != nil {
			return fmt.Errorf("index song %s: %w", d.ID, err)
		}
	}
	if err := ix.idx.Batch(batch); err != nil {
		return fmt.Errorf("index batch: %w", err)
	}
	for _, d := range docs {
		ix.docs[d.ID] = d
	}
	return nil
}

// Remove drops a song from the index.
func (ix *Index) Remove(id string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.idx == nil {
		return ErrClosed
	}
	if err := ix.idx.Delete(id); err != nil {
		return fmt.Errorf("remove song %s: %w", id, err)
	}
	delete(ix.docs, id)
	return nil
}

// Len returns the number of indexed songs.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Search returns up to k songs ranked by keyword relevance to message.
func (ix *Index) Search(ctx context.Context, message string, k int) ([]Hit, error) {
	norm := Normalize(message)
	if norm == "" || k <= 0 {
		return []Hit{}, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.idx == nil {
		return nil, ErrClosed
	}

	req := bleve.NewSearchRequestOptions(buildQuery(message), k, 0, false)
	res, err := ix.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("phrase search: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{SongID: h.ID}
		if res.MaxScore > 0 {
			hit.Score = clamp(h.Score/res.MaxScore) * fuzzyCeiling
		}
		if matched, ok := ix.exactMatch(norm, h.ID); ok {
			hit.Score = 1
			hit.Exact = true
			hit.Matched = matched
		}
		hits = append(hits, hit)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	return hits, nil
}

// Close releases the index.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.idx == nil {
		return nil
	}
	err := ix.idx.Close()
	ix.idx = nil
	return err
}

func buildQuery(message string) query.Query {
	phrases := bleve.NewMatchQuery(message)
	phrases.SetField(fieldPhrases)
	phrases.SetBoost(2.0)

	title := bleve.NewMatchQuery(message)
	title.SetField(fieldTitle)
	title.SetBoost(1.5)

	artist := bleve.NewMatchQuery(message)
	artist.SetField(fieldArtist)
	artist.SetBoost(0.5)

	return bleve.NewDisjunctionQuery(phrases, title, artist)
}

// exactMatch must be called with ix.mu held.
func (ix *Index) exactMatch(normMessage, id string) (string, bool) {
	doc, ok := ix.docs[id]
	if !ok {
		return "", false
	}
	for _, p := range append([]string{doc.Title}, doc.Phrases...) {
		if np := Normalize(p); np != "" && ContainsPhrase(normMessage, np) {
			return p, true
		}
	}
	return "", false
}

// ContainsPhrase reports whether phrase occurs in text on word boundaries.
// Both arguments must already be normalized.
func ContainsPhrase(text, phrase string) bool {
	return strings.Contains(" "+text+" ", " "+phrase+" ")
}

// Normalize lowercases s, drops apostrophes and collapses every other
// non-alphanumeric run to a single space.
func Normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r == '\'' || r == '’':
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
