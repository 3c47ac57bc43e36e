package storage

import (
	"context"
	"time"
)

// Storage is the song store. The retrieval path only reads; writes come
// from seeding and the aboutness backfill.
type Storage interface {
	// Songs
	UpsertSong(ctx context.Context, song *Song) error
	GetSong(ctx context.Context, id string) (*Song, error)
	GetSongs(ctx context.Context, ids []string) (map[string]*Song, error)
	ListSongs(ctx context.Context, opts ListOptions) ([]*Song, error)
	DeleteSong(ctx context.Context, id string) error

	// Aboutness
	UpsertAboutness(ctx context.Context, a *Aboutness) error
	GetAboutness(ctx context.Context, songID string) (*Aboutness, error)
	GetAboutnessBatch(ctx context.Context, songIDs []string) (map[string]*Aboutness, error)
	ListBackfillCandidates(ctx context.Context, q BackfillQuery) ([]*Song, error)

	// Retrieval
	SearchMetadata(ctx context.Context, query []float32, k int) ([]VectorResult, error)
	SearchEmotions(ctx context.Context, query []float32, k int) ([]VectorResult, error)
	MomentVectors(ctx context.Context, songIDs []string) (map[string][]float32, error)

	// Diagnostics
	VerifyDimensions(ctx context.Context, dim int) (*DimensionReport, error)
	VectorDimensions(ctx context.Context) ([]int, error)
	GetStatus(ctx context.Context) (*Status, error)

	BeginTx(ctx context.Context) (Tx, error)
	Close() error
}

// Tx groups song writes, used for bulk imports.
type Tx interface {
	UpsertSong(ctx context.Context, song *Song) error
	UpsertAboutness(ctx context.Context, a *Aboutness) error
	Commit() error
	Rollback() error
}

// Song is a catalog entry with its metadata embedding.
type Song struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Artist         string    `json:"artist"`
	Year           int       `json:"year,omitempty"`
	Decade         int       `json:"decade,omitempty"`
	Popularity     int       `json:"popularity"`
	Tags           []string  `json:"tags,omitempty"`
	Phrases        []string  `json:"phrases,omitempty"`
	Embedding      []float32 `json:"embedding,omitempty"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
	Dimension      int       `json:"dimension,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Aboutness is the generated emotions/moments profile of a song.
type Aboutness struct {
	SongID             string    `json:"song_id"`
	EmotionsText       string    `json:"emotions_text"`
	EmotionsVector     []float32 `json:"-"`
	EmotionsConfidence string    `json:"emotions_confidence"`
	MomentsText        string    `json:"moments_text"`
	MomentsVector      []float32 `json:"-"`
	MomentsConfidence  string    `json:"moments_confidence"`
	Provider           string    `json:"provider"`
	GenerationModel    string    `json:"generation_model"`
	EmbeddingModel     string    `json:"embedding_model"`
	Dimension          int       `json:"dimension"`
	Version            string    `json:"version"`
	Forced             bool      `json:"forced"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ListOptions pages through songs ordered by id.
type ListOptions struct {
	Limit  int
	Offset int
}

// BackfillQuery selects songs needing an aboutness row. Without Force, songs
// whose row version is at least CurrentVersion are skipped.
type BackfillQuery struct {
	IDs            []string
	Limit          int
	CurrentVersion string
	Force          bool
}

// VectorResult is one nearest-neighbour hit.
type VectorResult struct {
	SongID     string  `json:"song_id"`
	Similarity float64 `json:"similarity"`
}

// DimensionReport lists stored vectors that cannot be compared with the
// active embedder.
type DimensionReport struct {
	Expected            int      `json:"expected"`
	SongsChecked        int      `json:"songs_checked"`
	SongMismatches      int      `json:"song_mismatches"`
	AboutnessChecked    int      `json:"aboutness_checked"`
	AboutnessMismatches int      `json:"aboutness_mismatches"`
	Samples             []string `json:"samples,omitempty"`
}

// Status summarizes the store.
type Status struct {
	SchemaVersion      string         `json:"schema_version"`
	BuildMode          string         `json:"build_mode"`
	Songs              int            `json:"songs"`
	SongsWithEmbedding int            `json:"songs_with_embedding"`
	Aboutness          int            `json:"aboutness"`
	AboutnessByVersion map[string]int `json:"aboutness_by_version,omitempty"`
	Dimensions         map[int]int    `json:"dimensions,omitempty"`
}
