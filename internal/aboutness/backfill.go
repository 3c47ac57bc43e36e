package aboutness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/songmatch-mcp/internal/embedder"
	"github.com/dshills/songmatch-mcp/internal/metrics"
	"github.com/dshills/songmatch-mcp/internal/storage"
	"github.com/dshills/songmatch-mcp/internal/vecmath"
)

const (
	DefaultBatchSize   = 16
	DefaultConcurrency = 4
	maxErrorMessages   = 50
)

// Embedder is the part of the embedding service the backfill needs. It must
// be the same service the matcher queries with.
type Embedder interface {
	EmbedServed(ctx context.Context, texts []string) ([][]float32, embedder.Served, error)
	ActiveDimensions(ctx context.Context) (int, error)
	ActiveModel(ctx context.Context) (provider, model string, err error)
}

// BackfillConfig selects and paces a run.
type BackfillConfig struct {
	IDs         []string // only these songs; empty means the whole catalog
	Limit       int      // at most this many songs; 0 means no limit
	BatchSize   int
	Concurrency int
	Force       bool // regenerate rows that are already current
}

// Statistics summarizes a run.
type Statistics struct {
	Selected      int           `json:"selected"`
	Generated     int           `json:"generated"`
	Forced        int           `json:"forced"`
	Failed        int           `json:"failed"`
	Skipped       int           `json:"skipped"`
	Duration      time.Duration `json:"duration"`
	ErrorMessages []string      `json:"errors,omitempty"`
}

// Backfill writes aboutness rows for songs that lack a current one.
type Backfill struct {
	store  storage.Storage
	gen    *Generator
	embed  Embedder
	lock   BackfillLock
	logger zerolog.Logger
}

// NewBackfill wires a backfill job.
func NewBackfill(store storage.Storage, gen *Generator, embed Embedder, logger zerolog.Logger) *Backfill {
	return &Backfill{
		store:  store,
		gen:    gen,
		embed:  embed,
		logger: logger.With().Str("component", "backfill").Logger(),
	}
}

// Running reports whether a run is in progress.
func (b *Backfill) Running() bool {
	return b.lock.Held()
}

type runState struct {
	generated atomic.Int32
	forced    atomic.Int32
	failed    atomic.Int32

	mu     sync.Mutex
	errors []string
}

func (s *runState) recordFailure(id string, err error) {
	s.failed.Add(1)
	s.mu.Lock()
	if len(s.errors) < maxErrorMessages {
		s.errors = append(s.errors, fmt.Sprintf("%s: %v", id, err))
	}
	s.mu.Unlock()
}

// Run processes every selected song. Per-song failures are logged and
// counted; only store selection errors, embedder initialization errors and
// cancellation end the run early.
func (b *Backfill) Run(ctx context.Context, cfg BackfillConfig) (*Statistics, error) {
	if !b.lock.TryAcquire() {
		return nil, ErrBackfillInProgress
	}
	defer b.lock.Release()

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}

	start := time.Now()
	stats := &Statistics{}

	songs, err := b.store.ListBackfillCandidates(ctx, storage.BackfillQuery{
		IDs:            cfg.IDs,
		Limit:          cfg.Limit,
		CurrentVersion: CurrentVersion,
		Force:          cfg.Force,
	})
	if err != nil {
		return nil, fmt.Errorf("select backfill candidates: %w", err)
	}
	stats.Selected = len(songs)
	if len(cfg.IDs) > 0 {
		stats.Skipped = len(cfg.IDs) - len(songs)
	} else {
		status, err := b.store.GetStatus(ctx)
		if err != nil {
			return nil, fmt.Errorf("count catalog: %w", err)
		}
		stats.Skipped = max(status.Songs-len(songs), 0)
	}
	if len(songs) == 0 {
		stats.Duration = time.Since(start)
		b.logger.Info().Int("skipped", stats.Skipped).Msg("nothing to backfill")
		return stats, nil
	}

	dim, err := b.embed.ActiveDimensions(ctx)
	if err != nil {
		return nil, fmt.Errorf("embedding service: %w", err)
	}
	_, model, err := b.embed.ActiveModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("embedding service: %w", err)
	}

	b.logger.Info().
		Int("songs", len(songs)).
		Int("batch_size", cfg.BatchSize).
		Int("concurrency", cfg.Concurrency).
		Bool("force", cfg.Force).
		Str("embedding_model", model).
		Int("dimension", dim).
		Msg("backfill started")

	state := &runState{}
	semaphore := make(chan struct{}, cfg.Concurrency)
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < len(songs); i += cfg.BatchSize {
		end := i + cfg.BatchSize
		if end > len(songs) {
			end = len(songs)
		}
		batch := songs[i:end]

		g.Go(func() error {
			return b.runBatch(gctx, batch, semaphore, state, dim)
		})
	}

	err = g.Wait()

	stats.Generated = int(state.generated.Load())
	stats.Forced = int(state.forced.Load())
	stats.Failed = int(state.failed.Load())
	stats.ErrorMessages = state.errors
	stats.Duration = time.Since(start)

	ev := b.logger.Info()
	if err != nil {
		ev = b.logger.Warn().Err(err)
	}
	ev.Int("generated", stats.Generated).
		Int("forced", stats.Forced).
		Int("failed", stats.Failed).
		Dur("duration", stats.Duration).
		Msg("backfill finished")

	return stats, err
}

func (b *Backfill) runBatch(ctx context.Context, songs []*storage.Song, semaphore chan struct{},
	state *runState, dim int) error {

	for _, song := range songs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case semaphore <- struct{}{}:
		}

		forced, err := b.processSong(ctx, song, dim)
		<-semaphore

		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			state.recordFailure(song.ID, err)
			metrics.BackfillSongs.WithLabelValues("failed").Inc()
			b.logger.Error().Err(err).Str("song_id", song.ID).Msg("aboutness backfill failed for song")
			continue
		}

		state.generated.Add(1)
		result := "generated"
		if forced {
			state.forced.Add(1)
			result = "forced"
		}
		metrics.BackfillSongs.WithLabelValues(result).Inc()
	}
	return nil
}

// processSong generates, embeds and stores one row. The row is written by a
// single upsert so a cancelled run leaves no partial profile behind.
func (b *Backfill) processSong(ctx context.Context, song *storage.Song, dim int) (bool, error) {
	if song.Dimension > 0 && song.Dimension != dim {
		return false, fmt.Errorf("%w: song embedding has %d, embedder produces %d",
			vecmath.ErrDimensionMismatch, song.Dimension, dim)
	}

	profile, err := b.gen.Generate(ctx, song.Title, song.Artist)
	if err != nil {
		return false, err
	}

	vecs, served, err := b.embed.EmbedServed(ctx, []string{profile.Emotions.Text, profile.Moments.Text})
	if err != nil {
		return false, fmt.Errorf("embed profile: %w", err)
	}
	if len(vecs) != 2 {
		return false, fmt.Errorf("embed profile: got %d vectors, want 2", len(vecs))
	}
	for _, v := range vecs {
		if len(v) != dim {
			return false, fmt.Errorf("%w: profile vector has %d, want %d", vecmath.ErrDimensionMismatch, len(v), dim)
		}
	}

	row := &storage.Aboutness{
		SongID:             song.ID,
		EmotionsText:       profile.Emotions.Text,
		EmotionsVector:     vecs[0],
		EmotionsConfidence: string(profile.Emotions.Confidence),
		MomentsText:        profile.Moments.Text,
		MomentsVector:      vecs[1],
		MomentsConfidence:  string(profile.Moments.Confidence),
		Provider:           served.Provider,
		GenerationModel:    profile.Model,
		EmbeddingModel:     served.Model,
		Version:            CurrentVersion,
		Forced:             profile.Forced(),
	}
	if err := b.store.UpsertAboutness(ctx, row); err != nil {
		return false, err
	}
	return row.Forced, nil
}
