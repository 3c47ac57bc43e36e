// Package app wires configuration into the running components shared by the
// songmatch binaries: one store, one embedding service, and everything that
// queries or writes through them.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/songmatch-mcp/internal/aboutness"
	"github.com/dshills/songmatch-mcp/internal/config"
	"github.com/dshills/songmatch-mcp/internal/contentfilter"
	"github.com/dshills/songmatch-mcp/internal/embedder"
	"github.com/dshills/songmatch-mcp/internal/mcp"
	"github.com/dshills/songmatch-mcp/internal/metrics"
	"github.com/dshills/songmatch-mcp/internal/phrase"
	"github.com/dshills/songmatch-mcp/internal/reranker"
	"github.com/dshills/songmatch-mcp/internal/searcher"
	"github.com/dshills/songmatch-mcp/internal/storage"
)

// App holds the wired components. The searcher and the backfill share the
// same embedding service so stored and query vectors always agree.
type App struct {
	Config   *config.Config
	Store    *storage.SQLiteStorage
	Embedder *embedder.Service
	Phrases  *phrase.Index
	Ranker   *reranker.Reranker
	Searcher *searcher.Searcher
	Backfill *aboutness.Backfill

	logger zerolog.Logger
}

// WeightsFrom maps the ranking section onto reranker weights.
func WeightsFrom(rc config.RankingConfig) reranker.Weights {
	return reranker.Weights{
		Semantic:          rc.Semantic,
		Keyword:           rc.Keyword,
		Popularity:        rc.Popularity,
		Clarity:           rc.Clarity,
		RepetitionPenalty: rc.RepetitionPenalty,
	}
}

// New opens the store and builds every component. Embedding providers are
// created lazily on first use, so New does not touch the network.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	a := &App{
		Config:   cfg,
		Store:    store,
		Embedder: embedder.NewServiceFromConfig(cfg.Embedding, logger.With().Str("component", "embedder").Logger()),
		logger:   logger,
	}

	a.Phrases, err = phrase.Build(ctx, store, logger)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to build phrase index: %w", err)
	}

	a.Ranker, err = reranker.New(WeightsFrom(cfg.Ranking), logger)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("invalid ranking weights: %w", err)
	}

	filter := contentfilter.New(cfg.Content.Strict, logger)
	a.Searcher = searcher.New(store, a.Embedder, a.Phrases, filter, a.Ranker,
		searcher.ConfigFrom(cfg.ThreeSignal), logger)

	gen := aboutness.NewGenerator(aboutness.NewChatClientFromConfig(cfg), logger)
	a.Backfill = aboutness.NewBackfill(store, gen, a.Embedder, logger)

	return a, nil
}

// CheckDimensions compares every stored vector with the active embedder.
// A mismatch is returned as an error when storage.strict_dimensions is set
// and logged otherwise.
func (a *App) CheckDimensions(ctx context.Context) (*storage.DimensionReport, error) {
	dim, err := a.Embedder.ActiveDimensions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve embedding dimensions: %w", err)
	}

	report, err := a.Store.VerifyDimensions(ctx, dim)
	if err != nil {
		return nil, err
	}
	if mismatch := report.Err(); mismatch != nil {
		if a.Config.Storage.StrictDimensions {
			return report, mismatch
		}
		a.logger.Warn().Err(mismatch).Strs("samples", report.Samples).Msg("stored vectors do not match the embedder")
	}
	return report, nil
}

// MCPServer builds the MCP server over the wired components.
func (a *App) MCPServer() (*mcp.Server, error) {
	return mcp.NewServer(mcp.Deps{
		Store:       a.Store,
		Matcher:     a.Searcher,
		Weights:     a.Ranker,
		Backfill:    a.Backfill,
		Embedder:    a.Embedder,
		Logger:      a.logger,
		BatchSize:   a.Config.Backfill.BatchSize,
		Concurrency: a.Config.Backfill.Concurrency,
	})
}

// ServeMetrics exposes /metrics on addr until ctx is done. It returns nil
// when addr is empty.
func ServeMetrics(ctx context.Context, addr string, logger zerolog.Logger) error {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// Close releases the phrase index, the embedder and the store.
func (a *App) Close() error {
	var errs []error
	if a.Phrases != nil {
		errs = append(errs, a.Phrases.Close())
	}
	if a.Embedder != nil {
		errs = append(errs, a.Embedder.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}
