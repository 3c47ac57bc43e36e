package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/dshills/songmatch-mcp/internal/aboutness"
	"github.com/dshills/songmatch-mcp/internal/embedder"
	"github.com/dshills/songmatch-mcp/internal/reranker"
	"github.com/dshills/songmatch-mcp/internal/searcher"
	"github.com/dshills/songmatch-mcp/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "songmatch-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Matcher answers match requests. *searcher.Searcher satisfies it.
type Matcher interface {
	Match(ctx context.Context, req searcher.MatchRequest) (*searcher.MatchResponse, error)
}

// WeightTuner reads and partially updates the ranking weights.
// *reranker.Reranker satisfies it.
type WeightTuner interface {
	Weights() reranker.Weights
	UpdateWeights(u reranker.WeightsUpdate) (reranker.Weights, error)
}

// BackfillRunner runs aboutness backfills. *aboutness.Backfill satisfies it.
type BackfillRunner interface {
	Run(ctx context.Context, cfg aboutness.BackfillConfig) (*aboutness.Statistics, error)
	Running() bool
}

// EmbedderStatus reports on the embedding service. *embedder.Service
// satisfies it.
type EmbedderStatus interface {
	Status(ctx context.Context, probe bool) embedder.Status
	ActiveDimensions(ctx context.Context) (int, error)
}

// Deps are the components the tools call into. Backfill may be nil when no
// generation backend is configured.
type Deps struct {
	Store    storage.Storage
	Matcher  Matcher
	Weights  WeightTuner
	Backfill BackfillRunner
	Embedder EmbedderStatus
	Logger   zerolog.Logger

	// Backfill defaults applied when a tool call omits them.
	BatchSize   int
	Concurrency int
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp  *server.MCPServer
	deps Deps
	log  zerolog.Logger
}

// NewServer creates a new MCP server instance and registers its tools.
func NewServer(deps Deps) (*Server, error) {
	if deps.Store == nil {
		return nil, errors.New("mcp: store is required")
	}
	if deps.Matcher == nil {
		return nil, errors.New("mcp: matcher is required")
	}
	if deps.Embedder == nil {
		return nil, errors.New("mcp: embedder is required")
	}
	if deps.BatchSize <= 0 {
		deps.BatchSize = aboutness.DefaultBatchSize
	}
	if deps.Concurrency <= 0 {
		deps.Concurrency = aboutness.DefaultConcurrency
	}

	s := &Server{
		mcp:  server.NewMCPServer(ServerName, ServerVersion),
		deps: deps,
		log:  deps.Logger.With().Str("component", "mcp").Logger(),
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	return s, nil
}

// Serve runs the server on stdio and blocks until stdin closes. Callers own
// the store and embedder lifetimes.
func (s *Server) Serve(ctx context.Context) error {
	s.log.Info().Str("version", ServerVersion).Msg("serving MCP on stdio")
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	s.mcp.AddTool(matchSongsTool(), s.handleMatchSongs)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	s.mcp.AddTool(updateWeightsTool(), s.handleUpdateWeights)

	if s.deps.Backfill != nil {
		s.mcp.AddTool(backfillAboutnessTool(), s.handleBackfillAboutness)
	}
	return nil
}
