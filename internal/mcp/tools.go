package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/songmatch-mcp/internal/aboutness"
	"github.com/dshills/songmatch-mcp/internal/contentfilter"
	"github.com/dshills/songmatch-mcp/internal/reranker"
	"github.com/dshills/songmatch-mcp/internal/searcher"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeEmptyMessage       = -32001 // Message parameter is empty
	ErrorCodeBackfillInProgress = -32002 // Another backfill is already running
	ErrorCodeInvalidWeights     = -32003 // Weight update rejected
	ErrorCodeCancelled          = -32004 // Request context ended
)

// handleMatchSongs handles the match_songs tool invocation
func (s *Server) handleMatchSongs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	message, _ := args["message"].(string)
	if strings.TrimSpace(message) == "" {
		return nil, newMCPError(ErrorCodeEmptyMessage, "message parameter is required", map[string]interface{}{
			"param":  "message",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", reranker.MaxResults)
	if limit < 1 || limit > reranker.MaxResults {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit out of range", map[string]interface{}{
			"param":  "limit",
			"reason": fmt.Sprintf("must be between 1 and %d", reranker.MaxResults),
		})
	}

	recent, err := getStringSlice(args, "recent_songs")
	if err != nil {
		return nil, invalidParam("recent_songs", err)
	}
	decades, err := getIntSlice(args, "avoid_decades")
	if err != nil {
		return nil, invalidParam("avoid_decades", err)
	}

	req := searcher.MatchRequest{
		Message: message,
		Room:    contentfilter.RoomPolicy{AllowExplicit: getBoolDefault(args, "allow_explicit", false)},
		Limit:   limit,
	}
	if len(recent) > 0 || len(decades) > 0 || args["user_id"] != nil || args["time_of_day"] != nil {
		req.Context = &reranker.Context{
			RecentSongs:  recent,
			AvoidDecades: decades,
			UserID:       getStringDefault(args, "user_id", ""),
			TimeOfDay:    getStringDefault(args, "time_of_day", ""),
		}
	}

	resp, err := s.deps.Matcher.Match(ctx, req)
	switch {
	case errors.Is(err, searcher.ErrEmptyMessage):
		return nil, newMCPError(ErrorCodeEmptyMessage, "message parameter is required", nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, newMCPError(ErrorCodeCancelled, "match cancelled", map[string]interface{}{
			"error": err.Error(),
		})
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "match failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"request_id":  resp.RequestID,
		"mode":        resp.Mode,
		"matches":     resp.Matches,
		"candidates":  resp.Candidates,
		"filtered":    resp.Filtered,
		"duration_ms": resp.Duration.Milliseconds(),
	}
	if len(resp.Matches) > 0 {
		response["primary"] = resp.Matches[0].SongID
	}
	if len(resp.Degraded) > 0 {
		response["degraded"] = resp.Degraded
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleBackfillAboutness handles the backfill_aboutness tool invocation
func (s *Server) handleBackfillAboutness(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		args = map[string]interface{}{}
	}

	ids, err := getStringSlice(args, "ids")
	if err != nil {
		return nil, invalidParam("ids", err)
	}

	cfg := aboutness.BackfillConfig{
		IDs:         ids,
		Limit:       getIntDefault(args, "limit", 0),
		BatchSize:   getIntDefault(args, "batch_size", s.deps.BatchSize),
		Concurrency: getIntDefault(args, "concurrency", s.deps.Concurrency),
		Force:       getBoolDefault(args, "force", false),
	}
	for name, v := range map[string]int{"limit": cfg.Limit, "batch_size": cfg.BatchSize, "concurrency": cfg.Concurrency} {
		if v < 0 {
			return nil, invalidParam(name, errors.New("must not be negative"))
		}
	}

	stats, err := s.deps.Backfill.Run(ctx, cfg)
	if errors.Is(err, aboutness.ErrBackfillInProgress) {
		return nil, newMCPError(ErrorCodeBackfillInProgress, "backfill already in progress", nil)
	}

	response := map[string]interface{}{
		"force": cfg.Force,
	}
	if stats != nil {
		response["statistics"] = map[string]interface{}{
			"selected":    stats.Selected,
			"generated":   stats.Generated,
			"forced":      stats.Forced,
			"failed":      stats.Failed,
			"skipped":     stats.Skipped,
			"duration_ms": stats.Duration.Milliseconds(),
		}
		if len(stats.ErrorMessages) > 0 {
			response["errors"] = stats.ErrorMessages
		}
	}
	if err != nil {
		response["status"] = "aborted"
		response["error"] = err.Error()
		s.log.Warn().Err(err).Msg("backfill aborted")
	} else {
		response["status"] = "completed"
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		args = map[string]interface{}{}
	}
	probe := getBoolDefault(args, "probe", false)

	status, err := s.deps.Store.GetStatus(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	dimCheck := map[string]interface{}{}
	if dim, err := s.deps.Embedder.ActiveDimensions(ctx); err != nil {
		dimCheck["error"] = err.Error()
	} else {
		report, err := s.deps.Store.VerifyDimensions(ctx, dim)
		if err != nil {
			dimCheck["error"] = err.Error()
		} else {
			dimCheck["report"] = report
			dimCheck["ok"] = report.Err() == nil
		}
	}

	response := map[string]interface{}{
		"store": map[string]interface{}{
			"schema_version":       status.SchemaVersion,
			"build_mode":           status.BuildMode,
			"songs":                status.Songs,
			"songs_with_embedding": status.SongsWithEmbedding,
			"aboutness":            status.Aboutness,
			"aboutness_by_version": status.AboutnessByVersion,
			"dimensions":           status.Dimensions,
		},
		"embedder":          s.deps.Embedder.Status(ctx, probe),
		"dimension_check":   dimCheck,
		"aboutness_version": aboutness.CurrentVersion,
		"backfill_running":  s.deps.Backfill != nil && s.deps.Backfill.Running(),
	}
	if s.deps.Weights != nil {
		response["weights"] = s.deps.Weights.Weights()
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleUpdateWeights handles the update_weights tool invocation
func (s *Server) handleUpdateWeights(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.Weights == nil {
		return nil, newMCPError(ErrorCodeInternalError, "ranking weights are not tunable", nil)
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	update := reranker.WeightsUpdate{
		Semantic:          getFloatPtr(args, "semantic"),
		Keyword:           getFloatPtr(args, "keyword"),
		Popularity:        getFloatPtr(args, "popularity"),
		Clarity:           getFloatPtr(args, "clarity"),
		RepetitionPenalty: getFloatPtr(args, "repetition_penalty"),
	}

	weights, err := s.deps.Weights.UpdateWeights(update)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidWeights, "invalid weights", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{"weights": weights})), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

func invalidParam(name string, err error) error {
	return newMCPError(ErrorCodeInvalidParams, "invalid "+name, map[string]interface{}{
		"param":  name,
		"reason": err.Error(),
	})
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

func getFloatPtr(args map[string]interface{}, key string) *float64 {
	switch v := args[key].(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	}
	return nil
}

// getStringSlice reads an optional array of strings.
func getStringSlice(args map[string]interface{}, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for i, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("element %d is not a string", i)
			}
			out = append(out, str)
		}
		return out, nil
	}
	return nil, errors.New("must be an array of strings")
}

// getIntSlice reads an optional array of integers.
func getIntSlice(args map[string]interface{}, key string) ([]int, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case []int:
		return v, nil
	case []interface{}:
		out := make([]int, 0, len(v))
		for i, item := range v {
			switch n := item.(type) {
			case float64:
				out = append(out, int(n))
			case int:
				out = append(out, n)
			default:
				return nil, fmt.Errorf("element %d is not a number", i)
			}
		}
		return out, nil
	}
	return nil, errors.New("must be an array of integers")
}
