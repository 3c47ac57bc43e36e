package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// matchSongsTool returns the tool definition for match_songs
func matchSongsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "match_songs",
		Description: "Pick songs that answer a chat message, primary pick first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"message": map[string]interface{}{
					"type":        "string",
					"description": "The chat message to respond to with a song",
				},
				"allow_explicit": map[string]interface{}{
					"type":        "boolean",
					"description": "If false, explicit songs are replaced by a radio edit or dropped",
					"default":     false,
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of songs to return (1-20)",
					"default":     20,
					"minimum":     1,
					"maximum":     20,
				},
				"recent_songs": map[string]interface{}{
					"type":        "array",
					"description": "Song ids played recently; these are penalised",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"avoid_decades": map[string]interface{}{
					"type":        "array",
					"description": "Decades to penalise, e.g. 1980",
					"items": map[string]interface{}{
						"type": "integer",
					},
				},
				"user_id": map[string]interface{}{
					"type":        "string",
					"description": "Requesting user, for log correlation",
				},
				"time_of_day": map[string]interface{}{
					"type":        "string",
					"description": "Listener's time of day (morning, afternoon, evening, night)",
				},
			},
			Required: []string{"message"},
		},
	}
}

// backfillAboutnessTool returns the tool definition for backfill_aboutness
func backfillAboutnessTool() mcp.Tool {
	return mcp.Tool{
		Name:        "backfill_aboutness",
		Description: "Generate and embed emotion and moment profiles for songs missing a current one",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"ids": map[string]interface{}{
					"type":        "array",
					"description": "Restrict the run to these song ids",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Process at most this many songs (0 for no limit)",
					"default":     0,
					"minimum":     0,
				},
				"batch_size": map[string]interface{}{
					"type":        "integer",
					"description": "Songs per batch",
					"minimum":     1,
				},
				"concurrency": map[string]interface{}{
					"type":        "integer",
					"description": "Songs processed in parallel within a batch",
					"minimum":     1,
				},
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, regenerate profiles that are already current",
					"default":     false,
				},
			},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report catalog counts, embedder state and vector dimension health",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"probe": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, embed a probe text end to end",
					"default":     false,
				},
			},
		},
	}
}

// updateWeightsTool returns the tool definition for update_weights
func updateWeightsTool() mcp.Tool {
	weight := func(desc string) map[string]interface{} {
		return map[string]interface{}{
			"type":        "number",
			"description": desc,
			"minimum":     0.0,
		}
	}
	return mcp.Tool{
		Name:        "update_weights",
		Description: "Partially update the ranking weights; omitted weights keep their value",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"semantic":           weight("Weight of the semantic signal"),
				"keyword":            weight("Weight of the keyword signal"),
				"popularity":         weight("Weight of song popularity"),
				"clarity":            weight("Weight of the title clarity prior"),
				"repetition_penalty": weight("Base multiplier for recent-song and decade penalties"),
			},
		},
	}
}
