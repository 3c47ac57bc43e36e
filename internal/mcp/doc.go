// Package mcp implements the Model Context Protocol (MCP) server for songmatch.
//
// The server exposes four tools over stdio:
//   - match_songs: pick songs that answer a chat message
//   - backfill_aboutness: generate missing emotion and moment profiles
//   - get_status: catalog counts, embedder state and dimension health
//   - update_weights: partially update the ranking weights
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Stdout carries the protocol, so all logging goes to stderr.
//
// # Tool: match_songs
//
//	Request:
//	{
//	  "name": "match_songs",
//	  "arguments": {
//	    "message": "driving to the coast with the windows down",
//	    "allow_explicit": false,
//	    "limit": 5,
//	    "recent_songs": ["song-12"]
//	  }
//	}
//
// The response lists matches in rank order with the score breakdown, raw
// signals, match reasons and content classification of each song. "mode"
// names the retrieval path taken and "degraded" lists signals that were
// unavailable for this request.
//
// # Error Codes
//
//	-32602  Invalid params
//	-32603  Internal error
//	-32001  Empty message
//	-32002  Backfill already in progress
//	-32003  Weight update rejected
//	-32004  Request cancelled
package mcp
