// Package api provides the HTTP API server for querying and recording the
// agent traces stored in git notes.
package api

import "net/http"

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8765")
	ListenAddr string

	// MCPHandler is mounted at /mcp when set.
	MCPHandler http.Handler
}
