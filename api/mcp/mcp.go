// Package mcp provides an MCP (Model Context Protocol) server exposing the
// stored agent traces to coding agents.
package mcp

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/tracenotes/pkg/query"
	"github.com/papercomputeco/tracenotes/pkg/utils"
)

type Config struct {
	// Query answers the tool calls.
	Query *query.Service

	// Noop for empty MCP server
	Noop bool

	// Logger is the configured logger
	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the trace tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "tracenotes",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if !c.Noop {
		if c.Query == nil {
			return nil, errors.New("query service is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        readToolName,
			Description: readDescription,
		}, s.handleRead)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        analyzeToolName,
			Description: analyzeDescription,
		}, s.handleAnalyze)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        summaryToolName,
			Description: summaryDescription,
		}, s.handleSummary)
	}

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// MCPServer returns the underlying server, for in-process transports.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}
