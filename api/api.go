package api

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/tracenotes/pkg/agenttrace"
	"github.com/papercomputeco/tracenotes/pkg/logger"
	"github.com/papercomputeco/tracenotes/pkg/query"
	"github.com/papercomputeco/tracenotes/pkg/recorder"
)

// Recorder writes posted traces. *recorder.Recorder satisfies it.
type Recorder interface {
	Record(ctx context.Context, traces ...*agenttrace.AgentTrace) (*recorder.Outcome, error)
	RecordAt(ctx context.Context, revision string, traces ...*agenttrace.AgentTrace) (*recorder.Outcome, error)
}

// Server is the API server for querying and recording agent traces.
type Server struct {
	config   Config
	query    *query.Service
	recorder Recorder
	logger   *slog.Logger
	app      *fiber.App
}

// NewServer creates a new API server. The recorder may be nil, in which case
// the server is read-only and POST routes are not registered.
func NewServer(config Config, svc *query.Service, rec Recorder, l *slog.Logger) (*Server, error) {
	if svc == nil {
		return nil, errors.New("query service is required")
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:   config,
		query:    svc,
		recorder: rec,
		logger:   logger.OrNop(l),
		app:      app,
	}

	app.Get("/ping", s.handlePing)

	v1 := app.Group("/v1")
	v1.Get("/agent-traces", s.handleQueryAgentTraces)
	v1.Get("/agent-traces/:id", s.handleGetAgentTrace)
	if rec != nil {
		v1.Post("/agent-traces", s.handleCreateAgentTraces)
	}
	v1.Get("/commits/:rev/traces", s.handleCommitTraces)
	v1.Get("/commits/:rev/attribution", s.handleCommitAttribution)
	v1.Get("/summary", s.handleSummary)

	if config.MCPHandler != nil {
		app.All("/mcp", adaptor.HTTPHandler(config.MCPHandler))
	}

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
