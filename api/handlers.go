package api

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/tracenotes/pkg/agenttrace"
	"github.com/papercomputeco/tracenotes/pkg/git"
	"github.com/papercomputeco/tracenotes/pkg/recorder"
	"github.com/papercomputeco/tracenotes/pkg/storage"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// CreateResponse is the body returned by POST /v1/agent-traces.
type CreateResponse struct {
	*recorder.Outcome

	// Rejected lists the records that failed validation.
	Rejected []string `json:"rejected,omitempty"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleCreateAgentTraces handles POST /v1/agent-traces. The body is a record
// object or an array of records. Without ?revision= the traces go to HEAD, or
// to the staging buffer before the first commit.
func (s *Server) handleCreateAgentTraces(c *fiber.Ctx) error {
	traces, invalid, err := agenttrace.DecodeTraces(c.Body())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body", Details: []string{err.Error()}})
	}

	rejected := make([]string, 0, len(invalid))
	for _, e := range invalid {
		rejected = append(rejected, e.Error())
	}
	if len(traces) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "no valid agent traces", Details: rejected})
	}

	var outcome *recorder.Outcome
	if revision := c.Query("revision"); revision != "" {
		outcome, err = s.recorder.RecordAt(c.UserContext(), revision, traces...)
	} else {
		outcome, err = s.recorder.Record(c.UserContext(), traces...)
	}
	if errors.Is(err, git.ErrNoCommit) {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}
	if err != nil {
		s.logger.Error("recording agent traces failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to record agent traces", Details: []string{err.Error()}})
	}
	outcome.Skipped += len(invalid)

	return c.Status(fiber.StatusCreated).JSON(CreateResponse{Outcome: outcome, Rejected: rejected})
}

// handleGetAgentTrace handles GET /v1/agent-traces/:id.
func (s *Server) handleGetAgentTrace(c *fiber.Ctx) error {
	traces, err := s.query.Find(c.UserContext(), storage.AgentTraceQuery{ID: c.Params("id"), Limit: 1})
	if err != nil {
		return s.internalError(c, "failed to query agent traces", err)
	}
	if len(traces) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "agent trace not found"})
	}

	return c.JSON(traces[0])
}

// handleQueryAgentTraces handles GET /v1/agent-traces.
func (s *Server) handleQueryAgentTraces(c *fiber.Ctx) error {
	q := storage.AgentTraceQuery{
		FilePath: c.Query("file_path"),
		Revision: c.Query("revision"),
		ToolName: c.Query("tool_name"),
	}

	var err error
	if q.Limit, err = nonNegative(c, "limit"); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}
	if q.Offset, err = nonNegative(c, "offset"); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	traces, err := s.query.Find(c.UserContext(), q)
	if err != nil {
		return s.internalError(c, "failed to query agent traces", err)
	}

	return c.JSON(traces)
}

// handleCommitTraces handles GET /v1/commits/:rev/traces.
func (s *Server) handleCommitTraces(c *fiber.Ctx) error {
	traces, err := s.query.Traces(c.UserContext(), c.Params("rev"))
	if err != nil {
		return s.internalError(c, "failed to read agent traces", err)
	}
	return c.JSON(traces)
}

// handleCommitAttribution handles GET /v1/commits/:rev/attribution.
func (s *Server) handleCommitAttribution(c *fiber.Ctx) error {
	result, err := s.query.Analyze(c.UserContext(), c.Params("rev"))
	if errors.Is(err, git.ErrNoCommit) {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: err.Error()})
	}
	if err != nil {
		return s.internalError(c, "failed to analyze commit", err)
	}
	return c.JSON(result)
}

// handleSummary handles GET /v1/summary.
func (s *Server) handleSummary(c *fiber.Ctx) error {
	report, err := s.query.Summarize(c.UserContext(), c.Query("from"), c.Query("to"))
	if err != nil {
		return s.internalError(c, "failed to summarize agent traces", err)
	}
	return c.JSON(report)
}

func (s *Server) internalError(c *fiber.Ctx, msg string, err error) error {
	s.logger.Error(msg, "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: msg, Details: []string{err.Error()}})
}

func nonNegative(c *fiber.Ctx, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return n, nil
}
