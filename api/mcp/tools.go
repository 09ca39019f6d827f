package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/tracenotes/pkg/agenttrace"
	"github.com/papercomputeco/tracenotes/pkg/aggregate"
	"github.com/papercomputeco/tracenotes/pkg/attribution"
)

var (
	readToolName    = "trace_read"
	readDescription = "Read the agent trace records attached to a commit. Leave revision empty to read every noted commit."

	analyzeToolName    = "trace_analyze"
	analyzeDescription = "Attribute the lines a commit changed to the agents and models that wrote them, per file."

	summaryToolName    = "trace_summary"
	summaryDescription = "Summarize agent contributions over a commit range: records, files, contributor types, models and tools."
)

// ReadInput is the input of the trace_read tool.
type ReadInput struct {
	Revision string `json:"revision,omitempty" jsonschema:"commit to read, e.g. HEAD or a sha; empty reads all noted commits"`
}

// ReadOutput is the output of the trace_read tool.
type ReadOutput struct {
	Revision string                   `json:"revision,omitempty"`
	Traces   []*agenttrace.AgentTrace `json:"traces"`
	Count    int                      `json:"count"`
}

// AnalyzeInput is the input of the trace_analyze tool.
type AnalyzeInput struct {
	Revision string `json:"revision" jsonschema:"commit to analyze, e.g. HEAD or a sha"`
}

// AnalyzeOutput is the output of the trace_analyze tool.
type AnalyzeOutput struct {
	Attribution      *attribution.CommitAttribution `json:"attribution"`
	ContributorLines map[string]int                 `json:"contributor_lines"`
}

// SummaryInput is the input of the trace_summary tool.
type SummaryInput struct {
	From string `json:"from,omitempty" jsonschema:"exclusive start of the range; empty covers the full history"`
	To   string `json:"to,omitempty" jsonschema:"inclusive end of the range (default: HEAD)"`
}

// SummaryOutput is the output of the trace_summary tool.
type SummaryOutput struct {
	Report  aggregate.Report  `json:"report"`
	AIShare float64           `json:"ai_share"`
	Models  []aggregate.Count `json:"models"`
}

func (s *Server) handleRead(ctx context.Context, _ *mcp.CallToolRequest, input ReadInput) (*mcp.CallToolResult, ReadOutput, error) {
	s.config.Logger.Debug("MCP trace read", "revision", input.Revision)

	traces, err := s.config.Query.Traces(ctx, input.Revision)
	if err != nil {
		return s.toolError("read traces", err), ReadOutput{}, nil
	}

	out := ReadOutput{Revision: input.Revision, Traces: traces, Count: len(traces)}
	return s.toolResult(out), out, nil
}

func (s *Server) handleAnalyze(ctx context.Context, _ *mcp.CallToolRequest, input AnalyzeInput) (*mcp.CallToolResult, AnalyzeOutput, error) {
	s.config.Logger.Debug("MCP trace analyze", "revision", input.Revision)

	revision := input.Revision
	if revision == "" {
		revision = "HEAD"
	}

	result, err := s.config.Query.Analyze(ctx, revision)
	if err != nil {
		return s.toolError("analyze commit", err), AnalyzeOutput{}, nil
	}

	out := AnalyzeOutput{Attribution: result, ContributorLines: result.ContributorLines()}
	return s.toolResult(out), out, nil
}

func (s *Server) handleSummary(ctx context.Context, _ *mcp.CallToolRequest, input SummaryInput) (*mcp.CallToolResult, SummaryOutput, error) {
	s.config.Logger.Debug("MCP trace summary", "from", input.From, "to", input.To)

	report, err := s.config.Query.Summarize(ctx, input.From, input.To)
	if err != nil {
		return s.toolError("summarize traces", err), SummaryOutput{}, nil
	}

	out := SummaryOutput{Report: report, AIShare: report.Total.AIShare(), Models: report.Total.SortedModels()}
	return s.toolResult(out), out, nil
}

// toolResult mirrors structured output as JSON text for clients that only
// read content blocks.
func (s *Server) toolResult(out any) *mcp.CallToolResult {
	data, err := json.Marshal(out)
	if err != nil {
		return s.toolError("serialize results", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}

func (s *Server) toolError(action string, err error) *mcp.CallToolResult {
	s.config.Logger.Error("MCP tool failed", "action", action, "error", err)
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Failed to %s: %v", action, err)},
		},
	}
}
