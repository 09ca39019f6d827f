// Package query is the read side shared by the HTTP API, the MCP tools and
// the CLI: raw traces, per-commit attribution and range summaries.
package query

import (
	"context"

	"github.com/papercomputeco/tracenotes/pkg/agenttrace"
	"github.com/papercomputeco/tracenotes/pkg/aggregate"
	"github.com/papercomputeco/tracenotes/pkg/attribution"
	"github.com/papercomputeco/tracenotes/pkg/storage"
)

// Source is the trace storage the service reads from. *notes.Store
// satisfies it.
type Source interface {
	storage.AgentTraceReader
	QueryAgentTraces(ctx context.Context, query storage.AgentTraceQuery) ([]*agenttrace.AgentTrace, error)
	ReadAll(ctx context.Context, revision string) ([]*agenttrace.AgentTrace, error)
	ReadCommits(ctx context.Context, from, to string) ([]storage.CommitTraces, error)
}

// Analyzer produces the attribution of one commit.
type Analyzer interface {
	Analyze(ctx context.Context, revision string) (*attribution.CommitAttribution, error)
}

// Service answers trace queries.
type Service struct {
	source   Source
	analyzer Analyzer
}

// NewService creates a Service.
func NewService(source Source, analyzer Analyzer) *Service {
	return &Service{source: source, analyzer: analyzer}
}

// Traces returns the traces on revision, or on every noted commit when
// revision is empty.
func (s *Service) Traces(ctx context.Context, revision string) ([]*agenttrace.AgentTrace, error) {
	return s.source.ReadAll(ctx, revision)
}

// Find filters stored traces.
func (s *Service) Find(ctx context.Context, q storage.AgentTraceQuery) ([]*agenttrace.AgentTrace, error) {
	return s.source.QueryAgentTraces(ctx, q)
}

// Analyze returns the attribution of revision.
func (s *Service) Analyze(ctx context.Context, revision string) (*attribution.CommitAttribution, error) {
	return s.analyzer.Analyze(ctx, revision)
}

// Summarize aggregates the noted commits in from..to. An empty to means HEAD.
func (s *Service) Summarize(ctx context.Context, from, to string) (aggregate.Report, error) {
	commits, err := s.source.ReadCommits(ctx, from, to)
	if err != nil {
		return aggregate.Report{}, err
	}
	return aggregate.SummarizeCommits(commits), nil
}
