// Package storage defines the agent trace persistence contracts shared by the
// git notes store and its mirrors.
package storage

import (
	"context"
	"sort"
	"strings"

	"github.com/papercomputeco/tracenotes/pkg/agenttrace"
)

// AgentTraceReader reads the traces attached to a revision.
type AgentTraceReader interface {
	Read(ctx context.Context, revision string) ([]*agenttrace.AgentTrace, error)
}

// AgentTraceWriter merges traces into the set attached to a revision.
// At most one writer per revision at a time is supported.
type AgentTraceWriter interface {
	Write(ctx context.Context, revision string, traces []*agenttrace.AgentTrace) error
}

// AgentTraceRangeReader reads every trace attached to commits in from..to.
type AgentTraceRangeReader interface {
	ReadRange(ctx context.Context, from, to string) ([]*agenttrace.AgentTrace, error)
}

// AgentTraceStore defines the interface for persisting and retrieving agent traces.
type AgentTraceStore interface {
	AgentTraceReader
	AgentTraceWriter
	QueryAgentTraces(ctx context.Context, query AgentTraceQuery) ([]*agenttrace.AgentTrace, error)
	Close() error
}

// AgentTraceQuery defines query parameters for filtering agent traces.
type AgentTraceQuery struct {
	ID       string
	FilePath string
	Revision string
	ToolName string
	Limit    int
	Offset   int
}

// CommitTraces is the set of traces attached to one commit.
type CommitTraces struct {
	Revision string                   `json:"revision"`
	Traces   []*agenttrace.AgentTrace `json:"traces"`
}

// FindAgentTrace returns the trace governing id, matching either its own id
// or an id absorbed into it by consolidation.
func FindAgentTrace(ctx context.Context, store AgentTraceStore, id string) (*agenttrace.AgentTrace, error) {
	traces, err := store.QueryAgentTraces(ctx, AgentTraceQuery{ID: id, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(traces) == 0 {
		return nil, ErrNotFound{ID: id}
	}
	return traces[0], nil
}

// FilterAgentTraces applies query to traces: matching, newest-first ordering,
// then offset and limit.
func FilterAgentTraces(traces []*agenttrace.AgentTrace, query AgentTraceQuery) []*agenttrace.AgentTrace {
	results := make([]*agenttrace.AgentTrace, 0, len(traces))
	for _, trace := range traces {
		if trace != nil && MatchesQuery(trace, query) {
			results = append(results, trace)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Timestamp > results[j].Timestamp
	})

	// Apply offset
	if query.Offset > 0 && query.Offset < len(results) {
		results = results[query.Offset:]
	} else if query.Offset >= len(results) && query.Offset > 0 {
		return []*agenttrace.AgentTrace{}
	}

	// Apply limit
	if query.Limit > 0 && query.Limit < len(results) {
		results = results[:query.Limit]
	}

	return results
}

// MatchesQuery reports whether trace satisfies every filter set on query.
func MatchesQuery(trace *agenttrace.AgentTrace, query AgentTraceQuery) bool {
	if query.ID != "" && trace.ID != query.ID {
		found := false
		for _, id := range agenttrace.ConsolidatedIDs(trace) {
			if id == query.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if query.FilePath != "" {
		found := false
		for _, f := range trace.Files {
			if strings.EqualFold(f.Path, query.FilePath) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if query.Revision != "" && trace.Revision() != query.Revision {
		return false
	}

	if query.ToolName != "" && !strings.EqualFold(trace.ToolName(), query.ToolName) {
		return false
	}

	return true
}
