// Package inmemory provides a map backed storage.AgentTraceStore used by tests
// and by the API server when no repository is attached.
package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/papercomputeco/tracenotes/pkg/agenttrace"
	"github.com/papercomputeco/tracenotes/pkg/storage"
)

// AgentTraceStore implements storage.AgentTraceStore using an in-memory map
// keyed by revision.
type AgentTraceStore struct {
	mu     sync.RWMutex
	traces map[string][]*agenttrace.AgentTrace
}

// NewAgentTraceStore creates a new in-memory agent trace store.
func NewAgentTraceStore() *AgentTraceStore {
	return &AgentTraceStore{
		traces: make(map[string][]*agenttrace.AgentTrace),
	}
}

// Read returns copies of the traces stored for revision.
func (s *AgentTraceStore) Read(_ context.Context, revision string) ([]*agenttrace.AgentTrace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return cloneAll(s.traces[revision]), nil
}

// Write merges traces into revision with the same dedup and consolidation
// rules as the notes store.
func (s *AgentTraceStore) Write(_ context.Context, revision string, traces []*agenttrace.AgentTrace) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged, added := agenttrace.Merge(s.traces[revision], traces)
	if added == 0 {
		return nil
	}

	s.traces[revision] = merged
	return nil
}

// QueryAgentTraces queries agent traces with filtering.
func (s *AgentTraceStore) QueryAgentTraces(_ context.Context, query storage.AgentTraceQuery) ([]*agenttrace.AgentTrace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*agenttrace.AgentTrace
	for revision, traces := range s.traces {
		if query.Revision != "" && revision != query.Revision {
			continue
		}
		all = append(all, cloneAll(traces)...)
	}

	byRevision := query
	byRevision.Revision = ""
	return storage.FilterAgentTraces(all, byRevision), nil
}

// ReadAll returns the traces on revision, or on every revision when revision
// is empty.
func (s *AgentTraceStore) ReadAll(ctx context.Context, revision string) ([]*agenttrace.AgentTrace, error) {
	if revision != "" {
		return s.Read(ctx, revision)
	}

	commits, err := s.ReadCommits(ctx, "", "")
	if err != nil {
		return nil, err
	}
	all := []*agenttrace.AgentTrace{}
	for _, c := range commits {
		all = append(all, c.Traces...)
	}
	return all, nil
}

// ReadCommits returns every stored revision in lexical order. The store has
// no commit graph, so from and to are ignored.
func (s *AgentTraceStore) ReadCommits(_ context.Context, _, _ string) ([]storage.CommitTraces, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	revisions := make([]string, 0, len(s.traces))
	for r := range s.traces {
		revisions = append(revisions, r)
	}
	sort.Strings(revisions)

	out := make([]storage.CommitTraces, 0, len(revisions))
	for _, r := range revisions {
		out = append(out, storage.CommitTraces{Revision: r, Traces: cloneAll(s.traces[r])})
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *AgentTraceStore) Close() error {
	return nil
}

func cloneAll(traces []*agenttrace.AgentTrace) []*agenttrace.AgentTrace {
	out := make([]*agenttrace.AgentTrace, len(traces))
	for i, t := range traces {
		out[i] = t.Clone()
	}
	return out
}
