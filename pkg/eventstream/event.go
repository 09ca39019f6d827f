package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/tracenotes/pkg/agenttrace"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTracesPersisted is emitted after agent traces are attached to a commit.
	EventTypeTracesPersisted = "tracenotes.traces.persisted"
)

// Origins of a persisted traces event.
const (
	OriginRecord = "record"
	OriginFlush  = "flush"
	OriginAPI    = "api"
)

// TracesPersistedEvent is a transport-neutral event payload for traces
// written to the notes store.
type TracesPersistedEvent struct {
	SchemaVersion int                      `json:"schema_version"`
	EventType     string                   `json:"event_type"`
	EventID       string                   `json:"event_id"`
	EmittedAt     time.Time                `json:"emitted_at"`
	Source        EventSource              `json:"source"`
	Revision      string                   `json:"revision"`
	Origin        string                   `json:"origin"`
	TraceIDs      []string                 `json:"trace_ids"`
	Traces        []*agenttrace.AgentTrace `json:"traces"`
}

// EventSource identifies the repository and tool the traces came from.
type EventSource struct {
	Repository string `json:"repository,omitempty"`
	Ref        string `json:"ref"`
	Tool       string `json:"tool,omitempty"`
}

// NewTracesPersistedEvent builds a v1 event for traces written to revision.
func NewTracesPersistedEvent(source EventSource, revision, origin string, traces []*agenttrace.AgentTrace) *TracesPersistedEvent {
	ids := make([]string, 0, len(traces))
	for _, t := range traces {
		if t != nil {
			ids = append(ids, t.ID)
		}
	}

	return &TracesPersistedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeTracesPersisted,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        source,
		Revision:      revision,
		Origin:        origin,
		TraceIDs:      ids,
		Traces:        traces,
	}
}
