package eventstream

import "context"

// Publisher publishes trace events to an event stream backend.
type Publisher interface {
	PublishTraces(ctx context.Context, event *TracesPersistedEvent) error
	Close() error
}
