// Package nop provides the publisher used when no event stream is configured.
package nop

import (
	"context"
	"log/slog"

	"github.com/papercomputeco/tracenotes/pkg/eventstream"
	"github.com/papercomputeco/tracenotes/pkg/logger"
)

// Publisher drops every event. With a logger it notes each drop at Debug
// level, which is how a disabled stream shows up in `--debug` output.
type Publisher struct {
	logger *slog.Logger
}

// NewPublisher creates a Publisher. A nil logger discards the drop notices.
func NewPublisher(l *slog.Logger) *Publisher {
	return &Publisher{logger: logger.OrNop(l)}
}

// PublishTraces rejects nil events and drops the rest.
func (p *Publisher) PublishTraces(_ context.Context, event *eventstream.TracesPersistedEvent) error {
	if event == nil {
		return eventstream.ErrNilTracesEvent
	}

	p.logger.Debug("event stream disabled, dropping event",
		"event_id", event.EventID,
		"revision", event.Revision,
		"traces", len(event.TraceIDs),
	)
	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}

var _ eventstream.Publisher = (*Publisher)(nil)
