// Package recorder is the single write path for captured agent traces: it
// attaches them to HEAD through the notes store, or stages them when the
// repository has no commit yet.
package recorder

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/tracenotes/pkg/agenttrace"
	"github.com/papercomputeco/tracenotes/pkg/environment"
	"github.com/papercomputeco/tracenotes/pkg/eventstream"
	"github.com/papercomputeco/tracenotes/pkg/eventstream/nop"
	"github.com/papercomputeco/tracenotes/pkg/git"
	"github.com/papercomputeco/tracenotes/pkg/logger"
	"github.com/papercomputeco/tracenotes/pkg/staging"
	"github.com/papercomputeco/tracenotes/pkg/storage"
)

// Outcome reports where a batch of traces went.
type Outcome struct {
	// Revision is the commit the traces were attached to; empty when staged.
	Revision string `json:"revision,omitempty"`

	Recorded int  `json:"recorded"`
	Staged   bool `json:"staged"`

	// Flushed counts previously staged traces moved into Revision.
	Flushed int `json:"flushed"`

	// Skipped counts traces rejected by validation.
	Skipped int `json:"skipped"`

	// Pending counts traces still waiting in the staging buffer.
	Pending int `json:"pending"`
}

// Recorder routes traces to the notes store or the staging buffer.
type Recorder struct {
	env       *environment.Environment
	store     storage.AgentTraceWriter
	buffer    *staging.Buffer
	publisher eventstream.Publisher
	source    eventstream.EventSource
	logger    *slog.Logger
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithPublisher sets the publisher notified after every notes write.
func WithPublisher(p eventstream.Publisher) Option {
	return func(r *Recorder) {
		if p != nil {
			r.publisher = p
		}
	}
}

// WithSource sets the event source stamped on published events.
func WithSource(source eventstream.EventSource) Option {
	return func(r *Recorder) {
		r.source = source
	}
}

// WithLogger sets the recorder logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger.OrNop(l)
	}
}

// New creates a Recorder.
func New(env *environment.Environment, store storage.AgentTraceWriter, buffer *staging.Buffer, opts ...Option) *Recorder {
	r := &Recorder{
		env:       env,
		store:     store,
		buffer:    buffer,
		publisher: nop.NewPublisher(nil),
		source:    eventstream.EventSource{Tool: env.Tool.Name},
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record validates traces and attaches the valid ones to HEAD. Anything
// already staged is flushed first. Without a commit the traces are staged.
func (r *Recorder) Record(ctx context.Context, traces ...*agenttrace.AgentTrace) (*Outcome, error) {
	valid, skipped := r.validate(traces)
	outcome := &Outcome{Skipped: skipped}

	head, ok, err := git.Head(ctx, r.env.Git)
	if err != nil {
		return nil, err
	}

	if !ok {
		for _, t := range valid {
			if err := r.buffer.Append(t); err != nil {
				return nil, err
			}
		}
		outcome.Staged = true
		outcome.Recorded = len(valid)
		outcome.Pending, err = r.buffer.Pending()
		if err != nil {
			return nil, err
		}
		r.logger.Debug("no commit yet, staged agent traces", "count", len(valid))
		return outcome, nil
	}

	outcome.Revision = head

	flushed, err := r.drain(ctx, head)
	if err != nil {
		// Staged traces stay in the buffer; the new ones are still recorded.
		r.logger.Warn("flushing staged agent traces failed", "revision", head, "error", err)
	}
	outcome.Flushed = flushed

	if err := r.write(ctx, head, eventstream.OriginRecord, valid); err != nil {
		return nil, err
	}
	outcome.Recorded = len(valid)

	outcome.Pending, err = r.buffer.Pending()
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// RecordAt validates traces and attaches the valid ones to revision. The
// staging buffer is left alone.
func (r *Recorder) RecordAt(ctx context.Context, revision string, traces ...*agenttrace.AgentTrace) (*Outcome, error) {
	commit, ok, err := git.ResolveCommit(ctx, r.env.Git, revision)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s %w", revision, git.ErrNoCommit)
	}

	valid, skipped := r.validate(traces)
	outcome := &Outcome{Revision: commit, Skipped: skipped}

	if err := r.write(ctx, commit, eventstream.OriginAPI, valid); err != nil {
		return nil, err
	}
	outcome.Recorded = len(valid)

	outcome.Pending, err = r.buffer.Pending()
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// Flush drains the staging buffer into HEAD. Without a commit nothing is
// flushed and the outcome reports the pending count.
func (r *Recorder) Flush(ctx context.Context) (*Outcome, error) {
	outcome := &Outcome{}

	head, ok, err := git.Head(ctx, r.env.Git)
	if err != nil {
		return nil, err
	}

	if ok {
		outcome.Revision = head
		outcome.Flushed, err = r.drain(ctx, head)
		if err != nil {
			return nil, err
		}
	}

	outcome.Pending, err = r.buffer.Pending()
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (r *Recorder) validate(traces []*agenttrace.AgentTrace) ([]*agenttrace.AgentTrace, int) {
	skipped := 0
	valid := make([]*agenttrace.AgentTrace, 0, len(traces))
	for _, t := range traces {
		if t == nil {
			continue
		}
		if errs := agenttrace.ValidateTrace(t); len(errs) > 0 {
			r.logger.Warn("skipping invalid agent trace",
				"id", t.ID,
				"error", agenttrace.JoinValidationErrors(errs),
			)
			skipped++
			continue
		}
		valid = append(valid, t)
	}
	return valid, skipped
}

func (r *Recorder) write(ctx context.Context, revision, origin string, traces []*agenttrace.AgentTrace) error {
	if len(traces) == 0 {
		return nil
	}
	for _, t := range traces {
		if t.VCS == nil {
			t.VCS = &agenttrace.VCS{Type: agenttrace.VCSTypeGit, Revision: revision}
		}
	}
	if err := r.store.Write(ctx, revision, traces); err != nil {
		return fmt.Errorf("recording agent traces: %w", err)
	}
	r.publish(ctx, revision, origin, traces)
	return nil
}

func (r *Recorder) drain(ctx context.Context, head string) (int, error) {
	flushed, err := r.buffer.Drain(ctx, head, r.store)
	if err != nil {
		return 0, err
	}
	if len(flushed) > 0 {
		r.publish(ctx, head, eventstream.OriginFlush, flushed)
	}
	return len(flushed), nil
}

// publish reports a successful write. The notes are the source of truth, so
// a publish failure is logged rather than returned.
func (r *Recorder) publish(ctx context.Context, revision, origin string, traces []*agenttrace.AgentTrace) {
	event := eventstream.NewTracesPersistedEvent(r.source, revision, origin, traces)
	if err := r.publisher.PublishTraces(ctx, event); err != nil {
		r.logger.Warn("publishing traces event failed",
			"revision", revision,
			"event_id", event.EventID,
			"error", err,
		)
	}
}
