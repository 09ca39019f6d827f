// Package notes persists agent traces in git notes under a single, dedicated
// notes reference, one JSON array blob per commit.
package notes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/papercomputeco/tracenotes/pkg/agenttrace"
	"github.com/papercomputeco/tracenotes/pkg/environment"
	"github.com/papercomputeco/tracenotes/pkg/git"
	"github.com/papercomputeco/tracenotes/pkg/storage"
)

// DefaultRef is the notes namespace owned by this store.
const DefaultRef = "refs/notes/agent-trace"

// ErrUnreadableNote marks a note whose blob is not Agent Trace JSON at all.
var ErrUnreadableNote = errors.New("unreadable notes blob")

const (
	initMessage   = "Initialize agent-trace notes"
	throwawayNote = "tracenotes: initializing notes ref"
)

// Store reads, writes and repairs the agent trace notes reference.
//
// Callers must not run concurrent writes against the same revision; git's
// atomic ref update is the only serialization and a lost race surfaces as the
// broken-ref failure that Write repairs once.
type Store struct {
	git    git.Commander
	ref    string
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithRef overrides the notes reference. Short names are placed under refs/notes/.
func WithRef(ref string) Option {
	return func(s *Store) {
		if ref != "" {
			s.ref = NormalizeRef(ref)
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates a Store operating on env's repository.
func NewStore(env *environment.Environment, opts ...Option) (*Store, error) {
	if env == nil || env.Git == nil {
		return nil, errors.New("notes store requires an environment with git access")
	}

	s := &Store{
		git:    env.Git,
		ref:    DefaultRef,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NormalizeRef expands a short notes name such as "agent-trace" to a full ref.
func NormalizeRef(ref string) string {
	if strings.HasPrefix(ref, "refs/") {
		return ref
	}
	return "refs/notes/" + ref
}

// Ref returns the full notes reference name.
func (s *Store) Ref() string {
	return s.ref
}

// Read returns the traces attached to revision. A revision without a note
// reads as empty. Entries in the blob that fail validation are skipped.
func (s *Store) Read(ctx context.Context, revision string) ([]*agenttrace.AgentTrace, error) {
	traces, err := s.show(ctx, revision)
	if errors.Is(err, ErrUnreadableNote) {
		s.logger.Warn("skipping unreadable notes blob",
			"revision", revision,
			"error", err,
		)
		return []*agenttrace.AgentTrace{}, nil
	}
	return traces, err
}

// show decodes the note on revision. A blob that does not decode at all is
// reported as ErrUnreadableNote.
func (s *Store) show(ctx context.Context, revision string) ([]*agenttrace.AgentTrace, error) {
	out, err := s.git.Run(ctx, "notes", "--ref", s.ref, "show", revision)
	if err != nil {
		if git.IsNoteNotFound(err) {
			return []*agenttrace.AgentTrace{}, nil
		}
		return nil, fmt.Errorf("reading notes for %s: %w", revision, err)
	}

	traces, invalid, err := agenttrace.DecodeTraces(out)
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %w", ErrUnreadableNote, revision, err)
	}
	for _, verr := range invalid {
		s.logger.Warn("skipping invalid agent trace",
			"revision", revision,
			"error", verr,
		)
	}

	return traces, nil
}

// Write merges traces into the note on revision: traces whose id is already
// stored are dropped, the union is consolidated by conversation, and the
// note is force-overwritten. A note that cannot be decoded is never
// overwritten; Write fails with ErrUnreadableNote instead. A failed git write
// repairs the reference with EnsureReady and is retried exactly once.
func (s *Store) Write(ctx context.Context, revision string, traces []*agenttrace.AgentTrace) error {
	err := s.write(ctx, revision, traces)
	if err == nil {
		return nil
	}

	var gitErr *git.Error
	if !errors.As(err, &gitErr) || ctx.Err() != nil {
		return err
	}

	s.logger.Warn("notes write failed, repairing reference",
		"ref", s.ref,
		"revision", revision,
		"error", err,
	)

	if rerr := s.EnsureReady(ctx); rerr != nil {
		return fmt.Errorf("writing notes for %s: %w (repair failed: %v)", revision, err, rerr)
	}

	if err := s.write(ctx, revision, traces); err != nil {
		return fmt.Errorf("writing notes for %s after repair: %w", revision, err)
	}
	return nil
}

func (s *Store) write(ctx context.Context, revision string, traces []*agenttrace.AgentTrace) error {
	existing, err := s.show(ctx, revision)
	if errors.Is(err, ErrUnreadableNote) {
		return fmt.Errorf("refusing to overwrite notes for %s: %w", revision, err)
	}
	if err != nil {
		return err
	}

	merged, added := agenttrace.Merge(existing, traces)
	if added == 0 {
		s.logger.Debug("no new agent traces to write", "revision", revision)
		return nil
	}

	body, err := agenttrace.EncodeTraces(merged)
	if err != nil {
		return err
	}

	if _, err := s.git.RunInput(ctx, body, "notes", "--ref", s.ref, "add", "-f", "-F", "-", revision); err != nil {
		return fmt.Errorf("writing notes for %s: %w", revision, err)
	}

	s.logger.Debug("wrote agent traces",
		"revision", revision,
		"added", added,
		"stored", len(merged),
	)
	return nil
}

// EnsureReady makes the notes reference usable. It is idempotent:
//   - a reference that exists and lists cleanly is left alone;
//   - a reference that exists but cannot be listed is deleted and recreated;
//   - a missing reference is created by adding and removing a throwaway note
//     on HEAD, or, with no commits yet, by pointing it at a root commit over
//     the empty tree.
func (s *Store) EnsureReady(ctx context.Context) error {
	_, err := s.git.Run(ctx, "show-ref", "--verify", "--quiet", s.ref)
	switch {
	case err == nil:
		_, lerr := s.git.Run(ctx, "notes", "--ref", s.ref, "list")
		if lerr == nil {
			return nil
		}
		s.logger.Warn("notes reference is broken, recreating", "ref", s.ref, "error", lerr)
		if err := s.deleteRef(ctx); err != nil {
			return err
		}

	case git.IsNotFound(err):
		s.logger.Debug("notes reference does not exist, creating", "ref", s.ref)

	default:
		var gitErr *git.Error
		if !errors.As(err, &gitErr) || gitErr.ExitCode < 0 {
			return fmt.Errorf("checking notes reference %s: %w", s.ref, err)
		}
		s.logger.Warn("notes reference is unreadable, recreating", "ref", s.ref, "error", err)
		if err := s.deleteRef(ctx); err != nil {
			return err
		}
	}

	return s.materialize(ctx)
}

func (s *Store) deleteRef(ctx context.Context) error {
	if _, err := s.git.Run(ctx, "update-ref", "-d", s.ref); err != nil {
		return fmt.Errorf("deleting broken notes reference %s: %w", s.ref, err)
	}
	return nil
}

func (s *Store) materialize(ctx context.Context) error {
	head, ok, err := git.Head(ctx, s.git)
	if err != nil {
		return err
	}

	if ok {
		if _, err := s.git.Run(ctx, "notes", "--ref", s.ref, "add", "-f", "-m", throwawayNote, head); err != nil {
			return fmt.Errorf("creating notes reference %s: %w", s.ref, err)
		}
		if _, err := s.git.Run(ctx, "notes", "--ref", s.ref, "remove", head); err != nil {
			return fmt.Errorf("creating notes reference %s: %w", s.ref, err)
		}
		return nil
	}

	out, err := s.git.RunInput(ctx, []byte{}, "hash-object", "-t", "tree", "-w", "--stdin")
	if err != nil {
		return fmt.Errorf("writing empty tree: %w", err)
	}
	tree := strings.TrimSpace(string(out))

	out, err = s.git.Run(ctx, "commit-tree", tree, "-m", initMessage)
	if err != nil {
		return fmt.Errorf("creating notes root commit: %w", err)
	}
	commit := strings.TrimSpace(string(out))

	if _, err := s.git.Run(ctx, "update-ref", s.ref, commit); err != nil {
		return fmt.Errorf("creating notes reference %s: %w", s.ref, err)
	}
	return nil
}

// NotedCommits lists the commits carrying a note, sorted by commit id.
// A missing reference has no noted commits.
func (s *Store) NotedCommits(ctx context.Context) ([]string, error) {
	out, err := s.git.Run(ctx, "notes", "--ref", s.ref, "list")
	if err != nil {
		return nil, fmt.Errorf("listing notes in %s: %w", s.ref, err)
	}

	var commits []string
	for _, line := range git.Lines(out) {
		fields := strings.Fields(line)
		if len(fields) == 2 {
			commits = append(commits, fields[1])
		}
	}
	sort.Strings(commits)
	return commits, nil
}

// ReadAll returns the traces on revision, or on every noted commit when
// revision is empty.
func (s *Store) ReadAll(ctx context.Context, revision string) ([]*agenttrace.AgentTrace, error) {
	if revision != "" {
		return s.Read(ctx, revision)
	}

	commits, err := s.NotedCommits(ctx)
	if err != nil {
		return nil, err
	}

	all := []*agenttrace.AgentTrace{}
	for _, commit := range commits {
		traces, err := s.Read(ctx, commit)
		if err != nil {
			return nil, err
		}
		all = append(all, traces...)
	}
	return all, nil
}

// ReadCommits returns the noted commits in from..to, newest first. An empty
// from covers the full history of to; an empty to means HEAD. A to that
// does not resolve (such as HEAD before the first commit) yields nothing.
func (s *Store) ReadCommits(ctx context.Context, from, to string) ([]storage.CommitTraces, error) {
	if to == "" {
		to = "HEAD"
	}

	if _, ok, err := git.ResolveCommit(ctx, s.git, to); err != nil {
		return nil, err
	} else if !ok {
		return []storage.CommitTraces{}, nil
	}

	commits, err := git.RevList(ctx, s.git, from, to)
	if err != nil {
		return nil, err
	}

	noted, err := s.NotedCommits(ctx)
	if err != nil {
		return nil, err
	}
	hasNote := make(map[string]bool, len(noted))
	for _, c := range noted {
		hasNote[c] = true
	}

	out := []storage.CommitTraces{}
	for _, commit := range commits {
		if !hasNote[commit] {
			continue
		}
		traces, err := s.Read(ctx, commit)
		if err != nil {
			return nil, err
		}
		out = append(out, storage.CommitTraces{Revision: commit, Traces: traces})
	}
	return out, nil
}

// ReadRange returns every trace attached to commits in from..to.
func (s *Store) ReadRange(ctx context.Context, from, to string) ([]*agenttrace.AgentTrace, error) {
	commits, err := s.ReadCommits(ctx, from, to)
	if err != nil {
		return nil, err
	}

	all := []*agenttrace.AgentTrace{}
	for _, c := range commits {
		all = append(all, c.Traces...)
	}
	return all, nil
}

// QueryAgentTraces filters the traces of every noted commit.
func (s *Store) QueryAgentTraces(ctx context.Context, query storage.AgentTraceQuery) ([]*agenttrace.AgentTrace, error) {
	var (
		traces []*agenttrace.AgentTrace
		err    error
	)

	if query.Revision != "" {
		traces, err = s.Read(ctx, query.Revision)
		query.Revision = ""
	} else {
		traces, err = s.ReadAll(ctx, "")
	}
	if err != nil {
		return nil, err
	}

	return storage.FilterAgentTraces(traces, query), nil
}

// Close is a no-op; the store holds no resources beyond the git runner.
func (s *Store) Close() error {
	return nil
}

var (
	_ storage.AgentTraceStore       = (*Store)(nil)
	_ storage.AgentTraceRangeReader = (*Store)(nil)
)
