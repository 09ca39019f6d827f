// Package attribution reconciles recorded agent trace ranges with the lines
// a commit actually changed.
package attribution

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/tracenotes/pkg/git"
	"github.com/papercomputeco/tracenotes/pkg/logger"
	"github.com/papercomputeco/tracenotes/pkg/storage"
)

// Analyzer matches the traces stored for a commit against its diff.
type Analyzer struct {
	git    git.Commander
	traces storage.AgentTraceReader
	logger *slog.Logger
}

// NewAnalyzer creates an Analyzer reading traces from traces and diffs
// through c.
func NewAnalyzer(c git.Commander, traces storage.AgentTraceReader, l *slog.Logger) *Analyzer {
	return &Analyzer{
		git:    c,
		traces: traces,
		logger: logger.OrNop(l),
	}
}

// Analyze resolves revision and returns its per-file attribution.
func (a *Analyzer) Analyze(ctx context.Context, revision string) (*CommitAttribution, error) {
	commit, ok, err := git.ResolveCommit(ctx, a.git, revision)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s %w", revision, git.ErrNoCommit)
	}

	changes, err := a.Changes(ctx, commit)
	if err != nil {
		return nil, err
	}

	traces, err := a.traces.Read(ctx, commit)
	if err != nil {
		return nil, err
	}

	result := Match(commit, traces, changes)
	a.logger.Debug("analyzed commit",
		"revision", commit,
		"files", len(result.Files),
		"untracked", len(result.Untracked),
		"untouched", len(result.Untouched),
	)
	return result, nil
}

// Changes returns the line changes of commit against its first parent, or
// against the empty tree for a root commit. A merge is therefore compared
// with the branch it was merged into. Every file the commit touched has an
// entry, possibly with no lines.
func (a *Analyzer) Changes(ctx context.Context, commit string) (map[string]*FileChanges, error) {
	base, err := a.firstParent(ctx, commit)
	if err != nil {
		return nil, err
	}

	names, err := a.git.Run(ctx, diffTreeArgs(base, commit, "--name-only")...)
	if err != nil {
		return nil, fmt.Errorf("listing files changed by %s: %w", commit, err)
	}

	patch, err := a.git.Run(ctx, diffTreeArgs(base, commit, "-p", "--unified=0")...)
	if err != nil {
		return nil, fmt.Errorf("reading diff of %s: %w", commit, err)
	}

	changes, err := ParseUnifiedDiff(patch)
	if err != nil {
		return nil, err
	}

	for _, name := range git.Lines(names) {
		if _, ok := changes[name]; !ok {
			changes[name] = &FileChanges{Path: name}
		}
	}
	return changes, nil
}

// firstParent returns the first parent of commit, or the empty tree when
// commit has none.
func (a *Analyzer) firstParent(ctx context.Context, commit string) (string, error) {
	parent, ok, err := git.ResolveCommit(ctx, a.git, commit+"^1")
	if err != nil {
		return "", err
	}
	if !ok {
		return git.EmptyTreeID, nil
	}
	return parent, nil
}

func diffTreeArgs(base, commit string, extra ...string) []string {
	args := []string{"-c", "core.quotePath=false", "diff-tree", "-r", "-M"}
	args = append(args, extra...)
	return append(args, base, commit)
}
