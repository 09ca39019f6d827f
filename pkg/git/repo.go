package git

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EmptyTreeID is the object id of git's empty tree.
const EmptyTreeID = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// ErrNoCommit is wrapped by callers that require rev to name a commit.
var ErrNoCommit = errors.New("does not name a commit")

// ResolveCommit resolves rev to a full commit id. The boolean is false when
// rev does not name a commit.
func ResolveCommit(ctx context.Context, c Commander, rev string) (string, bool, error) {
	out, err := c.Run(ctx, "rev-parse", "--verify", "--quiet", rev+"^{commit}")
	if err != nil {
		if IsNotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("resolving %s: %w", rev, err)
	}
	return strings.TrimSpace(string(out)), true, nil
}

// Head resolves HEAD. The boolean is false in a repository with no commits.
func Head(ctx context.Context, c Commander) (string, bool, error) {
	return ResolveCommit(ctx, c, "HEAD")
}

// TopLevel returns the absolute path of the working tree root.
func TopLevel(ctx context.Context, c Commander) (string, error) {
	out, err := c.Run(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("locating repository root: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// GitDir returns the absolute path of the repository's git directory.
func GitDir(ctx context.Context, c Commander) (string, error) {
	out, err := c.Run(ctx, "rev-parse", "--absolute-git-dir")
	if err != nil {
		return "", fmt.Errorf("locating git directory: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// RevList lists commits reachable from to and not from from, newest first.
// An empty from lists the full history of to.
func RevList(ctx context.Context, c Commander, from, to string) ([]string, error) {
	spec := to
	if from != "" {
		spec = from + ".." + to
	}

	out, err := c.Run(ctx, "rev-list", spec)
	if err != nil {
		return nil, fmt.Errorf("listing commits %s: %w", spec, err)
	}
	return Lines(out), nil
}

// Lines splits command output into trimmed, non-empty lines.
func Lines(out []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// RepoName returns the name of the repository containing dir.
// It uses the base name of the working tree root and falls back to the base
// name of dir when dir is not inside a git repository.
func RepoName(ctx context.Context, c Commander, dir string) string {
	top, err := TopLevel(ctx, c)
	if err == nil && top != "" {
		return filepath.Base(top)
	}

	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return ""
		}
		dir = wd
	}
	return filepath.Base(dir)
}
