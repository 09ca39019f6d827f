// Package environment captures the process-level facts the trace store
// depends on (workspace root, tool identity, clock, git access) as one
// explicit value so tests can substitute a fixture.
package environment

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/papercomputeco/tracenotes/pkg/agenttrace"
	"github.com/papercomputeco/tracenotes/pkg/git"
)

const (
	// DirName is the per-workspace state directory.
	DirName = ".tracenotes"

	// StagingFile is the staging buffer file name inside DirName.
	StagingFile = "pending.jsonl"

	// DefaultToolName identifies records captured without a known agent.
	DefaultToolName = "tracenotes"
)

// Environment is the explicit execution context for stores and recorders.
type Environment struct {
	// Root is the absolute workspace (git working tree) root.
	Root string

	// StagingPath is the staging buffer location. Relative paths are resolved
	// against Root; empty means DirName/StagingFile.
	StagingPath string

	// Tool identifies the capturing agent.
	Tool agenttrace.Tool

	// Git runs git inside Root.
	Git git.Commander

	// Now is the clock used to stamp records.
	Now func() time.Time
}

// Options configures FromProcess.
type Options struct {
	// Dir is where to start looking for the repository; empty means cwd.
	Dir         string
	StagingPath string
	GitBinary   string
	GitTimeout  time.Duration
	ToolName    string
	ToolVersion string
	Logger      *slog.Logger
}

// FromProcess builds an Environment from the process state: it locates the
// repository root from opts.Dir, and fills the tool identity from opts, then
// from the agent environment variables, then DefaultToolName.
func FromProcess(ctx context.Context, opts Options) (*Environment, error) {
	dir := opts.Dir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting current directory: %w", err)
		}
		dir = wd
	}

	gitOpts := []git.Option{
		git.WithBinary(opts.GitBinary),
		git.WithTimeout(opts.GitTimeout),
		git.WithLogger(opts.Logger),
	}

	probe := git.NewRunner(dir, gitOpts...)
	root, err := git.TopLevel(ctx, probe)
	if err != nil {
		return nil, fmt.Errorf("%s is not inside a git repository: %w", dir, err)
	}

	return &Environment{
		Root:        root,
		StagingPath: opts.StagingPath,
		Tool:        detectTool(opts.ToolName, opts.ToolVersion),
		Git:         git.NewRunner(root, gitOpts...),
		Now:         time.Now,
	}, nil
}

// StateDir returns the absolute workspace state directory.
func (e *Environment) StateDir() string {
	return filepath.Join(e.Root, DirName)
}

// Staging returns the absolute staging buffer path.
func (e *Environment) Staging() string {
	switch {
	case e.StagingPath == "":
		return filepath.Join(e.StateDir(), StagingFile)
	case filepath.IsAbs(e.StagingPath):
		return e.StagingPath
	default:
		return filepath.Join(e.Root, e.StagingPath)
	}
}

// Clock returns the current time from Now, defaulting to time.Now.
func (e *Environment) Clock() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// RelPath converts path to a slash separated, workspace relative path.
// Paths outside the workspace are returned cleaned but otherwise unchanged.
func (e *Environment) RelPath(path string) string {
	if !filepath.IsAbs(path) {
		return filepath.ToSlash(filepath.Clean(path))
	}

	rel, err := filepath.Rel(e.Root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(filepath.Clean(path))
	}
	return filepath.ToSlash(rel)
}

// agentEnv maps environment variables set by coding agents to tool names.
var agentEnv = []struct {
	variable string
	tool     string
}{
	{"CLAUDECODE", "claude-code"},
	{"CURSOR_TRACE_ID", "cursor"},
	{"CODEX_SANDBOX", "codex"},
	{"GEMINI_CLI", "gemini-cli"},
}

func detectTool(name, version string) agenttrace.Tool {
	if name == "" {
		for _, a := range agentEnv {
			if os.Getenv(a.variable) != "" {
				name = a.tool
				break
			}
		}
	}
	if name == "" {
		name = DefaultToolName
	}
	return agenttrace.Tool{Name: name, Version: version}
}
