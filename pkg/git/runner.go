// Package git runs the git binary as a subprocess and interprets its exit
// conventions. It never reimplements git's object model.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

const (
	// DefaultBinary is the git executable looked up on PATH.
	DefaultBinary = "git"

	// DefaultTimeout bounds every git invocation.
	DefaultTimeout = 30 * time.Second
)

// Commander runs git commands inside a repository.
type Commander interface {
	// Run executes git with args and returns its stdout.
	Run(ctx context.Context, args ...string) ([]byte, error)

	// RunInput executes git with args, feeding input on stdin.
	RunInput(ctx context.Context, input []byte, args ...string) ([]byte, error)
}

// Runner is the subprocess backed Commander.
type Runner struct {
	binary  string
	dir     string
	timeout time.Duration
	env     []string
	logger  *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithBinary overrides the git executable.
func WithBinary(binary string) Option {
	return func(r *Runner) {
		if binary != "" {
			r.binary = binary
		}
	}
}

// WithTimeout overrides the per-invocation timeout. Zero keeps the default.
func WithTimeout(timeout time.Duration) Option {
	return func(r *Runner) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithEnv appends KEY=VALUE pairs to the subprocess environment.
func WithEnv(env ...string) Option {
	return func(r *Runner) {
		r.env = append(r.env, env...)
	}
}

// WithLogger sets the logger used for debug tracing of invocations.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates a Runner executing in dir.
func NewRunner(dir string, opts ...Option) *Runner {
	r := &Runner{
		binary:  DefaultBinary,
		dir:     dir,
		timeout: DefaultTimeout,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dir returns the working directory commands run in.
func (r *Runner) Dir() string {
	return r.dir
}

// Run executes git with args and returns its stdout.
func (r *Runner) Run(ctx context.Context, args ...string) ([]byte, error) {
	return r.exec(ctx, nil, args)
}

// RunInput executes git with args, feeding input on stdin.
func (r *Runner) RunInput(ctx context.Context, input []byte, args ...string) ([]byte, error) {
	return r.exec(ctx, input, args)
}

func (r *Runner) exec(ctx context.Context, input []byte, args []string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Dir = r.dir
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}
	if input != nil {
		cmd.Stdin = bytes.NewReader(input)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	r.logger.Debug("git",
		"args", strings.Join(args, " "),
		"duration", time.Since(start),
		"error", err,
	)

	if err == nil {
		return stdout.Bytes(), nil
	}

	gitErr := &Error{
		Args:     args,
		ExitCode: -1,
		Stderr:   strings.TrimSpace(stderr.String()),
		Err:      err,
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		gitErr.Err = ctxErr
		return nil, gitErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		gitErr.ExitCode = exitErr.ExitCode()
	}

	return nil, gitErr
}

// Error is a failed git invocation. It carries the exit status and the
// trimmed stderr so callers can surface the underlying message verbatim.
type Error struct {
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *Error) Error() string {
	cmd := "git " + strings.Join(e.Args, " ")
	switch {
	case errors.Is(e.Err, context.DeadlineExceeded):
		return fmt.Sprintf("%s: timed out", cmd)
	case e.ExitCode < 0:
		return fmt.Sprintf("%s: %v", cmd, e.Err)
	case e.Stderr == "":
		return fmt.Sprintf("%s: exit status %d", cmd, e.ExitCode)
	default:
		return fmt.Sprintf("%s: exit status %d: %s", cmd, e.ExitCode, e.Stderr)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ExitCode returns the git exit status carried by err, or -1.
func ExitCode(err error) int {
	var gitErr *Error
	if errors.As(err, &gitErr) {
		return gitErr.ExitCode
	}
	return -1
}

// IsNoteNotFound reports whether err is git's "no note found" condition.
func IsNoteNotFound(err error) bool {
	var gitErr *Error
	if !errors.As(err, &gitErr) {
		return false
	}
	return gitErr.ExitCode == 1 && strings.Contains(gitErr.Stderr, "no note found")
}

// IsNotFound reports whether err is a quiet lookup miss: a
// "--verify --quiet" rev-parse or show-ref that exits 1 with no output.
func IsNotFound(err error) bool {
	var gitErr *Error
	if !errors.As(err, &gitErr) {
		return false
	}
	return gitErr.ExitCode == 1
}
