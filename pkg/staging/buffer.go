// Package staging buffers agent traces captured before the repository has a
// commit to attach them to. Traces are appended as JSON lines and drained
// into a trace store once HEAD resolves.
package staging

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/papercomputeco/tracenotes/pkg/agenttrace"
	"github.com/papercomputeco/tracenotes/pkg/environment"
	"github.com/papercomputeco/tracenotes/pkg/logger"
	"github.com/papercomputeco/tracenotes/pkg/storage"
)

// MaxRecordSize bounds a single staged record, newline included. Append
// refuses larger records and Drain skips them.
const MaxRecordSize = 10 * 1024 * 1024

// claimSuffix marks a buffer file that a drain has taken ownership of.
const claimSuffix = ".draining"

// Buffer is an append-only NDJSON file of pending agent traces.
type Buffer struct {
	path   string
	logger *slog.Logger
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithLogger sets the buffer logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Buffer) {
		b.logger = logger.OrNop(l)
	}
}

// WithPath overrides the buffer file location.
func WithPath(path string) Option {
	return func(b *Buffer) {
		if path != "" {
			b.path = path
		}
	}
}

// NewBuffer creates a Buffer at env's staging path.
func NewBuffer(env *environment.Environment, opts ...Option) *Buffer {
	b := &Buffer{
		path:   env.Staging(),
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Path returns the buffer file path.
func (b *Buffer) Path() string {
	return b.path
}

// Append writes trace as one line, creating the containing directory.
func (b *Buffer) Append(trace *agenttrace.AgentTrace) error {
	if trace == nil {
		return errors.New("cannot stage a nil agent trace")
	}

	line, err := json.Marshal(trace)
	if err != nil {
		return fmt.Errorf("encoding agent trace %s: %w", trace.ID, err)
	}
	if len(line)+1 > MaxRecordSize {
		return fmt.Errorf("agent trace %s is %d bytes, over the %d byte staging limit", trace.ID, len(line), MaxRecordSize)
	}

	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}
	if err := b.ensureIgnored(); err != nil {
		return err
	}

	f, err := os.OpenFile(b.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("opening staging buffer: %w", err)
	}

	// One write per record keeps concurrent appenders from interleaving lines.
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("appending to staging buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing staging buffer: %w", err)
	}

	b.logger.Debug("staged agent trace", "id", trace.ID, "path", b.path)
	return nil
}

// Pending counts the non-blank lines waiting in the buffer, including a
// claimed file left behind by an interrupted drain.
func (b *Buffer) Pending() (int, error) {
	total := 0
	for _, path := range []string{b.claimPath(), b.path} {
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("reading staging buffer: %w", err)
		}
		for _, line := range bytes.Split(data, []byte("\n")) {
			if len(bytes.TrimSpace(line)) > 0 {
				total++
			}
		}
	}
	return total, nil
}

// Drain moves every valid staged trace into w under revision and deletes the
// buffer. Lines that fail to parse or validate are logged and skipped. A
// missing buffer drains nothing. When the write fails the claimed file is
// kept and picked up by the next drain.
func (b *Buffer) Drain(ctx context.Context, revision string, w storage.AgentTraceWriter) ([]*agenttrace.AgentTrace, error) {
	claimed, err := b.claim()
	if err != nil {
		return nil, err
	}
	if !claimed {
		return []*agenttrace.AgentTrace{}, nil
	}

	traces, err := b.readClaimed()
	if err != nil {
		return nil, err
	}

	for _, t := range traces {
		if t.VCS == nil {
			t.VCS = &agenttrace.VCS{}
		}
		t.VCS.Type = agenttrace.VCSTypeGit
		t.VCS.Revision = revision
	}

	if len(traces) > 0 {
		if err := w.Write(ctx, revision, traces); err != nil {
			return nil, fmt.Errorf("flushing %d staged traces into %s: %w", len(traces), revision, err)
		}
	}

	if err := os.Remove(b.claimPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("removing staging buffer: %w", err)
	}

	b.logger.Info("flushed staged agent traces",
		"revision", revision,
		"count", len(traces),
	)
	return traces, nil
}

// ensureIgnored keeps the buffer out of commits by writing a .gitignore
// beside it, unless one already exists.
func (b *Buffer) ensureIgnored() error {
	ignore := filepath.Join(filepath.Dir(b.path), ".gitignore")
	if _, err := os.Stat(ignore); err == nil {
		return nil
	}

	name := filepath.Base(b.path)
	content := name + "\n" + name + claimSuffix + "\n"
	if err := os.WriteFile(ignore, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing staging .gitignore: %w", err)
	}
	return nil
}

func (b *Buffer) claimPath() string {
	return b.path + claimSuffix
}

// claim renames the live buffer onto the claim file so appends that race a
// drain start a fresh buffer. Leftover claimed content is kept in front.
func (b *Buffer) claim() (bool, error) {
	_, statErr := os.Stat(b.claimPath())
	hasClaim := statErr == nil

	live, err := os.ReadFile(b.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return hasClaim, nil
	case err != nil:
		return false, fmt.Errorf("reading staging buffer: %w", err)
	}

	if !hasClaim {
		if err := os.Rename(b.path, b.claimPath()); err != nil {
			return false, fmt.Errorf("claiming staging buffer: %w", err)
		}
		return true, nil
	}

	f, err := os.OpenFile(b.claimPath(), os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return false, fmt.Errorf("claiming staging buffer: %w", err)
	}
	if _, err := f.Write(live); err != nil {
		f.Close()
		return false, fmt.Errorf("claiming staging buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("claiming staging buffer: %w", err)
	}
	if err := os.Remove(b.path); err != nil {
		return false, fmt.Errorf("claiming staging buffer: %w", err)
	}
	return true, nil
}

func (b *Buffer) readClaimed() ([]*agenttrace.AgentTrace, error) {
	f, err := os.Open(b.claimPath())
	if err != nil {
		return nil, fmt.Errorf("opening staging buffer: %w", err)
	}
	defer f.Close()

	traces := []*agenttrace.AgentTrace{}
	r := bufio.NewReaderSize(f, 64*1024)

	for lineNum := 1; ; lineNum++ {
		record, oversized, readErr := readRecord(r)
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return nil, fmt.Errorf("reading staging buffer: %w", readErr)
		}

		line := bytes.TrimSpace(record)
		switch {
		case oversized:
			b.logger.Warn("skipping oversized staged trace", "line", lineNum, "limit", MaxRecordSize)
		case len(line) > 0:
			trace, verrs := agenttrace.Validate(line)
			if len(verrs) > 0 {
				b.logger.Warn("skipping invalid staged trace",
					"line", lineNum,
					"error", agenttrace.JoinValidationErrors(verrs),
				)
				break
			}
			traces = append(traces, trace)
		}

		if readErr != nil {
			return traces, nil
		}
	}
}

// readRecord returns the next newline-terminated record. A record longer
// than MaxRecordSize is consumed without being kept and reported as
// oversized. At the end of the file the error is io.EOF, possibly alongside
// a final unterminated record.
func readRecord(r *bufio.Reader) ([]byte, bool, error) {
	var (
		record    []byte
		oversized bool
	)
	for {
		chunk, err := r.ReadSlice('\n')
		if !oversized {
			if len(record)+len(chunk) > MaxRecordSize {
				oversized = true
				record = nil
			} else {
				record = append(record, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return record, oversized, err
	}
}
