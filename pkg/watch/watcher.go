// Package watch flushes the staging buffer as soon as the repository gains
// a commit, by watching the git directory for HEAD and branch updates.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/papercomputeco/tracenotes/pkg/logger"
	"github.com/papercomputeco/tracenotes/pkg/recorder"
)

// DefaultDebounce coalesces the burst of ref updates one commit produces.
const DefaultDebounce = 250 * time.Millisecond

// Flusher drains staged traces into HEAD.
type Flusher interface {
	Flush(ctx context.Context) (*recorder.Outcome, error)
}

// Watcher triggers a flush after HEAD moves.
type Watcher struct {
	gitDir   string
	flusher  Flusher
	debounce time.Duration
	onFlush  func(*recorder.Outcome)
	logger   *slog.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long to wait for ref updates to settle.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithOnFlush registers a callback invoked after each flush that moved traces.
func WithOnFlush(fn func(*recorder.Outcome)) Option {
	return func(w *Watcher) {
		w.onFlush = fn
	}
}

// WithLogger sets the watcher logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger.OrNop(l)
	}
}

// New creates a Watcher for the repository whose git directory is gitDir.
func New(gitDir string, flusher Flusher, opts ...Option) *Watcher {
	w := &Watcher{
		gitDir:   gitDir,
		flusher:  flusher,
		debounce: DefaultDebounce,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run flushes once, then watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer fsw.Close()

	for _, dir := range w.watchDirs() {
		if err := fsw.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
		w.logger.Debug("watching", "dir", dir)
	}

	w.flush(ctx)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if w.Relevant(event.Name) && event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				timer.Reset(w.debounce)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "error", err)

		case <-timer.C:
			w.flush(ctx)
		}
	}
}

// Relevant reports whether a change to path can mean HEAD moved.
func (w *Watcher) Relevant(path string) bool {
	rel, err := filepath.Rel(w.gitDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	rel = filepath.ToSlash(rel)

	if strings.HasSuffix(rel, ".lock") {
		return false
	}
	switch {
	case rel == "HEAD", rel == "logs/HEAD", rel == "packed-refs":
		return true
	case strings.HasPrefix(rel, "refs/heads/"):
		return true
	}
	return false
}

func (w *Watcher) watchDirs() []string {
	dirs := []string{w.gitDir}
	for _, sub := range []string{"logs", filepath.Join("refs", "heads")} {
		dir := filepath.Join(w.gitDir, sub)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

func (w *Watcher) flush(ctx context.Context) {
	outcome, err := w.flusher.Flush(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			w.logger.Warn("flushing staged agent traces failed", "error", err)
		}
		return
	}

	if outcome.Flushed > 0 {
		w.logger.Info("flushed staged agent traces",
			"revision", outcome.Revision,
			"count", outcome.Flushed,
		)
		if w.onFlush != nil {
			w.onFlush(outcome)
		}
	}
}
