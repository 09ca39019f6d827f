package capture

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/tracenotes/pkg/agenttrace"
	"github.com/papercomputeco/tracenotes/pkg/environment"
	"github.com/papercomputeco/tracenotes/pkg/logger"
)

// MetadataEvent records the capture event kind on each record.
const MetadataEvent = "event"

// Normalizer converts events into agent trace records stamped with the
// environment's clock and tool identity.
type Normalizer struct {
	env      *environment.Environment
	readFile func(string) ([]byte, error)
	logger   *slog.Logger
}

// NewNormalizer creates a Normalizer for env.
func NewNormalizer(env *environment.Environment, l *slog.Logger) *Normalizer {
	return &Normalizer{
		env:      env,
		readFile: os.ReadFile,
		logger:   logger.OrNop(l),
	}
}

// Normalize builds the record for ev. File edits are located in the file's
// current content, so Normalize must run after the agent applied the edit.
// Edits whose new text cannot be found are skipped with a warning.
func (n *Normalizer) Normalize(ev *Event) (*agenttrace.AgentTrace, error) {
	if ev == nil {
		return nil, fmt.Errorf("%w: nil event", ErrUnknownEvent)
	}

	tool := n.env.Tool
	trace := &agenttrace.AgentTrace{
		Version:   agenttrace.SpecVersion,
		ID:        uuid.NewString(),
		Timestamp: n.env.Clock().UTC().Format(time.RFC3339Nano),
		Tool:      &tool,
		Files:     []agenttrace.File{},
		Metadata:  map[string]any{MetadataEvent: string(ev.Kind)},
	}
	if ev.SessionID != "" {
		trace.Metadata[agenttrace.MetadataConversationID] = ev.SessionID
	}
	if ev.Session != nil && ev.Session.Reason != "" {
		trace.Metadata["reason"] = ev.Session.Reason
	}

	var (
		ranges []agenttrace.Range
		err    error
	)
	switch ev.Kind {
	case KindFileWrite:
		ranges = writeRanges(ev.FileWrite.Content)
	case KindFileEdit:
		ranges, err = n.editRanges(ev)
	default:
		return trace, nil
	}
	if err != nil {
		return nil, err
	}

	if len(ranges) > 0 {
		trace.Files = append(trace.Files, agenttrace.File{
			Path: n.relPath(ev),
			Conversations: []agenttrace.Conversation{{
				URL: ev.ConversationURL,
				Contributor: &agenttrace.Contributor{
					Type:    agenttrace.ContributorAI,
					ModelID: ev.Model,
				},
				Ranges: ranges,
			}},
		})
	}

	return trace, nil
}

func (n *Normalizer) absPath(ev *Event) string {
	path := ev.Path()
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	base := ev.Cwd
	if base == "" {
		base = n.env.Root
	}
	return filepath.Join(base, path)
}

func (n *Normalizer) relPath(ev *Event) string {
	return n.env.RelPath(n.absPath(ev))
}

func (n *Normalizer) editRanges(ev *Event) ([]agenttrace.Range, error) {
	path := n.absPath(ev)
	data, err := n.readFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading edited file %s: %w", path, err)
	}
	content := string(data)

	var ranges []agenttrace.Range
	for _, edit := range ev.FileEdit.Edits {
		if edit.NewString == "" {
			continue
		}

		idx := strings.Index(content, edit.NewString)
		if idx < 0 {
			n.logger.Warn("edited text not found in file, skipping",
				"path", path,
				"bytes", len(edit.NewString),
			)
			continue
		}

		start := strings.Count(content[:idx], "\n") + 1
		r := agenttrace.Range{
			StartLine:   start,
			EndLine:     start + lineCount(edit.NewString) - 1,
			ContentHash: ContentHash(edit.NewString),
		}
		if !containsRange(ranges, r) {
			ranges = append(ranges, r)
		}
	}
	return ranges, nil
}

func writeRanges(content string) []agenttrace.Range {
	if content == "" {
		return nil
	}
	return []agenttrace.Range{{
		StartLine:   1,
		EndLine:     lineCount(content),
		ContentHash: ContentHash(content),
	}}
}

// lineCount counts lines, treating a trailing newline as terminating the
// last line rather than starting a new one.
func lineCount(s string) int {
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return max(n, 1)
}

// ContentHash returns the "sha256:<hex>" digest stored on ranges.
func ContentHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return "sha256:" + hex.EncodeToString(sum[:])
}

func containsRange(ranges []agenttrace.Range, r agenttrace.Range) bool {
	for _, existing := range ranges {
		if existing.StartLine == r.StartLine && existing.EndLine == r.EndLine {
			return true
		}
	}
	return false
}
