package attribution

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	godiff "github.com/sourcegraph/go-diff/diff"
)

const devNull = "/dev/null"

// FileChanges is the set of new-side line numbers a commit touched in one
// file. Removed lines are positioned at the new-side line they were removed
// before.
type FileChanges struct {
	Path    string
	Added   []int
	Removed []int
}

// Lines returns the sorted, distinct union of added and removed lines.
func (f *FileChanges) Lines() []int {
	if f == nil {
		return nil
	}

	seen := make(map[int]bool, len(f.Added)+len(f.Removed))
	lines := make([]int, 0, len(f.Added)+len(f.Removed))
	for _, set := range [][]int{f.Added, f.Removed} {
		for _, l := range set {
			if !seen[l] {
				seen[l] = true
				lines = append(lines, l)
			}
		}
	}
	sort.Ints(lines)
	return lines
}

// Empty reports whether the commit touched the file without changing any
// line, as with a pure rename, a mode change or a binary file.
func (f *FileChanges) Empty() bool {
	return f == nil || len(f.Added) == 0 && len(f.Removed) == 0
}

// Touches reports whether any changed line falls inside [start, end].
func (f *FileChanges) Touches(start, end int) bool {
	if f == nil {
		return false
	}
	for _, set := range [][]int{f.Added, f.Removed} {
		for _, l := range set {
			if l >= start && l <= end {
				return true
			}
		}
	}
	return false
}

// ParseUnifiedDiff parses a zero-context unified diff into per-file line
// changes keyed by new-side path (old path for deletions). Each hunk is
// walked from its new-side start line: an added line is recorded at the
// cursor which then advances, a removed line is recorded at the cursor
// without advancing, "\ No newline" markers are ignored and any other
// content line advances the cursor.
func ParseUnifiedDiff(data []byte) (map[string]*FileChanges, error) {
	changes := make(map[string]*FileChanges)
	if len(bytes.TrimSpace(data)) == 0 {
		return changes, nil
	}

	fileDiffs, err := godiff.ParseMultiFileDiff(data)
	if err != nil {
		return nil, fmt.Errorf("parsing unified diff: %w", err)
	}

	for _, fd := range fileDiffs {
		path := diffPath(fd)
		if path == "" {
			continue
		}

		fc, ok := changes[path]
		if !ok {
			fc = &FileChanges{Path: path}
			changes[path] = fc
		}

		for _, hunk := range fd.Hunks {
			walkHunk(fc, hunk)
		}
	}

	return changes, nil
}

func walkHunk(fc *FileChanges, hunk *godiff.Hunk) {
	cursor := int(hunk.NewStartLine)
	for _, line := range strings.Split(string(hunk.Body), "\n") {
		if line == "" {
			continue
		}
		switch line[0] {
		case '+':
			fc.Added = append(fc.Added, cursor)
			cursor++
		case '-':
			fc.Removed = append(fc.Removed, cursor)
		case '\\':
		default:
			cursor++
		}
	}
}

func diffPath(fd *godiff.FileDiff) string {
	name := fd.NewName
	if name == "" || name == devNull {
		name = fd.OrigName
	}
	if name == "" || name == devNull {
		return ""
	}
	return stripPrefix(name)
}

// stripPrefix drops git's a/ and b/ side prefixes.
func stripPrefix(name string) string {
	if strings.HasPrefix(name, "a/") || strings.HasPrefix(name, "b/") {
		return name[2:]
	}
	return name
}
