// Package sqlitepath locates the SQLite mirror of a repository's trace notes.
package sqlitepath

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultName is the mirror file created under the state directory.
const DefaultName = "traces.db"

// ResolveSQLitePath returns override when set, else the first existing
// candidate under stateDir, else stateDir/traces.db.
func ResolveSQLitePath(override, stateDir string) string {
	if strings.TrimSpace(override) != "" {
		return override
	}

	for _, candidate := range sqliteCandidates(stateDir) {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return filepath.Join(stateDir, DefaultName)
}

func sqliteCandidates(stateDir string) []string {
	candidates := []string{
		filepath.Join(stateDir, DefaultName),
		filepath.Join(stateDir, "traces.sqlite"),
	}

	if xdgHome := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdgHome != "" {
		candidates = append(candidates, filepath.Join(xdgHome, "tracenotes", DefaultName))
	}

	return candidates
}
