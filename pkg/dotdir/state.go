package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	stateFile = "state.json"
)

// FlushState records the most recent write of staged traces into a note.
type FlushState struct {
	// Revision is the commit the staged traces were attached to.
	Revision string `json:"revision"`

	// Count is how many traces were flushed.
	Count int `json:"count"`

	// At is when the flush completed.
	At time.Time `json:"at"`
}

// LoadFlushState loads the flush state from a target .tracenotes/state.json.
// Returns nil, nil if nothing has been flushed yet.
func (m *Manager) LoadFlushState(overrideDir string) (*FlushState, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return nil, nil
	}

	data, err := os.ReadFile(filepath.Join(dir, stateFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading flush state: %w", err)
	}

	state := &FlushState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parsing flush state: %w", err)
	}

	return state, nil
}

// SaveFlushState persists the flush state to a target .tracenotes/state.json.
func (m *Manager) SaveFlushState(state *FlushState, overrideDir string) error {
	if state == nil {
		return errors.New("cannot save nil flush state")
	}

	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}
	if dir == "" {
		return errors.New("no tracenotes directory to save flush state in")
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling flush state: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, stateFile), data, 0o600); err != nil {
		return fmt.Errorf("writing flush state: %w", err)
	}

	return nil
}
