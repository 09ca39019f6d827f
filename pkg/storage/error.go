package storage

// ErrNotFound is returned when a trace doesn't exist in the store.
type ErrNotFound struct {
	ID string
}

func (e ErrNotFound) Error() string {
	if e.ID == "" {
		return "agent trace not found"
	}

	return "agent trace not found: " + e.ID
}
