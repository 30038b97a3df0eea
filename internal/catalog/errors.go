package catalog

import "errors"

var (
	ErrNotFound = errors.New("catalog entry not found")
)

// RowError describes a reference row rejected while building a snapshot.
type RowError struct {
	Kind string
	ID   string
	Err  error
}

func (e RowError) Error() string {
	return e.Kind + " " + e.ID + ": " + e.Err.Error()
}

func (e RowError) Unwrap() error { return e.Err }
