package evaluation

import "errors"

var (
	ErrNotFound = errors.New("evaluation record not found")
	// ErrRefNoTaken is returned by repositories when a new record collides with an existing refNo.
	ErrRefNoTaken = errors.New("reference number already in use")
)

// ValidationError is a user-correctable input problem.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Msg == "" {
		return e.Field + " is required"
	}
	return e.Field + ": " + e.Msg
}
