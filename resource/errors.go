package resource

import "fmt"

// CancelledError is returned when an operation was aborted because its
// context was cancelled. Resources that completed before the cancellation are
// left as they are.
type CancelledError struct {
	// Resource is the name of the resource that was in progress, if any.
	Resource string
	Err      error
}

func (e *CancelledError) Error() string {
	if e.Resource == "" {
		return fmt.Sprintf("cancelled: %v", e.Err)
	}
	return fmt.Sprintf("%s: cancelled: %v", e.Resource, e.Err)
}

// Unwrap returns the underlying context error.
func (e *CancelledError) Unwrap() error { return e.Err }
