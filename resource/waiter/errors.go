package waiter

import (
	"fmt"
	"time"
)

// A ValidationTimeoutError is returned when the validation did not complete
// within the retry policy.
type ValidationTimeoutError struct {
	Resource string
	Attempts uint64
	Elapsed  time.Duration
	Err      error // Last poll error, if any.
}

func (e *ValidationTimeoutError) Error() string {
	msg := fmt.Sprintf("%s: validation did not complete after %d attempts (%s)", e.Resource, e.Attempts, e.Elapsed.Round(time.Millisecond))
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the last poll error.
func (e *ValidationTimeoutError) Unwrap() error { return e.Err }

// A ValidationRejectedError is returned when the authority reported that the
// validation failed.
type ValidationRejectedError struct {
	Resource string
	FQDN     string
}

func (e *ValidationRejectedError) Error() string {
	return fmt.Sprintf("%s: validation of %s was rejected", e.Resource, e.FQDN)
}
