package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert violates the content hash uniqueness constraint
	ErrDuplicate = errors.New("duplicate content hash")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("storage closed")
)

// RetryExhaustedError reports a unit of work that kept failing with
// transient errors until the attempt ceiling was reached.
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d retries: %v", e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Last
}

// IsRetryExhausted reports whether err came from an exhausted retry loop
func IsRetryExhausted(err error) bool {
	var re *RetryExhaustedError
	return errors.As(err, &re)
}
