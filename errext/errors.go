// Package errext contains the error kinds a benchmark run can fail with.
package errext

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout is matched by every error caused by a blocking browser call
	// that did not complete in time.
	ErrTimeout = errors.New("timed out")

	// ErrMalformedResults is returned when a page produces results that can't
	// be parsed.
	ErrMalformedResults = errors.New("malformed results")
)

// TimeoutError is returned when waiting on a JavaScript expression or a
// navigation exceeds its timeout.
type TimeoutError struct {
	Op         string
	Expression string
	Timeout    time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Expression == "" {
		return fmt.Sprintf("%s: timed out after %s", e.Op, e.Timeout)
	}
	return fmt.Sprintf("%s: timed out after %s waiting for %q", e.Op, e.Timeout, e.Expression)
}

// Is reports whether target is ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout //nolint:errorlint,goerr113
}
