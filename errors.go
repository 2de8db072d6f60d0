package distill

import (
	"errors"
	"fmt"
)

// Sentinel errors
var (
	// ErrNotFound is returned when the source file does not exist (or is not
	// a regular file) at the time a transform is requested, and when a
	// checksum-shaped content lookup matches no cache entry.
	ErrNotFound = errors.New("not found")

	// ErrUnknownEngine is returned when an engine name is not registered.
	ErrUnknownEngine = errors.New("unknown engine")

	// ErrCacheInconsistent is returned when an engine reported success but
	// the expected output file does not exist. It is fatal for the single
	// call that observed it; the cache itself stays usable.
	ErrCacheInconsistent = errors.New("cache inconsistency")

	// ErrInvalidEncoding is returned by the text pass-through engine when the
	// source is not valid UTF-8.
	ErrInvalidEncoding = errors.New("invalid text encoding")
)

// EngineError wraps a failure inside a concrete engine: a subprocess that
// exited non-zero or timed out, a parse failure, or an I/O error while
// producing output. The zero value is not a valid error; use newEngineError.
type EngineError struct {
	Engine  string // registered engine name
	Stderr  string // captured stderr, when the engine shells out
	Timeout bool   // the engine was killed by its deadline
	Err     error  // underlying cause
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("engine %s failed", e.Engine)
	if e.Timeout {
		msg = fmt.Sprintf("engine %s timed out", e.Engine)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Stderr != "" {
		msg = fmt.Sprintf("%s (stderr: %s)", msg, e.Stderr)
	}
	return msg
}

// Unwrap returns the underlying cause for use with errors.Is and errors.As.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is worth retrying by the caller.
// Timeouts are retryable; a parse failure or a converter rejecting its input
// will fail the same way every time.
func (e *EngineError) Retryable() bool {
	return e.Timeout
}

// newEngineError creates an EngineError for the named engine.
func newEngineError(engine string, err error) *EngineError {
	return &EngineError{Engine: engine, Err: err}
}
