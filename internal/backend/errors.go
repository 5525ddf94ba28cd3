package backend

import (
	"errors"
	"fmt"
)

// ErrBusy reports that the engine was still busy after all retries.
var ErrBusy = errors.New("backend busy")

// DispatchError describes a failed call to the engine.
type DispatchError struct {
	Op string
	// StatusCode is the last HTTP status received, 0 for transport errors.
	StatusCode int
	// Attempts is the number of HTTP calls made.
	Attempts int
	Err      error
}

func (e *DispatchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("backend %s: status %d after %d attempt(s): %v", e.Op, e.StatusCode, e.Attempts, e.Err)
	}
	return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
