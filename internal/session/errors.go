package session

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy rejects a trigger while a service call is already in flight.
	ErrBusy = errors.New("a service call is already in flight")

	// ErrInvalidState rejects an operation the current state does not allow.
	ErrInvalidState = errors.New("operation not valid in current session state")

	// ErrCancelled reports that the session was torn down while a service
	// call was in flight; the late result has been discarded.
	ErrCancelled = errors.New("session cancelled")
)

// ValidationError reports an answer that does not match its question's
// answer kind. Input widgets should make this unreachable.
type ValidationError struct {
	QuestionID int
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("question %d: %s", e.QuestionID, e.Reason)
}
