package session

import (
	"errors"
	"fmt"

	"github.com/perfgo/webgrid/model"
)

// ErrAlreadyBound marks an Acquire for a worker that still holds a live
// session. It is always wrapped in an InitError.
var ErrAlreadyBound = errors.New("worker already holds a live session")

// InitError is returned when a session cannot be started or fails validation.
type InitError struct {
	Worker model.WorkerID
	Err    error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("session init failed for %s: %v", e.Worker, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// NotFoundError is returned when a worker has no bound session.
type NotFoundError struct {
	Worker model.WorkerID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no session bound to %s", e.Worker)
}
