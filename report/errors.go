package report

import (
	"errors"
	"fmt"

	"github.com/perfgo/webgrid/model"
)

// ErrNodeBound is wrapped when a worker creates a node while still bound
// to another one.
var ErrNodeBound = errors.New("worker already bound to a report node")

// NoActiveNodeError is returned when a worker has no bound node.
type NoActiveNodeError struct {
	Worker model.WorkerID
}

func (e *NoActiveNodeError) Error() string {
	return fmt.Sprintf("no active report node for %s", e.Worker)
}

// WriteError is returned when a report mutation cannot be applied.
// Callers log it and carry on.
type WriteError struct {
	Op     string
	Worker model.WorkerID
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("report %s failed for %s: %v", e.Op, e.Worker, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
