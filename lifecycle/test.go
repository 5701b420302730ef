package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/perfgo/webgrid/model"
	"github.com/perfgo/webgrid/session"
)

// ErrSkip marks a test body that skipped itself.
var ErrSkip = errors.New("test skipped")

// ErrFinished is returned by T methods called after the execution ended,
// e.g. from a body that kept running past its timeout.
var ErrFinished = errors.New("test execution already finished")

type skipError struct {
	reason string
}

func (e *skipError) Error() string { return "skipped: " + e.reason }
func (e *skipError) Unwrap() error { return ErrSkip }

// Skip returns an error that ends the body as Skipped.
func Skip(reason string) error {
	return &skipError{reason: reason}
}

// Body is the external test code. A nil return passes, an error wrapping
// ErrSkip skips, anything else fails.
type Body func(ctx context.Context, t *T) error

// Test is the descriptor the runner hands to the coordinator.
type Test struct {
	Name        string
	Description string
	// Identity groups retries; defaults to Name
	Identity string
	// Timeout bounds one execution of Body; zero uses the coordinator default
	Timeout time.Duration
	Body    Body
}

func (t Test) identity() string {
	if t.Identity != "" {
		return t.Identity
	}
	return t.Name
}

// T is the test body's view of its execution.
type T struct {
	worker  model.WorkerID
	attempt int
	exec    *execution
	c       *Coordinator

	mu       sync.Mutex
	finished bool
}

// Worker returns the executing worker.
func (t *T) Worker() model.WorkerID { return t.worker }

// Attempt returns the 1-based attempt number.
func (t *T) Attempt() int { return t.attempt }

// Session returns the worker's automation session.
func (t *T) Session() *session.Session { return t.exec.session }

// Log appends an Info entry to the test's report node.
func (t *T) Log(msg string) error {
	return t.log(model.LevelInfo, msg)
}

// Logf is Log with formatting.
func (t *T) Logf(format string, args ...any) error {
	return t.log(model.LevelInfo, fmt.Sprintf(format, args...))
}

// Warn appends a Warning entry.
func (t *T) Warn(msg string) error {
	return t.log(model.LevelWarning, msg)
}

func (t *T) log(level model.Level, msg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return ErrFinished
	}
	return t.c.tree.LogEvent(t.worker, level, msg)
}

// Step runs fn as a named step node. The step is Failed when fn returns an
// error, which is passed through.
func (t *T) Step(name string, fn func() error) error {
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return ErrFinished
	}
	_, err := t.c.tree.BeginStep(t.worker, name)
	t.mu.Unlock()
	if err != nil {
		return err
	}

	fnErr := fn()
	status := statusOf(fnErr)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return fnErr
	}
	if fnErr != nil {
		_ = t.c.tree.LogEvent(t.worker, model.LevelFail, fnErr.Error())
	}
	if err := t.c.tree.EndStep(t.worker, status); err != nil {
		t.c.logger.Warn().Err(err).Stringer("worker", t.worker).Str("step", name).Msg("Failed to end step")
	}
	return fnErr
}

func statusOf(err error) model.Status {
	switch {
	case err == nil:
		return model.StatusPassed
	case errors.Is(err, ErrSkip):
		return model.StatusSkipped
	default:
		return model.StatusFailed
	}
}

// Checkpoint captures an artifact on demand and links it as an Info entry.
func (t *T) Checkpoint(ctx context.Context, label string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return ErrFinished
	}
	artifact, err := t.c.capturer.Capture(ctx, t.exec.session, label)
	if err != nil {
		return err
	}
	return t.c.tree.AttachArtifact(t.worker, model.LevelInfo, "checkpoint: "+label, artifact)
}

// finish blocks further report writes from the body.
func (t *T) finish() {
	t.mu.Lock()
	t.finished = true
	t.mu.Unlock()
}

type workerKey struct{}

// WithWorker stores the worker identity in ctx.
func WithWorker(ctx context.Context, w model.WorkerID) context.Context {
	return context.WithValue(ctx, workerKey{}, w)
}

// WorkerFrom returns the worker stored by WithWorker.
func WorkerFrom(ctx context.Context) (model.WorkerID, bool) {
	w, ok := ctx.Value(workerKey{}).(model.WorkerID)
	return w, ok
}
