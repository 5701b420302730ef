// Package lifecycle drives one test execution through setup, body, failure
// capture and teardown on a single worker.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/perfgo/webgrid/capture"
	"github.com/perfgo/webgrid/model"
	"github.com/perfgo/webgrid/report"
	"github.com/perfgo/webgrid/retry"
	"github.com/perfgo/webgrid/session"
	"github.com/rs/zerolog"
)

// captureTimeout bounds the failure capture, which runs even when the
// body's context is already done.
const captureTimeout = 30 * time.Second

// WorkerCounter tracks how many workers are inside a test execution.
type WorkerCounter interface {
	WorkerStarted()
	WorkerDone()
}

// Options tune the coordinator.
type Options struct {
	// CaptureOnSuccess also captures an artifact for passing tests
	CaptureOnSuccess bool
	// MaxDuration marks slower tests with a Warning entry; zero disables
	MaxDuration time.Duration
	// Timeout bounds a body when the test sets none; zero means unbounded
	Timeout time.Duration
	// RerunArgs returns the argv that reruns a single test. Failed nodes
	// record it shell-quoted.
	RerunArgs func(Test) []string
}

// Result describes one execution of a test.
type Result struct {
	Name     string
	Identity string
	Attempt  int
	Worker   model.WorkerID
	Status   model.Status
	// Err is the failure or skip reason
	Err      error
	NodeID   string
	Artifact *model.Artifact
	Duration time.Duration
	States   []State
}

// Outcome is the result of a test including its retries.
type Outcome struct {
	Identity string
	Status   model.Status
	Attempts []Result
}

// Coordinator runs tests against the shared registry and report tree.
type Coordinator struct {
	logger   zerolog.Logger
	sessions *session.Registry
	tree     *report.Tree
	capturer *capture.Capturer
	retry    *retry.Policy
	counter  WorkerCounter
	opts     Options

	now func() time.Time
}

// New returns a coordinator. counter may be nil.
func New(
	logger zerolog.Logger,
	sessions *session.Registry,
	tree *report.Tree,
	capturer *capture.Capturer,
	policy *retry.Policy,
	counter WorkerCounter,
	opts Options,
) *Coordinator {
	if policy == nil {
		policy = retry.NewPolicy(retry.DefaultMaxAttempts)
	}
	return &Coordinator{
		logger:   logger.With().Str("component", "lifecycle").Logger(),
		sessions: sessions,
		tree:     tree,
		capturer: capturer,
		retry:    policy,
		counter:  counter,
		opts:     opts,
		now:      time.Now,
	}
}

// Execute runs test on worker and retries failed executions while the
// policy allows it. Every attempt is a full cycle with a fresh session and
// its own report node.
func (c *Coordinator) Execute(ctx context.Context, worker model.WorkerID, test Test) Outcome {
	out := Outcome{Identity: test.identity()}
	attempt := 1
	for {
		res := c.RunOnce(ctx, worker, test, attempt)
		out.Attempts = append(out.Attempts, res)
		out.Status = res.Status

		if res.Status != model.StatusFailed || ctx.Err() != nil {
			return out
		}
		n, ok := c.retry.Next(out.Identity)
		if !ok {
			return out
		}
		c.logger.Info().
			Str("test", test.Name).
			Stringer("worker", worker).
			Int("retry", n).
			Int("max", c.retry.MaxAttempts()).
			Msg("Retrying failed test")
		attempt = n + 1
	}
}

// execution is the state of one attempt.
type execution struct {
	test    Test
	worker  model.WorkerID
	attempt int
	logger  zerolog.Logger

	state  State
	states []State

	start    time.Time
	counted  bool
	node     *report.Node
	session  *session.Session
	t        *T
	status   model.Status
	err      error
	artifact *model.Artifact
	duration time.Duration
}

func (e *execution) transition(to State) {
	if !CanTransition(e.state, to) {
		e.logger.Error().Stringer("from", e.state).Stringer("to", to).Msg("Invalid state transition")
	}
	e.state = to
	e.states = append(e.states, to)
}

func (e *execution) result() Result {
	return Result{
		Name:     e.test.Name,
		Identity: e.test.identity(),
		Attempt:  e.attempt,
		Worker:   e.worker,
		Status:   e.status,
		Err:      e.err,
		NodeID:   nodeID(e.node),
		Artifact: e.artifact,
		Duration: e.duration,
		States:   e.states,
	}
}

func nodeID(n *report.Node) string {
	if n == nil {
		return ""
	}
	return n.ID()
}

// RunOnce executes a single attempt of test on worker. Teardown runs
// exactly once whatever happens during setup or the body.
func (c *Coordinator) RunOnce(ctx context.Context, worker model.WorkerID, test Test, attempt int) (res Result) {
	e := &execution{
		test:    test,
		worker:  worker,
		attempt: attempt,
		logger: c.logger.With().
			Str("test", test.Name).
			Stringer("worker", worker).
			Int("attempt", attempt).
			Logger(),
		state: StateIdle,
	}
	defer func() {
		c.tearDown(e)
		res = e.result()
	}()

	e.transition(StateSettingUp)
	if err := c.setUp(ctx, e); err != nil {
		c.onFailure(ctx, e, err)
		return
	}

	e.transition(StateRunning)
	err := c.runBody(ctx, e)
	// a body abandoned on timeout may still hold steps open
	e.t.finish()
	if n := c.tree.CloseSteps(e.worker, statusOf(err)); n > 0 {
		e.logger.Debug().Int("steps", n).Msg("Closed interrupted steps")
	}
	switch {
	case err == nil:
		c.onPass(ctx, e)
	case errors.Is(err, ErrSkip):
		c.onSkip(e, err)
	default:
		c.onFailure(ctx, e, err)
	}
	return
}

// setUp binds the report node first so that a session failure is still
// recorded against this test.
func (c *Coordinator) setUp(ctx context.Context, e *execution) error {
	e.start = c.now()
	if c.counter != nil {
		c.counter.WorkerStarted()
		e.counted = true
	}

	node, err := c.tree.CreateNode(e.worker, report.NodeInfo{
		Name:        e.test.Name,
		Description: e.test.Description,
		Identity:    e.test.identity(),
		Attempt:     e.attempt,
	})
	if err != nil {
		return fmt.Errorf("failed to create report node: %w", err)
	}
	e.node = node

	s, err := c.sessions.Acquire(ctx, e.worker)
	if err != nil {
		return err
	}
	e.session = s
	e.logger.Debug().Str("session", s.ID).Msg("Test set up")
	return nil
}

func (c *Coordinator) runBody(ctx context.Context, e *execution) error {
	e.t = &T{worker: e.worker, attempt: e.attempt, exec: e, c: c}
	if e.test.Body == nil {
		return errors.New("test has no body")
	}

	timeout := e.test.Timeout
	if timeout <= 0 {
		timeout = c.opts.Timeout
	}
	var (
		bctx   context.Context
		cancel context.CancelFunc
	)
	base := e.logger.WithContext(WithWorker(ctx, e.worker))
	if timeout > 0 {
		bctx, cancel = context.WithTimeout(base, timeout)
	} else {
		bctx, cancel = context.WithCancel(base)
	}
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Test body panicked")
				done <- fmt.Errorf("test panicked: %v", r)
			}
		}()
		done <- e.test.Body(bctx, e.t)
	}()

	select {
	case err := <-done:
		return err
	case <-bctx.Done():
		if errors.Is(bctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("test timed out after %s", timeout)
		}
		return fmt.Errorf("test interrupted: %w", bctx.Err())
	}
}

func (c *Coordinator) onPass(ctx context.Context, e *execution) {
	e.transition(StatePassed)
	e.status = model.StatusPassed
	e.node.SetStatus(model.StatusPassed)
	c.logEvent(e, model.LevelPass, "Test passed")

	if !c.opts.CaptureOnSuccess {
		return
	}
	if artifact, ok := c.capture(ctx, e); ok {
		if err := c.tree.AttachArtifact(e.worker, model.LevelInfo, "Screenshot on success", artifact); err != nil {
			e.logger.Warn().Err(err).Msg("Failed to attach success artifact")
		}
	}
}

func (c *Coordinator) onSkip(e *execution, err error) {
	e.transition(StateSkipped)
	e.status = model.StatusSkipped
	e.err = err
	e.node.SetStatus(model.StatusSkipped)
	c.logEvent(e, model.LevelSkip, err.Error())
}

// onFailure marks the execution Failed and captures the session state.
// It runs before any teardown step so the session is still open.
func (c *Coordinator) onFailure(ctx context.Context, e *execution, cause error) {
	e.transition(StateFailed)
	e.status = model.StatusFailed
	e.err = cause
	e.logger.Warn().Err(cause).Msg("Test failed")

	if e.node == nil {
		// nothing in the tree to attach to
		return
	}
	e.node.SetStatus(model.StatusFailed)
	if c.opts.RerunArgs != nil {
		if args := c.opts.RerunArgs(e.test); len(args) > 0 {
			e.node.SetRerun(shellescape.QuoteCommand(args))
		}
	}

	message := cause.Error()
	if e.session == nil {
		c.logEvent(e, model.LevelFail, message)
		return
	}
	artifact, ok := c.capture(ctx, e)
	if !ok {
		c.logEvent(e, model.LevelFail, message)
		return
	}
	if err := c.tree.AttachArtifact(e.worker, model.LevelFail, message, artifact); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to attach failure artifact")
		c.logEvent(e, model.LevelFail, message)
		return
	}
	e.artifact = &artifact
}

// capture takes a screenshot of the execution's session. Capture errors
// are logged and never fail the test.
func (c *Coordinator) capture(ctx context.Context, e *execution) (model.Artifact, bool) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), captureTimeout)
	defer cancel()

	label := fmt.Sprintf("%s_attempt%d", e.test.Name, e.attempt)
	artifact, err := c.capturer.Capture(cctx, e.session, label)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Artifact capture failed")
		return model.Artifact{}, false
	}
	return artifact, true
}

func (c *Coordinator) logEvent(e *execution, level model.Level, message string) {
	if err := c.tree.LogEvent(e.worker, level, message); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to write report entry")
	}
}

// tearDown releases everything setUp took, in order. Each step is
// independent of the others' success.
func (c *Coordinator) tearDown(e *execution) {
	e.transition(StateTearingDown)
	if e.t != nil {
		e.t.finish()
	}

	runCleanup(e.logger, []cleanupStep{
		{name: "stop timer", fn: func() error {
			if e.start.IsZero() {
				return nil
			}
			end := c.now()
			e.duration = end.Sub(e.start)
			if e.node == nil {
				return nil
			}
			level := model.LevelInfo
			msg := fmt.Sprintf("Finished in %s", e.duration.Round(time.Millisecond))
			if c.opts.MaxDuration > 0 && e.duration > c.opts.MaxDuration {
				level = model.LevelWarning
				msg = fmt.Sprintf("Slow test: finished in %s, limit %s", e.duration.Round(time.Millisecond), c.opts.MaxDuration)
			}
			err := c.tree.LogEvent(e.worker, level, msg)
			e.node.Finish(end)
			return err
		}},
		{name: "decrement active workers", fn: func() error {
			if e.counted {
				c.counter.WorkerDone()
				e.counted = false
			}
			return nil
		}},
		{name: "release session", fn: func() error {
			// setUp only reaches Acquire once the node is bound
			if e.node != nil {
				c.sessions.Release(e.worker)
			}
			return nil
		}},
		{name: "detach report node", fn: func() error {
			if e.node != nil {
				c.tree.RemoveNode(e.worker)
			}
			return nil
		}},
	})

	e.transition(StateDone)
	e.logger.Debug().
		Str("status", string(e.status)).
		Dur("duration", e.duration).
		Msg("Test torn down")
}
