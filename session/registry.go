// Package session owns the automation sessions of all workers.
//
// A Registry binds at most one live Session to each WorkerID. Sessions are
// created in Acquire, validated with a round trip before they are handed
// out, and closed in Release. No worker can reach another worker's session
// through the registry.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/perfgo/webgrid/model"
	"github.com/rs/zerolog"
)

// Session is one exclusive automation handle owned by a single worker.
type Session struct {
	ID      string
	Worker  model.WorkerID
	Created time.Time

	handle Handle
	driver Driver
}

// Handle returns the driver handle so test bodies can drive the backend.
func (s *Session) Handle() Handle {
	return s.handle
}

// Screenshot captures the session through its driver.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	return s.driver.Screenshot(ctx, s.handle)
}

// Alive reports whether the session still answers a round trip.
func (s *Session) Alive(ctx context.Context) bool {
	return s.driver.IsAlive(ctx, s.handle)
}

// Registry maps workers to their live sessions.
type Registry struct {
	logger zerolog.Logger
	driver Driver

	mu       sync.Mutex
	sessions map[model.WorkerID]*Session
	// workers with an Open in flight; reserved so a concurrent Acquire
	// for the same worker fails instead of racing
	pending map[model.WorkerID]struct{}
}

// NewRegistry creates an empty registry backed by driver.
func NewRegistry(logger zerolog.Logger, driver Driver) *Registry {
	return &Registry{
		logger:   logger.With().Str("component", "sessions").Logger(),
		driver:   driver,
		sessions: make(map[model.WorkerID]*Session),
		pending:  make(map[model.WorkerID]struct{}),
	}
}

// Acquire opens, validates and binds a new session for worker.
// Any failure is returned as an *InitError; a session that was opened but
// failed validation is closed before returning.
func (r *Registry) Acquire(ctx context.Context, worker model.WorkerID) (*Session, error) {
	r.mu.Lock()
	if _, ok := r.sessions[worker]; ok {
		r.mu.Unlock()
		return nil, &InitError{Worker: worker, Err: ErrAlreadyBound}
	}
	if _, ok := r.pending[worker]; ok {
		r.mu.Unlock()
		return nil, &InitError{Worker: worker, Err: ErrAlreadyBound}
	}
	r.pending[worker] = struct{}{}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.pending, worker)
		r.mu.Unlock()
	}()

	h, err := r.driver.Open(ctx)
	if err != nil {
		return nil, &InitError{Worker: worker, Err: err}
	}

	if !r.driver.IsAlive(ctx, h) {
		if cerr := r.driver.Close(h); cerr != nil {
			r.logger.Warn().Err(cerr).Stringer("worker", worker).Msg("Failed to close session after failed validation")
		}
		return nil, &InitError{Worker: worker, Err: errors.New("session failed validation round trip")}
	}

	s := &Session{
		ID:      uuid.NewString(),
		Worker:  worker,
		Created: time.Now(),
		handle:  h,
		driver:  r.driver,
	}

	r.mu.Lock()
	r.sessions[worker] = s
	r.mu.Unlock()

	r.logger.Debug().Stringer("worker", worker).Str("session", s.ID).Msg("Session acquired")
	return s, nil
}

// Release closes and unbinds worker's session. It is idempotent and never
// fails: close errors are logged so they cannot mask a test outcome.
func (r *Registry) Release(worker model.WorkerID) {
	r.mu.Lock()
	s, ok := r.sessions[worker]
	delete(r.sessions, worker)
	r.mu.Unlock()

	if !ok {
		return
	}

	if err := r.driver.Close(s.handle); err != nil {
		r.logger.Warn().Err(err).Stringer("worker", worker).Str("session", s.ID).Msg("Failed to close session")
		return
	}
	r.logger.Debug().Stringer("worker", worker).Str("session", s.ID).Msg("Session released")
}

// Current returns the session bound to worker.
func (r *Registry) Current(worker model.WorkerID) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[worker]
	if !ok {
		return nil, &NotFoundError{Worker: worker}
	}
	return s, nil
}

// Active returns the number of live sessions.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// ReleaseAll closes every remaining session. It is used when a suite is
// aborted and workers could not run their own teardown.
func (r *Registry) ReleaseAll() {
	r.mu.Lock()
	workers := make([]model.WorkerID, 0, len(r.sessions))
	for w := range r.sessions {
		workers = append(workers, w)
	}
	r.mu.Unlock()

	for _, w := range workers {
		r.Release(w)
	}
}
