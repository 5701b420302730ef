package suite

import (
	"sync/atomic"
	"time"

	"github.com/perfgo/webgrid/lifecycle"
)

// State is the process-wide bookkeeping of one suite run.
type State struct {
	Started time.Time

	active   atomic.Int64
	peak     atomic.Int64
	executed atomic.Int64
}

var _ lifecycle.WorkerCounter = (*State)(nil)

func newState(started time.Time) *State {
	return &State{Started: started}
}

// WorkerStarted increments the active-worker count.
func (s *State) WorkerStarted() {
	n := s.active.Add(1)
	s.executed.Add(1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

// WorkerDone decrements the active-worker count.
func (s *State) WorkerDone() {
	s.active.Add(-1)
}

// Active returns the number of workers inside a test execution.
func (s *State) Active() int64 { return s.active.Load() }

// Peak returns the highest Active value seen.
func (s *State) Peak() int64 { return s.peak.Load() }

// Executions returns how many test executions were started.
func (s *State) Executions() int64 { return s.executed.Load() }
