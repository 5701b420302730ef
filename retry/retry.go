// Package retry decides whether a failed test execution is run again.
package retry

import "sync"

// DefaultMaxAttempts is used when a policy is created with a negative bound.
const DefaultMaxAttempts = 1

// Policy bounds retries per test identity. Counters are scoped to one
// suite run: a fresh Policy is created for every run, and parallel
// executions of the same identity share one counter.
type Policy struct {
	max int

	mu       sync.Mutex
	attempts map[string]int
}

// NewPolicy returns a policy allowing maxAttempts retries after the first
// execution. Zero disables retries.
func NewPolicy(maxAttempts int) *Policy {
	if maxAttempts < 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Policy{
		max:      maxAttempts,
		attempts: make(map[string]int),
	}
}

// MaxAttempts returns the configured retry bound.
func (p *Policy) MaxAttempts() int {
	return p.max
}

// ShouldRetry reports whether another execution is allowed after
// attemptsSoFar retries of identity have been made.
func (p *Policy) ShouldRetry(identity string, attemptsSoFar int) bool {
	return attemptsSoFar < p.max
}

// Next consumes one retry for identity if the bound allows it. It returns
// the number of retries made so far (including this one) and whether the
// retry was granted.
func (p *Policy) Next(identity string) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.attempts[identity]
	if !p.ShouldRetry(identity, n) {
		return n, false
	}
	n++
	p.attempts[identity] = n
	return n, true
}

// Attempts returns the retries consumed by identity.
func (p *Policy) Attempts(identity string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts[identity]
}
