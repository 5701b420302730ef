package session

import "context"

// Handle is an opaque automation session handed out by a Driver.
type Handle any

// Driver is the automation backend. The harness only ever calls these four
// operations; everything else a test body does with a Handle is between the
// body and the driver implementation.
type Driver interface {
	// Open starts a new session.
	Open(ctx context.Context) (Handle, error)
	// Close ends a session and frees its resources.
	Close(h Handle) error
	// Screenshot returns an encoded image of the session's current state.
	Screenshot(ctx context.Context, h Handle) ([]byte, error)
	// IsAlive performs a trivial round trip against the session.
	IsAlive(ctx context.Context, h Handle) bool
}
