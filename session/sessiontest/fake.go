// Package sessiontest provides an in-memory session.Driver for tests.
package sessiontest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/perfgo/webgrid/session"
)

var (
	ErrOpen       = errors.New("fake driver: open refused")
	ErrScreenshot = errors.New("fake driver: screenshot failed")
	ErrClose      = errors.New("fake driver: close failed")
	ErrClosed     = errors.New("fake driver: handle already closed")
)

// Handle is the fake session handle
type Handle struct {
	N int64

	mu     sync.Mutex
	closed bool
	dead   bool
}

// Kill makes the handle fail subsequent round trips.
func (h *Handle) Kill() {
	h.mu.Lock()
	h.dead = true
	h.mu.Unlock()
}

// Closed reports whether Close has been called for the handle.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Driver is a scriptable fake. The zero value opens healthy sessions.
type Driver struct {
	// OpenErr is returned from Open when set
	OpenErr error
	// Unhealthy makes every new session fail the validation round trip
	Unhealthy bool
	// ScreenshotErr is returned from Screenshot when set
	ScreenshotErr error
	// CloseErr is returned from Close (after the handle is closed) when set
	CloseErr error
	// Image is the screenshot payload, defaults to a short PNG-like header
	Image []byte

	seq         atomic.Int64
	opens       atomic.Int64
	closes      atomic.Int64
	screenshots atomic.Int64
	live        atomic.Int64
}

var _ session.Driver = (*Driver)(nil)

func (d *Driver) Open(ctx context.Context) (session.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	d.opens.Add(1)
	d.live.Add(1)
	h := &Handle{N: d.seq.Add(1)}
	if d.Unhealthy {
		h.dead = true
	}
	return h, nil
}

func (d *Driver) Close(h session.Handle) error {
	fh, err := cast(h)
	if err != nil {
		return err
	}
	fh.mu.Lock()
	if fh.closed {
		fh.mu.Unlock()
		return ErrClosed
	}
	fh.closed = true
	fh.mu.Unlock()

	d.closes.Add(1)
	d.live.Add(-1)
	return d.CloseErr
}

func (d *Driver) Screenshot(ctx context.Context, h session.Handle) ([]byte, error) {
	if !d.IsAlive(ctx, h) {
		return nil, fmt.Errorf("fake driver: session not alive")
	}
	if d.ScreenshotErr != nil {
		return nil, d.ScreenshotErr
	}
	d.screenshots.Add(1)
	if d.Image != nil {
		return d.Image, nil
	}
	return []byte("\x89PNG\r\n\x1a\nfake"), nil
}

func (d *Driver) IsAlive(ctx context.Context, h session.Handle) bool {
	fh, err := cast(h)
	if err != nil || ctx.Err() != nil {
		return false
	}
	fh.mu.Lock()
	defer fh.mu.Unlock()
	return !fh.closed && !fh.dead
}

// Opens returns how many sessions were opened.
func (d *Driver) Opens() int64 { return d.opens.Load() }

// Closes returns how many sessions were closed.
func (d *Driver) Closes() int64 { return d.closes.Load() }

// Screenshots returns how many screenshots succeeded.
func (d *Driver) Screenshots() int64 { return d.screenshots.Load() }

// Live returns the number of sessions opened and not yet closed.
func (d *Driver) Live() int64 { return d.live.Load() }

func cast(h session.Handle) (*Handle, error) {
	fh, ok := h.(*Handle)
	if !ok || fh == nil {
		return nil, fmt.Errorf("fake driver: unexpected handle %T", h)
	}
	return fh, nil
}
