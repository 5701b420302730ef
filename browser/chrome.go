// Package browser implements session.Driver on top of chromedp.
//
// Every session gets its own browser process so parallel workers never
// share cookies, storage or navigation state.
package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/chromedp/chromedp"
	"github.com/perfgo/webgrid/session"
	"github.com/rs/zerolog"
)

// Options configure the launched browser.
type Options struct {
	Headless bool
	// ExecPath overrides the browser binary, empty uses chromedp's lookup
	ExecPath string
	// Width and Height of the window, zero keeps chromedp's default
	Width, Height int
}

// Tab is the handle of one chromedp session.
type Tab struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

// Context returns the chromedp context of the tab.
func (t *Tab) Context() context.Context {
	return t.ctx
}

// Driver launches a chromedp browser per session.
type Driver struct {
	logger zerolog.Logger
	opts   Options
}

var _ session.Driver = (*Driver)(nil)

func NewDriver(logger zerolog.Logger, opts Options) *Driver {
	return &Driver{
		logger: logger.With().Str("component", "chromedp").Logger(),
		opts:   opts,
	}
}

func (d *Driver) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", d.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	if d.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(d.opts.ExecPath))
	}
	if d.opts.Width > 0 && d.opts.Height > 0 {
		opts = append(opts, chromedp.WindowSize(d.opts.Width, d.opts.Height))
	}
	return opts
}

// Open launches a browser and returns its first tab.
// The browser lives until Close, independent of ctx.
func (d *Driver) Open(ctx context.Context) (session.Handle, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), d.allocatorOptions()...)
	tabCtx, cancel := chromedp.NewContext(allocCtx)

	tab := &Tab{ctx: tabCtx, cancel: cancel, allocCancel: allocCancel}

	if err := ctx.Err(); err != nil {
		cancel()
		allocCancel()
		return nil, err
	}

	// The first Run allocates the browser and binds its lifetime to the
	// context it is given, so it must not carry the caller's deadline.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	d.logger.Debug().Bool("headless", d.opts.Headless).Msg("Browser started")
	return tab, nil
}

// Close shuts the browser down gracefully and releases its contexts.
func (d *Driver) Close(h session.Handle) error {
	tab, err := asTab(h)
	if err != nil {
		return err
	}
	defer tab.allocCancel()
	defer tab.cancel()

	if err := chromedp.Cancel(tab.ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

// Screenshot captures the full page as PNG.
func (d *Driver) Screenshot(ctx context.Context, h session.Handle) ([]byte, error) {
	tab, err := asTab(h)
	if err != nil {
		return nil, err
	}
	var buf []byte
	if err := d.run(ctx, tab, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

// IsAlive evaluates a constant expression in the page.
func (d *Driver) IsAlive(ctx context.Context, h session.Handle) bool {
	tab, err := asTab(h)
	if err != nil {
		return false
	}
	var two int
	if err := d.run(ctx, tab, chromedp.Evaluate(`1+1`, &two)); err != nil {
		d.logger.Debug().Err(err).Msg("Round trip failed")
		return false
	}
	return two == 2
}

func (d *Driver) run(ctx context.Context, tab *Tab, actions ...chromedp.Action) error {
	return Run(ctx, tab, actions...)
}

// Run executes chromedp actions against the session handle h, bounded by
// ctx. Test bodies use it to drive the page.
func Run(ctx context.Context, h session.Handle, actions ...chromedp.Action) error {
	tab, err := asTab(h)
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(tab.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func asTab(h session.Handle) (*Tab, error) {
	tab, ok := h.(*Tab)
	if !ok || tab == nil {
		return nil, fmt.Errorf("not a chromedp session handle: %T", h)
	}
	return tab, nil
}
