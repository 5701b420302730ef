// Package suite owns the shared state of one suite run: directories, the
// report tree, the worker pool and the final report and archive.
package suite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/perfgo/webgrid/capture"
	"github.com/perfgo/webgrid/config"
	"github.com/perfgo/webgrid/fileutil"
	"github.com/perfgo/webgrid/history"
	"github.com/perfgo/webgrid/lifecycle"
	"github.com/perfgo/webgrid/model"
	"github.com/perfgo/webgrid/report"
	"github.com/perfgo/webgrid/retry"
	"github.com/perfgo/webgrid/session"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Options configure a suite run.
type Options struct {
	Name           string
	Environment    string
	ReportsDir     string
	ScreenshotsDir string
	// HistoryDir receives a copy of every finished run; empty disables it
	HistoryDir string
	Workers    int
	MaxRetries int
	Lifecycle  lifecycle.Options
	// Args are recorded in the run history
	Args []string
}

// OptionsFromConfig reads the suite options from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Name:           cfg.String(config.KeySuiteName),
		Environment:    cfg.String(config.KeyEnvName),
		ReportsDir:     cfg.String(config.KeyReportsDir),
		ScreenshotsDir: cfg.String(config.KeyScreenshotsDir),
		HistoryDir:     cfg.String(config.KeyHistoryDir),
		Workers:        cfg.Int(config.KeyWorkers),
		MaxRetries:     cfg.Int(config.KeyMaxAttempts),
		Lifecycle: lifecycle.Options{
			CaptureOnSuccess: cfg.Bool(config.KeyCaptureSuccess),
			MaxDuration:      cfg.Duration(config.KeyMaxDuration),
			Timeout:          cfg.Duration(config.KeyTestTimeout),
		},
	}
}

// Result is the outcome of a finished suite.
type Result struct {
	Report    *model.Report
	Artifacts []model.Artifact
	// Archive is the archive path, empty when archiving failed
	Archive    string
	ArchiveErr error
	// HistoryDir is the recorded run directory, if any
	HistoryDir string
}

// Passed reports whether no execution ended Failed.
func (r *Result) Passed() bool {
	return r.Report != nil && r.Report.Totals.Failed == 0
}

// Controller drives a suite run: Start, any number of Run calls, Finish.
type Controller struct {
	logger zerolog.Logger
	driver session.Driver
	opts   Options
	now    func() time.Time

	state    *State
	sessions *session.Registry
	tree     *report.Tree
	coord    *lifecycle.Coordinator
	sink     report.Sink

	runs sync.WaitGroup

	finishOnce sync.Once
	result     *Result
	finishErr  error
}

// New returns a controller using driver for every worker's session.
func New(logger zerolog.Logger, driver session.Driver, opts Options) *Controller {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Name == "" {
		opts.Name = "webgrid"
	}
	return &Controller{
		logger: logger.With().Str("component", "suite").Logger(),
		driver: driver,
		opts:   opts,
		now:    time.Now,
	}
}

// Start prepares the report directories and the shared suite state. It is
// safe when the directories are missing or already empty; results of a
// previous run are removed.
func (c *Controller) Start() error {
	if c.tree != nil {
		return errors.New("suite already started")
	}
	if c.opts.ReportsDir == "" {
		return errors.New("no reports directory configured")
	}
	screenshots, err := checkDirs(c.opts.ReportsDir, c.opts.ScreenshotsDir, c.opts.HistoryDir)
	if err != nil {
		return err
	}

	if err := fileutil.ResetDir(c.opts.ReportsDir); err != nil {
		return fmt.Errorf("failed to prepare reports directory: %w", err)
	}
	if err := os.MkdirAll(screenshots, 0755); err != nil {
		return fmt.Errorf("failed to prepare screenshots directory: %w", err)
	}

	sink, err := report.NewHTMLSink(c.logger, c.opts.ReportsDir)
	if err != nil {
		return fmt.Errorf("failed to initialize report sink: %w", err)
	}

	c.state = newState(c.now())
	c.sessions = session.NewRegistry(c.logger, c.driver)
	c.tree = report.NewTree(c.logger, c.opts.Name, c.opts.ReportsDir, c.opts.Environment)
	c.sink = sink
	c.coord = lifecycle.New(
		c.logger,
		c.sessions,
		c.tree,
		capture.New(c.logger, c.opts.ReportsDir, screenshots),
		retry.NewPolicy(c.opts.MaxRetries),
		c.state,
		c.opts.Lifecycle,
	)

	c.logger.Info().
		Str("suite", c.opts.Name).
		Str("run", c.tree.RunID()).
		Str("reports", c.opts.ReportsDir).
		Int("workers", c.opts.Workers).
		Int("max_retries", c.opts.MaxRetries).
		Msg("Suite started")
	return nil
}

// State returns the shared suite state, nil before Start.
func (c *Controller) State() *State { return c.state }

// Tree returns the report tree, nil before Start.
func (c *Controller) Tree() *report.Tree { return c.tree }

// Run executes tests on a fixed pool of workers and returns once every
// worker is done. Each worker runs one test at a time; outcomes are
// returned in the order of tests.
func (c *Controller) Run(ctx context.Context, tests []lifecycle.Test) ([]lifecycle.Outcome, error) {
	if c.tree == nil {
		return nil, errors.New("suite not started")
	}
	c.runs.Add(1)
	defer c.runs.Done()

	type job struct {
		index int
		test  lifecycle.Test
	}

	outcomes := make([]lifecycle.Outcome, len(tests))
	jobs := make(chan job)

	workers := min(c.opts.Workers, max(len(tests), 1))
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for i, t := range tests {
			if err := gctx.Err(); err != nil {
				return err
			}
			select {
			case jobs <- job{index: i, test: t}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for i := range workers {
		worker := model.WorkerID(i + 1)
		g.Go(func() error {
			logger := c.logger.With().Stringer("worker", worker).Logger()
			logger.Debug().Msg("Worker started")
			for j := range jobs {
				outcomes[j.index] = c.coord.Execute(gctx, worker, j.test)
			}
			logger.Debug().Msg("Worker done")
			return nil
		})
	}

	// barrier: every worker has reached Done
	if err := g.Wait(); err != nil {
		return outcomes, fmt.Errorf("suite run interrupted: %w", err)
	}
	return outcomes, nil
}

// Finish waits for running workers, flushes the report exactly once and
// archives the reports directory. Repeated calls return the first result.
// Only a failure to write the report is returned; archive and history
// errors are logged and kept in the result.
func (c *Controller) Finish() (*Result, error) {
	c.finishOnce.Do(func() {
		c.result, c.finishErr = c.finish()
	})
	return c.result, c.finishErr
}

func (c *Controller) finish() (*Result, error) {
	if c.tree == nil {
		return nil, errors.New("suite not started")
	}
	c.runs.Wait()
	c.sessions.ReleaseAll()

	r := c.tree.Flush()
	res := &Result{Report: r}

	written, err := c.sink.Write(r)
	if err != nil {
		return res, err
	}
	for _, n := range r.Tests {
		res.Artifacts = append(res.Artifacts, n.Artifacts()...)
	}
	res.Artifacts = append(res.Artifacts, written...)

	archive := filepath.Join(c.opts.ReportsDir, ArchiveName(c.state.Started))
	files, err := Archive(c.opts.ReportsDir, archive)
	if err != nil {
		res.ArchiveErr = err
		c.logger.Error().Err(err).Msg("Failed to archive reports")
	} else {
		res.Archive = archive
		c.logger.Info().Str("archive", archive).Int("files", len(files)).Msg("Archived reports")
	}

	if c.opts.HistoryDir != "" {
		dir, err := c.recordHistory(res)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to record history")
		}
		res.HistoryDir = dir
	}

	c.logger.Info().
		Int("executions", r.Totals.Executions).
		Int("passed", r.Totals.Passed).
		Int("failed", r.Totals.Failed).
		Int("skipped", r.Totals.Skipped).
		Int64("peak_workers", c.state.Peak()).
		Dur("duration", r.Duration).
		Msg("Suite finished")
	return res, nil
}

func (c *Controller) recordHistory(res *Result) (string, error) {
	r := res.Report
	h := &model.History{
		ID:          r.Metadata.RunID,
		Suite:       r.Name,
		Environment: r.Metadata.Environment,
		Timestamp:   r.Start,
		Args:        c.opts.Args,
		Duration:    r.Duration,
		Target: &model.Target{
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
			GoVersion: runtime.Version(),
			Hostname:  r.Metadata.Hostname,
		},
		Totals: r.Totals,
	}
	if !res.Passed() {
		h.ExitCode = 1
	}

	// Capture working directory
	if cwd, err := os.Getwd(); err == nil {
		h.WorkDir = cwd
	}

	// Capture git info (non-fatal if it fails)
	if git, err := history.GitInfo(); err == nil {
		h.Git = git
	} else {
		c.logger.Debug().Err(err).Msg("No git information")
	}

	return history.Record(c.logger, c.opts.HistoryDir, h, res.Archive, filepath.Join(c.opts.ReportsDir, report.JSONFile))
}
