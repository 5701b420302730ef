package cli

// This file contains the view command for displaying a suite run from history.

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/perfgo/webgrid/config"
	"github.com/perfgo/webgrid/history"
	"github.com/perfgo/webgrid/model"
	"github.com/perfgo/webgrid/report"
	"github.com/urfave/cli/v2"
)

func removeFirstDashDash(in []string) []string {
	if len(in) > 0 && in[0] == "--" {
		return in[1:]
	}
	return in
}

// parseViewArgs returns the ID or index argument, defaulting to the
// latest run.
func parseViewArgs(in []string) string {
	in = removeFirstDashDash(in)
	if len(in) == 0 {
		return "0"
	}
	return in[0]
}

func (a *App) view(ctx *cli.Context) error {
	arg := parseViewArgs(ctx.Args().Slice())

	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}

	// Get history root directory
	root, err := history.Root(cfg.String(config.KeyHistoryDir))
	if err != nil {
		return err
	}

	// Load all history entries, newest first
	historyEntries, err := history.LoadEntries(a.logger, root)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	targetEntry, err := history.Find(historyEntries, arg)
	if err != nil {
		return err
	}

	// Display the entry
	return a.displayHistoryEntry(os.Stdout, targetEntry)
}

func (a *App) displayHistoryEntry(w io.Writer, entry *history.Entry) error {
	h := entry.History

	// Print header
	fmt.Fprintf(w, "=== Suite Run: %s ===\n", history.ShortID(h.ID))
	fmt.Fprintf(w, "Suite: %s\n", h.Suite)
	fmt.Fprintf(w, "Time: %s\n", h.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Duration: %s\n", h.Duration)
	fmt.Fprintf(w, "Exit Code: %d\n", h.ExitCode)
	if h.Environment != "" {
		fmt.Fprintf(w, "Environment: %s\n", h.Environment)
	}
	if h.WorkDir != "" {
		fmt.Fprintf(w, "Working Dir: %s\n", h.WorkDir)
	}
	if h.Git != nil && h.Git.Commit != "" {
		fmt.Fprintf(w, "Git Commit: %s", history.ShortID(h.Git.Commit))
		if h.Git.Branch != "" {
			fmt.Fprintf(w, " (%s)", h.Git.Branch)
		}
		fmt.Fprintln(w)
	}
	if h.Archive != "" {
		fmt.Fprintf(w, "Archive: %s\n", filepath.Join(entry.FullPath, h.Archive))
	}
	fmt.Fprintln(w)

	r, err := history.LoadReport(entry)
	if err != nil {
		a.logger.Warn().Err(err).Msg("No report to display")
		fmt.Fprintf(w, "History directory: %s\n", entry.FullPath)
		return nil
	}

	fmt.Fprintln(w, report.TableSummary(r))
	printFailures(w, r)
	return nil
}

// printFailures lists every failed execution with its failure entries,
// linked artifacts and rerun command.
func printFailures(w io.Writer, r *model.Report) {
	var failed []model.ReportNode
	for _, n := range r.Tests {
		if n.Status == model.StatusFailed {
			failed = append(failed, n)
		}
	}
	if len(failed) == 0 {
		return
	}

	fmt.Fprintf(w, "\n=== Failures (%d) ===\n", len(failed))
	for _, n := range failed {
		fmt.Fprintf(w, "\n%s (attempt %d, %s)\n", n.Name, n.Attempt, n.Worker)
		for _, e := range failEvents(n) {
			fmt.Fprintf(w, "   %s\n", e.Message)
			if e.Artifact != nil {
				fmt.Fprintf(w, "   artifact: %s\n", e.Artifact.File)
			}
		}
		if n.Rerun != "" {
			fmt.Fprintf(w, "   rerun: %s\n", n.Rerun)
		}
	}
}

func failEvents(n model.ReportNode) []model.Event {
	var out []model.Event
	for _, e := range n.Events {
		if e.Level == model.LevelFail {
			out = append(out, e)
		}
	}
	for _, c := range n.Children {
		out = append(out, failEvents(c)...)
	}
	return out
}
