package cli

// This file contains the list command for displaying previous suite runs.

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/perfgo/webgrid/config"
	"github.com/perfgo/webgrid/history"
	"github.com/urfave/cli/v2"
)

func (a *App) list(ctx *cli.Context) error {
	filterSuite := ctx.String("suite")
	limit := ctx.Int("limit")

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

	// Apply suite filter if specified
	var filteredEntries []history.Entry
	for _, entry := range historyEntries {
		if filterSuite == "" || entry.History.Suite == filterSuite {
			filteredEntries = append(filteredEntries, entry)
		}
	}

	printEntries(os.Stdout, filteredEntries, filterSuite, limit)
	return nil
}

func printEntries(w io.Writer, entries []history.Entry, filterSuite string, limit int) {
	if len(entries) == 0 {
		if filterSuite != "" {
			fmt.Fprintf(w, "No suite runs found for suite: %s\n", filterSuite)
		} else {
			fmt.Fprintln(w, "No suite runs found")
		}
		return
	}

	// Apply limit
	displayRuns := entries
	if limit > 0 && limit < len(displayRuns) {
		displayRuns = displayRuns[:limit]
	}

	fmt.Fprintf(w, "\n=== History (%d total) ===\n\n", len(entries))

	for _, entry := range displayRuns {
		h := entry.History
		timestamp := h.Timestamp.Format("2006-01-02 15:04:05")

		// Format duration
		duration := h.Duration.Round(time.Millisecond)

		// Determine status indicator
		status := "✓"
		if h.ExitCode != 0 {
			status = "✗"
		}

		fmt.Fprintf(w, "%s  %s  [%s]  %s  id=%s\n", status, timestamp, duration, h.Suite, history.ShortID(h.ID))
		fmt.Fprintf(w, "   Tests: %d executions, %d passed, %d failed, %d skipped\n",
			h.Totals.Executions, h.Totals.Passed, h.Totals.Failed, h.Totals.Skipped)
		if h.Environment != "" {
			fmt.Fprintf(w, "   Environment: %s\n", h.Environment)
		}
		if h.Target != nil && h.Target.OS != "" && h.Target.Arch != "" {
			fmt.Fprintf(w, "   Host: %s (%s/%s)\n", h.Target.Hostname, h.Target.OS, h.Target.Arch)
		}
		if h.Git != nil && h.Git.Commit != "" {
			fmt.Fprintf(w, "   Commit: %s", history.ShortID(h.Git.Commit))
			if h.Git.Branch != "" {
				fmt.Fprintf(w, " (%s)", h.Git.Branch)
			}
			fmt.Fprintln(w)
		}
		if h.Archive != "" {
			fmt.Fprintf(w, "   Archive: %s\n", h.Archive)
		}
		fmt.Fprintf(w, "   %s\n", entry.FullPath)
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "View a run: %s view <ID>\n", AppName)
}
