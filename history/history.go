package history

// This file contains shared history utilities for recording, loading and
// selecting archived suite runs.

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/perfgo/webgrid/fileutil"
	"github.com/perfgo/webgrid/model"
	"github.com/rs/zerolog"
)

// FileName is the metadata file inside every run directory.
const FileName = "history.json"

type Entry struct {
	History  model.History
	FullPath string
}

// Root returns the history directory, failing when no run was recorded yet.
func Root(dir string) (string, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve history directory: %w", err)
	}

	if _, err := os.Stat(root); os.IsNotExist(err) {
		return "", fmt.Errorf("no suite runs found in %s", root)
	}

	return root, nil
}

// RunDirName returns the directory name for h: <timestamp>-<commit>-<id>,
// without the commit part outside a git repository.
func RunDirName(h *model.History) string {
	timestamp := h.Timestamp.Format("20060102-150405")
	shortID := ShortID(h.ID)
	if h.Git != nil && h.Git.Commit != "" {
		return fmt.Sprintf("%s-%s-%s", timestamp, ShortID(h.Git.Commit), shortID)
	}
	return fmt.Sprintf("%s-%s", timestamp, shortID)
}

// ShortID returns the first 8 characters of an ID or commit hash.
func ShortID(s string) string {
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// Record stores h below root together with copies of the archive and the
// JSON report. Empty paths are skipped. It returns the run directory.
func Record(logger zerolog.Logger, root string, h *model.History, archive, reportJSON string) (string, error) {
	runDir := filepath.Join(root, RunDirName(h))
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create run directory: %w", err)
	}

	if archive != "" {
		name := filepath.Base(archive)
		if err := fileutil.CopyFile(archive, filepath.Join(runDir, name)); err != nil {
			logger.Warn().Err(err).Str("file", archive).Msg("Failed to copy archive into history")
		} else {
			h.Archive = name
		}
	}

	if reportJSON != "" {
		name := filepath.Base(reportJSON)
		if err := fileutil.CopyFile(reportJSON, filepath.Join(runDir, name)); err != nil {
			logger.Warn().Err(err).Str("file", reportJSON).Msg("Failed to copy report into history")
		} else {
			h.Report = name
		}
	}

	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := fileutil.WriteAtomic(filepath.Join(runDir, FileName), data, 0644); err != nil {
		return "", fmt.Errorf("failed to write history: %w", err)
	}

	logger.Debug().Str("dir", runDir).Str("id", h.ID).Msg("Recorded suite run")
	return runDir, nil
}

// LoadEntries loads all history entries below root, newest first.
func LoadEntries(logger zerolog.Logger, root string) ([]Entry, error) {
	var entries []Entry

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			historyPath := filepath.Join(path, FileName)
			if _, err := os.Stat(historyPath); err == nil {
				history, err := parseHistoryJSON(historyPath)
				if err != nil {
					logger.Warn().Err(err).Str("path", historyPath).Msg("Failed to parse history.json")
					return nil
				}

				entries = append(entries, Entry{
					History:  history,
					FullPath: path,
				})
			}
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to walk history directory: %w", err)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].History.Timestamp.After(entries[j].History.Timestamp)
	})

	return entries, nil
}

// Find selects an entry from entries sorted newest first. arg is either an
// index counting back from the newest run (0, -1, -2, ...) or an ID prefix.
func Find(entries []Entry, arg string) (*Entry, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("no history entries found")
	}

	if parsed, err := strconv.ParseInt(arg, 10, 64); err == nil {
		if parsed > 0 {
			return nil, fmt.Errorf("invalid index: %s (use 0 for last, -1 for second-to-last, -2 for third-to-last, etc.)", arg)
		}
		index := int(-parsed)
		if index >= len(entries) {
			return nil, fmt.Errorf("index %s out of range (only %d history entries)", arg, len(entries))
		}
		return &entries[index], nil
	}

	prefix := strings.ToLower(arg)
	for i := range entries {
		if strings.HasPrefix(strings.ToLower(entries[i].History.ID), prefix) {
			return &entries[i], nil
		}
	}
	return nil, fmt.Errorf("no history entry found matching ID: %s", arg)
}

// parseHistoryJSON parses a history.json file.
func parseHistoryJSON(historyPath string) (model.History, error) {
	data, err := os.ReadFile(historyPath)
	if err != nil {
		return model.History{}, err
	}

	var history model.History
	if err := json.Unmarshal(data, &history); err != nil {
		return model.History{}, err
	}

	return history, nil
}

// LoadReport reads the JSON report recorded for entry.
func LoadReport(entry *Entry) (*model.Report, error) {
	if entry.History.Report == "" {
		return nil, fmt.Errorf("no report recorded for run %s", ShortID(entry.History.ID))
	}
	data, err := os.ReadFile(filepath.Join(entry.FullPath, entry.History.Report))
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var r model.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &r, nil
}
