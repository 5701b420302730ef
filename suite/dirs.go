package suite

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/perfgo/webgrid/config"
)

// ErrUnsafeDir is returned by Start when the configured directories would
// make it delete user files or leave artifacts outside the report.
var ErrUnsafeDir = errors.New("unsafe directory layout")

// DirError reports a rejected directory option.
type DirError struct {
	Key  string
	Path string
	Msg  string
}

func (e *DirError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Key, e.Path, e.Msg)
}

func (e *DirError) Unwrap() error { return ErrUnsafeDir }

// checkDirs validates the directory options before the reports directory
// is cleared and returns the screenshots directory to use. The reports
// directory is emptied on every start, so it must not hold the working
// directory or the history, and screenshots must live below it to be
// linked and archived.
func checkDirs(reports, screenshots, historyDir string) (string, error) {
	absReports, err := filepath.Abs(reports)
	if err != nil {
		return "", fmt.Errorf("failed to resolve reports directory: %w", err)
	}

	if cwd, err := os.Getwd(); err == nil && within(absReports, cwd) {
		return "", &DirError{Key: config.KeyReportsDir, Path: reports, Msg: "contains the working directory"}
	}

	if historyDir != "" {
		absHistory, err := filepath.Abs(historyDir)
		if err != nil {
			return "", fmt.Errorf("failed to resolve history directory: %w", err)
		}
		if within(absReports, absHistory) {
			return "", &DirError{Key: config.KeyReportsDir, Path: reports, Msg: "contains the history directory " + historyDir}
		}
	}

	if screenshots == "" {
		return filepath.Join(reports, "screenshots"), nil
	}
	absShots, err := filepath.Abs(screenshots)
	if err != nil {
		return "", fmt.Errorf("failed to resolve screenshots directory: %w", err)
	}
	if absShots == absReports || !within(absReports, absShots) {
		return "", &DirError{Key: config.KeyScreenshotsDir, Path: screenshots, Msg: "must be a subdirectory of " + reports}
	}
	return screenshots, nil
}

// within reports whether p is dir or below it.
func within(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
