package model

import "time"

// History represents a single archived suite run.
// It is written as history.json next to the run's archive.
type History struct {
	// Unique ID for this suite run (uuid)
	ID string `json:"id"`
	// Suite name as configured
	Suite string `json:"suite"`
	// Environment name the suite ran against
	Environment string `json:"environment,omitempty"`
	// Timestamp when the suite started
	Timestamp time.Time `json:"timestamp"`
	// Command-line arguments (including command name)
	Args []string `json:"args"`
	// Working directory where the suite was started
	WorkDir string `json:"workdir"`
	// Exit code of the suite run
	ExitCode int `json:"exit_code"`
	// Duration of the whole suite run
	Duration time.Duration `json:"duration"`
	// Git information
	Git *Git `json:"git,omitempty"`
	// Target execution environment
	Target *Target `json:"target,omitempty"`
	// Totals of the run
	Totals Totals `json:"totals"`
	// Archive file name (relative to the history dir)
	Archive string `json:"archive,omitempty"`
	// Report document name inside the archive
	Report string `json:"report,omitempty"`
}

// Git contains git repository information
type Git struct {
	// Git commit hash at time of execution
	Commit string `json:"commit,omitempty"`
	// Git branch at time of execution
	Branch string `json:"branch,omitempty"`
}

// Target contains information about the execution environment
type Target struct {
	// Operating system of the execution environment
	OS string `json:"os,omitempty"`
	// CPU architecture of the execution environment
	Arch string `json:"arch,omitempty"`
	// Go runtime version
	GoVersion string `json:"go_version,omitempty"`
	// Hostname of the machine running the suite
	Hostname string `json:"hostname,omitempty"`
}

// Totals counts test executions by outcome.
// Every attempt counts, so a test retried twice contributes three executions.
type Totals struct {
	Executions int `json:"executions"`
	Passed     int `json:"passed"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
	Artifacts  int `json:"artifacts"`
}
