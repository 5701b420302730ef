package model

import (
	"fmt"
	"time"
)

// WorkerID identifies the goroutine executing a test.
// It is the join key across sessions, report bindings and artifacts.
type WorkerID int

func (w WorkerID) String() string {
	return fmt.Sprintf("worker-%02d", int(w))
}

// Level of a report event
type Level string

const (
	LevelInfo    Level = "info"
	LevelPass    Level = "pass"
	LevelFail    Level = "fail"
	LevelWarning Level = "warning"
	LevelSkip    Level = "skip"
)

// Status is the terminal outcome of a test execution
type Status string

const (
	StatusUnknown Status = ""
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// NodeKind distinguishes tests from their steps
type NodeKind string

const (
	NodeKindTest NodeKind = "test"
	NodeKindStep NodeKind = "step"
)

// Event is one timestamped report entry
type Event struct {
	Time    time.Time `json:"time"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	// Artifact linked to this entry, if any
	Artifact *Artifact `json:"artifact,omitempty"`
}

// ReportNode is the serialized form of a test or step node
type ReportNode struct {
	ID          string        `json:"id"`
	Kind        NodeKind      `json:"kind"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Identity    string        `json:"identity,omitempty"`
	Attempt     int           `json:"attempt,omitempty"`
	Worker      string        `json:"worker,omitempty"`
	Status      Status        `json:"status,omitempty"`
	Start       time.Time     `json:"start"`
	End         time.Time     `json:"end,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	// Shell command reproducing this test, recorded on failure
	Rerun    string       `json:"rerun,omitempty"`
	Events   []Event      `json:"events,omitempty"`
	Children []ReportNode `json:"children,omitempty"`
}

// Artifacts returns every artifact linked into the node and its children.
func (n ReportNode) Artifacts() []Artifact {
	var out []Artifact
	for _, e := range n.Events {
		if e.Artifact != nil {
			out = append(out, *e.Artifact)
		}
	}
	for _, c := range n.Children {
		out = append(out, c.Artifacts()...)
	}
	return out
}

// Metadata describes the system a report was produced on
type Metadata struct {
	RunID       string    `json:"run_id"`
	Environment string    `json:"environment,omitempty"`
	OS          string    `json:"os"`
	Arch        string    `json:"arch"`
	GoVersion   string    `json:"go_version"`
	Hostname    string    `json:"hostname,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Report is the serialized report tree
type Report struct {
	Name     string        `json:"name"`
	Start    time.Time     `json:"start"`
	Duration time.Duration `json:"duration"`
	Metadata Metadata      `json:"metadata"`
	Totals   Totals        `json:"totals"`
	Tests    []ReportNode  `json:"tests"`
}
