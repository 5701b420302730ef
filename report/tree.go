// Package report holds the shared, append-only report tree of a suite run.
//
// The tree has three levels: the suite (the Tree itself), one test node per
// test execution, and optional step nodes below a test. Insertion of test
// nodes is serialized by the tree mutex. Each node carries its own mutex for
// events, so workers logging into their own nodes do not contend on the
// tree. A worker is bound to at most one test node at a time; the binding is
// dropped by RemoveNode while the node stays in the tree.
package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/google/uuid"
	"github.com/perfgo/webgrid/model"
	"github.com/rs/zerolog"
)

// NodeInfo describes the test a node is created for.
type NodeInfo struct {
	Name        string
	Description string
	// Identity groups retries of the same test
	Identity string
	Attempt  int
}

// Node is a reference to one test or step node.
type Node struct {
	id       string
	kind     model.NodeKind
	info     NodeInfo
	worker   model.WorkerID
	start    time.Time
	children []*Node // guarded by mu

	mu     sync.Mutex
	status model.Status
	end    time.Time
	rerun  string
	events []model.Event
}

func (n *Node) ID() string   { return n.id }
func (n *Node) Name() string { return n.info.Name }

// SetStatus records the terminal outcome of the node.
func (n *Node) SetStatus(s model.Status) {
	n.mu.Lock()
	n.status = s
	n.mu.Unlock()
}

// Status returns the recorded outcome.
func (n *Node) Status() model.Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}

// SetRerun records a shell command reproducing the test.
func (n *Node) SetRerun(cmd string) {
	n.mu.Lock()
	n.rerun = cmd
	n.mu.Unlock()
}

// Finish stamps the end time once; later calls are ignored.
func (n *Node) Finish(at time.Time) {
	n.mu.Lock()
	if n.end.IsZero() {
		n.end = at
	}
	n.mu.Unlock()
}

// Events returns a copy of the node's own events.
func (n *Node) Events() []model.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]model.Event, len(n.events))
	copy(out, n.events)
	return out
}

func (n *Node) append(e model.Event) {
	n.mu.Lock()
	n.events = append(n.events, e)
	n.mu.Unlock()
}

func (n *Node) serialize() model.ReportNode {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := model.ReportNode{
		ID:          n.id,
		Kind:        n.kind,
		Name:        n.info.Name,
		Description: n.info.Description,
		Identity:    n.info.Identity,
		Attempt:     n.info.Attempt,
		Worker:      n.worker.String(),
		Status:      n.status,
		Start:       n.start,
		End:         n.end,
		Rerun:       n.rerun,
	}
	if !n.end.IsZero() {
		out.Duration = n.end.Sub(n.start)
	}
	if len(n.events) > 0 {
		out.Events = make([]model.Event, len(n.events))
		copy(out.Events, n.events)
	}
	for _, c := range n.children {
		out.Children = append(out.Children, c.serialize())
	}
	return out
}

// binding is the per-worker view: the test node plus its open steps.
type binding struct {
	test  *Node
	steps []*Node
}

func (b *binding) target() *Node {
	if len(b.steps) > 0 {
		return b.steps[len(b.steps)-1]
	}
	return b.test
}

// Tree is the suite-wide report.
type Tree struct {
	logger zerolog.Logger
	name   string
	root   string
	meta   model.Metadata
	start  time.Time
	now    func() time.Time

	mu        sync.Mutex
	tests     []*Node
	bindings  map[model.WorkerID]*binding
	flushedAt time.Time
}

// NewTree creates an empty tree. root is the report directory that artifact
// paths are made relative to.
func NewTree(logger zerolog.Logger, name, root, environment string) *Tree {
	hostname, _ := os.Hostname()
	t := &Tree{
		logger: logger.With().Str("component", "report").Logger(),
		name:   name,
		root:   root,
		now:    time.Now,
		meta: model.Metadata{
			RunID:       uuid.NewString(),
			Environment: environment,
			OS:          runtime.GOOS,
			Arch:        runtime.GOARCH,
			GoVersion:   runtime.Version(),
			Hostname:    hostname,
		},
		bindings: make(map[model.WorkerID]*binding),
	}
	t.start = t.now()
	return t
}

// RunID returns the unique ID of this suite run.
func (t *Tree) RunID() string {
	return t.meta.RunID
}

// Root returns the report directory.
func (t *Tree) Root() string {
	return t.root
}

// CreateNode appends a test node and binds it to worker.
func (t *Tree) CreateNode(worker model.WorkerID, info NodeInfo) (*Node, error) {
	n := &Node{
		id:     uuid.NewString(),
		kind:   model.NodeKindTest,
		info:   info,
		worker: worker,
		start:  t.now(),
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.bindings[worker]; ok {
		return nil, &WriteError{Op: "create node", Worker: worker, Err: ErrNodeBound}
	}
	t.tests = append(t.tests, n)
	t.bindings[worker] = &binding{test: n}

	return n, nil
}

// CurrentNode returns the test node bound to worker.
func (t *Tree) CurrentNode(worker model.WorkerID) (*Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.bindings[worker]
	if !ok {
		return nil, &NoActiveNodeError{Worker: worker}
	}
	return b.test, nil
}

func (t *Tree) target(worker model.WorkerID) (*Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.bindings[worker]
	if !ok {
		return nil, &NoActiveNodeError{Worker: worker}
	}
	return b.target(), nil
}

// LogEvent appends a timestamped entry to the worker's innermost open node.
func (t *Tree) LogEvent(worker model.WorkerID, level model.Level, message string) error {
	n, err := t.target(worker)
	if err != nil {
		return err
	}
	n.append(model.Event{
		Time:    t.now(),
		Level:   level,
		Message: stripansi.Strip(message),
	})
	return nil
}

// AttachArtifact appends a Fail or Info entry carrying message and a
// reference to artifact. The artifact path is stored relative to the report
// root; an artifact outside the root is rejected so the archive stays
// self-contained.
func (t *Tree) AttachArtifact(worker model.WorkerID, level model.Level, message string, artifact model.Artifact) error {
	if level != model.LevelFail && level != model.LevelInfo {
		return &WriteError{Op: "attach artifact", Worker: worker, Err: fmt.Errorf("artifacts attach to fail or info entries, not %s", level)}
	}

	rel, err := t.relative(artifact.File)
	if err != nil {
		return &WriteError{Op: "attach artifact", Worker: worker, Err: err}
	}
	artifact.File = rel

	n, err := t.target(worker)
	if err != nil {
		return err
	}
	n.append(model.Event{
		Time:     t.now(),
		Level:    level,
		Message:  stripansi.Strip(message),
		Artifact: &artifact,
	})
	return nil
}

func (t *Tree) relative(file string) (string, error) {
	if file == "" {
		return "", errors.New("artifact has no file")
	}
	if !filepath.IsAbs(file) {
		clean := filepath.Clean(file)
		if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("artifact %s escapes report root", file)
		}
		return filepath.ToSlash(clean), nil
	}

	root, err := filepath.Abs(t.root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve report root: %w", err)
	}
	rel, err := filepath.Rel(root, file)
	if err != nil {
		return "", fmt.Errorf("artifact %s not under report root: %w", file, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("artifact %s not under report root %s", file, root)
	}
	return filepath.ToSlash(rel), nil
}

// BeginStep opens a step node below the worker's innermost open node.
func (t *Tree) BeginStep(worker model.WorkerID, name string) (*Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.bindings[worker]
	if !ok {
		return nil, &NoActiveNodeError{Worker: worker}
	}
	parent := b.target()
	step := &Node{
		id:     uuid.NewString(),
		kind:   model.NodeKindStep,
		info:   NodeInfo{Name: name},
		worker: worker,
		start:  t.now(),
	}

	parent.mu.Lock()
	parent.children = append(parent.children, step)
	parent.mu.Unlock()

	b.steps = append(b.steps, step)
	return step, nil
}

// EndStep closes the worker's innermost open step with status.
func (t *Tree) EndStep(worker model.WorkerID, status model.Status) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.bindings[worker]
	if !ok {
		return &NoActiveNodeError{Worker: worker}
	}
	if len(b.steps) == 0 {
		return &WriteError{Op: "end step", Worker: worker, Err: errors.New("no open step")}
	}
	step := b.steps[len(b.steps)-1]
	b.steps = b.steps[:len(b.steps)-1]

	step.SetStatus(status)
	step.Finish(t.now())
	return nil
}

// CloseSteps ends every open step of worker with status, innermost first,
// so later entries go to the test node. It returns the number of steps
// closed.
func (t *Tree) CloseSteps(worker model.WorkerID, status model.Status) int {
	t.mu.Lock()
	var steps []*Node
	if b, ok := t.bindings[worker]; ok {
		steps = b.steps
		b.steps = nil
	}
	t.mu.Unlock()

	now := t.now()
	for i := len(steps) - 1; i >= 0; i-- {
		steps[i].SetStatus(status)
		steps[i].Finish(now)
	}
	return len(steps)
}

// RemoveNode drops the worker's binding. The node stays in the tree; open
// steps are closed with their current status.
func (t *Tree) RemoveNode(worker model.WorkerID) {
	t.mu.Lock()
	b, ok := t.bindings[worker]
	delete(t.bindings, worker)
	t.mu.Unlock()

	if !ok {
		return
	}
	now := t.now()
	for i := len(b.steps) - 1; i >= 0; i-- {
		b.steps[i].Finish(now)
	}
}

// Bound returns the number of workers currently bound to a node.
func (t *Tree) Bound() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.bindings)
}

// Flush renders the whole tree. It must only be called once every worker
// has finished. The first call freezes the report timestamp, so repeated
// calls return identical reports.
func (t *Tree) Flush() *model.Report {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.flushedAt.IsZero() {
		t.flushedAt = t.now()
	}
	if len(t.bindings) > 0 {
		t.logger.Warn().Int("bound", len(t.bindings)).Msg("Flushing report while workers are still bound")
	}

	meta := t.meta
	meta.GeneratedAt = t.flushedAt

	r := &model.Report{
		Name:     t.name,
		Start:    t.start,
		Duration: t.flushedAt.Sub(t.start),
		Metadata: meta,
		Tests:    make([]model.ReportNode, 0, len(t.tests)),
	}
	for _, n := range t.tests {
		rn := n.serialize()
		r.Tests = append(r.Tests, rn)
		r.Totals.Executions++
		switch rn.Status {
		case model.StatusPassed:
			r.Totals.Passed++
		case model.StatusFailed:
			r.Totals.Failed++
		case model.StatusSkipped:
			r.Totals.Skipped++
		}
		r.Totals.Artifacts += len(rn.Artifacts())
	}
	return r
}
