package report

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/perfgo/webgrid/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTree(t *testing.T) *Tree {
	t.Helper()
	return NewTree(zerolog.Nop(), "suite", t.TempDir(), "test")
}

func TestCreateNodeBindsWorker(t *testing.T) {
	tree := newTestTree(t)

	n, err := tree.CreateNode(1, NodeInfo{Name: "login", Description: "logs in", Identity: "login", Attempt: 1})
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID())
	assert.Equal(t, "login", n.Name())

	cur, err := tree.CurrentNode(1)
	require.NoError(t, err)
	assert.Same(t, n, cur)

	_, err = tree.CreateNode(1, NodeInfo{Name: "other"})
	var we *WriteError
	require.ErrorAs(t, err, &we)
	assert.ErrorIs(t, err, ErrNodeBound)
}

func TestCurrentNodeWithoutBinding(t *testing.T) {
	tree := newTestTree(t)

	_, err := tree.CurrentNode(5)
	var na *NoActiveNodeError
	require.ErrorAs(t, err, &na)
	assert.Equal(t, model.WorkerID(5), na.Worker)

	require.ErrorAs(t, tree.LogEvent(5, model.LevelInfo, "x"), &na)
	require.ErrorAs(t, tree.AttachArtifact(5, model.LevelFail, "x", model.Artifact{File: "screenshots/a.png"}), &na)
}

func TestRemoveNodeKeepsNodeInTree(t *testing.T) {
	tree := newTestTree(t)

	n, err := tree.CreateNode(1, NodeInfo{Name: "checkout"})
	require.NoError(t, err)
	require.NoError(t, tree.LogEvent(1, model.LevelPass, "done"))
	n.SetStatus(model.StatusPassed)

	tree.RemoveNode(1)
	tree.RemoveNode(1)
	assert.Equal(t, 0, tree.Bound())

	_, err = tree.CurrentNode(1)
	require.Error(t, err)

	r := tree.Flush()
	require.Len(t, r.Tests, 1)
	assert.Equal(t, "checkout", r.Tests[0].Name)
	assert.Equal(t, model.StatusPassed, r.Tests[0].Status)
	require.Len(t, r.Tests[0].Events, 1)

	// the worker can be bound again afterwards
	_, err = tree.CreateNode(1, NodeInfo{Name: "checkout"})
	require.NoError(t, err)
}

func TestLogEventStripsANSI(t *testing.T) {
	tree := newTestTree(t)
	_, err := tree.CreateNode(1, NodeInfo{Name: "colors"})
	require.NoError(t, err)

	require.NoError(t, tree.LogEvent(1, model.LevelFail, "\x1b[31mexpected\x1b[0m title"))

	n, _ := tree.CurrentNode(1)
	events := n.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "expected title", events[0].Message)
	assert.Equal(t, model.LevelFail, events[0].Level)
	assert.False(t, events[0].Time.IsZero())
}

func TestAttachArtifactPaths(t *testing.T) {
	tree := newTestTree(t)
	_, err := tree.CreateNode(1, NodeInfo{Name: "paths"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		file    string
		level   model.Level
		want    string
		wantErr bool
	}{
		{name: "relative", file: "screenshots/a.png", level: model.LevelFail, want: "screenshots/a.png"},
		{name: "absolute under root", file: filepath.Join(tree.Root(), "screenshots", "b.png"), level: model.LevelInfo, want: "screenshots/b.png"},
		{name: "unclean relative", file: "screenshots/../screenshots/c.png", level: model.LevelFail, want: "screenshots/c.png"},
		{name: "absolute outside root", file: filepath.Join(t.TempDir(), "d.png"), level: model.LevelFail, wantErr: true},
		{name: "relative escape", file: "../e.png", level: model.LevelFail, wantErr: true},
		{name: "empty", file: "", level: model.LevelFail, wantErr: true},
		{name: "wrong level", file: "screenshots/f.png", level: model.LevelPass, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, _ := tree.CurrentNode(1)
			before := len(n.Events())

			err := tree.AttachArtifact(1, tt.level, "failure", model.Artifact{Name: tt.name, File: tt.file})
			if tt.wantErr {
				var we *WriteError
				require.ErrorAs(t, err, &we)
				assert.Len(t, n.Events(), before, "no partial reference may be linked")
				return
			}
			require.NoError(t, err)
			events := n.Events()
			require.Len(t, events, before+1)
			last := events[len(events)-1]
			require.NotNil(t, last.Artifact)
			assert.Equal(t, tt.want, last.Artifact.File)
			assert.Equal(t, tt.level, last.Level)
			assert.Equal(t, "failure", last.Message)
		})
	}
}

func TestSteps(t *testing.T) {
	tree := newTestTree(t)
	_, err := tree.CreateNode(1, NodeInfo{Name: "flow"})
	require.NoError(t, err)

	require.NoError(t, tree.LogEvent(1, model.LevelInfo, "on test"))

	_, err = tree.BeginStep(1, "open page")
	require.NoError(t, err)
	require.NoError(t, tree.LogEvent(1, model.LevelInfo, "in step"))

	_, err = tree.BeginStep(1, "nested")
	require.NoError(t, err)
	require.NoError(t, tree.LogEvent(1, model.LevelInfo, "in nested"))
	require.NoError(t, tree.EndStep(1, model.StatusPassed))

	require.NoError(t, tree.EndStep(1, model.StatusPassed))
	require.Error(t, tree.EndStep(1, model.StatusPassed))

	_, err = tree.BeginStep(1, "left open")
	require.NoError(t, err)
	tree.RemoveNode(1)

	r := tree.Flush()
	require.Len(t, r.Tests, 1)
	test := r.Tests[0]
	require.Len(t, test.Events, 1)
	assert.Equal(t, "on test", test.Events[0].Message)

	require.Len(t, test.Children, 2)
	step := test.Children[0]
	assert.Equal(t, model.NodeKindStep, step.Kind)
	assert.Equal(t, model.StatusPassed, step.Status)
	require.Len(t, step.Events, 1)
	assert.Equal(t, "in step", step.Events[0].Message)
	require.Len(t, step.Children, 1)
	assert.Equal(t, "in nested", step.Children[0].Events[0].Message)

	assert.False(t, test.Children[1].End.IsZero(), "open steps are closed on detach")

	_, err = tree.BeginStep(1, "unbound")
	require.Error(t, err)
}

func TestCloseSteps(t *testing.T) {
	tree := newTestTree(t)
	_, err := tree.CreateNode(1, NodeInfo{Name: "flow"})
	require.NoError(t, err)

	_, err = tree.BeginStep(1, "outer")
	require.NoError(t, err)
	_, err = tree.BeginStep(1, "inner")
	require.NoError(t, err)

	assert.Equal(t, 2, tree.CloseSteps(1, model.StatusFailed))
	assert.Zero(t, tree.CloseSteps(1, model.StatusFailed))
	assert.Zero(t, tree.CloseSteps(7, model.StatusFailed), "unbound worker")

	require.NoError(t, tree.LogEvent(1, model.LevelFail, "after close"))
	tree.RemoveNode(1)

	test := tree.Flush().Tests[0]
	require.Len(t, test.Events, 1)
	assert.Equal(t, "after close", test.Events[0].Message)

	outer := test.Children[0]
	assert.Equal(t, model.StatusFailed, outer.Status)
	assert.False(t, outer.End.IsZero())
	assert.Empty(t, outer.Events)
	require.Len(t, outer.Children, 1)
	assert.Equal(t, model.StatusFailed, outer.Children[0].Status)
}

func TestFlushIsIdempotent(t *testing.T) {
	tree := newTestTree(t)
	for w := range 3 {
		n, err := tree.CreateNode(model.WorkerID(w), NodeInfo{Name: fmt.Sprintf("t%d", w), Attempt: 1})
		require.NoError(t, err)
		require.NoError(t, tree.LogEvent(model.WorkerID(w), model.LevelInfo, "hello"))
		n.SetStatus(model.StatusPassed)
		n.Finish(time.Now())
		tree.RemoveNode(model.WorkerID(w))
	}

	first, err := json.Marshal(tree.Flush())
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := json.Marshal(tree.Flush())
	require.NoError(t, err)

	assert.JSONEq(t, string(first), string(second))

	r := tree.Flush()
	assert.Equal(t, 3, r.Totals.Executions)
	assert.Equal(t, 3, r.Totals.Passed)
	assert.Equal(t, "test", r.Metadata.Environment)
	assert.NotEmpty(t, r.Metadata.RunID)
}

func TestFlushTotals(t *testing.T) {
	tree := newTestTree(t)
	statuses := []model.Status{model.StatusPassed, model.StatusFailed, model.StatusFailed, model.StatusSkipped}
	for i, s := range statuses {
		w := model.WorkerID(i)
		n, err := tree.CreateNode(w, NodeInfo{Name: "t"})
		require.NoError(t, err)
		if s == model.StatusFailed {
			require.NoError(t, tree.AttachArtifact(w, model.LevelFail, "boom", model.Artifact{File: fmt.Sprintf("screenshots/%d.png", i)}))
		}
		n.SetStatus(s)
		tree.RemoveNode(w)
	}

	r := tree.Flush()
	assert.Equal(t, model.Totals{Executions: 4, Passed: 1, Failed: 2, Skipped: 1, Artifacts: 2}, r.Totals)
}

// TestConcurrentStress is meant to be run with -race.
func TestConcurrentStress(t *testing.T) {
	const (
		workers = 20
		events  = 10
	)
	tree := newTestTree(t)

	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker := model.WorkerID(w)
			n, err := tree.CreateNode(worker, NodeInfo{Name: fmt.Sprintf("test-%02d", w), Attempt: 1})
			if err != nil {
				t.Error(err)
				return
			}
			for i := range events {
				if err := tree.LogEvent(worker, model.LevelInfo, fmt.Sprintf("event %d", i)); err != nil {
					t.Error(err)
				}
			}
			n.SetStatus(model.StatusPassed)
			n.Finish(time.Now())
			tree.RemoveNode(worker)
		}()
	}
	wg.Wait()

	r := tree.Flush()
	require.Len(t, r.Tests, workers)
	seen := make(map[string]bool)
	for _, n := range r.Tests {
		assert.Len(t, n.Events, events, n.Name)
		assert.False(t, seen[n.Name], "duplicate node %s", n.Name)
		seen[n.Name] = true
		for i, e := range n.Events {
			assert.Equal(t, fmt.Sprintf("event %d", i), e.Message)
		}
	}
	assert.Equal(t, 0, tree.Bound())
}
