package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/perfgo/webgrid/history"
	"github.com/perfgo/webgrid/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoveFirstDashDash(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "empty slice",
			in:   []string{},
			want: []string{},
		},
		{
			name: "starts with --",
			in:   []string{"--", "-1"},
			want: []string{"-1"},
		},
		{
			name: "no --",
			in:   []string{"-1"},
			want: []string{"-1"},
		},
		{
			name: "only --",
			in:   []string{"--"},
			want: []string{},
		},
		{
			name: "-- in middle",
			in:   []string{"-1", "--", "abc"},
			want: []string{"-1", "--", "abc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := removeFirstDashDash(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("removeFirstDashDash() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseViewArgs(t *testing.T) {
	tests := []struct {
		name   string
		in     []string
		wantID string
	}{
		{
			name:   "empty args - default to 0",
			in:     []string{},
			wantID: "0",
		},
		{
			name:   "only ID - index 0",
			in:     []string{"0"},
			wantID: "0",
		},
		{
			name:   "only ID - negative index",
			in:     []string{"-1"},
			wantID: "-1",
		},
		{
			name:   "only ID - hex string",
			in:     []string{"abc123"},
			wantID: "abc123",
		},
		{
			name:   "only -- uses default 0",
			in:     []string{"--"},
			wantID: "0",
		},
		{
			name:   "-- before negative index",
			in:     []string{"--", "-2"},
			wantID: "-2",
		},
		{
			name:   "extra args are ignored",
			in:     []string{"-1", "abc"},
			wantID: "-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotID := parseViewArgs(tt.in)
			if gotID != tt.wantID {
				t.Errorf("parseViewArgs() gotID = %v, want %v", gotID, tt.wantID)
			}
		})
	}
}

func sampleReport() *model.Report {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	return &model.Report{
		Name:  "nightly",
		Start: now,
		Metadata: model.Metadata{
			RunID: "5f0c2b7e-0000-4000-8000-000000000000",
		},
		Totals: model.Totals{Executions: 2, Passed: 1, Failed: 1, Artifacts: 1},
		Tests: []model.ReportNode{
			{
				Name: "home", Attempt: 1, Worker: "worker-01", Status: model.StatusPassed,
				Events: []model.Event{{Time: now, Level: model.LevelPass, Message: "Test passed"}},
			},
			{
				Name: "login", Attempt: 1, Worker: "worker-02", Status: model.StatusFailed,
				Rerun: "webgrid run --only login suite.yaml",
				Events: []model.Event{{
					Time: now, Level: model.LevelFail, Message: "element #login not visible",
					Artifact: &model.Artifact{Type: model.ArtifactTypeScreenshot, File: "screenshots/login_attempt1.png"},
				}},
				Children: []model.ReportNode{{
					Name: "wait for #login", Status: model.StatusFailed,
					Events: []model.Event{{Time: now, Level: model.LevelFail, Message: "context deadline exceeded"}},
				}},
			},
		},
	}
}

func TestPrintFailures(t *testing.T) {
	var buf bytes.Buffer
	printFailures(&buf, sampleReport())
	out := buf.String()

	assert.Contains(t, out, "=== Failures (1) ===")
	assert.Contains(t, out, "login (attempt 1, worker-02)")
	assert.Contains(t, out, "element #login not visible")
	assert.Contains(t, out, "artifact: screenshots/login_attempt1.png")
	assert.Contains(t, out, "context deadline exceeded")
	assert.Contains(t, out, "rerun: webgrid run --only login suite.yaml")
	assert.NotContains(t, out, "home (")

	buf.Reset()
	r := sampleReport()
	r.Tests = r.Tests[:1]
	printFailures(&buf, r)
	assert.Empty(t, buf.String())
}

func TestDisplayHistoryEntry(t *testing.T) {
	dir := t.TempDir()
	r := sampleReport()
	h := &model.History{
		ID:        r.Metadata.RunID,
		Suite:     "nightly",
		Timestamp: r.Start,
		ExitCode:  1,
		Git:       &model.Git{Commit: "0123456789abcdef", Branch: "main"},
	}

	src := filepath.Join(t.TempDir(), "report.json")
	data, err := json.Marshal(r)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(src, data, 0644))

	runDir, err := history.Record(zerolog.Nop(), dir, h, "", src)
	require.NoError(t, err)

	entries, err := history.LoadEntries(zerolog.Nop(), dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, runDir, entries[0].FullPath)

	a := &App{logger: zerolog.Nop()}
	var buf bytes.Buffer
	require.NoError(t, a.displayHistoryEntry(&buf, &entries[0]))
	out := buf.String()

	assert.Contains(t, out, "=== Suite Run: 5f0c2b7e ===")
	assert.Contains(t, out, "Git Commit: 01234567 (main)")
	assert.Contains(t, out, "Exit Code: 1")
	assert.Contains(t, out, "login")
	assert.Contains(t, out, "=== Failures (1) ===")
}

func TestPrintEntries(t *testing.T) {
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	entries := []history.Entry{
		{History: model.History{ID: "bbbbbbbb-1", Suite: "nightly", Timestamp: base.Add(time.Hour), ExitCode: 1,
			Totals: model.Totals{Executions: 3, Passed: 2, Failed: 1}}, FullPath: "/h/2"},
		{History: model.History{ID: "aaaaaaaa-1", Suite: "nightly", Timestamp: base,
			Totals: model.Totals{Executions: 2, Passed: 2}}, FullPath: "/h/1"},
	}

	var buf bytes.Buffer
	printEntries(&buf, entries, "", 1)
	out := buf.String()
	assert.Contains(t, out, "=== History (2 total) ===")
	assert.Contains(t, out, "✗  2026-06-01 13:00:00")
	assert.Contains(t, out, "id=bbbbbbbb")
	assert.Contains(t, out, "3 executions, 2 passed, 1 failed, 0 skipped")
	assert.NotContains(t, out, "id=aaaaaaaa", "limit applies")

	buf.Reset()
	printEntries(&buf, nil, "smoke", 20)
	assert.Equal(t, "No suite runs found for suite: smoke\n", buf.String())
}
