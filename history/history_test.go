package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/perfgo/webgrid/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDirName(t *testing.T) {
	ts := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	tests := []struct {
		name string
		h    model.History
		want string
	}{
		{
			name: "with git",
			h:    model.History{ID: "0123456789abcdef", Timestamp: ts, Git: &model.Git{Commit: "deadbeefcafe", Branch: "main"}},
			want: "20260203-040506-deadbeef-01234567",
		},
		{
			name: "without git",
			h:    model.History{ID: "0123456789abcdef", Timestamp: ts},
			want: "20260203-040506-01234567",
		},
		{
			name: "short id",
			h:    model.History{ID: "abc", Timestamp: ts, Git: &model.Git{}},
			want: "20260203-040506-abc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RunDirName(&tt.h))
		})
	}
}

func TestRecordAndLoad(t *testing.T) {
	root := t.TempDir()
	src := t.TempDir()
	archive := filepath.Join(src, "webgrid_20260101-000000.zip")
	require.NoError(t, os.WriteFile(archive, []byte("zip"), 0644))
	reportJSON := filepath.Join(src, "report.json")
	require.NoError(t, os.WriteFile(reportJSON, []byte(`{"name":"nightly","tests":[]}`), 0644))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ids := []string{"aaaa1111", "bbbb2222", "cccc3333"}
	for i, id := range ids {
		h := &model.History{ID: id, Suite: "nightly", Timestamp: base.Add(time.Duration(i) * time.Hour)}
		_, err := Record(zerolog.Nop(), root, h, archive, reportJSON)
		require.NoError(t, err)
		assert.Equal(t, "webgrid_20260101-000000.zip", h.Archive)
		assert.Equal(t, "report.json", h.Report)
	}

	// an unreadable entry is skipped
	broken := filepath.Join(root, "broken")
	require.NoError(t, os.MkdirAll(broken, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(broken, FileName), []byte("{"), 0644))

	entries, err := LoadEntries(zerolog.Nop(), root)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "cccc3333", entries[0].History.ID, "newest first")
	assert.Equal(t, "aaaa1111", entries[2].History.ID)
	assert.FileExists(t, filepath.Join(entries[0].FullPath, entries[0].History.Archive))

	r, err := LoadReport(&entries[0])
	require.NoError(t, err)
	assert.Equal(t, "nightly", r.Name)
}

func TestRecordWithoutArtifacts(t *testing.T) {
	root := t.TempDir()
	h := &model.History{ID: "dddd4444", Timestamp: time.Now()}
	dir, err := Record(zerolog.Nop(), root, h, filepath.Join(root, "missing.zip"), "")
	require.NoError(t, err)
	assert.Empty(t, h.Archive, "a failed copy is not referenced")
	assert.FileExists(t, filepath.Join(dir, FileName))

	entries, err := LoadEntries(zerolog.Nop(), root)
	require.NoError(t, err)
	_, err = LoadReport(&entries[0])
	assert.Error(t, err)
}

func TestFind(t *testing.T) {
	entries := []Entry{
		{History: model.History{ID: "ABCDEF01"}},
		{History: model.History{ID: "12345678"}},
		{History: model.History{ID: "abc99999"}},
	}

	tests := []struct {
		name    string
		arg     string
		wantID  string
		wantErr bool
	}{
		{name: "latest", arg: "0", wantID: "ABCDEF01"},
		{name: "second to last", arg: "-1", wantID: "12345678"},
		{name: "third to last", arg: "-2", wantID: "abc99999"},
		{name: "out of range", arg: "-3", wantErr: true},
		{name: "positive index", arg: "1", wantErr: true},
		{name: "id prefix case insensitive", arg: "abcd", wantID: "ABCDEF01"},
		{name: "first matching prefix", arg: "abc", wantID: "ABCDEF01"},
		{name: "unknown id", arg: "ffff", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Find(entries, tt.arg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, e.History.ID)
		})
	}

	_, err := Find(nil, "0")
	assert.Error(t, err)
}

func TestRoot(t *testing.T) {
	dir := t.TempDir()
	root, err := Root(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, root)

	_, err = Root(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "5f0c2b7e", ShortID("5f0c2b7e-0000-4000-8000-000000000000"))
	assert.Equal(t, "abc", ShortID("abc"))
	assert.Empty(t, ShortID(""))
}
