package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	require.NoError(t, WriteAtomic(path, []byte(`{"a":1}`), 0644))
	require.NoError(t, WriteAtomic(path, []byte(`{"a":2}`), 0644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestWriteAtomicMissingDir(t *testing.T) {
	err := WriteAtomic(filepath.Join(t.TempDir(), "nope", "out"), []byte("x"), 0644)
	require.Error(t, err)
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0600))

	require.NoError(t, CopyFile(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestDigest(t *testing.T) {
	a := Digest([]byte("a"))
	assert.Equal(t, a, Digest([]byte("a")))
	assert.NotEqual(t, a, Digest([]byte("b")))
	assert.Len(t, a, 52)
	assert.NotContains(t, a, "=")
}

func TestResetDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")

	// missing dir is created
	require.NoError(t, ResetDir(dir))
	require.DirExists(t, dir)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "screenshots"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "screenshots", "old.png"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.html"), []byte("x"), 0644))

	require.NoError(t, ResetDir(dir))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// empty dir is fine too
	require.NoError(t, ResetDir(dir))
}
