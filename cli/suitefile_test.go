package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/perfgo/webgrid/lifecycle"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSuite = `
name: smoke
environment: staging
tests:
  - name: home
    description: Landing page renders
    url: https://example.com/
    wait_visible: "#main"
    title_contains: Example
    timeout: 45s
  - name: docs
    url: https://example.com/docs
  - name: mobile
    skip: no mobile viewport yet
`

func TestParseSuiteFile(t *testing.T) {
	sf, err := ParseSuiteFile([]byte(sampleSuite))
	require.NoError(t, err)

	assert.Equal(t, "smoke", sf.Name)
	assert.Equal(t, "staging", sf.Environment)
	require.Len(t, sf.Checks, 3)
	assert.Equal(t, Check{
		Name:          "home",
		Description:   "Landing page renders",
		URL:           "https://example.com/",
		WaitVisible:   "#main",
		TitleContains: "Example",
		Timeout:       45 * time.Second,
	}, sf.Checks[0])

	tests, err := sf.Tests(nil)
	require.NoError(t, err)
	require.Len(t, tests, 3)
	assert.Equal(t, "home", tests[0].Identity)
	assert.Equal(t, 45*time.Second, tests[0].Timeout)
	assert.NotNil(t, tests[0].Body)
}

func TestParseSuiteFileInvalid(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr string
	}{
		{name: "no tests", in: "name: x\n", wantErr: "no tests"},
		{name: "missing name", in: "tests:\n  - url: https://a\n", wantErr: "missing name"},
		{name: "missing url", in: "tests:\n  - name: a\n", wantErr: "missing url"},
		{name: "duplicate", in: "tests:\n  - {name: a, url: https://a}\n  - {name: a, url: https://b}\n", wantErr: "duplicate name"},
		{name: "bad timeout", in: "tests:\n  - {name: a, url: https://a, timeout: soon}\n", wantErr: "failed to parse"},
		{name: "not yaml", in: "tests: [", wantErr: "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSuiteFile([]byte(tt.in))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSuiteFileOnly(t *testing.T) {
	sf, err := ParseSuiteFile([]byte(sampleSuite))
	require.NoError(t, err)

	tests, err := sf.Tests([]string{"docs"})
	require.NoError(t, err)
	require.Len(t, tests, 1)
	assert.Equal(t, "docs", tests[0].Name)

	_, err = sf.Tests([]string{"nope"})
	assert.ErrorContains(t, err, `unknown test "nope"`)
}

func TestSkippedCheckNeedsNoBrowser(t *testing.T) {
	c := Check{Name: "mobile", Skip: "later"}
	err := c.Test().Body(context.Background(), nil)
	assert.True(t, errors.Is(err, lifecycle.ErrSkip))
}

func TestLoadSuiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleSuite), 0644))
	sf, err := LoadSuiteFile(path)
	require.NoError(t, err)
	assert.Len(t, sf.Checks, 3)

	_, err = LoadSuiteFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRerunArgs(t *testing.T) {
	args := rerunArgs("", "suite.yaml")(lifecycle.Test{Name: "home"})
	assert.Equal(t, []string{"webgrid", "run", "--only", "home", "suite.yaml"}, args)

	args = rerunArgs("ci.yaml", "suite.yaml")(lifecycle.Test{Name: "home"})
	assert.Equal(t, []string{"webgrid", "--config", "ci.yaml", "run", "--only", "home", "suite.yaml"}, args)
}

type failingReport struct{ calls int }

func (f *failingReport) Logf(format string, args ...any) error {
	f.calls++
	return lifecycle.ErrFinished
}

func TestNoteDoesNotFailCheck(t *testing.T) {
	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(context.Background())
	r := &failingReport{}

	note(ctx, r, "checked %s", "https://example.com/")

	assert.Equal(t, 1, r.calls)
	assert.Contains(t, buf.String(), "Failed to write report entry")
	assert.Contains(t, buf.String(), lifecycle.ErrFinished.Error())
}
