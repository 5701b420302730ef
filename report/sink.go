package report

// This file contains the report sink that persists a flushed report as a
// self-contained HTML document plus its JSON form.

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"path/filepath"
	"time"

	"github.com/perfgo/webgrid/fileutil"
	"github.com/perfgo/webgrid/model"
	"github.com/rs/zerolog"
)

const (
	JSONFile = "report.json"
	HTMLFile = "report.html"
)

// Sink persists a flushed report.
type Sink interface {
	Write(r *model.Report) ([]model.Artifact, error)
}

// HTMLSink writes report.html and report.json into a directory.
type HTMLSink struct {
	logger zerolog.Logger
	dir    string
	tmpl   *template.Template
}

var _ Sink = (*HTMLSink)(nil)

// NewHTMLSink parses the report template. dir is usually the report root.
func NewHTMLSink(logger zerolog.Logger, dir string) (*HTMLSink, error) {
	tmpl, err := template.New("report").Funcs(templateFuncs()).Parse(htmlTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse report template: %w", err)
	}
	return &HTMLSink{
		logger: logger.With().Str("component", "report-sink").Logger(),
		dir:    dir,
		tmpl:   tmpl,
	}, nil
}

// Write renders r. Both files are written atomically.
func (s *HTMLSink) Write(r *model.Report) ([]model.Artifact, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := fileutil.WriteAtomic(filepath.Join(s.dir, JSONFile), data, 0644); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, r); err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}
	if err := fileutil.WriteAtomic(filepath.Join(s.dir, HTMLFile), buf.Bytes(), 0644); err != nil {
		return nil, err
	}

	s.logger.Debug().Str("dir", s.dir).Int("tests", len(r.Tests)).Msg("Report written")

	now := r.Metadata.GeneratedAt
	return []model.Artifact{
		{Type: model.ArtifactTypeReportJSON, Name: "report", Size: uint64(len(data)), File: JSONFile, Digest: fileutil.Digest(data), Created: now},
		{Type: model.ArtifactTypeReportHTML, Name: "report", Size: uint64(buf.Len()), File: HTMLFile, Digest: fileutil.Digest(buf.Bytes()), Created: now},
	}, nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDuration": formatDuration,
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return "-"
			}
			return t.Format("15:04:05.000")
		},
		"statusClass": func(s model.Status) string {
			if s == model.StatusUnknown {
				return "unknown"
			}
			return string(s)
		},
		"isImage": func(a *model.Artifact) bool {
			return a != nil && a.Type == model.ArtifactTypeScreenshot
		},
		"passRate": func(t model.Totals) string {
			if t.Executions == 0 {
				return "0.0%"
			}
			return fmt.Sprintf("%.1f%%", float64(t.Passed)*100/float64(t.Executions))
		},
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Truncate(time.Millisecond).String()
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Name}} report</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table.meta td { padding: 0 1em 0 0; }
.test { border: 1px solid #ccc; margin: 1em 0; padding: 0.5em 1em; }
.step { margin-left: 2em; border-left: 3px solid #ddd; padding-left: 1em; }
.passed { color: #1a7f37; } .failed { color: #cf222e; } .skipped { color: #9a6700; } .unknown { color: #57606a; }
.event-fail { color: #cf222e; } .event-warning { color: #9a6700; } .event-pass { color: #1a7f37; }
img.artifact { max-width: 640px; display: block; margin: 0.5em 0; border: 1px solid #ccc; }
code { background: #f6f8fa; padding: 0 0.3em; }
</style>
</head>
<body>
<h1>{{.Name}}</h1>
<table class="meta">
<tr><td>Run</td><td>{{.Metadata.RunID}}</td></tr>
<tr><td>Environment</td><td>{{.Metadata.Environment}}</td></tr>
<tr><td>Platform</td><td>{{.Metadata.OS}}/{{.Metadata.Arch}} ({{.Metadata.GoVersion}})</td></tr>
<tr><td>Host</td><td>{{.Metadata.Hostname}}</td></tr>
<tr><td>Generated</td><td>{{.Metadata.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}</td></tr>
<tr><td>Duration</td><td>{{formatDuration .Duration}}</td></tr>
<tr><td>Executions</td><td>{{.Totals.Executions}} ({{.Totals.Passed}} passed, {{.Totals.Failed}} failed, {{.Totals.Skipped}} skipped, {{passRate .Totals}})</td></tr>
</table>
{{range .Tests}}{{template "node" .}}{{end}}
</body>
</html>
{{define "node"}}
<div class="{{if eq .Kind "step"}}step{{else}}test{{end}}" id="{{.ID}}">
<h3 class="{{statusClass .Status}}">{{.Name}}{{if gt .Attempt 1}} (attempt {{.Attempt}}){{end}} [{{statusClass .Status}}]</h3>
{{if .Description}}<p>{{.Description}}</p>{{end}}
<p>{{.Worker}} &middot; {{formatTime .Start}} &middot; {{formatDuration .Duration}}</p>
{{if .Rerun}}<p>Rerun: <code>{{.Rerun}}</code></p>{{end}}
<ul>
{{range .Events}}<li class="event-{{.Level}}">{{formatTime .Time}} [{{.Level}}] {{.Message}}
{{if .Artifact}}{{if isImage .Artifact}}<a href="{{.Artifact.File}}"><img class="artifact" src="{{.Artifact.File}}" alt="{{.Artifact.Name}}"></a>{{else}}<a href="{{.Artifact.File}}">{{.Artifact.Name}}</a>{{end}}{{end}}
</li>
{{end}}
</ul>
{{range .Children}}{{template "node" .}}{{end}}
</div>
{{end}}
`
