// Package capture turns a live session into an immutable screenshot
// artifact under the shared artifacts directory.
package capture

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/perfgo/webgrid/fileutil"
	"github.com/perfgo/webgrid/model"
	"github.com/perfgo/webgrid/session"
	"github.com/rs/zerolog"
)

const maxLabelLen = 64

// Error is returned when a capture cannot produce an artifact.
type Error struct {
	Label string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("capture %q failed: %v", e.Label, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Capturer writes screenshots into dir. Filenames combine the sanitized
// label, a nanosecond timestamp and a process-wide sequence number, so two
// captures never share a path even within the same clock tick.
type Capturer struct {
	logger zerolog.Logger
	dir    string
	root   string
	seq    atomic.Uint64
	now    func() time.Time
}

// New creates a Capturer writing into dir. root is the report root that
// artifact paths are made relative to; dir must be inside it.
func New(logger zerolog.Logger, root, dir string) *Capturer {
	return &Capturer{
		logger: logger.With().Str("component", "capture").Logger(),
		dir:    dir,
		root:   root,
		now:    time.Now,
	}
}

// Capture screenshots s and persists it. A nil session is a caller bug and
// is reported as an Error like any other unusable session.
func (c *Capturer) Capture(ctx context.Context, s *session.Session, label string) (model.Artifact, error) {
	if s == nil {
		return model.Artifact{}, &Error{Label: label, Err: fmt.Errorf("no session")}
	}
	if !s.Alive(ctx) {
		return model.Artifact{}, &Error{Label: label, Err: fmt.Errorf("session %s is not alive", s.ID)}
	}

	data, err := s.Screenshot(ctx)
	if err != nil {
		return model.Artifact{}, &Error{Label: label, Err: err}
	}
	if len(data) == 0 {
		return model.Artifact{}, &Error{Label: label, Err: fmt.Errorf("empty screenshot")}
	}

	created := c.now()
	name := c.filename(label, created)
	path := filepath.Join(c.dir, name)

	if err := fileutil.WriteAtomic(path, data, 0644); err != nil {
		return model.Artifact{}, &Error{Label: label, Err: err}
	}

	rel, err := filepath.Rel(c.root, path)
	if err != nil {
		rel = path
	}

	artifact := model.Artifact{
		Type:    model.ArtifactTypeScreenshot,
		Name:    label,
		Size:    uint64(len(data)),
		File:    filepath.ToSlash(rel),
		Digest:  fileutil.Digest(data),
		Created: created,
	}

	c.logger.Debug().
		Stringer("worker", s.Worker).
		Str("file", artifact.File).
		Uint64("size", artifact.Size).
		Msg("Captured screenshot")
	return artifact, nil
}

func (c *Capturer) filename(label string, at time.Time) string {
	return fmt.Sprintf("%s_%s_%06d.png",
		Sanitize(label),
		at.UTC().Format("20060102T150405.000000000"),
		c.seq.Add(1))
}

// Sanitize maps label onto a safe file name fragment.
func Sanitize(label string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.TrimSpace(label) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '-', r == '.':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
		if b.Len() >= maxLabelLen {
			break
		}
	}
	out := strings.Trim(b.String(), "_.")
	if out == "" {
		return "capture"
	}
	return out
}
