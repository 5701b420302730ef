package suite

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// ArchiveError reports a failed archive. It never changes the suite result.
type ArchiveError struct {
	Path string
	Err  error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("failed to archive %s: %v", e.Path, e.Err)
}

func (e *ArchiveError) Unwrap() error {
	return e.Err
}

// ArchiveName returns the archive file name for a run started at t.
func ArchiveName(t time.Time) string {
	return fmt.Sprintf("webgrid_%s.zip", t.UTC().Format("20060102-150405"))
}

// Archive writes every regular file below dir into the zip file dst and
// returns the archived paths, slash-separated and relative to dir. dst may
// live inside dir; it is never added to itself.
func Archive(dir, dst string) ([]string, error) {
	absDst, err := filepath.Abs(dst)
	if err != nil {
		return nil, &ArchiveError{Path: dst, Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(absDst), ".archive-*.tmp")
	if err != nil {
		return nil, &ArchiveError{Path: dst, Err: err}
	}
	absTmp, _ := filepath.Abs(tmp.Name())
	defer os.Remove(absTmp)

	files, err := writeZip(tmp, dir, absDst, absTmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, &ArchiveError{Path: dst, Err: err}
	}
	if err := os.Rename(absTmp, absDst); err != nil {
		return nil, &ArchiveError{Path: dst, Err: err}
	}
	return files, nil
}

func writeZip(w io.Writer, dir string, skip ...string) ([]string, error) {
	zw := zip.NewWriter(w)
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		for _, s := range skip {
			if abs == s {
				return nil
			}
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if err := addFile(zw, path, name, d); err != nil {
			return fmt.Errorf("failed to add %s: %w", name, err)
		}
		files = append(files, name)
		return nil
	})
	if err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return files, nil
}

func addFile(zw *zip.Writer, path, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	dst, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	_, err = io.Copy(dst, src)
	return err
}
