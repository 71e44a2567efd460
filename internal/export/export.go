// Package export writes a stored log record to a standalone text file.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/kalambet/traza/internal/storage"
)

// Options tunes how a record is written.
type Options struct {
	// Gzip compresses the file and appends ".gz" to its name.
	Gzip bool
}

// WriteError reports a failed export together with the path that was attempted.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing export %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// FileName returns the export file name for rec. The project is embedded as
// is, so a project containing path separators produces a nested path.
func FileName(rec storage.LogRecord, opts Options) string {
	name := fmt.Sprintf("traza_export_%s_%s.txt", rec.Project, rec.Hash)
	if opts.Gzip {
		name += ".gz"
	}
	return name
}

// Export writes rec into dir and returns the written path. An existing file at
// that path is overwritten.
func Export(rec storage.LogRecord, dir string, opts Options) (string, error) {
	path := filepath.Join(dir, FileName(rec, opts))

	f, err := os.Create(path)
	if err != nil {
		return "", &WriteError{Path: path, Err: err}
	}

	var w io.Writer = f
	var zw *gzip.Writer
	if opts.Gzip {
		zw = gzip.NewWriter(f)
		zw.Name = FileName(rec, Options{})
		w = zw
	}

	if err := WriteTo(w, rec); err != nil {
		f.Close()
		return "", &WriteError{Path: path, Err: err}
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			f.Close()
			return "", &WriteError{Path: path, Err: err}
		}
	}
	if err := f.Close(); err != nil {
		return "", &WriteError{Path: path, Err: err}
	}
	return path, nil
}

// WriteTo writes the export representation of rec: a header naming the
// project and timestamp, a blank line, then the log body verbatim.
func WriteTo(w io.Writer, rec storage.LogRecord) error {
	if _, err := fmt.Fprintf(w, "# Project: %s\n# Timestamp: %s\n\n", rec.Project, rec.Timestamp); err != nil {
		return err
	}
	_, err := io.WriteString(w, rec.Log)
	return err
}
