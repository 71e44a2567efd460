// Package viewer renders log records as HTML pages and opens them in the
// user's browser. All record fields, the log body included, go through
// html/template so captured output is never interpreted as markup.
package viewer

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/browser"

	"github.com/kalambet/traza/internal/storage"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

// LatestFileName is the page written by WriteLatest.
const LatestFileName = "traza_latest_log.html"

// openFile is swapped out in tests.
var openFile = browser.OpenFile

type logPage struct {
	storage.LogRecord
	Tags []string
	Back string
}

// WriteError reports a failed page write together with the attempted path.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing viewer page %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Render writes a standalone page for rec.
func Render(w io.Writer, rec storage.LogRecord) error {
	return renderLog(w, rec, "")
}

// RenderLinked writes the page for rec with a link back to the index at back.
func RenderLinked(w io.Writer, rec storage.LogRecord, back string) error {
	return renderLog(w, rec, back)
}

func renderLog(w io.Writer, rec storage.LogRecord, back string) error {
	return templates.ExecuteTemplate(w, "log.html", logPage{
		LogRecord: rec,
		Tags:      rec.TagList(),
		Back:      back,
	})
}

// RenderList writes an index page linking to every record in recs.
func RenderList(w io.Writer, recs []storage.LogRecord) error {
	return templates.ExecuteTemplate(w, "list.html", recs)
}

// WriteLatest renders rec into dir/LatestFileName, replacing any previous page.
func WriteLatest(dir string, rec storage.LogRecord) (string, error) {
	path := filepath.Join(dir, LatestFileName)

	f, err := os.Create(path)
	if err != nil {
		return "", &WriteError{Path: path, Err: err}
	}
	if err := Render(f, rec); err != nil {
		f.Close()
		return "", &WriteError{Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return "", &WriteError{Path: path, Err: err}
	}
	return path, nil
}

// Open launches the default browser on the page at path.
func Open(path string) error {
	if err := openFile(path); err != nil {
		return fmt.Errorf("opening browser: %w", err)
	}
	return nil
}
