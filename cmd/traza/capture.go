package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kalambet/traza/internal/export"
	"github.com/kalambet/traza/internal/fingerprint"
	"github.com/kalambet/traza/internal/storage"
	"github.com/kalambet/traza/internal/viewer"
)

// normalizeTags trims whitespace and drops empty tags.
func normalizeTags(tags []string) []string {
	var out []string
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (a *app) capture(cmd *cobra.Command, project string, tags []string, tee bool) error {
	in := cmd.InOrStdin()
	if isTerminal(in) {
		printStep("Reading log from the terminal; finish with Ctrl-D")
	}
	if tee {
		in = io.TeeReader(in, cmd.OutOrStdout())
	}

	body, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.Insert(project, tags, string(body))
	if err != nil {
		return err
	}
	slog.Debug("log stored", "id", rec.ID, "hash", rec.Hash, "bytes", len(body))

	printSuccess("Log saved for project '%s' with tags [%s] and hash [%s]", rec.Project, rec.Tags, rec.Hash)
	return nil
}

func (a *app) list(cmd *cobra.Command, limit int) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	recs, err := store.ListRecent(limit)
	if err != nil {
		return err
	}
	return writeTable(cmd.OutOrStdout(), recs)
}

func writeTable(w io.Writer, recs []storage.LogRecord) error {
	if _, err := fmt.Fprintf(w, "%-5s %-8s %-20s %-20s %-30s\n", "ID", "Hash", "Project", "Timestamp", "Tags"); err != nil {
		return err
	}
	fmt.Fprintln(w, strings.Repeat("-", 90))
	for _, r := range recs {
		if _, err := fmt.Fprintf(w, "%-5d %-8s %-20s %-20s %-30s\n", r.ID, r.Hash, r.Project, r.Timestamp, r.Tags); err != nil {
			return err
		}
	}
	return nil
}

func warnIfNotFingerprint(prefix string) {
	if !fingerprint.Valid(prefix) {
		printWarning("%q is not a hash prefix (hashes are up to %d lowercase hex characters)", prefix, fingerprint.Length)
	}
}

func (a *app) export(prefix, dir string, gz bool) error {
	warnIfNotFingerprint(prefix)

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.Resolve(prefix)
	if errors.Is(err, storage.ErrNotFound) {
		printError("No log found with hash starting with '%s'", prefix)
		return nil
	}
	if err != nil {
		return err
	}

	path, err := export.Export(rec, dir, export.Options{Gzip: gz})
	if err != nil {
		return err
	}
	printSuccess("Exported log to: %s", path)
	return nil
}

func (a *app) deleteAll() error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.DeleteAll()
	if err != nil {
		return err
	}
	printSuccess("All logs deleted from database (%d removed)", n)
	return nil
}

func (a *app) openLatest() error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.Latest()
	if errors.Is(err, storage.ErrNotFound) {
		printWarning("No logs recorded yet. Pipe a build into: traza --project <name>")
		return nil
	}
	if err != nil {
		return err
	}

	path, err := viewer.WriteLatest(os.TempDir(), rec)
	if err != nil {
		return err
	}
	if !a.cfg.Viewer.OpenBrowser {
		printSuccess("Latest log written to: %s", path)
		return nil
	}
	if err := viewer.Open(path); err != nil {
		printWarning("Could not open a browser (%v); the page is at %s", err, path)
		return nil
	}
	printSuccess("Opened log #%d in the browser", rec.ID)
	return nil
}
