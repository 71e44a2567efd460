package api

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/traza/internal/export"
	"github.com/kalambet/traza/internal/storage"
	"github.com/kalambet/traza/internal/viewer"
)

const maxListLimit = 1000

// BrowserDeps holds dependencies for the log browser.
type BrowserDeps struct {
	Store        *storage.Store
	DefaultLimit int // used when the request has no limit parameter
}

// NewBrowserHandler serves the stored logs as HTML pages and JSON.
func NewBrowserHandler(deps BrowserDeps) http.Handler {
	if deps.DefaultLimit <= 0 {
		deps.DefaultLimit = 100
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth(deps))
	r.Get("/", handleListPage(deps))
	r.Get("/records/{id}", handleRecordPage(deps))
	r.Get("/logs/{prefix}", handleLogPage(deps))
	r.Get("/logs/{prefix}/export", handleExport(deps))
	r.Get("/api/logs", handleListLogs(deps))
	r.Get("/api/logs/{prefix}", handleGetLog(deps))

	return r
}

func parseLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer, got %q", raw)
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, nil
}

// resolve maps a store lookup onto HTTP errors; it reports whether rec is usable.
func resolve(w http.ResponseWriter, r *http.Request, store *storage.Store) (storage.LogRecord, bool) {
	prefix := chi.URLParam(r, "prefix")
	rec, err := store.Resolve(prefix)
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "no log found with hash starting with %q", prefix)
		return storage.LogRecord{}, false
	}
	if err != nil {
		slog.Error("resolving log", "prefix", prefix, "error", err)
		httpError(w, http.StatusInternalServerError, "storage_error", "failed to resolve log: %v", err)
		return storage.LogRecord{}, false
	}
	return rec, true
}

func handleHealth(deps BrowserDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		n, err := deps.Store.Count()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "storage_error", "failed to count logs: %v", err)
			return
		}
		writeJSON(w, map[string]any{"status": "ok", "logs": n})
	}
}

func handleListPage(deps BrowserDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := parseLimit(r, deps.DefaultLimit)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		recs, err := deps.Store.ListRecent(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "storage_error", "failed to list logs: %v", err)
			return
		}

		var buf bytes.Buffer
		if err := viewer.RenderList(&buf, recs); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to render page: %v", err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(buf.Bytes())
	}
}

func handleLogPage(deps BrowserDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := resolve(w, r, deps.Store)
		if !ok {
			return
		}

		var buf bytes.Buffer
		if err := viewer.RenderLinked(&buf, rec, "/"); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to render page: %v", err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(buf.Bytes())
	}
}

// handleRecordPage addresses a record by id, so records sharing a hash each
// stay reachable from the index.
func handleRecordPage(deps BrowserDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, "id")
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid log id %q", raw)
			return
		}
		rec, err := deps.Store.Get(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "no log with id %d", id)
			return
		}
		if err != nil {
			slog.Error("getting log", "id", id, "error", err)
			httpError(w, http.StatusInternalServerError, "storage_error", "failed to get log: %v", err)
			return
		}

		var buf bytes.Buffer
		if err := viewer.RenderLinked(&buf, rec, "/"); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to render page: %v", err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(buf.Bytes())
	}
}

func handleExport(deps BrowserDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := resolve(w, r, deps.Store)
		if !ok {
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(rec, export.Options{})))
		if err := export.WriteTo(w, rec); err != nil {
			slog.Warn("writing export response", "hash", rec.Hash, "error", err)
		}
	}
}

func handleListLogs(deps BrowserDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := parseLimit(r, deps.DefaultLimit)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		recs, err := deps.Store.ListRecent(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "storage_error", "failed to list logs: %v", err)
			return
		}
		if recs == nil {
			recs = []storage.LogRecord{}
		}
		writeJSON(w, recs)
	}
}

func handleGetLog(deps BrowserDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := resolve(w, r, deps.Store)
		if !ok {
			return
		}
		writeJSON(w, rec)
	}
}
