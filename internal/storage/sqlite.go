package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kalambet/traza/internal/fingerprint"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DBFileName is the name of the database file inside the data directory.
const DBFileName = "logs.db"

// Store wraps the SQLite database holding captured logs.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the log database in dataDir and initializes its schema.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		// Pragmas in the DSN apply to every connection the pool opens, so
		// concurrent builds wait on SQLite's lock instead of failing with
		// SQLITE_BUSY. Immediate transactions take the write lock up front.
		dsn = "file:" + filepath.Join(dataDir, DBFileName) + "?_pragma=busy_timeout(5000)&_txlock=immediate"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// One connection: an in-memory database is per-connection, and a file
	// database only ever has one writer per process anyway.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.InitSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// InitSchema applies any embedded migrations that have not been recorded yet.
// Every statement is conditional, so concurrent processes may run it at the
// same time and existing data is never touched.
func (s *Store) InitSchema() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT OR IGNORE INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// Insert stamps log with the current local time, fingerprints it and stores it.
// The returned record carries the id assigned by the database.
func (s *Store) Insert(project string, tags []string, log string) (LogRecord, error) {
	if project == "" {
		return LogRecord{}, ErrMissingProject
	}

	rec := LogRecord{
		Project:   project,
		Timestamp: s.now().Local().Format(TimestampLayout),
		Tags:      strings.Join(tags, ","),
		Log:       log,
	}
	rec.Hash = fingerprint.Sum(rec.Project, rec.Timestamp, []byte(rec.Log))

	res, err := s.db.Exec(`
		INSERT INTO logs (hash, project, timestamp, tags, log)
		VALUES (?, ?, ?, ?, ?)`,
		rec.Hash, rec.Project, rec.Timestamp, rec.Tags, rec.Log,
	)
	if err != nil {
		return LogRecord{}, fmt.Errorf("inserting log: %w", err)
	}
	if rec.ID, err = res.LastInsertId(); err != nil {
		return LogRecord{}, fmt.Errorf("reading inserted id: %w", err)
	}
	return rec, nil
}

// ListRecent returns up to limit records, newest first. Records stamped in the
// same second are ordered by id, newest first.
func (s *Store) ListRecent(limit int) ([]LogRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows, err := s.db.Query(`
		SELECT id, hash, project, timestamp, tags, log
		FROM logs ORDER BY timestamp DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing logs: %w", err)
	}
	defer rows.Close()

	var results []LogRecord
	for rows.Next() {
		var r LogRecord
		if err := rows.Scan(&r.ID, &r.Hash, &r.Project, &r.Timestamp, &r.Tags, &r.Log); err != nil {
			return nil, fmt.Errorf("scanning log: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Resolve returns the record whose hash starts with prefix. The match is
// case-sensitive. When several records match, the most recently inserted one
// (highest id) wins. An empty prefix matches every record.
func (s *Store) Resolve(prefix string) (LogRecord, error) {
	var r LogRecord
	err := s.db.QueryRow(`
		SELECT id, hash, project, timestamp, tags, log
		FROM logs WHERE substr(hash, 1, ?) = ?
		ORDER BY id DESC LIMIT 1`, len(prefix), prefix,
	).Scan(&r.ID, &r.Hash, &r.Project, &r.Timestamp, &r.Tags, &r.Log)
	if errors.Is(err, sql.ErrNoRows) {
		return LogRecord{}, ErrNotFound
	}
	if err != nil {
		return LogRecord{}, fmt.Errorf("resolving prefix %q: %w", prefix, err)
	}
	return r, nil
}

// Get returns the record with the given id.
func (s *Store) Get(id int64) (LogRecord, error) {
	var r LogRecord
	err := s.db.QueryRow(`
		SELECT id, hash, project, timestamp, tags, log
		FROM logs WHERE id = ?`, id,
	).Scan(&r.ID, &r.Hash, &r.Project, &r.Timestamp, &r.Tags, &r.Log)
	if errors.Is(err, sql.ErrNoRows) {
		return LogRecord{}, ErrNotFound
	}
	if err != nil {
		return LogRecord{}, fmt.Errorf("getting log %d: %w", id, err)
	}
	return r, nil
}

// Latest returns the most recently inserted record.
func (s *Store) Latest() (LogRecord, error) {
	return s.Resolve("")
}

// Count returns the number of stored records.
func (s *Store) Count() (int64, error) {
	var n int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM logs").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting logs: %w", err)
	}
	return n, nil
}

// DeleteAll removes every record and returns how many were removed.
func (s *Store) DeleteAll() (int64, error) {
	res, err := s.db.Exec("DELETE FROM logs")
	if err != nil {
		return 0, fmt.Errorf("deleting logs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted logs: %w", err)
	}
	return n, nil
}
