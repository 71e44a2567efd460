package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/traza/internal/fingerprint"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// tickingClock returns a clock that advances one second per call.
func tickingClock(start time.Time) func() time.Time {
	next := start
	return func() time.Time {
		t := next
		next = next.Add(time.Second)
		return t
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// insertRaw stores a record with a chosen hash so prefix collisions can be staged.
func insertRaw(t *testing.T, s *Store, hash, project, timestamp string) int64 {
	t.Helper()
	res, err := s.db.Exec(`INSERT INTO logs (hash, project, timestamp, tags, log) VALUES (?, ?, ?, '', 'body')`,
		hash, project, timestamp)
	if err != nil {
		t.Fatalf("raw insert: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("LastInsertId: %v", err)
	}
	return id
}

// TestSchemaIdempotent runs Open twice on the same directory and verifies that
// data survives and the migration is not re-applied.
func TestSchemaIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	if _, err := s1.Insert("fpga1", nil, "build ok"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	if err := s2.InitSchema(); err != nil {
		t.Fatalf("explicit InitSchema: %v", err)
	}

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}

	n, err := s2.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count = %d after reopen, want 1", n)
	}

	if _, err := os.Stat(filepath.Join(dir, DBFileName)); err != nil {
		t.Errorf("database file missing: %v", err)
	}
}

// TestHashIndexNotUnique verifies the hash column is indexed but accepts duplicates.
func TestHashIndexNotUnique(t *testing.T) {
	s := openTestStore(t)

	var unique int
	err := s.db.QueryRow(`SELECT "unique" FROM pragma_index_list('logs') WHERE name = 'idx_logs_hash'`).Scan(&unique)
	if err != nil {
		t.Fatalf("querying index list: %v", err)
	}
	if unique != 0 {
		t.Errorf("idx_logs_hash is unique, want non-unique")
	}

	insertRaw(t, s, "abcdef", "p", "2025-01-01 00:00:00")
	insertRaw(t, s, "abcdef", "p", "2025-01-01 00:00:00")
}

func TestInsert_AssignsFields(t *testing.T) {
	s := openTestStore(t)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.Local)
	s.now = fixedClock(now)

	rec, err := s.Insert("fpga1", []string{"ci", "nightly"}, "build ok\n")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if rec.ID <= 0 {
		t.Errorf("ID = %d, want positive", rec.ID)
	}
	if rec.Timestamp != "2025-03-01 10:00:00" {
		t.Errorf("Timestamp = %q, want %q", rec.Timestamp, "2025-03-01 10:00:00")
	}
	if rec.Tags != "ci,nightly" {
		t.Errorf("Tags = %q, want %q", rec.Tags, "ci,nightly")
	}
	if want := fingerprint.Sum("fpga1", rec.Timestamp, []byte("build ok\n")); rec.Hash != want {
		t.Errorf("Hash = %q, want %q", rec.Hash, want)
	}

	got, err := s.Resolve(rec.Hash)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != rec {
		t.Errorf("stored record = %+v, want %+v", got, rec)
	}
}

func TestInsert_NoTags(t *testing.T) {
	s := openTestStore(t)

	rec, err := s.Insert("fpga1", nil, "x")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if rec.Tags != "" {
		t.Errorf("Tags = %q, want empty", rec.Tags)
	}
	if rec.TagList() != nil {
		t.Errorf("TagList = %v, want nil", rec.TagList())
	}
}

func TestInsert_MissingProject(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Insert("", nil, "x")
	if !errors.Is(err, ErrMissingProject) {
		t.Fatalf("err = %v, want ErrMissingProject", err)
	}

	n, err := s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Errorf("Count = %d after rejected insert, want 0", n)
	}
}

func TestInsert_IDsIncrease(t *testing.T) {
	s := openTestStore(t)

	var last int64
	for i := 0; i < 5; i++ {
		rec, err := s.Insert("p", nil, fmt.Sprintf("log %d", i))
		if err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
		if rec.ID <= last {
			t.Fatalf("id %d not greater than previous %d", rec.ID, last)
		}
		last = rec.ID
	}
}

// IDs are never reused, even after the table is emptied.
func TestInsert_IDsNotReusedAfterDelete(t *testing.T) {
	s := openTestStore(t)

	first, err := s.Insert("p", nil, "a")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := s.DeleteAll(); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	second, err := s.Insert("p", nil, "b")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if second.ID <= first.ID {
		t.Errorf("id after delete = %d, want > %d", second.ID, first.ID)
	}
}

func TestListRecent_Order(t *testing.T) {
	s := openTestStore(t)
	s.now = tickingClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.Local))

	var ids []int64
	for _, body := range []string{"r1", "r2", "r3"} {
		rec, err := s.Insert("p", nil, body)
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		ids = append(ids, rec.ID)
	}

	got, err := s.ListRecent(10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []string{"r3", "r2", "r1"} {
		if got[i].Log != want {
			t.Errorf("got[%d].Log = %q, want %q", i, got[i].Log, want)
		}
	}
}

// Records stamped in the same second fall back to id order.
func TestListRecent_SameSecondTieBreak(t *testing.T) {
	s := openTestStore(t)
	s.now = fixedClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.Local))

	for _, body := range []string{"r1", "r2", "r3"} {
		if _, err := s.Insert("p", nil, body); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	got, err := s.ListRecent(10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	for i, want := range []string{"r3", "r2", "r1"} {
		if got[i].Log != want {
			t.Errorf("got[%d].Log = %q, want %q", i, got[i].Log, want)
		}
	}
}

func TestListRecent_Limit(t *testing.T) {
	s := openTestStore(t)
	s.now = tickingClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.Local))

	for i := 0; i < 150; i++ {
		if _, err := s.Insert("p", nil, fmt.Sprintf("log %03d", i)); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}

	got, err := s.ListRecent(100)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(got) != 100 {
		t.Fatalf("len = %d, want 100", len(got))
	}
	if got[0].Log != "log 149" {
		t.Errorf("first = %q, want %q", got[0].Log, "log 149")
	}
	if got[99].Log != "log 050" {
		t.Errorf("last = %q, want %q", got[99].Log, "log 050")
	}
}

func TestListRecent_Empty(t *testing.T) {
	s := openTestStore(t)

	got, err := s.ListRecent(10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestListRecent_RejectsNonPositiveLimit(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.ListRecent(0); err == nil {
		t.Error("expected error for limit 0")
	}
	if _, err := s.ListRecent(-1); err == nil {
		t.Error("expected error for negative limit")
	}
}

func TestDeleteAll(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 7; i++ {
		if _, err := s.Insert("p", nil, fmt.Sprintf("log %d", i)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	n, err := s.DeleteAll()
	if err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if n != 7 {
		t.Errorf("DeleteAll = %d, want 7", n)
	}

	got, err := s.ListRecent(1000)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ListRecent after DeleteAll returned %d records", len(got))
	}

	n, err = s.DeleteAll()
	if err != nil {
		t.Fatalf("second DeleteAll: %v", err)
	}
	if n != 0 {
		t.Errorf("DeleteAll on empty store = %d, want 0", n)
	}
}

func TestResolve_UniqueMatch(t *testing.T) {
	s := openTestStore(t)
	id := insertRaw(t, s, "a1b2c3", "fpga1", "2025-03-01 10:00:00")

	got, err := s.Resolve("a1b")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID != id || got.Hash != "a1b2c3" {
		t.Errorf("Resolve = %+v, want id %d hash a1b2c3", got, id)
	}

	if _, err := s.Resolve("zz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(zz) err = %v, want ErrNotFound", err)
	}
}

func TestResolve_MostRecentWins(t *testing.T) {
	s := openTestStore(t)
	insertRaw(t, s, "a1ffff", "p", "2025-03-01 10:00:01")
	second := insertRaw(t, s, "a10000", "p", "2025-03-01 10:00:00")

	got, err := s.Resolve("a1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID != second {
		t.Errorf("Resolve(a1) id = %d, want %d (most recently inserted)", got.ID, second)
	}
}

func TestResolve_CaseSensitive(t *testing.T) {
	s := openTestStore(t)
	insertRaw(t, s, "abc123", "p", "2025-03-01 10:00:00")

	if _, err := s.Resolve("ABC"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(ABC) err = %v, want ErrNotFound", err)
	}
}

func TestResolve_PrefixOnly(t *testing.T) {
	s := openTestStore(t)
	insertRaw(t, s, "00a1b2", "p", "2025-03-01 10:00:00")

	if _, err := s.Resolve("a1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(a1) err = %v, want ErrNotFound for non-leading match", err)
	}
}

func TestResolve_FullHashLongerPrefix(t *testing.T) {
	s := openTestStore(t)
	insertRaw(t, s, "a1b2c3", "p", "2025-03-01 10:00:00")

	if _, err := s.Resolve("a1b2c3d"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(a1b2c3d) err = %v, want ErrNotFound", err)
	}
}

func TestLatest(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.Latest(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Latest on empty store err = %v, want ErrNotFound", err)
	}

	if _, err := s.Insert("p", nil, "first"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	want, err := s.Insert("p", nil, "second")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := s.Latest()
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got.ID != want.ID {
		t.Errorf("Latest id = %d, want %d", got.ID, want.ID)
	}
}

func TestGet(t *testing.T) {
	s := openTestStore(t)
	older := insertRaw(t, s, "a1b2c3", "p", "2025-03-01 10:00:00")
	insertRaw(t, s, "a1b2c3", "p", "2025-03-01 10:00:01")

	got, err := s.Get(older)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != older || got.Timestamp != "2025-03-01 10:00:00" {
		t.Errorf("Get(%d) = %+v", older, got)
	}

	if _, err := s.Get(999); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(999) err = %v, want ErrNotFound", err)
	}
}

func TestOpen_ConcurrentFirstOpen(t *testing.T) {
	dir := t.TempDir()
	const workers = 8

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := Open(dir)
			if err != nil {
				errs <- err
				return
			}
			s.Close()
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Open: %v", err)
	}

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) != 1 || versions[0] != 1 {
		t.Errorf("applied migrations = %v, want [1]", versions)
	}
}

func TestInsert_ConcurrentInvocations(t *testing.T) {
	dir := t.TempDir()
	seed, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	seed.Close()

	const workers, perWorker = 8, 20

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				s, err := Open(dir)
				if err != nil {
					errs <- err
					continue
				}
				if _, err := s.Insert(fmt.Sprintf("build%d", w), nil, fmt.Sprintf("run %d", i)); err != nil {
					errs <- err
				}
				s.Close()
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	failed := 0
	for err := range errs {
		if failed == 0 {
			t.Errorf("first failure: %v", err)
		}
		failed++
	}
	if failed > 0 {
		t.Fatalf("%d of %d invocations failed", failed, workers*perWorker)
	}

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	n, err := s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != workers*perWorker {
		t.Errorf("Count = %d, want %d", n, workers*perWorker)
	}
}

func TestStoreClosed_ReturnsError(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Close()

	if _, err := s.Insert("p", nil, "x"); err == nil {
		t.Error("Insert on closed store: expected error")
	}
	if _, err := s.ListRecent(1); err == nil {
		t.Error("ListRecent on closed store: expected error")
	}
	if _, err := s.Resolve("a"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve on closed store err = %v, want storage error distinct from ErrNotFound", err)
	}
	if _, err := s.DeleteAll(); err == nil {
		t.Error("DeleteAll on closed store: expected error")
	}
}

func TestTagList(t *testing.T) {
	r := LogRecord{Tags: "ci,nightly"}
	got := r.TagList()
	if len(got) != 2 || got[0] != "ci" || got[1] != "nightly" {
		t.Errorf("TagList = %v, want [ci nightly]", got)
	}
}
