package watch

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec(`CREATE TABLE kv (k TEXT PRIMARY KEY, ts INTEGER)`); err != nil {
		t.Fatal(err)
	}
	return db
}

func bump(t *testing.T, db *sql.DB, ts int) {
	t.Helper()
	if _, err := db.Exec(`INSERT INTO kv (k, ts) VALUES ('a', ?) ON CONFLICT(k) DO UPDATE SET ts = excluded.ts`, ts); err != nil {
		t.Fatal(err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMaxColumn(t *testing.T) {
	db := testDB(t)
	det := MaxColumn("kv", "ts")
	v, err := det(context.Background(), db)
	if err != nil || v != 0 {
		t.Fatalf("empty table: got %d, %v", v, err)
	}
	bump(t, db, 100)
	if v, _ := det(context.Background(), db); v != 100 {
		t.Fatalf("got %d, want 100", v)
	}
}

func TestPragmaDataVersion(t *testing.T) {
	v, err := PragmaDataVersion(context.Background(), testDB(t))
	if err != nil || v < 0 {
		t.Fatalf("got %d, %v", v, err)
	}
}

func TestRun_ReloadsOnChange(t *testing.T) {
	db := testDB(t)
	var reloads atomic.Int32
	w := New(db, Options{Interval: 10 * time.Millisecond, Detector: MaxColumn("kv", "ts")})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx, func(context.Context) error { reloads.Add(1); return nil })
		close(done)
	}()
	defer func() { cancel(); <-done }()

	waitFor(t, func() bool { return w.Stats().Checks > 0 })
	bump(t, db, 1)
	waitFor(t, func() bool { return reloads.Load() == 1 })
	bump(t, db, 2)
	waitFor(t, func() bool { return reloads.Load() == 2 })
	if w.Version() != 2 {
		t.Errorf("version: got %d, want 2", w.Version())
	}
}

func TestRun_Debounce(t *testing.T) {
	db := testDB(t)
	var reloads atomic.Int32
	w := New(db, Options{
		Interval: 5 * time.Millisecond,
		Debounce: 80 * time.Millisecond,
		Detector: MaxColumn("kv", "ts"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx, func(context.Context) error { reloads.Add(1); return nil })
		close(done)
	}()
	defer func() { cancel(); <-done }()

	waitFor(t, func() bool { return w.Stats().Checks > 0 })
	for i := 1; i <= 5; i++ {
		bump(t, db, i)
		time.Sleep(10 * time.Millisecond)
	}
	waitFor(t, func() bool { return reloads.Load() >= 1 })
	time.Sleep(150 * time.Millisecond)
	if got := reloads.Load(); got != 1 {
		t.Errorf("got %d reloads, want 1", got)
	}
}

func TestRun_FailedReloadRetries(t *testing.T) {
	db := testDB(t)
	var calls atomic.Int32
	w := New(db, Options{Interval: 10 * time.Millisecond, Detector: MaxColumn("kv", "ts")})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx, func(context.Context) error {
			if calls.Add(1) == 1 {
				return errors.New("transient")
			}
			return nil
		})
		close(done)
	}()
	defer func() { cancel(); <-done }()

	waitFor(t, func() bool { return w.Stats().Checks > 0 })
	bump(t, db, 7)
	waitFor(t, func() bool { return w.Version() == 7 })
	if calls.Load() < 2 {
		t.Errorf("got %d calls, want a retry", calls.Load())
	}
	if w.Stats().Errors == 0 {
		t.Error("failed reload not counted")
	}
}
