package pebblestore

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/pebble"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Options{
		DataDir:       t.TempDir(),
		Fsync:         FsyncModeInterval,
		FsyncInterval: 2 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCRUD(t *testing.T) {
	db := newTestDB(t)
	if err := db.Set([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "v" {
		t.Fatalf("get = %q, want v", got)
	}
	if err := db.Delete([]byte("k")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Get([]byte("k")); err != ErrNotFound {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestBatchCommit(t *testing.T) {
	db := newTestDB(t)
	b := db.NewBatch()
	_ = b.Set([]byte("a"), []byte("1"), nil)
	_ = b.Set([]byte("b"), []byte("2"), nil)
	if err := db.CommitBatch(context.Background(), b); err != nil {
		t.Fatalf("commit: %v", err)
	}
	b.Close()

	for _, k := range []string{"a", "b"} {
		if _, err := db.Get([]byte(k)); err != nil {
			t.Fatalf("get %s: %v", k, err)
		}
	}
}

func TestDeleteRange(t *testing.T) {
	db := newTestDB(t)
	_ = db.Set([]byte("p/1"), nil)
	_ = db.Set([]byte("p/2"), nil)
	_ = db.Set([]byte("q/1"), nil)

	if err := db.DeleteRange(context.Background(), []byte("p/"), []byte("p/\xff")); err != nil {
		t.Fatalf("delete range: %v", err)
	}
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: []byte("p/"), UpperBound: []byte("p/\xff")})
	if err != nil {
		t.Fatalf("iter: %v", err)
	}
	defer iter.Close()
	if iter.First() {
		t.Fatalf("expected p/ range empty, found %q", iter.Key())
	}
	if _, err := db.Get([]byte("q/1")); err != nil {
		t.Fatalf("q/1 should survive: %v", err)
	}
}

func TestParseFsyncMode(t *testing.T) {
	for in, want := range map[string]FsyncMode{
		"":         FsyncModeAlways,
		"always":   FsyncModeAlways,
		"interval": FsyncModeInterval,
		"never":    FsyncModeNever,
	} {
		got, err := ParseFsyncMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseFsyncMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseFsyncMode("sometimes"); err == nil {
		t.Fatalf("expected error")
	}
}
