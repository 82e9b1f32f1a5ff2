package docstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestGet_NotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var out map[string]any
	err := s.Get(ctx, "orders", "missing", &out)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestPut_Get_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	doc := map[string]any{"customer": "ada", "total": 42.5}
	if err := s.Put(ctx, "orders", "o-1", doc); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	var out map[string]any
	if err := s.Get(ctx, "orders", "o-1", &out); err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if out["customer"] != "ada" {
		t.Errorf("customer = %v, want ada", out["customer"])
	}
	if out["total"] != 42.5 {
		t.Errorf("total = %v, want 42.5", out["total"])
	}
}

func TestPut_BumpsRev(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "orders", "o-1", map[string]any{"n": 1}); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := s.Put(ctx, "orders", "o-1", map[string]any{"n": 2}); err != nil {
		t.Fatalf("second Put() failed: %v", err)
	}

	var out map[string]any
	rev, err := s.GetRev(ctx, "orders", "o-1", &out)
	if err != nil {
		t.Fatalf("GetRev() failed: %v", err)
	}
	if rev != 2 {
		t.Errorf("rev = %d, want 2", rev)
	}
}

func TestInsert_FailsOnExisting(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Insert(ctx, "orders", "o-1", map[string]any{"n": 1}); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}

	err := s.Insert(ctx, "orders", "o-1", map[string]any{"n": 2})
	if !errors.Is(err, ErrExists) {
		t.Errorf("Insert() error = %v, want ErrExists", err)
	}

	// The original document must be untouched.
	var out map[string]any
	if err := s.Get(ctx, "orders", "o-1", &out); err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if out["n"] != float64(1) {
		t.Errorf("n = %v, want 1", out["n"])
	}
}

func TestReplace_CompareAndSwap(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Insert(ctx, "orders", "o-1", map[string]any{"n": 1}); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}

	newRev, err := s.Replace(ctx, "orders", "o-1", map[string]any{"n": 2}, 1)
	if err != nil {
		t.Fatalf("Replace() failed: %v", err)
	}
	if newRev != 2 {
		t.Errorf("newRev = %d, want 2", newRev)
	}

	// Stale rev must conflict and leave the document alone.
	_, err = s.Replace(ctx, "orders", "o-1", map[string]any{"n": 3}, 1)
	if !errors.Is(err, ErrConflict) {
		t.Errorf("stale Replace() error = %v, want ErrConflict", err)
	}

	var out map[string]any
	if err := s.Get(ctx, "orders", "o-1", &out); err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if out["n"] != float64(2) {
		t.Errorf("n = %v, want 2", out["n"])
	}
}

func TestReplace_MissingDocument(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Replace(ctx, "orders", "missing", map[string]any{}, 1)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Replace() error = %v, want ErrNotFound", err)
	}
}

func TestFind_OrderedByID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		if err := s.Put(ctx, "orders", id, map[string]any{"id": id}); err != nil {
			t.Fatalf("Put(%s) failed: %v", id, err)
		}
	}

	docs, err := s.Find(ctx, "orders")
	if err != nil {
		t.Fatalf("Find() failed: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("len(docs) = %d, want 3", len(docs))
	}
	for i, want := range []string{"a", "b", "c"} {
		if docs[i].ID != want {
			t.Errorf("docs[%d].ID = %s, want %s", i, docs[i].ID, want)
		}
	}
}

func TestFind_EmptyCollection(t *testing.T) {
	s := openTestStore(t)

	docs, err := s.Find(context.Background(), "nothing")
	if err != nil {
		t.Fatalf("Find() failed: %v", err)
	}
	if docs == nil {
		t.Error("Find() returned nil, want empty slice")
	}
	if len(docs) != 0 {
		t.Errorf("len(docs) = %d, want 0", len(docs))
	}
}

func TestDelete_MissingIsNoOp(t *testing.T) {
	s := openTestStore(t)

	if err := s.Delete(context.Background(), "orders", "missing"); err != nil {
		t.Errorf("Delete() on missing doc failed: %v", err)
	}
}
