package memory

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "memory.bleve"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddThenRecallFindsEntryByKeyword(t *testing.T) {
	s := newTestStore(t)

	e, err := s.Add("the deploy key lives in the ops vault", []string{"ops"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	results, err := s.Recall("deploy vault", 5)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("expected at least one recall hit")
	}
	if results[0].ID != e.ID {
		t.Fatalf("recall top hit id = %q, want %q", results[0].ID, e.ID)
	}
}

func TestListReturnsAllEntriesOldestFirst(t *testing.T) {
	s := newTestStore(t)

	first, err := s.Add("first note", nil)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	second, err := s.Add("second note", nil)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	entries, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("List() length = %d, want 2", len(entries))
	}
	if entries[0].ID != first.ID || entries[1].ID != second.ID {
		t.Fatalf("List() not ordered oldest-first: %+v", entries)
	}
}

func TestForgetRemovesOnlyThatEntry(t *testing.T) {
	s := newTestStore(t)

	keep, err := s.Add("keep me", nil)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	gone, err := s.Add("forget me", nil)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := s.Forget(gone.ID); err != nil {
		t.Fatalf("Forget: %v", err)
	}

	entries, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != keep.ID {
		t.Fatalf("List() after Forget = %+v, want only %q", entries, keep.ID)
	}
}

func TestClearRemovesEverything(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Add("one", nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.Add("two", nil); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	entries, err := s.List()
	if err != nil {
		t.Fatalf("List after Clear: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("List() after Clear = %+v, want empty", entries)
	}

	// Store must still be usable after Clear.
	if _, err := s.Add("fresh", nil); err != nil {
		t.Fatalf("Add after Clear: %v", err)
	}
	entries, err = s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("List() after post-Clear Add = %+v, want 1 entry", entries)
	}
}
