package snapshot

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshots.db")
	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleState() State {
	return State{
		Messages:    json.RawMessage(`[{"id":"m1"}]`),
		Checkpoints: json.RawMessage(`[]`),
		Goal:        json.RawMessage(`{"id":"g1"}`),
		Tier:        "T3_STANDARD",
		Mode:        "developer",
		UserSize:    16384,
	}
}

func TestCreateAndRestoreRoundTrips(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, sampleState(), ReasonManual)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty snapshot id")
	}

	got, err := s.Restore(ctx, id)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got.State.Tier != "T3_STANDARD" || got.State.UserSize != 16384 || got.Reason != ReasonManual {
		t.Fatalf("restored state mismatch: %+v", got)
	}
	if string(got.State.Messages) != `[{"id":"m1"}]` {
		t.Fatalf("expected messages round-trip, got %q", got.State.Messages)
	}
}

func TestRestoreUnknownIDFails(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Restore(context.Background(), "nonexistent"); err == nil {
		t.Fatal("expected error restoring an unknown snapshot id")
	}
}

func TestListOrdersNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id1, _ := s.Create(ctx, sampleState(), ReasonManual)
	id2, _ := s.Create(ctx, sampleState(), ReasonPreCompression)

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(list))
	}
	ids := map[string]bool{id1: true, id2: true}
	for _, sn := range list {
		if !ids[sn.ID] {
			t.Fatalf("unexpected snapshot id in list: %s", sn.ID)
		}
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].CreatedAt.Before(list[i].CreatedAt) {
			t.Fatalf("list not newest first: %v listed before %v", list[i-1].CreatedAt, list[i].CreatedAt)
		}
	}
}

func TestDeleteRemovesSnapshot(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, _ := s.Create(ctx, sampleState(), ReasonManual)
	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Restore(ctx, id); err == nil {
		t.Fatal("expected restore of a deleted snapshot to fail")
	}
}

func TestPruneAppliesCallerPolicy(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id1, _ := s.Create(ctx, sampleState(), ReasonManual)
	_, _ = s.Create(ctx, sampleState(), ReasonPreCompression)

	deleteAllManual := func(all []Snapshot) []string {
		var out []string
		for _, sn := range all {
			if sn.Reason == ReasonManual {
				out = append(out, sn.ID)
			}
		}
		return out
	}

	deleted, err := s.Prune(ctx, deleteAllManual)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if len(deleted) != 1 || deleted[0] != id1 {
		t.Fatalf("expected only the manual snapshot pruned, got %+v", deleted)
	}

	remaining, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("expected 1 remaining snapshot, got %d", len(remaining))
	}
}
