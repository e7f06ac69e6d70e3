package prompt

import "testing"

func TestRegisterPreservesInsertionOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(Fragment{ID: "b", Source: SourceStatic})
	r.Register(Fragment{ID: "a", Source: SourceStatic})
	r.Register(Fragment{ID: "b", Source: SourceStatic, Content: "updated"})

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 fragments, got %d", len(list))
	}
	if list[0].ID != "b" || list[1].ID != "a" {
		t.Fatalf("expected insertion order [b a], got [%s %s]", list[0].ID, list[1].ID)
	}
	if list[0].Content != "updated" {
		t.Fatalf("expected re-register to update content in place, got %q", list[0].Content)
	}
}

func TestUnregisterRemovesFragment(t *testing.T) {
	r := NewRegistry()
	r.Register(Fragment{ID: "a"})
	r.Unregister("a")
	if _, ok := r.Get("a"); ok {
		t.Fatal("expected fragment to be gone after Unregister")
	}
}

func TestListByTagAndSource(t *testing.T) {
	r := NewRegistry()
	r.Register(Fragment{ID: "skill1", Tags: []string{"code"}, Source: SourceExtension, SourceName: "ext1"})
	r.Register(Fragment{ID: "skill2", Tags: []string{"code", "test"}, Source: SourceStatic})

	byTag := r.ListByTag("code")
	if len(byTag) != 2 {
		t.Fatalf("expected 2 fragments tagged code, got %d", len(byTag))
	}

	bySource := r.ListBySource(SourceExtension)
	if len(bySource) != 1 || bySource[0].ID != "skill1" {
		t.Fatalf("expected only skill1 from SourceExtension, got %+v", bySource)
	}
}

func TestClearBySourceRemovesOnlyMatching(t *testing.T) {
	r := NewRegistry()
	r.Register(Fragment{ID: "a", Source: SourceExtension, SourceName: "ext1"})
	r.Register(Fragment{ID: "b", Source: SourceExtension, SourceName: "ext2"})
	r.Register(Fragment{ID: "c", Source: SourceStatic})

	removed := r.ClearBySource(SourceExtension, "ext1")
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	list := r.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 remaining fragments, got %d", len(list))
	}
}
