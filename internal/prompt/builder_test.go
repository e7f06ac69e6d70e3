package prompt

import (
	"strings"
	"testing"
)

func TestBuildAssemblesSectionsInOrder(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "developer.3.txt", "TEMPLATE")
	store, err := NewTieredStore("", dir)
	if err != nil {
		t.Fatalf("NewTieredStore: %v", err)
	}
	defer store.Close()

	b := NewBuilder(store)
	got := b.Build(BuildInput{
		Mode:             ModeDeveloper,
		Tier:             3,
		GoalBlock:        "GOAL BLOCK",
		Skills:           []string{"SKILL A", "SKILL B"},
		SanityCheckOn:    true,
		SanityCheckBlock: "SANITY",
		ExtraInstructions: "EXTRA",
	})

	order := []string{"TEMPLATE", "GOAL BLOCK", "SKILL A", "SANITY", "EXTRA"}
	lastIdx := -1
	for _, section := range order {
		idx := strings.Index(got, section)
		if idx < 0 {
			t.Fatalf("expected section %q present in output:\n%s", section, got)
		}
		if idx <= lastIdx {
			t.Fatalf("expected section %q after previous section, output:\n%s", section, got)
		}
		lastIdx = idx
	}
}

func TestBuildOmitsEmptySections(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "developer.3.txt", "TEMPLATE")
	store, err := NewTieredStore("", dir)
	if err != nil {
		t.Fatalf("NewTieredStore: %v", err)
	}
	defer store.Close()

	b := NewBuilder(store)
	got := b.Build(BuildInput{Mode: ModeDeveloper, Tier: 3})
	if got != "TEMPLATE" {
		t.Fatalf("expected only the template section, got %q", got)
	}
}

func TestReasoningModelOverridesSections1And4(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "developer.3.txt", "TEMPLATE")
	store, err := NewTieredStore("", dir)
	if err != nil {
		t.Fatalf("NewTieredStore: %v", err)
	}
	defer store.Close()

	b := NewBuilder(store)
	got := b.Build(BuildInput{
		Mode:             ModeDeveloper,
		Tier:             3,
		SanityCheckOn:    true,
		SanityCheckBlock: "SANITY",
		IsReasoningModel: true,
	})

	if strings.Contains(got, "TEMPLATE") {
		t.Fatalf("expected template section replaced for reasoning models, got %q", got)
	}
	if strings.Contains(got, "SANITY") {
		t.Fatalf("expected sanity check section suppressed for reasoning models, got %q", got)
	}
	if !strings.Contains(got, reasoningOverridePrompt) {
		t.Fatalf("expected reasoning override prompt present, got %q", got)
	}
}
