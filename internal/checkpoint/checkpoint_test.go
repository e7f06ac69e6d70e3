package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/rivulet-labs/convcore/internal/convmsg"
	"github.com/rivulet-labs/convcore/internal/provider"
	"github.com/rivulet-labs/convcore/internal/summarize"
)

type fakeAdapter struct{ text string }

func (f *fakeAdapter) Stream(ctx context.Context, model string, messages []convmsg.Message, tools []provider.ToolSchema, opts provider.ChatOptions) <-chan provider.Event {
	out := make(chan provider.Event, 2)
	go func() {
		defer close(out)
		out <- provider.Event{Kind: provider.EventText, TextValue: f.text}
		out <- provider.Event{Kind: provider.EventFinish, Reason: provider.FinishStop}
	}()
	return out
}

func newLifecycle(text string) *Lifecycle {
	return New(summarize.New(&fakeAdapter{text: text}), "test-model")
}

func sampleCheckpoint(id string, level Level, compressionNumber, tokenCount int) Summary {
	return Summary{
		ID:                 id,
		Timestamp:          time.Now(),
		SummaryText:        "original summary text for " + id,
		OriginalMessageIDs: []string{"m1", "m2"},
		TokenCount:         tokenCount,
		Level:              level,
		CompressionNumber:  compressionNumber,
	}
}

func TestAgeRecompressesPastThreshold(t *testing.T) {
	l := newLifecycle("compact abstract")
	cp := sampleCheckpoint("cp1", Level3Standard, 0, 100)
	results := l.Age(context.Background(), []Summary{cp}, 10) // age = 10 -> target level 1

	if len(results) != 1 {
		t.Fatalf("expected 1 aged result, got %d", len(results))
	}
	if !results[0].Success || results[0].NewLevel != Level1Compact {
		t.Fatalf("expected success at level 1, got %+v", results[0])
	}
	if results[0].AgedCheckpoint.ID != "cp1" {
		t.Fatalf("expected id preserved, got %q", results[0].AgedCheckpoint.ID)
	}
}

func TestAgeSkipsCheckpointsAlreadyAtOrBelowTarget(t *testing.T) {
	l := newLifecycle("x")
	cp := sampleCheckpoint("cp1", Level1Compact, 0, 10) // already maximally compressed
	results := l.Age(context.Background(), []Summary{cp}, 10)

	if len(results) != 0 {
		t.Fatalf("expected checkpoint already at target to be skipped, got %+v", results)
	}
}

func TestMergeRequiresAtLeastTwo(t *testing.T) {
	l := newLifecycle("merged")
	result := l.Merge(context.Background(), []Summary{sampleCheckpoint("cp1", Level1Compact, 0, 10)})
	if result.Success {
		t.Fatal("expected failure merging fewer than 2 checkpoints")
	}
}

func TestMergeCombinesTokensFreed(t *testing.T) {
	l := newLifecycle("short merged summary")
	cps := []Summary{
		sampleCheckpoint("cp1", Level1Compact, 1, 50),
		sampleCheckpoint("cp2", Level1Compact, 2, 60),
	}
	result := l.Merge(context.Background(), cps)
	if !result.Success {
		t.Fatalf("expected merge success, got error: %v", result.Error)
	}
	if result.Merged.CompressionNumber != 2 {
		t.Fatalf("expected merged compressionNumber = max(1,2) = 2, got %d", result.Merged.CompressionNumber)
	}
	if result.Merged.Level != Level1Compact {
		t.Fatalf("expected merged checkpoint at L1, got %d", result.Merged.Level)
	}
	if result.TokensFreed != 110-result.Merged.TokenCount {
		t.Fatalf("expected tokensFreed = 110 - new count, got %d", result.TokensFreed)
	}
}

func TestCompressRejectsSameOrHigherLevel(t *testing.T) {
	l := newLifecycle("x")
	cp := sampleCheckpoint("cp1", Level2Reduced, 0, 10)

	if result := l.Compress(context.Background(), cp, Level2Reduced); result.Success {
		t.Fatal("expected rejection of same-level compress")
	}
	if result := l.Compress(context.Background(), cp, Level3Standard); result.Success {
		t.Fatal("expected rejection of higher-level compress")
	}
}

func TestCompressAcceptsStrictlyLowerLevel(t *testing.T) {
	l := newLifecycle("compact")
	cp := sampleCheckpoint("cp1", Level3Standard, 0, 100)
	result := l.Compress(context.Background(), cp, Level1Compact)
	if !result.Success {
		t.Fatalf("expected success, got error: %v", result.Error)
	}
	if result.Compressed.Level != Level1Compact {
		t.Fatalf("expected compressed level 1, got %d", result.Compressed.Level)
	}
}

func TestEligibleForMergingDefaultMinCount(t *testing.T) {
	cps := []Summary{
		sampleCheckpoint("cp1", Level1Compact, 0, 10),
		sampleCheckpoint("cp2", Level1Compact, 0, 10),
	}
	if got := EligibleForMerging(cps, 0); got != nil {
		t.Fatalf("expected nil below default minCount of 3, got %+v", got)
	}
	cps = append(cps, sampleCheckpoint("cp3", Level1Compact, 0, 10))
	if got := EligibleForMerging(cps, 0); len(got) != 3 {
		t.Fatalf("expected 3 eligible checkpoints, got %d", len(got))
	}
}

func TestNeedingAging(t *testing.T) {
	cps := []Summary{
		sampleCheckpoint("cp1", Level3Standard, 0, 10), // age 10 -> target 1, needs aging
		sampleCheckpoint("cp2", Level1Compact, 0, 10),  // already at floor
	}
	got := NeedingAging(cps, 10)
	if len(got) != 1 || got[0].ID != "cp1" {
		t.Fatalf("expected only cp1 needing aging, got %+v", got)
	}
}
