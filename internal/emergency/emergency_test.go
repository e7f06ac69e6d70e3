package emergency

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rivulet-labs/convcore/internal/checkpoint"
	"github.com/rivulet-labs/convcore/internal/convmsg"
	"github.com/rivulet-labs/convcore/internal/provider"
	"github.com/rivulet-labs/convcore/internal/snapshot"
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

func newActions(t *testing.T, summaryText string) *Actions {
	t.Helper()
	store, err := snapshot.Open(context.Background(), filepath.Join(t.TempDir(), "snap.db"))
	if err != nil {
		t.Fatalf("snapshot.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	lifecycle := checkpoint.New(summarize.New(&fakeAdapter{text: summaryText}), "test-model")
	svc := summarize.New(&fakeAdapter{text: summaryText})
	return New(store, lifecycle, svc, "test-model")
}

func sampleInput(messages []convmsg.Message, checkpoints []checkpoint.Summary) SnapshotInput {
	return SnapshotInput{
		Messages:    messages,
		Checkpoints: checkpoints,
		Goal:        json.RawMessage(`{}`),
		Tier:        "T3_STANDARD",
		Mode:        "developer",
		UserSize:    16384,
	}
}

func TestCompressCheckpointAlwaysSnapshotsFirst(t *testing.T) {
	a := newActions(t, "compact")
	cp := checkpoint.Summary{ID: "cp1", SummaryText: "long original text", Level: checkpoint.Level3Standard, TokenCount: 100}

	result := a.CompressCheckpoint(context.Background(), cp, sampleInput(nil, []checkpoint.Summary{cp}))
	if !result.Success {
		t.Fatalf("expected success, got error: %v", result.Error)
	}
	if result.SnapshotID == "" {
		t.Fatal("expected a non-empty snapshot id on success")
	}
	if result.TokensFreed <= 0 {
		t.Fatalf("expected tokensFreed > 0 on success, got %d", result.TokensFreed)
	}
}

func TestMergeCheckpointsFewerThanTwoFails(t *testing.T) {
	a := newActions(t, "merged")
	cp := checkpoint.Summary{ID: "cp1", SummaryText: "text", Level: checkpoint.Level1Compact, TokenCount: 10}

	result := a.MergeCheckpoints(context.Background(), []checkpoint.Summary{cp}, sampleInput(nil, nil))
	if result.Success {
		t.Fatal("expected failure with fewer than 2 checkpoints")
	}
	if result.TokensFreed != 0 {
		t.Fatalf("expected tokensFreed=0 on failure, got %d", result.TokensFreed)
	}
	if result.SnapshotID != "" {
		t.Fatal("expected no snapshot to be taken when there is no destructive work to guard")
	}
}

func TestMergeCheckpointsSuccess(t *testing.T) {
	a := newActions(t, "merged")
	cps := []checkpoint.Summary{
		{ID: "cp1", SummaryText: "text one", Level: checkpoint.Level1Compact, TokenCount: 50},
		{ID: "cp2", SummaryText: "text two", Level: checkpoint.Level1Compact, TokenCount: 60},
	}
	result := a.MergeCheckpoints(context.Background(), cps, sampleInput(nil, cps))
	if !result.Success {
		t.Fatalf("expected success, got error: %v", result.Error)
	}
	if result.SnapshotID == "" {
		t.Fatal("expected a snapshot id")
	}
}

func TestRolloverArchivesAllButKeepRecent(t *testing.T) {
	a := newActions(t, "x")
	var messages []convmsg.Message
	for i := 0; i < 10; i++ {
		messages = append(messages, convmsg.NewTextMessage(convmsg.RoleUser, "message with some real content in it"))
	}
	cps := []checkpoint.Summary{{ID: "cp1", TokenCount: 20}}

	result := a.Rollover(context.Background(), sampleInput(messages, cps), 5)
	if !result.Success {
		t.Fatalf("expected success, got error: %v", result.Error)
	}
	if result.MessagesArchived != 5 {
		t.Fatalf("expected 5 messages archived, got %d", result.MessagesArchived)
	}
	if result.CheckpointsArchived != 1 {
		t.Fatalf("expected 1 checkpoint archived, got %d", result.CheckpointsArchived)
	}
	if result.TokensFreed <= 0 {
		t.Fatalf("expected tokensFreed > 0, got %d", result.TokensFreed)
	}
}

func TestRolloverDefaultsKeepRecentToFive(t *testing.T) {
	a := newActions(t, "x")
	var messages []convmsg.Message
	for i := 0; i < 10; i++ {
		messages = append(messages, convmsg.NewTextMessage(convmsg.RoleUser, "some message content here"))
	}

	result := a.Rollover(context.Background(), sampleInput(messages, nil), 0)
	if !result.Success {
		t.Fatalf("expected success, got error: %v", result.Error)
	}
	if result.MessagesArchived != 5 {
		t.Fatalf("expected default keepRecent=5 to archive 5 messages, got %d", result.MessagesArchived)
	}
}

func TestAggressiveSummarizationEmptyInputFails(t *testing.T) {
	a := newActions(t, "abstract")
	result := a.AggressiveSummarization(context.Background(), nil, sampleInput(nil, nil))
	if result.Success {
		t.Fatal("expected failure on empty input")
	}
	if result.TokensFreed != 0 {
		t.Fatalf("expected tokensFreed=0 on failure, got %d", result.TokensFreed)
	}
}

func TestAggressiveSummarizationSuccess(t *testing.T) {
	a := newActions(t, "short abstract")
	messages := []convmsg.Message{
		convmsg.NewTextMessage(convmsg.RoleUser, "a long detailed message describing a bug and its investigation steps"),
		convmsg.NewTextMessage(convmsg.RoleAssistant, "a long detailed response describing the fix that was applied"),
	}

	result := a.AggressiveSummarization(context.Background(), messages, sampleInput(messages, nil))
	if !result.Success {
		t.Fatalf("expected success, got error: %v", result.Error)
	}
	if result.MessagesSummarized != 2 {
		t.Fatalf("expected 2 messages summarized, got %d", result.MessagesSummarized)
	}
	if result.TokensFreed <= 0 {
		t.Fatalf("expected tokensFreed > 0, got %d", result.TokensFreed)
	}
	if result.SnapshotID == "" {
		t.Fatal("expected a snapshot id")
	}
}
