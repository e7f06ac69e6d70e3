package agentloop

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rivulet-labs/convcore/internal/checkpoint"
	"github.com/rivulet-labs/convcore/internal/convctx"
	"github.com/rivulet-labs/convcore/internal/convmsg"
	"github.com/rivulet-labs/convcore/internal/emergency"
	"github.com/rivulet-labs/convcore/internal/goal"
	"github.com/rivulet-labs/convcore/internal/prompt"
	"github.com/rivulet-labs/convcore/internal/provider"
	"github.com/rivulet-labs/convcore/internal/snapshot"
	"github.com/rivulet-labs/convcore/internal/summarize"
	"github.com/rivulet-labs/convcore/internal/tools"
)

// scriptedAdapter replays a fixed sequence of events, ignoring inputs —
// enough to drive the loop's per-turn consumption logic deterministically.
type scriptedAdapter struct {
	turns   [][]provider.Event
	callIdx int
}

func (a *scriptedAdapter) Stream(_ context.Context, _ string, _ []convmsg.Message, _ []provider.ToolSchema, _ provider.ChatOptions) <-chan provider.Event {
	var events []provider.Event
	if a.callIdx < len(a.turns) {
		events = a.turns[a.callIdx]
	}
	a.callIdx++
	out := make(chan provider.Event, len(events))
	for _, e := range events {
		out <- e
	}
	close(out)
	return out
}

func newTestContext(t *testing.T, adapter provider.Adapter) *convctx.Manager {
	t.Helper()
	store, err := prompt.NewTieredStore("", t.TempDir())
	if err != nil {
		t.Fatalf("NewTieredStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	builder := prompt.NewBuilder(store)

	snapStore, err := snapshot.Open(context.Background(), filepath.Join(t.TempDir(), "snap.db"))
	if err != nil {
		t.Fatalf("snapshot.Open: %v", err)
	}
	t.Cleanup(func() { snapStore.Close() })

	svc := summarize.New(adapter)
	lifecycle := checkpoint.New(svc, "test-model")
	actions := emergency.New(snapStore, lifecycle, svc, "test-model")

	return convctx.New(convctx.Config{
		Builder:    builder,
		Goals:      goal.NewManager(),
		Lifecycle:  lifecycle,
		Summarizer: svc,
		Snapshots:  snapStore,
		Emergency:  actions,
		Model:      "test-model",
		Mode:       prompt.ModeDeveloper,
		UserSize:   16384,
	})
}

func TestRunConcatenatesTextChunksIntoFinalMessage(t *testing.T) {
	adapter := &scriptedAdapter{turns: [][]provider.Event{
		{
			{Kind: provider.EventText, TextValue: "Hel"},
			{Kind: provider.EventText, TextValue: "lo "},
			{Kind: provider.EventText, TextValue: "world"},
			{Kind: provider.EventFinish, Reason: provider.FinishStop},
		},
	}}
	loop := &Loop{
		Context: newTestContext(t, adapter),
		Adapter: adapter,
		Tools:   tools.New(tools.ApprovalYOLO, nil),
		Goals:   goal.NewManager(),
	}

	res, err := loop.Run(context.Background(), Input{UserText: "hi", Model: "test-model"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := res.FinalMessage.Text(); got != "Hello world" {
		t.Fatalf("FinalMessage.Text() = %q, want %q", got, "Hello world")
	}
	if res.Turns != 1 {
		t.Fatalf("Turns = %d, want 1", res.Turns)
	}
}

func TestRunExecutesToolCallAndContinuesToNextTurn(t *testing.T) {
	adapter := &scriptedAdapter{turns: [][]provider.Event{
		{
			{Kind: provider.EventToolCall, ToolCall: convmsg.ToolCall{ID: "c1", Name: "get_weather", Args: map[string]any{"location": "Seattle"}}},
			{Kind: provider.EventFinish, Reason: provider.FinishTool},
		},
		{
			{Kind: provider.EventText, TextValue: "It's 72F and sunny in Seattle."},
			{Kind: provider.EventFinish, Reason: provider.FinishStop},
		},
	}}

	reg := tools.New(tools.ApprovalYOLO, nil)
	reg.Register(tools.Definition{
		Name:       "get_weather",
		SchemaJSON: `{"type":"object","properties":{"location":{"type":"string"}},"required":["location"]}`,
		Execute: func(_ context.Context, _ map[string]any) (string, error) {
			return "72F sunny", nil
		},
	})

	convCtx := newTestContext(t, adapter)
	loop := &Loop{Context: convCtx, Adapter: adapter, Tools: reg, Goals: goal.NewManager()}

	res, err := loop.Run(context.Background(), Input{UserText: "weather in Seattle", Model: "test-model"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Turns != 2 {
		t.Fatalf("Turns = %d, want 2 (one to call the tool, one to respond)", res.Turns)
	}

	var found bool
	for _, msg := range convCtx.Messages() {
		if msg.Role == convmsg.RoleTool && msg.ToolName == "get_weather" {
			found = true
			if got := msg.Parts[0].ToolResult.Value; got != "72F sunny" {
				t.Fatalf("tool result value = %q, want %q", got, "72F sunny")
			}
		}
	}
	if !found {
		t.Fatalf("expected a tool-role message for get_weather in the conversation")
	}
}

func TestRunStopsAtMaxTurnsWithPendingToolCalls(t *testing.T) {
	alwaysToolCall := []provider.Event{
		{Kind: provider.EventToolCall, ToolCall: convmsg.ToolCall{ID: "c1", Name: "noop", Args: map[string]any{}}},
		{Kind: provider.EventFinish, Reason: provider.FinishTool},
	}
	adapter := &scriptedAdapter{turns: [][]provider.Event{alwaysToolCall, alwaysToolCall, alwaysToolCall}}

	reg := tools.New(tools.ApprovalYOLO, nil)
	reg.Register(tools.Definition{
		Name:       "noop",
		SchemaJSON: `{"type":"object"}`,
		Execute: func(_ context.Context, _ map[string]any) (string, error) {
			return "ok", nil
		},
	})

	loop := &Loop{Context: newTestContext(t, adapter), Adapter: adapter, Tools: reg, Goals: goal.NewManager()}

	res, err := loop.Run(context.Background(), Input{UserText: "loop forever", Model: "test-model", MaxTurns: 3})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.TurnsLimited {
		t.Fatalf("expected TurnsLimited = true")
	}
	if res.Turns != 3 {
		t.Fatalf("Turns = %d, want 3", res.Turns)
	}
}

func TestRunCancellationEmitsTurnAbortedAndLeavesPartialMessage(t *testing.T) {
	adapter := &scriptedAdapter{}
	recorder := &convctx.Recorder{}

	store, err := prompt.NewTieredStore("", t.TempDir())
	if err != nil {
		t.Fatalf("NewTieredStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	builder := prompt.NewBuilder(store)

	snapStore, err := snapshot.Open(context.Background(), filepath.Join(t.TempDir(), "snap2.db"))
	if err != nil {
		t.Fatalf("snapshot.Open: %v", err)
	}
	t.Cleanup(func() { snapStore.Close() })

	svc := summarize.New(adapter)
	lifecycle := checkpoint.New(svc, "test-model")
	actions := emergency.New(snapStore, lifecycle, svc, "test-model")
	convCtx := convctx.New(convctx.Config{
		Builder: builder, Goals: goal.NewManager(), Lifecycle: lifecycle,
		Summarizer: svc, Snapshots: snapStore, Emergency: actions,
		Model: "test-model", Mode: prompt.ModeDeveloper, UserSize: 16384, Sink: recorder,
	})

	blocking := &blockingAdapter{}
	loop := &Loop{Context: convCtx, Adapter: blocking, Tools: tools.New(tools.ApprovalYOLO, nil), Goals: goal.NewManager()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := loop.Run(ctx, Input{UserText: "hi", Model: "test-model"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Aborted {
		t.Fatalf("expected Aborted = true")
	}
	msgs := convCtx.Messages()
	if last := msgs[len(msgs)-1]; last.Role != convmsg.RoleAssistant {
		t.Fatalf("last message role = %v, want the partial assistant message left in context", last.Role)
	}

	var sawAborted bool
	for _, e := range recorder.Events {
		if e.Kind == convctx.EventTurnAborted {
			sawAborted = true
		}
	}
	if !sawAborted {
		t.Fatalf("expected a turn-aborted event")
	}
}

func TestRunAppliesGoalMarkersToTheGoalManager(t *testing.T) {
	adapter := &scriptedAdapter{turns: [][]provider.Event{
		{
			{Kind: provider.EventText, TextValue: "[GOAL]Ship the login fix[/GOAL] Working on it.\n" +
				"[CHECKPOINT]Wrote the failing test[/CHECKPOINT]\n" +
				"[DECISION]Use bcrypt over argon2[/DECISION]\n" +
				"[ARTIFACT]internal/auth/login.go[/ARTIFACT]\n" +
				"[NEXT]Run the integration suite[/NEXT]"},
			{Kind: provider.EventFinish, Reason: provider.FinishStop},
		},
	}}
	goals := goal.NewManager()
	loop := &Loop{
		Context: newTestContext(t, adapter),
		Adapter: adapter,
		Tools:   tools.New(tools.ApprovalYOLO, nil),
		Goals:   goals,
	}

	res, err := loop.Run(context.Background(), Input{UserText: "let's start", Model: "test-model"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Markers) != 5 {
		t.Fatalf("Markers = %d, want 5", len(res.Markers))
	}

	g := goals.Active()
	if g == nil {
		t.Fatalf("expected the [GOAL] marker to create an active goal")
	}
	if g.Description != "Ship the login fix" {
		t.Fatalf("goal description = %q, want %q", g.Description, "Ship the login fix")
	}
	if len(g.Checkpoints) != 2 {
		t.Fatalf("checkpoints = %d, want 2 (one from [CHECKPOINT], one from [NEXT])", len(g.Checkpoints))
	}
	if len(g.Decisions) != 1 || g.Decisions[0].Description != "Use bcrypt over argon2" {
		t.Fatalf("decisions = %+v, want one decision recorded from [DECISION]", g.Decisions)
	}
	if len(g.Artifacts) != 1 || g.Artifacts[0].Path != "internal/auth/login.go" {
		t.Fatalf("artifacts = %+v, want one artifact recorded from [ARTIFACT]", g.Artifacts)
	}
}

// blockingAdapter returns a channel that never yields, standing in for a
// provider call already cancelled via ctx before any frame arrives.
type blockingAdapter struct{}

func (blockingAdapter) Stream(_ context.Context, _ string, _ []convmsg.Message, _ []provider.ToolSchema, _ provider.ChatOptions) <-chan provider.Event {
	return make(chan provider.Event)
}
