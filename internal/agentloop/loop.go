// Package agentloop implements the Agent Loop (N) from spec.md §4.12: the
// single-turn orchestration that appends a user message, validates the
// conversation budget, calls the Provider Adapter, consumes its event
// stream into the conversation, dispatches tool calls through the Tool
// Registry, and repeats until the model stops requesting tools or
// max_turns is reached. Grounded on dodo's internal/engine/run.go (the
// step/Run split and step-counting discipline) and internal/engine/step.go
// (message preparation → LLM call → response processing → tool execution
// pipeline), reworked around this design's channel-based provider.Event
// stream instead of dodo's synchronous LLMResponse.
package agentloop

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/rivulet-labs/convcore/internal/convctx"
	"github.com/rivulet-labs/convcore/internal/convmsg"
	"github.com/rivulet-labs/convcore/internal/goal"
	"github.com/rivulet-labs/convcore/internal/provider"
	"github.com/rivulet-labs/convcore/internal/tools"
)

// DefaultMaxTurns is the spec's default per-operation turn budget.
const DefaultMaxTurns = 5

// Input parametrises a single user-facing operation (spec.md §4.12).
type Input struct {
	UserText     string
	Model        string
	MaxTurns     int      // 0 means DefaultMaxTurns
	EnabledTools []string // nil means every registered tool
	Options      provider.ChatOptions
	OnText       func(string) // delivered displayed text deltas as they stream in
}

// Result is what the loop returns once the operation completes, is
// aborted, or exhausts max_turns.
type Result struct {
	FinalMessage convmsg.Message
	Turns        int
	Markers      []goal.ParsedMarker
	Aborted      bool
	TurnsLimited bool // exited via max_turns with tool calls still pending
}

// Loop is the Agent Loop (N): it owns no state of its own beyond its
// collaborators — the Context Manager (L) is the sole owner of
// conversation state (spec.md §5 "Shared resource policy").
type Loop struct {
	Context *convctx.Manager
	Adapter provider.Adapter
	Tools   *tools.Registry
	Goals   *goal.Manager
	Hooks   Hooks
}

// Run executes one user operation per spec.md §4.12's numbered steps.
func (l *Loop) Run(ctx context.Context, in Input) (Result, error) {
	hooks := l.Hooks
	if hooks == nil {
		hooks = NopHooks{}
	}
	maxTurns := in.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}

	// Step 1: append user message, validate budget.
	l.Context.AppendMessage(convmsg.NewTextMessage(convmsg.RoleUser, in.UserText))
	if err := l.Context.ValidateBudget(ctx); err != nil {
		return Result{}, fmt.Errorf("budget validation before turn: %w", err)
	}

	// Step 2: prepare tool schemas, filtered to enabled tools.
	schemas := l.toolSchemas(in.EnabledTools)

	var parser thinkParser
	lastModel := ""
	overflowRetried := false

	for turn := 1; turn <= maxTurns; turn++ {
		// 3a. Detect model change since last turn; flush reasoning parser.
		if lastModel != "" && lastModel != in.Model {
			parser.reset()
		}
		lastModel = in.Model

		messages := l.Context.Messages()
		opts := in.Options
		opts.NumCtx = l.Context.ServerSize()
		opts.RequestID = uuid.NewString()

		hooks.BeforeModel(ctx, in.Model, messages, schemas)
		l.Context.BeginStream()
		events := l.Adapter.Stream(ctx, in.Model, messages, schemas, opts)

		outcome, err := l.consume(ctx, &parser, events, in.OnText)
		l.Context.EndStream()
		hooks.AfterModel(ctx, in.Model)

		if outcome.aborted {
			l.Context.AppendMessage(outcome.assistantMessage())
			l.Context.EmitTurnAborted("cancelled")
			return Result{FinalMessage: outcome.assistantMessage(), Turns: turn, Aborted: true}, nil
		}

		if err != nil {
			if isOverflow(err) && !overflowRetried {
				overflowRetried = true
				if cerr := l.Context.CompressForOverflow(ctx); cerr != nil {
					return Result{}, fmt.Errorf("compression after overflow: %w", cerr)
				}
				turn-- // retry the same turn once
				continue
			}
			return Result{}, err
		}
		overflowRetried = false

		assistant := outcome.assistantMessage()

		if len(outcome.toolCalls) == 0 {
			l.Context.AppendMessage(assistant)
			markers := goal.ExtractMarkers(assistant.Text())
			l.applyMarkers(markers)
			return Result{FinalMessage: assistant, Turns: turn, Markers: markers}, nil
		}

		l.Context.AppendMessage(assistant)

		for _, call := range outcome.toolCalls {
			hooks.BeforeTool(ctx, call)
			res := l.Tools.Execute(ctx, call.Name, call.Args)
			hooks.AfterTool(ctx, call, res)

			tr := convmsg.ToolResult{ToolCallID: call.ID, OK: res.OK, Value: res.Value}
			if !res.OK {
				tr.Error = &convmsg.ToolError{
					Code:    res.Error.Code,
					Message: res.Error.Message,
					Tool:    res.Error.Tool,
					Args:    res.Error.Args,
				}
			}
			toolMsg := convmsg.Message{
				ID:       call.ID,
				Role:     convmsg.RoleTool,
				ToolName: call.Name,
				Parts:    []convmsg.Part{{Kind: convmsg.PartToolResult, ToolResult: &tr}},
			}
			l.Context.AppendMessage(toolMsg)
		}

		if turn == maxTurns {
			l.Context.AppendMessage(convmsg.NewTextMessage(convmsg.RoleAssistant,
				"Turn limit reached with tool calls still pending."))
			return Result{Turns: turn, TurnsLimited: true}, nil
		}
	}

	return Result{Turns: maxTurns, TurnsLimited: true}, nil
}

// applyMarkers interprets each extracted marker into the Goal Manager
// mutation it names (spec.md §4.5): [GOAL] creates a new active goal,
// [CHECKPOINT] and [NEXT] both append a pending checkpoint to the active
// goal (the system prompt's "Next" line is already derived from the oldest
// pending checkpoint, so a [NEXT] marker earns its place in that same
// queue), [DECISION] records an unlocked decision, and [ARTIFACT] records a
// file touched in service of the goal. A marker with no active goal to
// attach to (e.g. a stray [CHECKPOINT] before any [GOAL]) is dropped;
// CreateGoal failing because a goal is already active is likewise ignored,
// since [GOAL] markers are advisory, not exclusive.
func (l *Loop) applyMarkers(markers []goal.ParsedMarker) {
	if l.Goals == nil {
		return
	}
	for _, mk := range markers {
		switch mk.Kind {
		case goal.MarkerGoal:
			l.Goals.CreateGoal(mk.Content, 0)

		case goal.MarkerCheckpoint, goal.MarkerNext:
			if g := l.Goals.Active(); g != nil {
				l.Goals.AddCheckpoint(g.ID, mk.Content)
			}

		case goal.MarkerDecision:
			if g := l.Goals.Active(); g != nil {
				l.Goals.RecordDecision(g.ID, mk.Content, "")
			}

		case goal.MarkerArtifact:
			if g := l.Goals.Active(); g != nil {
				l.Goals.RecordArtifact(g.ID, "file", mk.Content, goal.ArtifactModified)
			}
		}
	}
}

// toolSchemas converts the registry's definitions into provider.ToolSchema
// values, filtered to the given names (nil means every registered tool).
func (l *Loop) toolSchemas(enabled []string) []provider.ToolSchema {
	var allow map[string]bool
	if enabled != nil {
		allow = make(map[string]bool, len(enabled))
		for _, name := range enabled {
			allow[name] = true
		}
	}

	defs := l.Tools.List()
	out := make([]provider.ToolSchema, 0, len(defs))
	for _, d := range defs {
		if allow != nil && !allow[d.Name] {
			continue
		}
		out = append(out, provider.ToolSchema{
			Name:        d.Name,
			Description: d.Description,
			JSONSchema:  d.SchemaJSON,
		})
	}
	return out
}

// overflowError marks a stream error as a context-overflow signal (spec.md
// §4.12 step 3c / §7 "Budget"): the Agent Loop compresses and retries the
// same turn once instead of failing it outright.
type overflowError struct{ message string }

func (e *overflowError) Error() string { return e.message }

// isOverflow reports whether err signals a context-overflow condition.
func isOverflow(err error) bool {
	var o *overflowError
	return errors.As(err, &o)
}
