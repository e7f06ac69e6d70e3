package agentloop

import (
	"context"

	"github.com/rivulet-labs/convcore/internal/convmsg"
	"github.com/rivulet-labs/convcore/internal/provider"
	"github.com/rivulet-labs/convcore/internal/tools"
)

// Hooks fire at the four fixed points spec.md §4.12 names. Per §4.12
// "Handlers are best-effort, short, and cannot mutate the conversation" —
// Hooks receives read-only views and returns nothing the loop acts on.
// Grounded on dodo's internal/engine/hooks.go Hook interface, trimmed to
// the four points the spec actually names (dodo also has retry/budget/
// soft-cap hooks that belong to concerns L and the Provider Adapter own in
// this design, not the loop).
type Hooks interface {
	BeforeModel(ctx context.Context, model string, messages []convmsg.Message, schemas []provider.ToolSchema)
	AfterModel(ctx context.Context, model string)
	BeforeTool(ctx context.Context, call convmsg.ToolCall)
	AfterTool(ctx context.Context, call convmsg.ToolCall, result tools.Result)
}

// NopHooks implements Hooks with no-ops, for callers that don't need
// observability.
type NopHooks struct{}

func (NopHooks) BeforeModel(context.Context, string, []convmsg.Message, []provider.ToolSchema) {}
func (NopHooks) AfterModel(context.Context, string)                                            {}
func (NopHooks) BeforeTool(context.Context, convmsg.ToolCall)                                   {}
func (NopHooks) AfterTool(context.Context, convmsg.ToolCall, tools.Result)                      {}
