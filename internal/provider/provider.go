// Package provider implements the Provider Adapter (D) contract from
// spec.md §4.2/§6.1: a streaming event channel over a local LLM server's
// chat-completion wire format, with option-key mirroring, cancellation, and
// a closed error taxonomy. Grounded on dodo's internal/providers/openai.go
// (channel-based Stream, tool-call accumulation pattern) and
// internal/providers/factory.go (env-driven construction), with the wire
// format itself taken from teradata-labs-loom's pkg/llm/ollama/client.go.
package provider

import (
	"context"

	"github.com/rivulet-labs/convcore/internal/convmsg"
)

// EventKind tags the variant of an Event (spec.md §4.2 tagged variants).
type EventKind string

const (
	EventText     EventKind = "text"
	EventToolCall EventKind = "tool_call"
	EventThinking EventKind = "thinking"
	EventError    EventKind = "error"
	EventFinish   EventKind = "finish"
)

// FinishReason is the sole non-error terminal event's payload.
type FinishReason string

const (
	FinishStop   FinishReason = "stop"
	FinishLength FinishReason = "length"
	FinishTool   FinishReason = "tool"
)

// Event is one frame of the adapter's event stream. Exactly one of the
// payload fields is meaningful, selected by Kind.
type Event struct {
	Kind EventKind

	// EventText / EventThinking
	TextValue string

	// EventToolCall
	ToolCall convmsg.ToolCall

	// EventError
	ErrorMessage string
	ErrorCode    string // ECONNREFUSED, ENOTFOUND, ETIMEDOUT, EPROTO, CTX_OVERFLOW

	// EventFinish
	Reason FinishReason
}

// ToolSchema is the JSON-Schema description of one tool offered to the
// model, mirrored onto the wire request's "tools" array.
type ToolSchema struct {
	Name        string
	Description string
	JSONSchema  string // raw JSON Schema object, as text
}

// ChatOptions carries per-call knobs. MaxOutputTokens, when set, MUST be
// mirrored onto all three wire keys (maxTokens, max_new_tokens, max_tokens)
// per spec.md §4.2 — this is compatibility-critical because heterogeneous
// local servers look for different key names.
type ChatOptions struct {
	Temperature     float32
	TopP            float32
	MaxOutputTokens int
	NumCtx          int // server_size of the active context; set by the caller (Context Manager)
	Think           bool
	RequestID       string // turn-unique request id
	ExtraOptions    map[string]any
}

// Adapter is the Provider Adapter contract. A new logical stream is opened
// per request; an Adapter is not shared mutable state across turns (spec.md
// §5 "Provider Adapter is not shared across turns").
type Adapter interface {
	// Stream returns a channel that yields events until exactly one
	// terminal event (EventFinish or EventError) is sent, after which the
	// channel is closed. Cancelling ctx terminates the stream cleanly with
	// no further events and no error (spec.md §4.2 Cancellation).
	Stream(ctx context.Context, model string, messages []convmsg.Message, tools []ToolSchema, opts ChatOptions) <-chan Event
}
