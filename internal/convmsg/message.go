// Package convmsg defines the Message data model from spec.md §3: an
// ordered, append-only record with typed parts (text, tool_call,
// tool_result, reasoning). This generalizes dodo's flat
// internal/engine.ChatMessage (Role/Content/Name/ToolCalls) into the
// richer part-sequence model the spec requires, while keeping the same
// four roles and the same tool-call shape dodo already uses.
package convmsg

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is one of the four message roles.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartKind tags the variant of a Part.
type PartKind string

const (
	PartText       PartKind = "text"
	PartToolCall   PartKind = "tool_call"
	PartToolResult PartKind = "tool_result"
	PartReasoning  PartKind = "reasoning"
)

// ToolCall is a tool invocation requested by the assistant.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolError is the structured error shape returned to the model when a
// tool call fails validation, approval, or execution (spec.md §4.11).
type ToolError struct {
	Code    string // EINVAL, EUSERDENIED, or a tool-specific code
	Message string
	Tool    string
	Args    map[string]any
}

// ToolResult is the outcome of executing a ToolCall.
type ToolResult struct {
	ToolCallID string
	OK         bool
	Value      string // always textual; structured data is serialized first
	Error      *ToolError
}

// Part is one tagged element of a Message's ordered part sequence.
type Part struct {
	Kind       PartKind
	Text       string      // for PartText / PartReasoning
	ToolCall   *ToolCall   // for PartToolCall
	ToolResult *ToolResult // for PartToolResult
}

// ReasoningBlock captures a model's extracted "thinking" output, whether it
// arrived as a native event or was parsed out of <think> tags.
type ReasoningBlock struct {
	TokenCount int
	Duration   time.Duration
	Collapsed  bool
	Content    string
}

// Message is an ordered, append-only record as defined in spec.md §3.
// The core may replace a contiguous prefix of Messages with a single
// checkpoint-derived message during compression, but never mutates an
// existing Message in place.
type Message struct {
	ID        string
	Role      Role
	Parts     []Part
	Timestamp time.Time
	ToolName  string // set when Role == RoleTool
	Reasoning *ReasoningBlock
}

// NewTextMessage constructs a single-part text message with a fresh id and
// the current timestamp.
func NewTextMessage(role Role, text string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Parts:     []Part{{Kind: PartText, Text: text}},
		Timestamp: time.Now(),
	}
}

// Text concatenates every text-kind part's content, in order. For an
// assistant message built from a stream, this equals the concatenation of
// every text event received during the turn (spec.md §8 property 7).
func (m Message) Text() string {
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.Kind == PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// ToolCalls returns every tool_call part's payload, in order.
func (m Message) ToolCalls() []ToolCall {
	var out []ToolCall
	for _, p := range m.Parts {
		if p.Kind == PartToolCall && p.ToolCall != nil {
			out = append(out, *p.ToolCall)
		}
	}
	return out
}

// WithToolResult appends a tool_result part and returns the updated
// message. Messages are conceptually append-only from the outside; callers
// that need to "finish" a tool-role message construct it once all results
// are known rather than mutating a previously emitted Message.
func (m Message) WithToolResult(tr ToolResult) Message {
	m.Parts = append(append([]Part(nil), m.Parts...), Part{Kind: PartToolResult, ToolResult: &tr})
	return m
}
