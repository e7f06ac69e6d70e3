package provider

import (
	"context"
	"encoding/json"
	"fmt"

	anthropic "github.com/liushuangls/go-anthropic/v2"

	"github.com/rivulet-labs/convcore/internal/convmsg"
)

// AnthropicAdapter is the secondary, opt-in cloud Provider Adapter
// described in SPEC_FULL.md's Domain Stack section: it satisfies the same
// Adapter contract as OllamaAdapter, so it can stand in for a local model
// once the Model Router (internal/router) has exhausted every local
// candidate and a cloud credential is configured. Grounded on dodo's
// internal/providers/anthropic.go streaming-callback-to-channel pattern.
type AnthropicAdapter struct {
	client *anthropic.Client
}

// NewAnthropicAdapter constructs an adapter using the given API key.
func NewAnthropicAdapter(apiKey string) *AnthropicAdapter {
	return &AnthropicAdapter{client: anthropic.NewClient(apiKey)}
}

func (a *AnthropicAdapter) Stream(ctx context.Context, model string, messages []convmsg.Message, tools []ToolSchema, opts ChatOptions) <-chan Event {
	out := make(chan Event, 16)

	go func() {
		defer close(out)

		var systemParts []anthropic.MessageSystemPart
		var msgs []anthropic.Message
		for _, m := range messages {
			switch m.Role {
			case convmsg.RoleSystem:
				systemParts = append(systemParts, anthropic.MessageSystemPart{Type: "text", Text: m.Text()})
			case convmsg.RoleUser:
				msgs = append(msgs, anthropic.Message{
					Role:    anthropic.RoleUser,
					Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(m.Text())},
				})
			case convmsg.RoleAssistant:
				var content []anthropic.MessageContent
				if text := m.Text(); text != "" {
					content = append(content, anthropic.NewTextMessageContent(text))
				}
				for _, tc := range m.ToolCalls() {
					input, _ := json.Marshal(tc.Args)
					content = append(content, anthropic.NewToolUseMessageContent(tc.ID, tc.Name, input))
				}
				msgs = append(msgs, anthropic.Message{Role: anthropic.RoleAssistant, Content: content})
			case convmsg.RoleTool:
				for _, p := range m.Parts {
					if p.Kind == convmsg.PartToolResult && p.ToolResult != nil {
						result := anthropic.NewToolResultMessageContent(p.ToolResult.ToolCallID, p.ToolResult.Value, !p.ToolResult.OK)
						msgs = append(msgs, anthropic.Message{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{result}})
					}
				}
			}
		}

		var toolDefs []anthropic.ToolDefinition
		for _, ts := range tools {
			var schemaObj any
			if err := json.Unmarshal([]byte(ts.JSONSchema), &schemaObj); err != nil {
				emitError(ctx, out, "EPROTO", fmt.Sprintf("invalid tool schema for %s: %v", ts.Name, err))
				return
			}
			toolDefs = append(toolDefs, anthropic.ToolDefinition{Name: ts.Name, Description: ts.Description, InputSchema: schemaObj})
		}

		maxTokens := 4096
		if opts.MaxOutputTokens > 0 {
			maxTokens = opts.MaxOutputTokens
		}
		temperature := opts.Temperature

		req := anthropic.MessagesStreamRequest{
			MessagesRequest: anthropic.MessagesRequest{
				Model:       anthropic.Model(model),
				Messages:    msgs,
				MaxTokens:   maxTokens,
				Temperature: &temperature,
			},
		}
		if len(systemParts) > 0 {
			req.MultiSystem = systemParts
		}
		if len(toolDefs) > 0 {
			req.Tools = toolDefs
		}

		req.OnError = func(errResp anthropic.ErrorResponse) {
			emitError(ctx, out, "EPROTO", errResp.Error.Message)
		}
		req.OnContentBlockDelta = func(delta anthropic.MessagesEventContentBlockDeltaData) {
			if delta.Delta.Type == "text_delta" && delta.Delta.Text != nil {
				sendEvent(ctx, out, Event{Kind: EventText, TextValue: *delta.Delta.Text})
			}
		}
		req.OnContentBlockStop = func(_ anthropic.MessagesEventContentBlockStopData, content anthropic.MessageContent) {
			if content.Type == "tool_use" && content.MessageContentToolUse != nil {
				tc := content.MessageContentToolUse
				args := map[string]any{}
				if len(tc.Input) > 0 {
					_ = json.Unmarshal(tc.Input, &args)
				}
				sendEvent(ctx, out, Event{Kind: EventToolCall, ToolCall: convmsg.ToolCall{ID: tc.ID, Name: tc.Name, Args: args}})
			}
		}

		resp, err := a.client.CreateMessagesStream(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			emitError(ctx, out, "EPROTO", err.Error())
			return
		}

		reason := FinishStop
		if resp.StopReason == anthropic.MessagesStopReasonToolUse {
			reason = FinishTool
		} else if resp.StopReason == anthropic.MessagesStopReasonMaxTokens {
			reason = FinishLength
		}
		sendEvent(ctx, out, Event{Kind: EventFinish, Reason: reason})
	}()

	return out
}
