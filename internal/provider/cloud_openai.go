package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/rivulet-labs/convcore/internal/convmsg"
)

// OpenAIAdapter is the other half of the cloud fallback Provider Adapter
// described in SPEC_FULL.md's Domain Stack section. Grounded on dodo's
// internal/providers/openai.go tool-call delta accumulation pattern,
// simplified to this package's narrower Event contract.
type OpenAIAdapter struct {
	client *openai.Client
}

// NewOpenAIAdapter constructs an adapter using the given API key and an
// optional base URL override (for OpenAI-compatible gateways).
func NewOpenAIAdapter(apiKey, baseURL string) *OpenAIAdapter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIAdapter{client: openai.NewClientWithConfig(cfg)}
}

func toOpenAIMessages(messages []convmsg.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case convmsg.RoleSystem:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: m.Text()})
		case convmsg.RoleUser:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Text()})
		case convmsg.RoleAssistant:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Text()}
			for _, tc := range m.ToolCalls() {
				argsJSON, _ := json.Marshal(tc.Args)
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(argsJSON),
					},
				})
			}
			out = append(out, msg)
		case convmsg.RoleTool:
			for _, p := range m.Parts {
				if p.Kind == convmsg.PartToolResult && p.ToolResult != nil {
					out = append(out, openai.ChatCompletionMessage{
						Role:       openai.ChatMessageRoleTool,
						Content:    p.ToolResult.Value,
						ToolCallID: p.ToolResult.ToolCallID,
					})
				}
			}
		}
	}
	return out
}

func (a *OpenAIAdapter) Stream(ctx context.Context, model string, messages []convmsg.Message, tools []ToolSchema, opts ChatOptions) <-chan Event {
	out := make(chan Event, 16)

	go func() {
		defer close(out)

		req := openai.ChatCompletionRequest{
			Model:    model,
			Messages: toOpenAIMessages(messages),
			Stream:   true,
		}
		if opts.MaxOutputTokens > 0 {
			req.MaxTokens = opts.MaxOutputTokens
		}
		if opts.Temperature > 0 {
			req.Temperature = opts.Temperature
		}
		for _, ts := range tools {
			var params map[string]any
			_ = json.Unmarshal([]byte(ts.JSONSchema), &params)
			req.Tools = append(req.Tools, openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        ts.Name,
					Description: ts.Description,
					Parameters:  params,
				},
			})
		}
		if len(req.Tools) > 0 {
			req.ToolChoice = "auto"
		}

		stream, err := a.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			emitError(ctx, out, "EPROTO", err.Error())
			return
		}
		defer stream.Close()

		type accum struct {
			name string
			id   string
			args strings.Builder
		}
		byIndex := map[int]*accum{}
		var order []int
		finishReason := openai.FinishReasonStop

		for {
			resp, err := stream.Recv()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					emitError(ctx, out, "EPROTO", err.Error())
					return
				}
				break
			}
			if len(resp.Choices) == 0 {
				continue
			}
			choice := resp.Choices[0]
			if choice.FinishReason != "" {
				finishReason = choice.FinishReason
			}
			if choice.Delta.Content != "" {
				if !sendEvent(ctx, out, Event{Kind: EventText, TextValue: choice.Delta.Content}) {
					return
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				idx := 0
				if tc.Index != nil {
					idx = *tc.Index
				}
				acc, ok := byIndex[idx]
				if !ok {
					acc = &accum{}
					byIndex[idx] = acc
					order = append(order, idx)
				}
				if tc.ID != "" {
					acc.id = tc.ID
				}
				if tc.Function.Name != "" {
					acc.name = tc.Function.Name
				}
				acc.args.WriteString(tc.Function.Arguments)
			}
		}

		for _, idx := range order {
			acc := byIndex[idx]
			args := map[string]any{}
			if acc.args.Len() > 0 {
				_ = json.Unmarshal([]byte(acc.args.String()), &args)
			}
			if !sendEvent(ctx, out, Event{Kind: EventToolCall, ToolCall: convmsg.ToolCall{ID: acc.id, Name: acc.name, Args: args}}) {
				return
			}
		}

		reason := FinishStop
		switch finishReason {
		case openai.FinishReasonLength:
			reason = FinishLength
		case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
			reason = FinishTool
		}
		sendEvent(ctx, out, Event{Kind: EventFinish, Reason: reason})
	}()

	return out
}
