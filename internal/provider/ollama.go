package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rivulet-labs/convcore/internal/convmsg"
)

// OllamaAdapter implements Adapter against a local Ollama-compatible
// /api/chat endpoint using the literal wire format of spec.md §6.1:
// newline-delimited JSON frames, each independently decoded. Grounded on
// teradata-labs-loom's pkg/llm/ollama/client.go (the closest real analogue
// in the retrieval pack to this wire format) but written in dodo's
// channel-based streaming idiom (internal/providers/openai.go).
type OllamaAdapter struct {
	BaseURL    string // default http://localhost:11434
	HTTPClient *http.Client
}

// NewOllamaAdapter constructs an adapter against baseURL. An empty baseURL
// defaults to http://localhost:11434 per spec.md §6.5.
func NewOllamaAdapter(baseURL string) *OllamaAdapter {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaAdapter{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			// No overall client Timeout here: a turn is bounded only by the
			// caller's context, and Stream applies no per-frame timeout
			// (FrameTimeout and TurnTimeout below are not used by Stream).
		},
	}
}

// wireMessage is the request-side message shape (spec.md §6.1).
type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

type wireTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type wireRequest struct {
	Model     string         `json:"model"`
	Messages  []wireMessage  `json:"messages"`
	Options   map[string]any `json:"options"`
	Tools     []wireTool     `json:"tools,omitempty"`
	Think     bool           `json:"think,omitempty"`
	Stream    bool           `json:"stream"`
	RequestID string         `json:"request_id,omitempty"`
}

// buildWireOptions assembles the request's "options" object: the mirrored
// max-tokens keys and num_ctx/temperature/top_p first (spec.md §4.2,
// §6.1), then opts.ExtraOptions passed through unchanged for any key not
// already claimed by a mirrored option — the "unknown keys pass through
// unchanged" contract of spec.md §4.2.
func buildWireOptions(opts ChatOptions) map[string]any {
	m := make(map[string]any, len(opts.ExtraOptions)+4)
	if opts.NumCtx > 0 {
		m["num_ctx"] = opts.NumCtx
	}
	if opts.Temperature != 0 {
		m["temperature"] = opts.Temperature
	}
	if opts.TopP != 0 {
		m["top_p"] = opts.TopP
	}
	if opts.MaxOutputTokens > 0 {
		m["maxTokens"] = opts.MaxOutputTokens
		m["max_new_tokens"] = opts.MaxOutputTokens
		m["max_tokens"] = opts.MaxOutputTokens
	}
	for k, v := range opts.ExtraOptions {
		if _, claimed := m[k]; !claimed {
			m[k] = v
		}
	}
	return m
}

// wireToolCall and wireResponseMessage mirror the response-side shapes of
// spec.md §6.1.
type wireFunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type wireToolCall struct {
	ID       string           `json:"id"`
	Function wireFunctionCall `json:"function"`
}

type wireResponseMessage struct {
	Content   string         `json:"content"`
	Thinking  string         `json:"thinking"`
	ToolCalls []wireToolCall `json:"tool_calls"`
}

type wireFrame struct {
	Message    *wireResponseMessage `json:"message"`
	Done       bool                 `json:"done"`
	DoneReason string               `json:"done_reason"`
	Error      string               `json:"error"`
}

func toWireMessages(messages []convmsg.Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		wm := wireMessage{Role: string(m.Role), Content: m.Text()}
		if m.Role == convmsg.RoleTool {
			wm.Name = m.ToolName
			// Tool result messages always present a textual part even when
			// the tool returned structured data (spec.md §4.2): Text()
			// already serializes every text part in order, so nothing
			// further is needed here, but if no text part exists we fall
			// back to serializing the tool result value directly.
			if wm.Content == "" {
				for _, p := range m.Parts {
					if p.Kind == convmsg.PartToolResult && p.ToolResult != nil {
						wm.Content = p.ToolResult.Value
						break
					}
				}
			}
		}
		out = append(out, wm)
	}
	return out
}

// Stream implements Adapter. It opens one HTTP POST per call (never shared
// across turns, per spec.md §5) and emits Events on the returned channel
// until exactly one terminal event has been sent.
func (a *OllamaAdapter) Stream(ctx context.Context, model string, messages []convmsg.Message, tools []ToolSchema, opts ChatOptions) <-chan Event {
	out := make(chan Event, 16)

	go func() {
		defer close(out)

		req := wireRequest{
			Model:     model,
			Messages:  toWireMessages(messages),
			Stream:    true,
			Think:     opts.Think,
			Options:   buildWireOptions(opts),
			RequestID: opts.RequestID,
		}
		for _, ts := range tools {
			req.Tools = append(req.Tools, wireTool{
				Name:        ts.Name,
				Description: ts.Description,
				Parameters:  json.RawMessage(ts.JSONSchema),
			})
		}

		body, err := json.Marshal(req)
		if err != nil {
			emitError(ctx, out, "EPROTO", fmt.Sprintf("encoding request: %v", err))
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/api/chat", strings.NewReader(string(body)))
		if err != nil {
			emitError(ctx, out, "EPROTO", fmt.Sprintf("building request: %v", err))
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if opts.RequestID != "" {
			httpReq.Header.Set("X-Request-Id", opts.RequestID)
		}

		resp, err := a.HTTPClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				// Cancellation: no further events, no error (spec.md §4.2).
				return
			}
			emitError(ctx, out, classifyTransportErr(err), err.Error())
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			emitError(ctx, out, "EPROTO", fmt.Sprintf("server returned status %d", resp.StatusCode))
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			var frame wireFrame
			if err := json.Unmarshal([]byte(line), &frame); err != nil {
				emitError(ctx, out, "EPROTO", fmt.Sprintf("malformed frame: %v", err))
				return
			}

			if frame.Error != "" {
				code := "EPROTO"
				if strings.Contains(strings.ToLower(frame.Error), "context") {
					code = "CTX_OVERFLOW"
				}
				emitError(ctx, out, code, frame.Error)
				return
			}

			if frame.Message != nil {
				if frame.Message.Thinking != "" {
					if !sendEvent(ctx, out, Event{Kind: EventThinking, TextValue: frame.Message.Thinking}) {
						return
					}
				}
				if frame.Message.Content != "" {
					if !sendEvent(ctx, out, Event{Kind: EventText, TextValue: frame.Message.Content}) {
						return
					}
				}
				for _, tc := range frame.Message.ToolCalls {
					args := map[string]any{}
					if len(tc.Function.Arguments) > 0 {
						_ = json.Unmarshal(tc.Function.Arguments, &args)
					}
					ev := Event{
						Kind: EventToolCall,
						ToolCall: convmsg.ToolCall{
							ID:   tc.ID,
							Name: tc.Function.Name,
							Args: args,
						},
					}
					if !sendEvent(ctx, out, ev) {
						return
					}
				}
			}

			if frame.Done {
				reason := FinishReason(frame.DoneReason)
				switch reason {
				case FinishStop, FinishLength, FinishTool:
				default:
					reason = FinishStop
				}
				sendEvent(ctx, out, Event{Kind: EventFinish, Reason: reason})
				return
			}
		}

		if err := scanner.Err(); err != nil {
			if ctx.Err() == nil {
				emitError(ctx, out, classifyTransportErr(err), err.Error())
			}
			return
		}
	}()

	return out
}

func sendEvent(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func emitError(ctx context.Context, out chan<- Event, code, message string) {
	sendEvent(ctx, out, Event{Kind: EventError, ErrorCode: code, ErrorMessage: message})
}

func classifyTransportErr(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "ETIMEDOUT"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"):
		return "ECONNREFUSED"
	case strings.Contains(msg, "no such host"):
		return "ENOTFOUND"
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return "ETIMEDOUT"
	default:
		return "EPROTO"
	}
}

// FrameTimeout is the default inter-frame timeout from spec.md §5. It is
// exported for callers; Stream does not apply it.
const FrameTimeout = 30 * time.Second

// TurnTimeout is the default overall-turn timeout from spec.md §5. It is
// exported for callers; Stream does not apply it.
const TurnTimeout = 10 * time.Minute
