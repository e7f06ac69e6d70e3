// Package summarize implements the Summarization Service (H) from spec.md
// §4.6: given a target compression level and a list of Messages, issues a
// synchronous (stream-consumed-to-completion) LLM request with a
// level-specific prompt. Grounded on dodo's internal/session/summarizer.go
// (system+user prompt pair sent through the LLM client, trimmed result),
// adapted from dodo's single Chat-call LLMClient onto this module's
// streaming-only provider.Adapter contract.
package summarize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rivulet-labs/convcore/internal/convmsg"
	"github.com/rivulet-labs/convcore/internal/coreerr"
	"github.com/rivulet-labs/convcore/internal/provider"
	"github.com/rivulet-labs/convcore/internal/sizer"
)

// Level is a target compression level, spec.md §3 Compression Level.
type Level int

const (
	Level1Compact  Level = 1
	Level2Reduced  Level = 2
	Level3Standard Level = 3
)

// Timeout is the summarization operation timeout from spec.md §5: "60 s,
// triggers auto-summary-failed" on expiry.
const Timeout = 60 * time.Second

var levelPrompts = map[Level]string{
	Level3Standard: "Summarise preserving all decisions, named entities, and artifacts; target ~30% of original.",
	Level2Reduced:  "Summarise preserving decisions and outcomes; drop intermediate reasoning; ~15%.",
	Level1Compact:  "Produce a topical abstract; ~5%.",
}

// Result is the Summarization Service's return shape (spec.md §4.6).
type Result struct {
	Summary    string
	TokenCount int
	Level      Level
	Model      string
	Success    bool
	Error      error
}

// Service issues summarization requests against a provider.Adapter.
type Service struct {
	adapter provider.Adapter
}

// New constructs a Service over adapter.
func New(adapter provider.Adapter) *Service {
	return &Service{adapter: adapter}
}

// Summarize drains the model's stream to completion and returns the
// resulting summary. It never returns a summary longer (in estimated
// tokens) than the input (spec.md §4.6, property-tested): if the model's
// output somehow exceeds the input's token count, the input's own
// rendering is returned instead and Success remains true, since this is a
// defensive clamp, not a failure of the request itself.
func (s *Service) Summarize(ctx context.Context, model string, level Level, messages []convmsg.Message) Result {
	prompt, ok := levelPrompts[level]
	if !ok {
		return Result{Level: level, Model: model, Success: false, Error: fmt.Errorf("unknown compression level: %d", level)}
	}

	rendered := renderForSummary(messages)
	inputTokens := sizer.EstimateTokens(rendered)

	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	reqMessages := []convmsg.Message{
		convmsg.NewTextMessage(convmsg.RoleSystem, "You represent the memory of an AI coding assistant. "+prompt),
		convmsg.NewTextMessage(convmsg.RoleUser, "Summarize this session:\n\n"+rendered),
	}

	events := s.adapter.Stream(ctx, model, reqMessages, nil, provider.ChatOptions{Temperature: 0.1})

	var sb strings.Builder
	for ev := range events {
		switch ev.Kind {
		case provider.EventText:
			sb.WriteString(ev.TextValue)
		case provider.EventError:
			if ctx.Err() != nil {
				return Result{Level: level, Model: model, Success: false, Error: &coreerr.TimeoutError{Op: "summarize", Ms: Timeout.Milliseconds()}}
			}
			return Result{Level: level, Model: model, Success: false, Error: &coreerr.TransportError{Code: ev.ErrorCode, Message: ev.ErrorMessage}}
		case provider.EventFinish:
			// Loop drains naturally to channel close below.
		}
	}
	if ctx.Err() != nil {
		return Result{Level: level, Model: model, Success: false, Error: &coreerr.TimeoutError{Op: "summarize", Ms: Timeout.Milliseconds()}}
	}

	summary := strings.TrimSpace(sb.String())
	tokenCount := sizer.EstimateTokens(summary)
	if tokenCount > inputTokens {
		summary = rendered
		tokenCount = inputTokens
	}

	return Result{Summary: summary, TokenCount: tokenCount, Level: level, Model: model, Success: true}
}

// renderForSummary renders messages into a flat transcript suitable for a
// summarization prompt, grounded on dodo's engine.RenderForSummary.
func renderForSummary(messages []convmsg.Message) string {
	var sb strings.Builder
	for _, m := range messages {
		if text := m.Text(); text != "" {
			fmt.Fprintf(&sb, "%s: %s\n", m.Role, text)
		}
		for _, tc := range m.ToolCalls() {
			fmt.Fprintf(&sb, "%s: [called tool %s]\n", m.Role, tc.Name)
		}
	}
	return sb.String()
}
