package agentloop

import (
	"context"
	"strings"
	"time"

	"github.com/rivulet-labs/convcore/internal/convmsg"
	"github.com/rivulet-labs/convcore/internal/provider"
)

// streamOutcome accumulates one turn's provider.Event stream into the
// parts of the eventual assistant convmsg.Message, plus the tool calls the
// model requested (spec.md §4.12 step 3c/d).
type streamOutcome struct {
	text        strings.Builder
	reasoning   strings.Builder
	sawThinking bool // native thinking event seen; disables the <think> tag parser
	toolCalls   []convmsg.ToolCall
	aborted     bool
}

func (o *streamOutcome) assistantMessage() convmsg.Message {
	msg := convmsg.Message{Role: convmsg.RoleAssistant, Timestamp: time.Now()}
	if o.text.Len() > 0 {
		msg.Parts = append(msg.Parts, convmsg.Part{Kind: convmsg.PartText, Text: o.text.String()})
	}
	for i := range o.toolCalls {
		msg.Parts = append(msg.Parts, convmsg.Part{Kind: convmsg.PartToolCall, ToolCall: &o.toolCalls[i]})
	}
	if o.reasoning.Len() > 0 {
		msg.Reasoning = &convmsg.ReasoningBlock{Content: o.reasoning.String()}
	}
	return msg
}

// consume drains events until a terminal event (EventFinish/EventError) or
// ctx cancellation, applying the text/thinking event-handling rules from
// spec.md §4.12 step 3c. onText, if non-nil, receives each displayed text
// delta as it is produced (not the raw reasoning-stripped accumulation).
func (l *Loop) consume(ctx context.Context, parser *thinkParser, events <-chan provider.Event, onText func(string)) (streamOutcome, error) {
	var out streamOutcome

	for {
		select {
		case <-ctx.Done():
			out.aborted = true
			return out, nil
		case e, ok := <-events:
			if !ok {
				return out, nil
			}
			switch e.Kind {
			case provider.EventThinking:
				out.sawThinking = true
				out.reasoning.WriteString(e.TextValue)

			case provider.EventText:
				if out.sawThinking {
					out.text.WriteString(e.TextValue)
					if onText != nil {
						onText(e.TextValue)
					}
					continue
				}
				display, reasoning := parser.feed(e.TextValue)
				out.text.WriteString(display)
				out.reasoning.WriteString(reasoning)
				if onText != nil && display != "" {
					onText(display)
				}

			case provider.EventToolCall:
				out.toolCalls = append(out.toolCalls, e.ToolCall)

			case provider.EventError:
				if e.ErrorCode == "CTX_OVERFLOW" {
					return out, &overflowError{message: e.ErrorMessage}
				}
				return out, &streamError{code: e.ErrorCode, message: e.ErrorMessage}

			case provider.EventFinish:
				if !out.sawThinking {
					if flushed := parser.reset(); flushed != "" {
						out.text.WriteString(flushed)
						if onText != nil {
							onText(flushed)
						}
					}
				}
				return out, nil
			}
		}
	}
}

// streamError wraps a non-overflow EventError for the loop to fail on.
type streamError struct {
	code    string
	message string
}

func (e *streamError) Error() string {
	return "provider stream error [" + e.code + "]: " + e.message
}
