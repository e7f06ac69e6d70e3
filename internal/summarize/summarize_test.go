package summarize

import (
	"context"
	"testing"

	"github.com/rivulet-labs/convcore/internal/convmsg"
	"github.com/rivulet-labs/convcore/internal/provider"
)

type fakeAdapter struct {
	text    string
	errCode string
	errMsg  string
}

func (f *fakeAdapter) Stream(ctx context.Context, model string, messages []convmsg.Message, tools []provider.ToolSchema, opts provider.ChatOptions) <-chan provider.Event {
	out := make(chan provider.Event, 4)
	go func() {
		defer close(out)
		if f.errCode != "" {
			out <- provider.Event{Kind: provider.EventError, ErrorCode: f.errCode, ErrorMessage: f.errMsg}
			return
		}
		out <- provider.Event{Kind: provider.EventText, TextValue: f.text}
		out <- provider.Event{Kind: provider.EventFinish, Reason: provider.FinishStop}
	}()
	return out
}

func sampleMessages() []convmsg.Message {
	return []convmsg.Message{
		convmsg.NewTextMessage(convmsg.RoleUser, "I need to fix the login bug in the auth module"),
		convmsg.NewTextMessage(convmsg.RoleAssistant, "Updated the token validation logic to reject expired sessions"),
	}
}

func TestSummarizeReturnsTrimmedSummary(t *testing.T) {
	svc := New(&fakeAdapter{text: "  User fixed a login bug by validating tokens.  "})
	result := svc.Summarize(context.Background(), "test-model", Level3Standard, sampleMessages())

	if !result.Success {
		t.Fatalf("expected success, got error: %v", result.Error)
	}
	if result.Summary != "User fixed a login bug by validating tokens." {
		t.Fatalf("expected trimmed summary, got %q", result.Summary)
	}
	if result.Level != Level3Standard || result.Model != "test-model" {
		t.Fatalf("expected level/model echoed back, got %+v", result)
	}
}

func TestSummarizeNeverLongerThanInput(t *testing.T) {
	// The fake adapter "summary" is deliberately much longer than the input
	// messages it was asked to summarize.
	longOutput := ""
	for i := 0; i < 500; i++ {
		longOutput += "this output is much too long to be a real summary of a short conversation "
	}
	svc := New(&fakeAdapter{text: longOutput})
	messages := []convmsg.Message{convmsg.NewTextMessage(convmsg.RoleUser, "hi")}

	result := svc.Summarize(context.Background(), "test-model", Level1Compact, messages)
	if !result.Success {
		t.Fatalf("expected success, got error: %v", result.Error)
	}
	if len(result.Summary) >= len(longOutput) {
		t.Fatalf("expected clamped summary shorter than model output, got len=%d", len(result.Summary))
	}
}

func TestSummarizePropagatesTransportError(t *testing.T) {
	svc := New(&fakeAdapter{errCode: "ECONNREFUSED", errMsg: "connection refused"})
	result := svc.Summarize(context.Background(), "test-model", Level2Reduced, sampleMessages())

	if result.Success {
		t.Fatal("expected failure on transport error")
	}
	if result.Error == nil {
		t.Fatal("expected a non-nil error")
	}
}

func TestSummarizeUnknownLevel(t *testing.T) {
	svc := New(&fakeAdapter{text: "x"})
	result := svc.Summarize(context.Background(), "test-model", Level(99), sampleMessages())
	if result.Success {
		t.Fatal("expected failure for an unknown compression level")
	}
}
