package main

import (
	"bufio"
	"fmt"
	"strings"
	"sync"

	"github.com/rivulet-labs/convcore/internal/convctx"
)

// terminalSink is the CLI's convctx.Sink: it logs every domain event for
// observability (applog, matching dodo's log.Printf status lines) and, for
// tool-approval-requested events, blocks on an interactive y/n prompt and
// replies on the event's ReplyChannel. It shares the single stdin reader
// the main REPL loop uses, since the registry only ever prompts while that
// loop is synchronously blocked inside loop.Run — never concurrently.
type terminalSink struct {
	mu    sync.Mutex
	stdin *bufio.Reader
}

func newTerminalSink(stdin *bufio.Reader) *terminalSink {
	return &terminalSink{stdin: stdin}
}

func (s *terminalSink) Emit(e convctx.Event) {
	if e.Kind == convctx.EventToolApprovalRequested {
		s.promptApproval(e)
		return
	}
	s.logEvent(e)
}

func (s *terminalSink) logEvent(e convctx.Event) {
	l := log.Info().Str("kind", string(e.Kind))
	switch e.Kind {
	case convctx.EventTierChanged:
		l = l.Str("new_tier", e.NewTier)
	case convctx.EventModeChanged:
		l = l.Str("new_mode", e.NewMode)
	case convctx.EventContextWarningLow, convctx.EventMemoryWarning, convctx.EventContextWarningCritical:
		l = l.Float64("usage_pct", e.UsagePct)
	case convctx.EventCompressed:
		l = l.Str("checkpoint_id", e.NewCheckpointID).Int("tokens_freed", e.TokensFreed)
	case convctx.EventSummarizing:
		l = l.Str("phase", e.Phase)
	case convctx.EventAutoSummaryFailed:
		l = l.Str("error", e.Error)
	case convctx.EventSessionSaved:
		l = l.Str("snapshot_id", e.SnapshotID)
	case convctx.EventTurnAborted:
		l = l.Str("reason", e.Reason)
	}
	l.Msg("domain event")
}

// promptApproval blocks the calling goroutine (the tool registry's
// executor) on a synchronous terminal prompt, serialized by s.mu so
// concurrent approval requests from different turns never interleave
// their prompts. It always replies on e.ReplyChannel exactly once.
func (s *terminalSink) promptApproval(e convctx.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Printf("\n[approval] tool %q requests args %v\n", e.ToolName, e.ToolArgs)
	fmt.Print("allow? [y/N] ")

	line, _ := s.stdin.ReadString('\n')
	approved := strings.EqualFold(strings.TrimSpace(line), "y") || strings.EqualFold(strings.TrimSpace(line), "yes")
	e.ReplyChannel <- approved
}
