package main

import (
	"context"
	"fmt"

	"github.com/rivulet-labs/convcore/internal/agentloop"
	"github.com/rivulet-labs/convcore/internal/convctx"
	"github.com/rivulet-labs/convcore/internal/goal"
	"github.com/rivulet-labs/convcore/internal/provider"
	"github.com/rivulet-labs/convcore/internal/tools"
)

// agentLoopRunner adapts agentloop.Loop to the REPL's one-line-in,
// streamed-text-out calling convention, printing text deltas as they
// arrive rather than buffering the whole reply.
type agentLoopRunner struct {
	convCtx *convctx.Manager
	adapter provider.Adapter
	tools   *tools.Registry
	goals   *goal.Manager
	model   string
}

func (r *agentLoopRunner) Ask(ctx context.Context, text string) (agentloop.Result, error) {
	loop := &agentloop.Loop{
		Context: r.convCtx,
		Adapter: r.adapter,
		Tools:   r.tools,
		Goals:   r.goals,
	}
	res, err := loop.Run(ctx, agentloop.Input{
		UserText: text,
		Model:    r.model,
		Options:  provider.ChatOptions{Think: true},
		OnText: func(chunk string) {
			fmt.Print(chunk)
		},
	})
	fmt.Println()
	return res, err
}
