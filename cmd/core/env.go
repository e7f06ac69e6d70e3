package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rivulet-labs/convcore/internal/applog"
	"github.com/rivulet-labs/convcore/internal/checkpoint"
	"github.com/rivulet-labs/convcore/internal/config"
	"github.com/rivulet-labs/convcore/internal/convctx"
	"github.com/rivulet-labs/convcore/internal/emergency"
	"github.com/rivulet-labs/convcore/internal/goal"
	"github.com/rivulet-labs/convcore/internal/memory"
	"github.com/rivulet-labs/convcore/internal/prompt"
	"github.com/rivulet-labs/convcore/internal/provider"
	"github.com/rivulet-labs/convcore/internal/router"
	"github.com/rivulet-labs/convcore/internal/sandbox"
	"github.com/rivulet-labs/convcore/internal/snapshot"
	"github.com/rivulet-labs/convcore/internal/summarize"
	"github.com/rivulet-labs/convcore/internal/tools"
)

var log = applog.For("core")

// runtimeEnv bundles every live component the REPL loop dispatches into,
// analogous to dodo's cmd/repl/env.go runtimeEnv but wired to
// convcore's own component set (B/D/E/G/I/J/K/L/M/N) instead of dodo's
// indexer/workspace retrieval stack.
type runtimeEnv struct {
	Runtime config.RuntimeConfig
	Router  *router.Router
	Adapter provider.Adapter
	Context *convctx.Manager
	Tools   *tools.Registry
	Goals   *goal.Manager
	Memory  *memory.Store
	Loop    *agentLoopRunner

	stateDir  string
	tierStore *prompt.TieredStore
	snapStore *snapshot.Store
}

func (r *runtimeEnv) Close() {
	if r.tierStore != nil {
		r.tierStore.Close()
	}
	if r.snapStore != nil {
		r.snapStore.Close()
	}
	if r.Memory != nil {
		r.Memory.Close()
	}
}

// prepareRuntimeEnv wires every component built for SPEC_FULL.md into one
// running session, mirroring dodo's prepareRuntimeEnv: resolve a state
// directory, load persisted config, build the long-lived services, then
// construct the Context Manager and Agent Loop around them.
func prepareRuntimeEnv(ctx context.Context, model string, stdin *bufio.Reader) (*runtimeEnv, error) {
	rc := config.LoadRuntimeConfig()

	stateDir, err := stateDirectory()
	if err != nil {
		return nil, fmt.Errorf("resolve state directory: %w", err)
	}
	log.Info().Str("dir", stateDir).Msg("using state directory")

	cfgManager, err := config.NewManagerWithRuntime(rc)
	if err != nil {
		return nil, fmt.Errorf("init config manager: %w", err)
	}
	userCfg, err := cfgManager.Load()
	if err != nil {
		log.Warn().Err(err).Msg("failed to load persisted config, continuing with defaults")
		userCfg = &config.Config{}
	}
	if userCfg.Model != "" && model == "" {
		model = userCfg.Model
	}

	adapter := provider.NewOllamaAdapter(rc.OllamaBaseURL)

	rtr := router.New()
	for _, p := range router.BuiltinProfiles() {
		rtr.AddProfile(p)
	}
	if models, err := discoverOllamaModels(ctx, rc.OllamaBaseURL); err != nil {
		log.Warn().Err(err).Msg("failed to discover Ollama models, model selection will rely on the requested name only")
	} else if model == "" && len(models) > 0 {
		model = rtr.Select("general", models)
	}
	if model == "" {
		model = "llama3"
	}

	tierStore, err := prompt.NewTieredStore("", filepath.Join(stateDir, "prompts"))
	if err != nil {
		return nil, fmt.Errorf("open tiered prompt store: %w", err)
	}
	builder := prompt.NewBuilder(tierStore)

	snapStore, err := snapshot.Open(ctx, filepath.Join(stateDir, "snapshots.db"))
	if err != nil {
		tierStore.Close()
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}

	summarizer := summarize.New(adapter)
	lifecycle := checkpoint.New(summarizer, model)
	actions := emergency.New(snapStore, lifecycle, summarizer, model)
	goals := goal.NewManager()

	sink := newTerminalSink(stdin)

	convCtx := convctx.New(convctx.Config{
		Builder:    builder,
		Goals:      goals,
		Lifecycle:  lifecycle,
		Summarizer: summarizer,
		Snapshots:  snapStore,
		Emergency:  actions,
		Model:      model,
		Mode:       prompt.ModeDeveloper,
		UserSize:   16384,
		Sink:       sink,
	})

	reg := tools.New(rc.ApprovalMode, sink)
	reg.Register(tools.NewShellTool(sandbox.NewDefaultRunner(), stateDir))

	mem, err := memory.Open(filepath.Join(stateDir, "memory.bleve"))
	if err != nil {
		snapStore.Close()
		tierStore.Close()
		return nil, fmt.Errorf("open memory store: %w", err)
	}

	loop := &agentLoopRunner{convCtx: convCtx, adapter: adapter, tools: reg, goals: goals, model: model}

	return &runtimeEnv{
		Runtime:   rc,
		Router:    rtr,
		Adapter:   adapter,
		Context:   convCtx,
		Tools:     reg,
		Goals:     goals,
		Memory:    mem,
		Loop:      loop,
		stateDir:  stateDir,
		tierStore: tierStore,
		snapStore: snapStore,
	}, nil
}

func stateDirectory() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, "convcore")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// discoverOllamaModels queries the local server's /api/tags endpoint and
// converts the result into router.Model candidates. /api/tags does not
// report per-model capabilities, so every discovered model is assumed to
// support streaming (the one capability every builtin profile requires)
// and tool calling; vision/reasoning stay false until a richer
// model database is layered in via router.LoadUserOverrides.
func discoverOllamaModels(ctx context.Context, baseURL string) ([]router.Model, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("ollama /api/tags returned status %d", resp.StatusCode)
	}

	var body struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}

	out := make([]router.Model, 0, len(body.Models))
	for _, m := range body.Models {
		out = append(out, router.Model{
			ID:               m.Name,
			Name:             m.Name,
			Family:           "llama",
			MaxContextWindow: 8192,
			Streaming:        true,
			ToolCalling:      true,
		})
	}
	return out, nil
}

