package tools

import (
	"context"
	"sort"
	"sync"

	"github.com/rivulet-labs/convcore/internal/convctx"
	"github.com/rivulet-labs/convcore/internal/coreerr"
)

// Risk is the pure risk classification of a tool call, per spec.md §4.11
// ("Risk is a pure function of (tool_name, args)").
type Risk int

const (
	RiskLow Risk = iota
	RiskMedium
	RiskHigh
)

// RiskFunc classifies a call's risk from its name and arguments. The
// registry's default wiring uses Classify; callers may override per
// Definition by wrapping Execute, but spec.md models risk as a function of
// (name, args) alone, so Classify lives at the registry level, not per
// tool.
type RiskFunc func(name string, args map[string]any) Risk

// Classify is the built-in risk classifier. Grounded on dodo's
// internal/engine/tools.go comment taxonomy ("read tools", "write tools",
// "exec tools"): read-only introspection is low, anything that mutates
// workspace state is medium, and anything that runs arbitrary commands is
// high.
func Classify(name string, _ map[string]any) Risk {
	switch name {
	case "read_file", "list_directory", "search", "grep":
		return RiskLow
	case "write_file", "replace_in_file", "delete_file":
		return RiskMedium
	case "shell":
		return RiskHigh
	default:
		return RiskMedium
	}
}

// ApprovalMode is the process-wide tool approval policy (spec.md §4.11).
type ApprovalMode string

const (
	ApprovalYOLO ApprovalMode = "yolo"
	ApprovalAuto ApprovalMode = "auto"
	ApprovalAsk  ApprovalMode = "ask"
)

// Registry is the process-wide tool registry and policy engine (M). It
// owns the set of registered tools, the current approval mode, and
// dispatches execute calls through validation, approval, timeout, and
// truncation. Grounded on dodo's internal/engine/tools.go ToolRegistry,
// generalized with source-tagged dynamic registration and the spec's
// three-mode approval policy (dodo had none — it auto-ran every tool).
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Definition
	mode     ApprovalMode
	classify RiskFunc
	sink     convctx.Sink
}

// New creates a Registry in the given approval mode. A nil sink disables
// tool-approval-requested event emission (ASK/ambiguous-risk prompts will
// always deny in that case, since nothing can answer the reply channel).
func New(mode ApprovalMode, sink convctx.Sink) *Registry {
	return &Registry{
		tools:    make(map[string]Definition),
		mode:     mode,
		classify: Classify,
		sink:     sink,
	}
}

// SetMode changes the process-wide approval mode.
func (r *Registry) SetMode(mode ApprovalMode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = mode
}

// Mode returns the current approval mode.
func (r *Registry) Mode() ApprovalMode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mode
}

// Register adds or replaces a tool definition. Re-registering a name
// already present replaces the prior definition exactly once (spec.md §8
// invariant 13).
func (r *Registry) Register(def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[def.Name] = def
}

// Unregister removes a tool by name. It is a no-op if absent.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// UnregisterSource removes every tool tagged with the given source, used
// when an extension disconnects.
func (r *Registry) UnregisterSource(source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, def := range r.tools {
		if def.Source == source {
			delete(r.tools, name)
		}
	}
}

// Get returns a tool's definition and whether it was found.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// List returns every registered tool's definition, sorted by name for
// deterministic schema ordering toward the model.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.tools))
	for _, def := range r.tools {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute validates args, enforces the approval policy, runs the executor
// under a timeout, truncates output per-kind, and returns the uniform
// Result shape (spec.md §4.11 "Result shape"). It never returns a non-nil
// error for a well-formed call: failures are reported inside Result.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) Result {
	def, ok := r.Get(name)
	if !ok {
		return errResult("ENOTFOUND", "unknown tool", name, args)
	}

	if err := def.ValidateArgs(args); err != nil {
		return errResult("EINVAL", err.Error(), name, args)
	}

	approved, err := r.approve(ctx, def, args)
	if err != nil {
		return errResult("EABORTED", err.Error(), name, args)
	}
	if !approved {
		return errResult("EUSERDENIED", (&coreerr.ApprovalDeniedError{ToolName: name}).Error(), name, args)
	}

	execCtx, cancel := context.WithTimeout(ctx, def.timeout())
	defer cancel()

	resultCh := make(chan struct {
		value string
		err   error
	}, 1)
	go func() {
		value, err := def.Execute(execCtx, args)
		resultCh <- struct {
			value string
			err   error
		}{value, err}
	}()

	select {
	case <-execCtx.Done():
		op := name
		ms := def.timeout().Milliseconds()
		return errResult("ETIMEOUT", (&coreerr.TimeoutError{Op: op, Ms: ms}).Error(), name, args)
	case res := <-resultCh:
		if res.err != nil {
			return errResult("EEXEC", res.err.Error(), name, args)
		}
		return Result{OK: true, Value: truncate(def.OutputKind, res.value)}
	}
}

// approve runs the risk/mode decision. RiskLow under AUTO or YOLO (any
// risk under YOLO) auto-approves; everything else blocks on a
// tool-approval-requested event until the reply channel answers or ctx is
// cancelled.
func (r *Registry) approve(ctx context.Context, def Definition, args map[string]any) (bool, error) {
	r.mu.RLock()
	mode := r.mode
	classify := r.classify
	sink := r.sink
	r.mu.RUnlock()

	risk := classify(def.Name, args)

	if mode == ApprovalYOLO {
		return true, nil
	}
	if mode == ApprovalAuto && risk == RiskLow {
		return true, nil
	}

	if sink == nil {
		return false, nil
	}

	reply := make(chan bool, 1)
	sink.Emit(convctx.Event{
		Kind:         convctx.EventToolApprovalRequested,
		ToolName:     def.Name,
		ToolArgs:     args,
		ReplyChannel: reply,
	})

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case approved := <-reply:
		return approved, nil
	}
}

func errResult(code, message, tool string, args map[string]any) Result {
	return Result{
		OK: false,
		Error: &ResultError{
			Code:    code,
			Message: message,
			Tool:    tool,
			Args:    args,
		},
	}
}

// AsToolMessageContent renders a Result as the text content of a tool-role
// message fed back to the model (spec.md §4.11 "fed to the Agent Loop as a
// tool role message").
func (res Result) AsToolMessageContent() string {
	if res.OK {
		return res.Value
	}
	return res.Error.Message
}
