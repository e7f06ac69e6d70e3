package tools

import (
	"context"
	"testing"
	"time"

	"github.com/rivulet-labs/convcore/internal/sandbox"
)

type fakeRunner struct {
	gotName string
	gotArgs []string
	result  sandbox.Result
	err     error
}

func (f *fakeRunner) RunCmd(_ context.Context, _ string, name string, args []string, _ time.Duration) (sandbox.Result, error) {
	f.gotName = name
	f.gotArgs = args
	return f.result, f.err
}

func TestShellToolRunsCommandAndFormatsOutput(t *testing.T) {
	runner := &fakeRunner{result: sandbox.Result{Stdout: "hi", Code: 0}}
	def := NewShellTool(runner, "/repo")

	r := New(ApprovalYOLO, nil)
	r.Register(def)

	res := r.Execute(context.Background(), "shell", map[string]any{"command": "echo hi"})
	if !res.OK {
		t.Fatalf("Execute() failed: %+v", res.Error)
	}
	if runner.gotName != "sh" || len(runner.gotArgs) != 2 || runner.gotArgs[0] != "-c" || runner.gotArgs[1] != "echo hi" {
		t.Fatalf("runner invoked with name=%q args=%v, want sh [-c \"echo hi\"]", runner.gotName, runner.gotArgs)
	}
}

func TestShellToolRejectsEmptyCommand(t *testing.T) {
	runner := &fakeRunner{}
	def := NewShellTool(runner, "/repo")

	r := New(ApprovalYOLO, nil)
	r.Register(def)

	res := r.Execute(context.Background(), "shell", map[string]any{"command": "   "})
	if res.OK {
		t.Fatalf("expected empty command to fail")
	}
	if res.Error.Code != "EEXEC" {
		t.Fatalf("Error.Code = %q, want EEXEC", res.Error.Code)
	}
}

func TestShellToolRiskIsHigh(t *testing.T) {
	if Classify("shell", nil) != RiskHigh {
		t.Fatalf("shell tool must classify as RiskHigh")
	}
}
