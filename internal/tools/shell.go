package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rivulet-labs/convcore/internal/sandbox"
)

// shellSchema mirrors dodo's internal/tools/execution/cmd.go argument
// shape (command as a single shell line, optional working directory),
// trimmed to what a single illustrative tool needs.
const shellSchema = `{
  "type": "object",
  "properties": {
    "command": {"type": "string", "description": "shell command line to run"}
  },
  "required": ["command"]
}`

// NewShellTool builds the one illustrative shell tool named in spec.md
// §4.11 and the Domain Stack: it runs args["command"] inside the given
// sandbox.Runner (Docker-isolated by default, via internal/sandbox) and is
// classified RiskHigh by Classify, so under AUTO or ASK it always prompts
// for approval.
//
// repoDir is the host directory mounted into the sandbox as the command's
// working directory (the Docker runner binds it read-write at
// /workspace).
func NewShellTool(runner sandbox.Runner, repoDir string) Definition {
	return Definition{
		Name:        "shell",
		Description: "Run a shell command in an isolated sandbox and return its output.",
		SchemaJSON:  shellSchema,
		OutputKind:  OutputShell,
		Timeout:     2 * time.Minute,
		Source:      "builtin",
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			command, _ := args["command"].(string)
			if strings.TrimSpace(command) == "" {
				return "", fmt.Errorf("command must be a non-empty string")
			}

			res, err := runner.RunCmd(ctx, repoDir, "sh", []string{"-c", command}, 0)
			if err != nil {
				return "", err
			}

			var b strings.Builder
			if res.Stdout != "" {
				b.WriteString(res.Stdout)
			}
			if res.Stderr != "" {
				if b.Len() > 0 {
					b.WriteString("\n")
				}
				b.WriteString("[stderr]\n")
				b.WriteString(res.Stderr)
			}
			fmt.Fprintf(&b, "\n[exit code %d]", res.Code)
			if res.TimedOut {
				b.WriteString(" (timed out)")
			}
			return b.String(), nil
		},
	}
}
