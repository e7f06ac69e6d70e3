package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/rivulet-labs/convcore/internal/memory"
	"github.com/rivulet-labs/convcore/internal/prompt"
	"github.com/rivulet-labs/convcore/internal/sizer"
)

func main() {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("core", flag.ExitOnError)
	model := fs.String("model", "", "model name to use (default: router-selected)")
	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	stdin := bufio.NewReader(os.Stdin)

	env, err := prepareRuntimeEnv(ctx, *model, stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to prepare runtime environment: %v\n", err)
		os.Exit(1)
	}
	defer env.Close()

	log.Info().Str("model", env.Loop.model).Msg("core ready")
	fmt.Printf("convcore ready (model: %s). Type /help for commands.\n", env.Loop.model)

	runREPL(ctx, env, stdin)
}

func runREPL(ctx context.Context, env *runtimeEnv, stdin *bufio.Reader) {
	for {
		fmt.Print("you> ")
		line, err := stdin.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if exit := dispatchCommand(ctx, env, line); exit {
				return
			}
			continue
		}

		if _, err := env.Loop.Ask(ctx, line); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

// dispatchCommand handles the spec.md §6.3 slash-command surface the CLI
// entrypoint owns (the external command dispatcher itself is out of scope
// per spec.md §1; this is only as much routing as the entrypoint needs to
// exercise Router/Context/Tools/Goals/Memory directly). Returns true if
// the REPL should exit.
func dispatchCommand(ctx context.Context, env *runtimeEnv, line string) bool {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/exit", "/quit":
		fmt.Println("bye")
		return true

	case "/help":
		printHelp()

	case "/clear":
		env.Context.SetMode(prompt.ModeDeveloper)
		fmt.Println("(state is conversation-scoped; start a new process for a clean slate)")

	case "/model":
		if len(args) == 0 {
			fmt.Println(env.Loop.model)
			return false
		}
		env.Loop.model = args[0]
		fmt.Printf("model set to %s\n", env.Loop.model)

	case "/mode":
		if len(args) == 0 {
			fmt.Println("usage: /mode <assistant|developer|planning|debugger|user>")
			return false
		}
		env.Context.SetMode(prompt.Mode(args[0]))
		fmt.Printf("mode change queued: %s\n", args[0])

	case "/context":
		handleContext(env, args)

	case "/ls":
		// No dedicated filesystem tool is registered (spec.md §1 treats
		// filesystem/shell tool implementations as out of scope beyond the
		// one illustrative shell tool); list through that tool instead.
		handleToolInvocation(ctx, env, "shell", map[string]any{"command": "ls -la " + firstOr(args, ".")})

	case "/shell":
		handleToolInvocation(ctx, env, "shell", map[string]any{"command": strings.Join(args, " ")})

	case "/memory":
		handleMemory(env, args)

	case "/todos":
		handleTodos(env)

	case "/goal":
		handleGoal(env, args)

	case "/tools":
		for _, def := range env.Tools.List() {
			fmt.Printf("  %-20s %s\n", def.Name, def.Description)
		}

	default:
		fmt.Printf("unknown command: %s (try /help)\n", cmd)
	}
	return false
}

func handleContext(env *runtimeEnv, args []string) {
	if len(args) == 1 {
		size, err := strconv.Atoi(args[0])
		if err != nil || !sizer.IsValid(size) {
			fmt.Printf("invalid size %q; valid sizes: %v\n", args[0], sizer.ValidUserSizes)
			return
		}
		env.Context.SetUserSize(size)
		fmt.Printf("context size change queued: %d\n", size)
		return
	}
	fmt.Printf("user_size=%d server_size=%d usage=%.1f%%\n",
		env.Context.UserSize(), env.Context.ServerSize(), env.Context.UsagePct()*100)
}

func handleToolInvocation(ctx context.Context, env *runtimeEnv, name string, args map[string]any) {
	res := env.Tools.Execute(ctx, name, args)
	if !res.OK {
		fmt.Printf("error [%s]: %s\n", res.Error.Code, res.Error.Message)
		return
	}
	fmt.Println(res.Value)
}

func handleMemory(env *runtimeEnv, args []string) {
	if len(args) == 0 {
		fmt.Println("usage: /memory add|recall|list|forget|clear ...")
		return
	}
	switch args[0] {
	case "add":
		text := strings.Join(args[1:], " ")
		e, err := env.Memory.Add(text, nil)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Printf("remembered (%s)\n", e.ID)

	case "recall":
		entries, err := env.Memory.Recall(strings.Join(args[1:], " "), 5)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		printMemoryEntries(entries)

	case "list":
		entries, err := env.Memory.List()
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		printMemoryEntries(entries)

	case "forget":
		if len(args) < 2 {
			fmt.Println("usage: /memory forget <id>")
			return
		}
		if err := env.Memory.Forget(args[1]); err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Println("forgotten")

	case "clear":
		if err := env.Memory.Clear(); err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Println("memory cleared")

	default:
		fmt.Printf("unknown /memory subcommand: %s\n", args[0])
	}
}

func printMemoryEntries(entries []memory.Entry) {
	for _, e := range entries {
		id := e.ID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Printf("  [%s] %s\n", id, e.Text)
	}
}

// handleGoal is the manual counterpart to the Agent Loop's goal-marker
// extraction: the model drives the Goal Manager through [GOAL]/[CHECKPOINT]/
// etc. markers in its replies, but the operator needs a direct path too
// (e.g. to pause a goal the model never paused itself).
func handleGoal(env *runtimeEnv, args []string) {
	if len(args) == 0 {
		fmt.Println("usage: /goal create <description>|pause|resume|complete <id>|show")
		return
	}
	switch args[0] {
	case "create":
		if len(args) < 2 {
			fmt.Println("usage: /goal create <description>")
			return
		}
		g, err := env.Goals.CreateGoal(strings.Join(args[1:], " "), 0)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Printf("created goal %s\n", g.ID)

	case "pause":
		if len(args) < 2 {
			fmt.Println("usage: /goal pause <id>")
			return
		}
		if err := env.Goals.Pause(args[1]); err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Println("paused")

	case "resume":
		if len(args) < 2 {
			fmt.Println("usage: /goal resume <id>")
			return
		}
		if err := env.Goals.Resume(args[1]); err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Println("resumed")

	case "complete":
		if len(args) < 2 {
			fmt.Println("usage: /goal complete <id>")
			return
		}
		if err := env.Goals.Complete(args[1]); err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Println("completed")

	case "show":
		handleTodos(env)

	default:
		fmt.Printf("unknown /goal subcommand: %s\n", args[0])
	}
}

func handleTodos(env *runtimeEnv) {
	g := env.Goals.Active()
	if g == nil {
		fmt.Println("no active goal")
		return
	}
	fmt.Println(g.RenderBlock())
}

func firstOr(args []string, def string) string {
	if len(args) == 0 {
		return def
	}
	return args[0]
}

func printHelp() {
	fmt.Println(`commands:
  /model [name]           show or set the active model
  /mode <mode>            queue a system-prompt mode change
  /context [size]         show usage or queue a context-size change
  /ls [path]              list a directory via the tool registry
  /shell <command>        run a shell command via the tool registry
  /memory add|recall|list|forget|clear ...
  /goal create|pause|resume|complete|show ...
  /todos                  show the active goal's checkpoint block
  /tools                  list registered tools
  /clear                  reset to developer mode
  /exit                   quit`)
}
