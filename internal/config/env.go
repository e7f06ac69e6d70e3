package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/rivulet-labs/convcore/internal/applog"
	"github.com/rivulet-labs/convcore/internal/tools"
)

var log = applog.For("config")

// RuntimeConfig holds the environment-driven settings the CLI entrypoint
// reads once at startup (spec.md §6.5), distinct from the persisted user
// preferences in Config. Grounded on dodo's cmd/repl env loading (godotenv)
// and internal/sandbox.DefaultConfig's env-var-with-fallback style.
type RuntimeConfig struct {
	// OllamaBaseURL is the local LLM server's base URL.
	OllamaBaseURL string
	// TestMode disables default-config writes (Save becomes a no-op),
	// so automated runs never touch a developer's real config.json.
	TestMode bool
	// ApprovalMode overrides the tool registry's approval policy for
	// non-interactive runs (e.g. CI, scripted sessions).
	ApprovalMode tools.ApprovalMode
}

const defaultOllamaBaseURL = "http://localhost:11434"

// LoadRuntimeConfig loads a .env file if present (existing OS environment
// variables win; see godotenv.Load, not Overload) and reads the
// CONVCORE_OLLAMA_BASE_URL, CONVCORE_TEST_MODE, and CONVCORE_APPROVAL_MODE
// environment variables.
func LoadRuntimeConfig() RuntimeConfig {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("failed to load .env file")
	}

	rc := RuntimeConfig{
		OllamaBaseURL: defaultOllamaBaseURL,
		ApprovalMode:  tools.ApprovalAuto,
	}

	if v := strings.TrimSpace(os.Getenv("CONVCORE_OLLAMA_BASE_URL")); v != "" {
		rc.OllamaBaseURL = v
	}

	if v := strings.TrimSpace(os.Getenv("CONVCORE_TEST_MODE")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			log.Warn().Str("value", v).Msg("invalid CONVCORE_TEST_MODE, ignoring")
		} else {
			rc.TestMode = b
		}
	}

	if v := strings.ToLower(strings.TrimSpace(os.Getenv("CONVCORE_APPROVAL_MODE"))); v != "" {
		switch tools.ApprovalMode(v) {
		case tools.ApprovalYOLO, tools.ApprovalAuto, tools.ApprovalAsk:
			rc.ApprovalMode = tools.ApprovalMode(v)
		default:
			log.Warn().Str("value", v).Msg("unknown CONVCORE_APPROVAL_MODE, defaulting to auto")
		}
	}

	return rc
}
