// Package tools implements the Tool Registry & Policy Engine (M) from
// spec.md §4.11: uniform registration, JSON-Schema argument validation,
// risk-based approval policy, timeout-bounded execution with per-kind
// output truncation, and a uniform {ok, value|error} result shape fed back
// to the Agent Loop as a tool-role message. Grounded on dodo's
// internal/engine/tools.go (Tool/ToolRegistry/ValidateArgs via
// gojsonschema) and internal/tools/registry.go (the dynamic registration
// idea), generalized from a fixed build-time tool set into the spec's
// register/unregister-at-runtime registry with risk classification and an
// approval workflow dodo never had.
package tools

import (
	"context"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/rivulet-labs/convcore/internal/coreerr"
)

// OutputKind tags a tool's result for truncation purposes (spec.md §4.11).
type OutputKind string

const (
	OutputFile      OutputKind = "file"
	OutputDirectory OutputKind = "directory"
	OutputSearch    OutputKind = "search"
	OutputShell     OutputKind = "shell"
	OutputOther     OutputKind = "other"
)

// Truncation limits per spec.md §4.11.
const (
	FileContentLimitBytes = 10 * 1024
	DirectoryListingLimit = 1000
	SearchResultsLimit    = 100
	ShellOutputLimitBytes = 10 * 1024

	// DefaultTimeout is the execution timeout applied when a Definition
	// doesn't set its own.
	DefaultTimeout = 30 * time.Second
)

// Executor runs a tool's side effect and returns a raw, untruncated
// result. Truncation and the {ok,value}/{ok,error} envelope are applied by
// the Registry, not the executor.
type Executor func(ctx context.Context, args map[string]any) (string, error)

// Definition is one tool's registration: name, description, JSON Schema,
// executor, output kind (for truncation), and a source tag (for
// de-registration on disconnect).
type Definition struct {
	Name        string
	Description string
	SchemaJSON  string
	Execute     Executor
	OutputKind  OutputKind
	Timeout     time.Duration // 0 means DefaultTimeout
	Source      string        // e.g. "builtin", or an extension's identifier
}

func (d Definition) timeout() time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	return DefaultTimeout
}

// ValidateArgs checks args against the tool's JSON Schema (type, required
// fields, enum membership, range bounds), per spec.md §4.11 "Validation".
func (d Definition) ValidateArgs(args map[string]any) error {
	schemaLoader := gojsonschema.NewStringLoader(d.SchemaJSON)
	documentLoader := gojsonschema.NewGoLoader(args)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return &coreerr.ValidationError{Message: err.Error()}
	}
	if !result.Valid() {
		errs := result.Errors()
		field := ""
		if len(errs) > 0 {
			field = errs[0].Field()
		}
		return &coreerr.ValidationError{Field: field, Message: errs[0].String()}
	}
	return nil
}

// ResultError is the failure shape of a tool call, fed back to the model
// verbatim (spec.md §4.11 "Result shape").
type ResultError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Tool    string         `json:"tool"`
	Args    map[string]any `json:"args"`
}

// Result is a tool call's uniform outcome.
type Result struct {
	OK    bool         `json:"ok"`
	Value string       `json:"value,omitempty"`
	Error *ResultError `json:"error,omitempty"`
}

func truncate(kind OutputKind, value string) string {
	switch kind {
	case OutputFile:
		return truncateBytes(value, FileContentLimitBytes, false)
	case OutputShell:
		return truncateBytes(value, ShellOutputLimitBytes, true)
	case OutputDirectory:
		return truncateLines(value, DirectoryListingLimit)
	case OutputSearch:
		return truncateLines(value, SearchResultsLimit)
	default:
		return value
	}
}

// truncateBytes keeps the head (tail=false) or tail (tail=true) of value
// within limit bytes, appending a "[truncated]" marker when it cuts.
func truncateBytes(value string, limit int, tail bool) string {
	if len(value) <= limit {
		return value
	}
	if tail {
		return "[truncated]\n" + value[len(value)-limit:]
	}
	return value[:limit] + "\n[truncated]"
}

// truncateLines keeps the first maxLines newline-separated entries of
// value, appending a "[truncated]" marker when it cuts.
func truncateLines(value string, maxLines int) string {
	lines := splitLines(value)
	if len(lines) <= maxLines {
		return value
	}
	kept := lines[:maxLines]
	return joinLines(kept) + "\n[truncated]"
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}
