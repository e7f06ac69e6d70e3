// Package applog centralizes structured logging for convcore. Every
// component obtains its logger via For(component) so log lines always carry
// a "component" field, matching how dodo centralized construction of its
// loggers (it used log.Default() everywhere; this is the zerolog
// equivalent).
package applog

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu      sync.Mutex
	out     io.Writer = os.Stderr
	level             = zerolog.InfoLevel
	pretty            = true
)

// Configure sets the process-wide output writer, minimum level, and whether
// to use zerolog's human-readable console writer (true for interactive TTY
// use, false for machine-consumed JSON lines).
func Configure(w io.Writer, lvl zerolog.Level, consoleWriter bool) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	level = lvl
	pretty = consoleWriter
}

// For returns a component-scoped logger.
func For(component string) zerolog.Logger {
	mu.Lock()
	w := out
	lvl := level
	usePretty := pretty
	mu.Unlock()

	if usePretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("component", component).Logger()
}
