package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/rivulet-labs/convcore/internal/applog"
)

// Mode is one of the five conversation modes a template may be keyed on.
type Mode string

const (
	ModeAssistant Mode = "assistant"
	ModeDeveloper Mode = "developer"
	ModePlanning  Mode = "planning"
	ModeDebugger  Mode = "debugger"
	ModeUser      Mode = "user"
)

// hardCodedFallback is the (developer, 3) template baked into the binary,
// the last link of the fallback chain in spec.md §4.3: "packaged-dist ->
// source-tree -> hard-coded (developer, 3)".
const hardCodedFallback = `You are an interactive terminal coding assistant operating in developer mode with a standard context budget. Be direct, verify your assumptions against the workspace before acting, and prefer small verifiable steps over large speculative changes.`

type tierKey struct {
	mode Mode
	tier int
}

// TieredStore is the read-only (mode, tier) -> template table from spec.md
// §4.3. It loads from a packaged-distribution directory, then a
// source-tree directory that overrides identically-named files and is
// watched for hot-reload via fsnotify, falling back to a hard-coded
// (developer, 3) template when nothing else resolves.
type TieredStore struct {
	mu        sync.RWMutex
	templates map[tierKey]string

	distDir   string
	sourceDir string
	watcher   *fsnotify.Watcher
}

// NewTieredStore loads templates from distDir then sourceDir (sourceDir
// entries override distDir entries of the same (mode, tier)), and, if
// sourceDir exists, starts an fsnotify watch so edits there are picked up
// without a restart.
func NewTieredStore(distDir, sourceDir string) (*TieredStore, error) {
	s := &TieredStore{
		templates: make(map[tierKey]string),
		distDir:   distDir,
		sourceDir: sourceDir,
	}
	if err := s.loadDir(distDir); err != nil {
		return nil, fmt.Errorf("loading packaged templates: %w", err)
	}
	if err := s.loadDir(sourceDir); err != nil {
		return nil, fmt.Errorf("loading source-tree templates: %w", err)
	}
	if sourceDir != "" {
		if _, err := os.Stat(sourceDir); err == nil {
			if err := s.watchSourceDir(); err != nil {
				return nil, fmt.Errorf("watching source-tree templates: %w", err)
			}
		}
	}
	return s, nil
}

// loadDir loads every "<mode>.<tier>.txt" file under dir into the table.
// An empty or absent dir is not an error.
func (s *TieredStore) loadDir(dir string) error {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		key, ok := parseTemplateFilename(e.Name())
		if !ok {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return err
		}
		s.templates[key] = string(content)
	}
	return nil
}

func (s *TieredStore) watchSourceDir() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(s.sourceDir); err != nil {
		w.Close()
		return err
	}
	s.watcher = w

	logger := applog.For("prompt.tiered_store")
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if err := s.loadDir(s.sourceDir); err != nil {
					logger.Error().Err(err).Msg("reloading source-tree templates failed")
				} else {
					logger.Info().Str("event", ev.Name).Msg("reloaded source-tree templates")
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error().Err(err).Msg("template watcher error")
			}
		}
	}()
	return nil
}

// Close stops the hot-reload watcher, if one was started.
func (s *TieredStore) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// Lookup implements spec.md §4.3's resolution order: exact (mode, tier) ->
// same-mode lower tier -> hard-coded (developer, 3).
func (s *TieredStore) Lookup(mode Mode, tier int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for t := tier; t >= 1; t-- {
		if content, ok := s.templates[tierKey{mode, t}]; ok {
			return content
		}
	}
	return hardCodedFallback
}

func parseTemplateFilename(name string) (tierKey, bool) {
	// Expected shape: "<mode>.<tier>.txt"
	base := name
	ext := filepath.Ext(base)
	if ext != ".txt" {
		return tierKey{}, false
	}
	base = base[:len(base)-len(ext)]
	dot := -1
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '.' {
			dot = i
			break
		}
	}
	if dot < 0 {
		return tierKey{}, false
	}
	modePart, tierPart := base[:dot], base[dot+1:]
	var tier int
	if _, err := fmt.Sscanf(tierPart, "%d", &tier); err != nil || tier < 1 || tier > 5 {
		return tierKey{}, false
	}
	return tierKey{Mode(modePart), tier}, true
}
