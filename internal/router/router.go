// Package router implements the Model Database & Router (B) from spec.md
// §4.13: a static/user-augmented model catalog plus a profile→model scoring
// algorithm with capability filtering and fallback chains. Grounded on
// dodo's internal/engine/limits.go (per-model-family table shape) and
// internal/engine/agent_config.go (config-driven defaults), generalized
// into a data-driven catalog rather than a hardcoded switch.
package router

import (
	"encoding/json"
	"math"
	"os"
	"sort"
)

// Capability is one of the three capability flags a profile may require.
type Capability string

const (
	CapStreaming   Capability = "streaming"
	CapToolCalling Capability = "tool_calling"
	CapVision      Capability = "vision"
)

// Model is one entry in the catalog: either built in or loaded from the
// user's override document (spec.md §6.4).
type Model struct {
	ID               string
	Name             string
	Family           string // e.g. "llama", "qwen", "codellama"
	Parameters       int64  // parameter count, used only as a tiebreaker
	MaxContextWindow int
	Streaming        bool
	ToolCalling      bool
	Vision           bool
	Reasoning        bool // explicit capability field per the Open Question resolution: no name-substring heuristics
}

func (m Model) has(c Capability) bool {
	switch c {
	case CapStreaming:
		return m.Streaming
	case CapToolCalling:
		return m.ToolCalling
	case CapVision:
		return m.Vision
	}
	return false
}

// Profile is a Routing Profile (spec.md §3): an ordered preference list,
// required capabilities, a minimum context window, and an optional
// fallback profile name.
type Profile struct {
	Name             string
	PreferredFamily  []string
	MinContextWindow int
	Required         []Capability
	Fallback         string
}

// BuiltinProfiles returns the four profiles named explicitly in spec.md
// §4.13. Callers may register additional profiles via Router.AddProfile.
func BuiltinProfiles() []Profile {
	return []Profile{
		{
			Name:             "fast",
			PreferredFamily:  []string{"phi", "gemma", "mistral"},
			MinContextWindow: 4096,
			Required:         []Capability{CapStreaming},
			Fallback:         "general",
		},
		{
			Name:             "general",
			PreferredFamily:  []string{"llama", "mistral", "qwen"},
			MinContextWindow: 8192,
			Required:         []Capability{CapStreaming},
		},
		{
			Name:             "code",
			PreferredFamily:  []string{"codellama", "deepseek-coder", "qwen"},
			MinContextWindow: 16384,
			Required:         []Capability{CapStreaming},
			Fallback:         "general",
		},
		{
			Name:             "creative",
			PreferredFamily:  []string{"llama", "mistral"},
			MinContextWindow: 8192,
			Required:         []Capability{CapStreaming},
			Fallback:         "general",
		},
	}
}

// Router holds the profile table and an optional set of per-profile
// overrides (config-pinned model names, spec.md §4.13 step 1).
type Router struct {
	profiles  map[string]Profile
	overrides map[string]string
}

// New constructs a Router seeded with the built-in profiles.
func New() *Router {
	r := &Router{
		profiles:  map[string]Profile{},
		overrides: map[string]string{},
	}
	for _, p := range BuiltinProfiles() {
		r.profiles[p.Name] = p
	}
	return r
}

// AddProfile registers or replaces a profile.
func (r *Router) AddProfile(p Profile) {
	r.profiles[p.Name] = p
}

// SetOverride pins profileName to modelName verbatim: Select will return it
// without consulting the catalog at all, even if the model turns out to be
// absent from available — the caller must handle that absence (spec.md
// §4.13 step 1).
func (r *Router) SetOverride(profileName, modelName string) {
	r.overrides[profileName] = modelName
}

// Select runs the spec.md §4.13 algorithm and returns the chosen model
// name, or "" if no candidate could be found anywhere in the fallback
// chain.
func (r *Router) Select(profileName string, available []Model) string {
	return r.selectFrom(profileName, available, map[string]bool{})
}

func (r *Router) selectFrom(profileName string, available []Model, visited map[string]bool) string {
	if override, ok := r.overrides[profileName]; ok {
		return override
	}
	profile, ok := r.profiles[profileName]
	if !ok {
		return ""
	}
	if visited[profileName] {
		// Defends against a misconfigured fallback cycle; the algorithm
		// itself has no notion of cycles.
		return ""
	}
	visited[profileName] = true

	candidates := filterCandidates(profile, available)
	if len(candidates) == 0 {
		if profile.Fallback != "" {
			return r.selectFrom(profile.Fallback, available, visited)
		}
		return ""
	}

	best := candidates[0]
	bestScore := score(profile, best)
	for _, m := range candidates[1:] {
		s := score(profile, m)
		if s > bestScore || (s == bestScore && m.Parameters < best.Parameters) {
			best, bestScore = m, s
		}
	}
	return best.Name
}

func filterCandidates(profile Profile, available []Model) []Model {
	var out []Model
	for _, m := range available {
		if m.MaxContextWindow < profile.MinContextWindow {
			continue
		}
		ok := true
		for _, req := range profile.Required {
			if !m.has(req) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, m)
		}
	}
	return out
}

// score implements spec.md §4.13 step 4: preferred-family match scores
// +10*(len(preferred)-index), larger context adds +log2(context/min).
func score(profile Profile, m Model) float64 {
	s := 0.0
	for idx, fam := range profile.PreferredFamily {
		if fam == m.Family {
			s += 10 * float64(len(profile.PreferredFamily)-idx)
			break
		}
	}
	if profile.MinContextWindow > 0 && m.MaxContextWindow > 0 {
		s += math.Log2(float64(m.MaxContextWindow) / float64(profile.MinContextWindow))
	}
	return s
}

// SortedNames returns the registered profile names in sorted order, useful
// for `/model list`-style CLI surfaces.
func (r *Router) SortedNames() []string {
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// userOverrideDoc mirrors the schema of spec.md §6.4's persisted user
// model overrides document.
type userOverrideDoc struct {
	UserModels []userModelEntry `json:"user_models"`
}

type userModelEntry struct {
	ID               string              `json:"id"`
	Name             string              `json:"name"`
	MaxContextWindow int                 `json:"max_context_window"`
	ContextProfiles  []userContextProfile `json:"context_profiles"`
	Capabilities     userCapabilities    `json:"capabilities"`
}

type userContextProfile struct {
	Size              int `json:"size"`
	OllamaContextSize int `json:"ollama_context_size"`
}

type userCapabilities struct {
	ToolCalling bool `json:"toolCalling"`
	Vision      bool `json:"vision"`
	Streaming   bool `json:"streaming"`
}

// LoadUserOverrides reads the user model override document at path (spec.md
// §6.4) and returns the entries as catalog Models. A missing file is not an
// error: it returns an empty slice, matching "loads this at startup and on
// refresh" semantics where no override document is the common case.
func LoadUserOverrides(path string) ([]Model, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc userOverrideDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	out := make([]Model, 0, len(doc.UserModels))
	for _, e := range doc.UserModels {
		out = append(out, Model{
			ID:               e.ID,
			Name:             e.Name,
			MaxContextWindow: e.MaxContextWindow,
			Streaming:        e.Capabilities.Streaming,
			ToolCalling:      e.Capabilities.ToolCalling,
			Vision:           e.Capabilities.Vision,
		})
	}
	return out, nil
}
