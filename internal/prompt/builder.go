package prompt

import "strings"

// reasoningOverridePrompt replaces sections 1 and 4 when the selected model
// is in the reasoning class (spec.md §4.4 "Reasoning-model override").
const reasoningOverridePrompt = `Focus your reasoning on the user's question and the concrete task at hand. Do not spend reasoning effort restating these instructions back to yourself.`

// BuildInput carries every input the five-section assembly in spec.md §4.4
// needs. GoalBlock, Skills, and ExtraInstructions are supplied verbatim by
// their owning components (Goal Manager, skill registry, caller).
type BuildInput struct {
	Mode              Mode
	Tier              int
	GoalBlock         string   // from internal/goal's RenderBlock, or "" if no active goal
	Skills            []string // concatenated by id in the order stored
	SanityCheckOn     bool
	SanityCheckBlock  string
	ExtraInstructions string
	IsReasoningModel  bool
}

// Builder assembles the system prompt deterministically from a TieredStore
// template plus the goal, skill and sanity-check text carried in each
// BuildInput, per spec.md §4.4.
// Assembly is pure: Build has no side effects and the same BuildInput
// always yields the same string.
type Builder struct {
	store *TieredStore
}

// NewBuilder constructs a Builder over store.
func NewBuilder(store *TieredStore) *Builder {
	return &Builder{store: store}
}

// Build performs the deterministic five-section assembly. Sections are
// separated by a blank line; empty sections are omitted entirely rather
// than leaving a stray blank line.
func (b *Builder) Build(in BuildInput) string {
	var sections []string

	if in.IsReasoningModel {
		sections = append(sections, reasoningOverridePrompt)
	} else {
		sections = append(sections, b.store.Lookup(in.Mode, in.Tier))
	}

	if in.GoalBlock != "" {
		sections = append(sections, in.GoalBlock)
	}

	if len(in.Skills) > 0 {
		sections = append(sections, strings.Join(in.Skills, "\n\n"))
	}

	if !in.IsReasoningModel && in.SanityCheckOn && in.SanityCheckBlock != "" {
		sections = append(sections, in.SanityCheckBlock)
	}

	if in.ExtraInstructions != "" {
		sections = append(sections, in.ExtraInstructions)
	}

	return strings.Join(sections, "\n\n")
}
