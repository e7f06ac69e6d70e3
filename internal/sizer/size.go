// Package sizer implements the Size Calculator (A) and Token Estimator (C)
// from SPEC_FULL.md §4.1. Both are pure, deterministic, and allocation-light
// so they can be called on every turn without I/O. Grounded on dodo's
// internal/engine/tokenizer.go (heuristic estimator) and internal/engine/
// limits.go (lookup-table-with-fallback pattern for per-model budgets).
package sizer

import "sort"

// ContextTier labels a context size for system-prompt verbosity purposes.
// It is never an input to a decision, only a derived label.
type ContextTier string

const (
	TierMinimal  ContextTier = "T1_MINIMAL"
	TierBasic    ContextTier = "T2_BASIC"
	TierStandard ContextTier = "T3_STANDARD"
	TierPremium  ContextTier = "T4_PREMIUM"
	TierUltra    ContextTier = "T5_ULTRA"
)

// ServerSplitRatio is the fixed user_size -> server_size factor. spec.md §9
// flags this as an open question in the original source (84-86% observed);
// this implementation treats 0.85 as authoritative, per the spec's own
// resolution (see DESIGN.md).
const ServerSplitRatio = 0.85

// ValidUserSizes is the ordered set of context sizes a user may pick.
var ValidUserSizes = []int{2048, 4096, 8192, 16384, 32768, 65536, 131072}

// tierBudget maps a valid user size to its tier and prompt token budget.
type tierBudget struct {
	tier   ContextTier
	budget int
}

var sizeTable = map[int]tierBudget{
	2048:   {TierMinimal, 200},
	4096:   {TierMinimal, 200},
	8192:   {TierBasic, 500},
	16384:  {TierStandard, 1000},
	32768:  {TierPremium, 1500},
	65536:  {TierUltra, 1500},
	131072: {TierUltra, 1500},
}

// IsValid reports whether userSize is a member of the valid size set.
func IsValid(userSize int) bool {
	_, ok := sizeTable[userSize]
	return ok
}

// Clamp returns the nearest valid size <= proposed, floored at the smallest
// valid size (2048).
func Clamp(proposed int) int {
	best := ValidUserSizes[0]
	for _, v := range ValidUserSizes {
		if v <= proposed {
			best = v
		} else {
			break
		}
	}
	return best
}

// TierOf returns the tier label for a (valid) user size, clamping first if
// the size isn't already valid.
func TierOf(userSize int) ContextTier {
	size := userSize
	if !IsValid(size) {
		size = Clamp(size)
	}
	return sizeTable[size].tier
}

// PromptBudget returns the system-prompt token budget associated with a
// user size's tier.
func PromptBudget(userSize int) int {
	size := userSize
	if !IsValid(size) {
		size = Clamp(size)
	}
	return sizeTable[size].budget
}

// ServerSize computes the server-side context window (what's sent as
// num_ctx) for a given user size.
func ServerSize(userSize int) int {
	return int(roundHalfAwayFromZero(float64(userSize) * ServerSplitRatio))
}

// UserSizeFromServer inverts ServerSize, clamping the result to the valid
// set (the inverse computation need not itself land on a valid size).
func UserSizeFromServer(serverSize int) int {
	approxUser := float64(serverSize) / ServerSplitRatio
	return Clamp(int(roundHalfAwayFromZero(approxUser)))
}

// TiersAvailable returns every tier whose server_size fits within
// vramBytes at the given safety factor, given a model's bytes-per-token
// cost.
func TiersAvailable(vramBytes int64, bytesPerToken int, safety float64) []ContextTier {
	if safety <= 0 {
		safety = 0.85
	}
	seen := map[ContextTier]bool{}
	var out []ContextTier
	for _, userSize := range ValidUserSizes {
		server := ServerSize(userSize)
		needed := int64(server) * int64(bytesPerToken)
		if float64(needed) <= float64(vramBytes)*safety {
			tier := sizeTable[userSize].tier
			if !seen[tier] {
				seen[tier] = true
				out = append(out, tier)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return tierRank(out[i]) < tierRank(out[j])
	})
	return out
}

func tierRank(t ContextTier) int {
	switch t {
	case TierMinimal:
		return 1
	case TierBasic:
		return 2
	case TierStandard:
		return 3
	case TierPremium:
		return 4
	case TierUltra:
		return 5
	default:
		return 99
	}
}

// bytesPerTokenTable is a small family x quantization lookup, falling back
// to a conservative default for unknown combinations. Grounded on the
// precedence-fallback shape of loom's model_context_limits.go, though the
// content (VRAM bytes per token, not model-name to context window) is this
// spec's own problem.
var bytesPerTokenTable = map[string]map[string]int{
	"llama":  {"q4": 2, "q8": 4, "f16": 8},
	"qwen":   {"q4": 2, "q8": 4, "f16": 8},
	"mistral": {"q4": 2, "q8": 4, "f16": 8},
	"phi":    {"q4": 1, "q8": 2, "f16": 4},
	"gemma":  {"q4": 2, "q8": 4, "f16": 8},
}

const defaultBytesPerToken = 4

// BytesPerToken returns the estimated per-token KV-cache footprint for a
// model family at a given quantisation. Unknown family/quant combinations
// fall back to a conservative default.
func BytesPerToken(family, quantisation string) int {
	fam, ok := bytesPerTokenTable[family]
	if !ok {
		return defaultBytesPerToken
	}
	bpt, ok := fam[quantisation]
	if !ok {
		return defaultBytesPerToken
	}
	return bpt
}

// OptimalSize computes the recommended (clamped, valid) user size given
// available VRAM and a per-token cost, at the given safety factor.
// Used only as a recommendation; callers may override.
func OptimalSize(vramBytes int64, bytesPerToken int, safety float64) int {
	if safety <= 0 {
		safety = 0.85
	}
	if bytesPerToken <= 0 {
		bytesPerToken = defaultBytesPerToken
	}
	serverBudget := float64(vramBytes) * safety / float64(bytesPerToken)
	userBudget := serverBudget / ServerSplitRatio
	return Clamp(int(userBudget))
}

func roundHalfAwayFromZero(v float64) float64 {
	if v >= 0 {
		return float64(int64(v + 0.5))
	}
	return float64(int64(v - 0.5))
}
