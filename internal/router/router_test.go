package router

import "testing"

func catalog() []Model {
	return []Model{
		{Name: "phi3:mini", Family: "phi", Parameters: 3_800_000_000, MaxContextWindow: 4096, Streaming: true, ToolCalling: true},
		{Name: "llama3:8b", Family: "llama", Parameters: 8_000_000_000, MaxContextWindow: 8192, Streaming: true, ToolCalling: true},
		{Name: "qwen2.5-coder:32b", Family: "qwen", Parameters: 32_000_000_000, MaxContextWindow: 32768, Streaming: true, ToolCalling: true},
		{Name: "deepseek-coder:33b", Family: "deepseek-coder", Parameters: 33_000_000_000, MaxContextWindow: 16384, Streaming: true, ToolCalling: true},
		{Name: "mistral:7b", Family: "mistral", Parameters: 7_000_000_000, MaxContextWindow: 8192, Streaming: true},
	}
}

func TestSelectPreferredFamily(t *testing.T) {
	r := New()
	got := r.Select("fast", catalog())
	if got != "phi3:mini" {
		t.Fatalf("expected phi3:mini for profile fast, got %q", got)
	}
}

func TestSelectFiltersByContextAndCapability(t *testing.T) {
	r := New()
	got := r.Select("code", catalog())
	if got != "deepseek-coder:33b" && got != "qwen2.5-coder:32b" {
		t.Fatalf("expected a code-capable >=16384 ctx model, got %q", got)
	}
}

// TestFallbackWhenNoCandidate mirrors spec.md's S6 scenario: profile code
// (min 16384) with only mistral:7b (8192, streaming, no tool_calling)
// available yields no candidate, so general (min 8192) is tried and
// matches.
func TestFallbackWhenNoCandidate(t *testing.T) {
	r := New()
	available := []Model{
		{Name: "mistral:7b", Family: "mistral", MaxContextWindow: 8192, Streaming: true},
	}
	got := r.Select("code", available)
	if got != "mistral:7b" {
		t.Fatalf("expected fallback to general to select mistral:7b, got %q", got)
	}
}

func TestUnknownProfileReturnsEmpty(t *testing.T) {
	r := New()
	if got := r.Select("nonexistent", catalog()); got != "" {
		t.Fatalf("expected empty string for unknown profile, got %q", got)
	}
}

func TestNoCandidateAndNoFallbackReturnsEmpty(t *testing.T) {
	r := New()
	// general has no fallback; nothing in this list meets its min context.
	available := []Model{
		{Name: "tiny:1b", Family: "llama", MaxContextWindow: 2048, Streaming: true},
	}
	if got := r.Select("general", available); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

func TestOverrideReturnsVerbatimEvenIfUnavailable(t *testing.T) {
	r := New()
	r.SetOverride("fast", "pinned-model:latest")
	got := r.Select("fast", catalog())
	if got != "pinned-model:latest" {
		t.Fatalf("expected override to win verbatim, got %q", got)
	}
}

func TestSmallerParamsTiebreaker(t *testing.T) {
	r := New()
	available := []Model{
		{Name: "llama-big", Family: "llama", Parameters: 70_000_000_000, MaxContextWindow: 8192, Streaming: true},
		{Name: "llama-small", Family: "llama", Parameters: 8_000_000_000, MaxContextWindow: 8192, Streaming: true},
	}
	got := r.Select("general", available)
	if got != "llama-small" {
		t.Fatalf("expected smaller-parameter tiebreak to prefer llama-small, got %q", got)
	}
}

func TestCloudFallbackPrefersAnthropic(t *testing.T) {
	got := CloudFallback(true, true, "", "")
	providerName, model, ok := SplitCloudModel(got)
	if !ok || providerName != "anthropic" || model == "" {
		t.Fatalf("expected a well-formed anthropic cloud model name, got %q", got)
	}
}

func TestCloudFallbackNoneConfigured(t *testing.T) {
	if got := CloudFallback(false, false, "", ""); got != "" {
		t.Fatalf("expected empty string when no cloud credential is configured, got %q", got)
	}
}
