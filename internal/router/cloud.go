package router

import "strings"

// CloudModelPrefix marks a pseudo-model name backed by a cloud Provider
// Adapter rather than a local one (SPEC_FULL.md's supplemented cloud
// fallback feature). Form: "cloud:<provider>/<model>", e.g.
// "cloud:anthropic/claude-sonnet-4-20250514".
const CloudModelPrefix = "cloud:"

// CloudFallback names the pseudo-model to use once local candidates are
// exhausted for profileName, given which cloud credentials are configured.
// Anthropic is preferred over OpenAI when both are configured, matching the
// order dodo's factory.go checks provider env vars. Returns "" if no cloud
// credential is configured at all — the caller then has no candidate and
// must surface that to the user rather than silently guessing.
func CloudFallback(hasAnthropicKey, hasOpenAIKey bool, anthropicModel, openAIModel string) string {
	switch {
	case hasAnthropicKey:
		if anthropicModel == "" {
			anthropicModel = "claude-sonnet-4-20250514"
		}
		return CloudModelPrefix + "anthropic/" + anthropicModel
	case hasOpenAIKey:
		if openAIModel == "" {
			openAIModel = "gpt-4o"
		}
		return CloudModelPrefix + "openai/" + openAIModel
	default:
		return ""
	}
}

// IsCloudModel reports whether name is a cloud pseudo-model name.
func IsCloudModel(name string) bool {
	return strings.HasPrefix(name, CloudModelPrefix)
}

// SplitCloudModel parses a "cloud:<provider>/<model>" name into its
// provider and model parts. ok is false if name is not a well-formed cloud
// pseudo-model name.
func SplitCloudModel(name string) (providerName, model string, ok bool) {
	if !IsCloudModel(name) {
		return "", "", false
	}
	rest := strings.TrimPrefix(name, CloudModelPrefix)
	idx := strings.Index(rest, "/")
	if idx < 0 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}
