package goal

import (
	"regexp"
	"strings"
)

// MarkerKind tags which goal-marker tag produced a ParsedMarker.
type MarkerKind string

const (
	MarkerGoal       MarkerKind = "GOAL"
	MarkerCheckpoint MarkerKind = "CHECKPOINT"
	MarkerDecision   MarkerKind = "DECISION"
	MarkerArtifact   MarkerKind = "ARTIFACT"
	MarkerNext       MarkerKind = "NEXT"
)

// ParsedMarker is one recognized marker extracted from assistant text
// (spec.md §4.5 "Goal-marker parsing"). Content is the marker's raw
// bracket-interior text; the Agent Loop is responsible for interpreting it
// into the corresponding Manager mutation.
type ParsedMarker struct {
	Kind    MarkerKind
	Content string
}

var markerPattern = regexp.MustCompile(`(?s)\[(GOAL|CHECKPOINT|DECISION|ARTIFACT|NEXT)\]\s*(.*?)\s*\[/(GOAL|CHECKPOINT|DECISION|ARTIFACT|NEXT)\]`)

// ExtractMarkers scans text for recognized `[KIND]...[/KIND]` marker pairs
// and returns each in order of appearance. Unknown bracket tags (any tag
// other than the five recognized kinds) are left untouched in the original
// text — this function does not strip anything; callers that want the
// marker text removed from the displayed message should use StripMarkers.
func ExtractMarkers(text string) []ParsedMarker {
	matches := markerPattern.FindAllStringSubmatch(text, -1)
	out := make([]ParsedMarker, 0, len(matches))
	for _, m := range matches {
		openKind, content, closeKind := m[1], m[2], m[3]
		if openKind != closeKind {
			continue
		}
		out = append(out, ParsedMarker{Kind: MarkerKind(openKind), Content: strings.TrimSpace(content)})
	}
	return out
}

// StripMarkers removes every recognized, well-formed marker pair from text,
// leaving any unrecognized bracket tags as plain text untouched (spec.md
// §4.5 "unknown markers are preserved as plain text").
func StripMarkers(text string) string {
	return strings.TrimSpace(markerPattern.ReplaceAllString(text, ""))
}
