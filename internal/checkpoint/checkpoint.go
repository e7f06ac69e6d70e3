// Package checkpoint implements the Checkpoint Lifecycle (I) from spec.md
// §4.7: aging checkpoints toward a target compression level as they age,
// merging accumulated L1 checkpoints, and single-checkpoint recompression.
// Grounded on dodo's internal/session/summarizer.go for the underlying
// synchronous-summarize call shape, generalized from dodo's single
// "summarize whole session" operation into the spec's per-checkpoint
// aging/merge/compress state machine — there is no direct dodo analogue
// for checkpoint aging itself.
package checkpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rivulet-labs/convcore/internal/convmsg"
	"github.com/rivulet-labs/convcore/internal/coreerr"
	"github.com/rivulet-labs/convcore/internal/summarize"
)

// Level mirrors summarize.Level; checkpoints and summarization share the
// same {1,2,3} level space (spec.md §3 Compression Level).
type Level = summarize.Level

const (
	Level1Compact  = summarize.Level1Compact
	Level2Reduced  = summarize.Level2Reduced
	Level3Standard = summarize.Level3Standard
)

// Metadata is the non-content bookkeeping carried on a Summary.
type Metadata struct {
	OriginatingModel string
	CreatedAt        time.Time
	CompressedAt     time.Time
}

// Summary is the spec.md §3 Checkpoint Summary record.
type Summary struct {
	ID                string
	Timestamp         time.Time
	SummaryText       string
	OriginalMessageIDs []string
	TokenCount        int
	Level             Level
	CompressionNumber int
	Metadata          Metadata
}

// AgeResult is one checkpoint's outcome from Age. Skipped checkpoints
// (those not eligible to age down) do not appear in Age's returned slice
// at all (spec.md §4.7).
type AgeResult struct {
	Success        bool
	OriginalID     string
	AgedCheckpoint Summary
	NewLevel       Level
	TokensFreed    int
}

// Lifecycle performs Age/Merge/Compress against a summarize.Service. All
// three operations are idempotent-on-failure: on error, the caller's
// checkpoint slice must be left untouched, which this package guarantees
// by never mutating its Summary arguments in place — every operation
// returns new values instead.
type Lifecycle struct {
	svc   *summarize.Service
	model string
}

// New constructs a Lifecycle backed by svc, using model for every
// recompression request.
func New(svc *summarize.Service, model string) *Lifecycle {
	return &Lifecycle{svc: svc, model: model}
}

// targetLevel implements spec.md §4.7's age→target mapping: "1 if age>=10
// else 2 if age>=5 else 3".
func targetLevel(age int) Level {
	switch {
	case age >= 10:
		return Level1Compact
	case age >= 5:
		return Level2Reduced
	default:
		return Level3Standard
	}
}

// Age recomputes target levels for every checkpoint given the current
// global compression number n, and recompresses any checkpoint whose
// current level is strictly higher than its target. Checkpoints that are
// already at or below their target level are skipped and do not appear in
// the result.
func (l *Lifecycle) Age(ctx context.Context, checkpoints []Summary, n int) []AgeResult {
	var results []AgeResult
	for _, c := range checkpoints {
		age := n - c.CompressionNumber
		target := targetLevel(age)
		if c.Level <= target {
			continue
		}

		// Age recompresses an existing summary's text, not raw messages:
		// feed the current summary text back through the Summarization
		// Service as if it were the sole "message" to compress further,
		// preserving id and originalMessageIds as spec.md §4.7 requires.
		summarized := l.resummarizeText(ctx, c.SummaryText, target)
		if !summarized.Success {
			results = append(results, AgeResult{Success: false, OriginalID: c.ID})
			continue
		}

		aged := c
		aged.SummaryText = summarized.Summary
		aged.Level = target
		aged.TokenCount = summarized.TokenCount
		aged.Metadata.CompressedAt = time.Now()

		results = append(results, AgeResult{
			Success:        true,
			OriginalID:     c.ID,
			AgedCheckpoint: aged,
			NewLevel:       target,
			TokensFreed:    c.TokenCount - aged.TokenCount,
		})
	}
	return results
}

// MergeResult is Merge's return shape.
type MergeResult struct {
	Success     bool
	Merged      Summary
	TokensFreed int
	Error       error
}

// Merge concatenates k>=2 checkpoints' summaries and re-summarizes the
// concatenation at L1, per spec.md §4.7.
func (l *Lifecycle) Merge(ctx context.Context, checkpoints []Summary) MergeResult {
	if len(checkpoints) < 2 {
		return MergeResult{Success: false, Error: &coreerr.LifecycleError{Op: "merge", Message: "at least 2 checkpoints are required"}}
	}

	var concatenated string
	var originalIDs []string
	var totalTokens int
	maxCompressionNumber := 0
	for _, c := range checkpoints {
		concatenated += c.SummaryText + "\n\n"
		originalIDs = append(originalIDs, c.OriginalMessageIDs...)
		totalTokens += c.TokenCount
		if c.CompressionNumber > maxCompressionNumber {
			maxCompressionNumber = c.CompressionNumber
		}
	}

	result := l.resummarizeText(ctx, concatenated, Level1Compact)
	if !result.Success {
		return MergeResult{Success: false, Error: fmt.Errorf("merge summarization failed: %w", result.Error)}
	}

	merged := Summary{
		ID:                 uuid.NewString(),
		Timestamp:          time.Now(),
		SummaryText:        result.Summary,
		OriginalMessageIDs: originalIDs,
		TokenCount:         result.TokenCount,
		Level:              Level1Compact,
		CompressionNumber:  maxCompressionNumber,
		Metadata: Metadata{
			OriginatingModel: l.model,
			CreatedAt:        time.Now(),
			CompressedAt:     time.Now(),
		},
	}

	return MergeResult{Success: true, Merged: merged, TokensFreed: totalTokens - merged.TokenCount}
}

// CompressResult is Compress's return shape.
type CompressResult struct {
	Success     bool
	Compressed  Summary
	TokensFreed int
	Error       error
}

// Compress recompresses a single checkpoint to a strictly lower level.
// Requests to the same or a higher level are rejected (spec.md §4.7).
func (l *Lifecycle) Compress(ctx context.Context, c Summary, target Level) CompressResult {
	if target >= c.Level {
		return CompressResult{Success: false, Error: &coreerr.LifecycleError{Op: "compress", Message: fmt.Sprintf("target level %d is not strictly lower than current level %d", target, c.Level)}}
	}

	result := l.resummarizeText(ctx, c.SummaryText, target)
	if !result.Success {
		return CompressResult{Success: false, Error: fmt.Errorf("compress summarization failed: %w", result.Error)}
	}

	compressed := c
	compressed.SummaryText = result.Summary
	compressed.Level = target
	compressed.TokenCount = result.TokenCount
	compressed.Metadata.CompressedAt = time.Now()

	return CompressResult{Success: true, Compressed: compressed, TokensFreed: c.TokenCount - compressed.TokenCount}
}

// NeedingAging returns every checkpoint in checkpoints whose current level
// exceeds its age-derived target, given global compression number n.
func NeedingAging(checkpoints []Summary, n int) []Summary {
	var out []Summary
	for _, c := range checkpoints {
		if c.Level > targetLevel(n-c.CompressionNumber) {
			out = append(out, c)
		}
	}
	return out
}

// EligibleForMerging returns L1 checkpoints once at least minCount (default
// 3, per spec.md §3/§4.7) have accumulated; otherwise nil.
func EligibleForMerging(checkpoints []Summary, minCount int) []Summary {
	if minCount <= 0 {
		minCount = 3
	}
	var l1 []Summary
	for _, c := range checkpoints {
		if c.Level == Level1Compact {
			l1 = append(l1, c)
		}
	}
	if len(l1) < minCount {
		return nil
	}
	return l1
}

// resummarizeText wraps raw text as a single user message and runs it
// through the Summarization Service, since checkpoint recompression always
// operates on an existing summary's text rather than original Messages.
func (l *Lifecycle) resummarizeText(ctx context.Context, text string, target Level) summarize.Result {
	return l.svc.Summarize(ctx, l.model, target, []convmsg.Message{convmsg.NewTextMessage(convmsg.RoleUser, text)})
}
