// Package emergency implements the Emergency Actions (K) from spec.md
// §4.9: snapshot-guarded compress/merge/rollover/aggressive-summarize
// operations. Grounded on dodo's internal/engine/soft_caps.go (the idea of
// a last-resort safety rail triggered when normal operation runs out of
// room) generalized from soft_caps's run-abort semantics into this
// package's always-snapshot-first, tokensFreed-invariant semantics, and on
// internal/session/summarizer.go for the nested Summarization Service call
// aggressive_summarization performs directly.
package emergency

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rivulet-labs/convcore/internal/checkpoint"
	"github.com/rivulet-labs/convcore/internal/convmsg"
	"github.com/rivulet-labs/convcore/internal/sizer"
	"github.com/rivulet-labs/convcore/internal/snapshot"
	"github.com/rivulet-labs/convcore/internal/summarize"
)

// SnapshotInput is what every emergency action captures into its mandatory
// pre-work safety snapshot.
type SnapshotInput struct {
	Messages    []convmsg.Message
	Checkpoints []checkpoint.Summary
	Goal        json.RawMessage
	Tier        string
	Mode        string
	UserSize    int
}

// Actions performs the four Emergency Actions against a snapshot.Store, a
// checkpoint.Lifecycle, and a summarize.Service.
type Actions struct {
	snapshots  *snapshot.Store
	checkpoint *checkpoint.Lifecycle
	summarize  *summarize.Service
	model      string
}

// New constructs Actions wired to the given components.
func New(snapshots *snapshot.Store, lifecycle *checkpoint.Lifecycle, summarizer *summarize.Service, model string) *Actions {
	return &Actions{snapshots: snapshots, checkpoint: lifecycle, summarize: summarizer, model: model}
}

func (a *Actions) takeSafetySnapshot(ctx context.Context, in SnapshotInput, reason snapshot.Reason) (string, error) {
	messagesJSON, err := json.Marshal(in.Messages)
	if err != nil {
		return "", fmt.Errorf("marshaling messages for safety snapshot: %w", err)
	}
	checkpointsJSON, err := json.Marshal(in.Checkpoints)
	if err != nil {
		return "", fmt.Errorf("marshaling checkpoints for safety snapshot: %w", err)
	}
	state := snapshot.State{
		Messages:    messagesJSON,
		Checkpoints: checkpointsJSON,
		Goal:        in.Goal,
		Tier:        in.Tier,
		Mode:        in.Mode,
		UserSize:    in.UserSize,
	}
	return a.snapshots.Create(ctx, state, reason)
}

// CompressCheckpointResult is compress_checkpoint's return shape.
type CompressCheckpointResult struct {
	Action      string
	Success     bool
	TokensFreed int
	SnapshotID  string
	Details     string
	Error       error
}

// CompressCheckpoint aggressively recompresses c to L1, after taking a
// mandatory safety snapshot.
func (a *Actions) CompressCheckpoint(ctx context.Context, c checkpoint.Summary, in SnapshotInput) CompressCheckpointResult {
	snapshotID, snapErr := a.takeSafetySnapshot(ctx, in, snapshot.ReasonEmergency)
	if snapErr != nil {
		return CompressCheckpointResult{Action: "compress", Success: false, TokensFreed: 0, SnapshotID: "", Error: snapErr}
	}

	result := a.checkpoint.Compress(ctx, c, checkpoint.Level1Compact)
	if !result.Success {
		return CompressCheckpointResult{Action: "compress", Success: false, TokensFreed: 0, SnapshotID: snapshotID, Error: result.Error}
	}
	return CompressCheckpointResult{
		Action:      "compress",
		Success:     true,
		TokensFreed: result.TokensFreed,
		SnapshotID:  snapshotID,
		Details:     fmt.Sprintf("recompressed checkpoint %s to L1", c.ID),
	}
}

// MergeCheckpointsResult is merge_checkpoints's return shape.
type MergeCheckpointsResult struct {
	Action      string
	Success     bool
	TokensFreed int
	SnapshotID  string
	Details     string
	Error       error
}

// MergeCheckpoints requires k>=2 checkpoints; fewer yields
// success=false, tokensFreed=0 (spec.md §4.9) without even attempting the
// snapshot-guarded merge work, since there is no destructive work to guard.
func (a *Actions) MergeCheckpoints(ctx context.Context, cs []checkpoint.Summary, in SnapshotInput) MergeCheckpointsResult {
	if len(cs) < 2 {
		return MergeCheckpointsResult{Action: "merge", Success: false, TokensFreed: 0}
	}

	snapshotID, snapErr := a.takeSafetySnapshot(ctx, in, snapshot.ReasonEmergency)
	if snapErr != nil {
		return MergeCheckpointsResult{Action: "merge", Success: false, TokensFreed: 0, SnapshotID: "", Error: snapErr}
	}

	result := a.checkpoint.Merge(ctx, cs)
	if !result.Success {
		return MergeCheckpointsResult{Action: "merge", Success: false, TokensFreed: 0, SnapshotID: snapshotID, Error: result.Error}
	}
	return MergeCheckpointsResult{
		Action:      "merge",
		Success:     true,
		TokensFreed: result.TokensFreed,
		SnapshotID:  snapshotID,
		Details:     fmt.Sprintf("merged %d checkpoints into %s", len(cs), result.Merged.ID),
	}
}

// RolloverResult is emergency_rollover's return shape.
type RolloverResult struct {
	SnapshotID          string
	MessagesArchived    int
	CheckpointsArchived int
	TokensFreed         int
	Success             bool
	Error               error
}

// Rollover discards all but the most recent keepRecent messages and all
// checkpoints, after taking a mandatory safety snapshot (they survive only
// in that snapshot). A keepRecent<=0 defaults to 5 per spec.md §4.9.
func (a *Actions) Rollover(ctx context.Context, in SnapshotInput, keepRecent int) RolloverResult {
	if keepRecent <= 0 {
		keepRecent = 5
	}

	snapshotID, snapErr := a.takeSafetySnapshot(ctx, in, snapshot.ReasonRollover)
	if snapErr != nil {
		return RolloverResult{Success: false, TokensFreed: 0, Error: snapErr}
	}

	messagesArchived := len(in.Messages) - keepRecent
	if messagesArchived < 0 {
		messagesArchived = 0
	}

	tokensFreed := estimateDiscardedTokens(in.Messages, keepRecent, in.Checkpoints)
	if tokensFreed <= 0 {
		// Nothing was actually discarded: a rollover on an already-small
		// conversation has no work to do, which is a failure per the
		// tokensFreed>0-on-success invariant (spec.md §4.9 Property 19).
		return RolloverResult{SnapshotID: snapshotID, Success: false, TokensFreed: 0}
	}

	return RolloverResult{
		SnapshotID:          snapshotID,
		MessagesArchived:    messagesArchived,
		CheckpointsArchived: len(in.Checkpoints),
		TokensFreed:         tokensFreed,
		Success:             true,
	}
}

// AggressiveSummarizationResult is aggressive_summarization's return shape.
type AggressiveSummarizationResult struct {
	MessagesSummarized int
	OriginalTokens      int
	SummarizedTokens    int
	TokensFreed         int
	Checkpoint          checkpoint.Summary
	SnapshotID          string
	Success             bool
	Error               error
}

// AggressiveSummarization summarizes messagesSubset at L1 directly (rather
// than going through the normal checkpoint Age/Merge path), after taking a
// mandatory safety snapshot. An empty subset fails per spec.md §4.9.
func (a *Actions) AggressiveSummarization(ctx context.Context, messagesSubset []convmsg.Message, in SnapshotInput) AggressiveSummarizationResult {
	if len(messagesSubset) == 0 {
		return AggressiveSummarizationResult{Success: false, TokensFreed: 0}
	}

	snapshotID, snapErr := a.takeSafetySnapshot(ctx, in, snapshot.ReasonEmergency)
	if snapErr != nil {
		return AggressiveSummarizationResult{Success: false, TokensFreed: 0, Error: snapErr}
	}

	originalTokens := estimateMessagesTokens(messagesSubset)
	result := a.summarize.Summarize(ctx, a.model, summarize.Level1Compact, messagesSubset)
	if !result.Success {
		return AggressiveSummarizationResult{SnapshotID: snapshotID, Success: false, TokensFreed: 0, Error: result.Error}
	}

	tokensFreed := originalTokens - result.TokenCount
	if tokensFreed <= 0 {
		return AggressiveSummarizationResult{SnapshotID: snapshotID, Success: false, TokensFreed: 0}
	}

	messageIDs := make([]string, 0, len(messagesSubset))
	for _, m := range messagesSubset {
		messageIDs = append(messageIDs, m.ID)
	}

	return AggressiveSummarizationResult{
		MessagesSummarized: len(messagesSubset),
		OriginalTokens:      originalTokens,
		SummarizedTokens:    result.TokenCount,
		TokensFreed:         tokensFreed,
		Checkpoint: checkpoint.Summary{
			SummaryText:        result.Summary,
			OriginalMessageIDs: messageIDs,
			TokenCount:         result.TokenCount,
			Level:              checkpoint.Level1Compact,
		},
		SnapshotID: snapshotID,
		Success:    true,
	}
}

func estimateMessagesTokens(messages []convmsg.Message) int {
	total := 0
	for _, m := range messages {
		total += sizer.EstimateTokens(m.Text())
	}
	return total
}

func estimateDiscardedTokens(messages []convmsg.Message, keepRecent int, checkpoints []checkpoint.Summary) int {
	discardCount := len(messages) - keepRecent
	if discardCount < 0 {
		discardCount = 0
	}
	var discarded []convmsg.Message
	if discardCount > 0 {
		discarded = messages[:discardCount]
	}
	total := estimateMessagesTokens(discarded)
	for _, c := range checkpoints {
		total += c.TokenCount
	}
	return total
}
