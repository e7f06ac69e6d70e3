// Package convctx implements the Context Manager (L) from spec.md §4.10:
// the sole owner of live conversation state (messages, checkpoints, active
// goal, tier, mode, user size), threshold-driven compression, and
// mid-stream invariant enforcement. Grounded on dodo's internal/engine/
// agent.go (the type that owns a running conversation's mutable state) and
// internal/engine/budget.go (the percentage-of-budget threshold ladder),
// reworked around the closed event sum type in events.go per spec.md §9's
// redesign flag.
package convctx

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rivulet-labs/convcore/internal/checkpoint"
	"github.com/rivulet-labs/convcore/internal/convmsg"
	"github.com/rivulet-labs/convcore/internal/emergency"
	"github.com/rivulet-labs/convcore/internal/goal"
	"github.com/rivulet-labs/convcore/internal/prompt"
	"github.com/rivulet-labs/convcore/internal/sizer"
	"github.com/rivulet-labs/convcore/internal/snapshot"
	"github.com/rivulet-labs/convcore/internal/summarize"
)

// Threshold fractions of server_size used by messages+system-prompt, per
// spec.md §9's corrected Open Question resolution (see DESIGN.md).
const (
	normalCompressionThreshold = 0.70
	lowWarningThreshold        = 0.80
	memoryWarningThreshold     = 0.95
	criticalThreshold          = 1.00
)

// Config bundles everything a Manager needs to build system prompts and
// perform compression, beyond the live state it owns.
type Config struct {
	Builder    *prompt.Builder
	Goals      *goal.Manager
	Lifecycle  *checkpoint.Lifecycle
	Summarizer *summarize.Service
	Snapshots  *snapshot.Store
	Emergency  *emergency.Actions
	Model      string
	Mode       prompt.Mode
	UserSize   int
	Sink       Sink
}

// pendingChange is a mode/size change requested while a turn is streaming;
// it is applied, in order, once the stream ends (spec.md §4.10 "Mid-stream
// safety": tier/mode/size/goal changes never land mid-turn).
type pendingChange struct {
	mode     *prompt.Mode
	userSize *int
}

// Manager is the sole owner of live context. It never hands out a mutable
// reference to its internal slices; Messages/Checkpoints return copies.
type Manager struct {
	mu sync.Mutex

	messages          []convmsg.Message
	checkpoints       []checkpoint.Summary
	compressionNumber int

	mode             prompt.Mode
	userSize         int
	isReasoningModel bool

	skills            []string
	sanityCheckOn     bool
	sanityCheckBlock  string
	extraInstructions string

	builder    *prompt.Builder
	goals      *goal.Manager
	lifecycle  *checkpoint.Lifecycle
	summarizer *summarize.Service
	snapshots  *snapshot.Store
	emergency  *emergency.Actions
	model      string

	sink Sink

	streaming bool
	pending   *pendingChange
}

// New constructs a Manager and builds its initial system prompt message.
func New(cfg Config) *Manager {
	userSize := cfg.UserSize
	if userSize == 0 {
		userSize = sizer.ValidUserSizes[3] // 16384, the spec's implied default tier T3_STANDARD
	}
	m := &Manager{
		mode:       cfg.Mode,
		userSize:   sizer.Clamp(userSize),
		builder:    cfg.Builder,
		goals:      cfg.Goals,
		lifecycle:  cfg.Lifecycle,
		summarizer: cfg.Summarizer,
		snapshots:  cfg.Snapshots,
		emergency:  cfg.Emergency,
		model:      cfg.Model,
		sink:       cfg.Sink,
	}
	m.messages = []convmsg.Message{convmsg.NewTextMessage(convmsg.RoleSystem, m.renderSystemPrompt())}
	return m
}

func (m *Manager) emit(e Event) {
	if m.sink != nil {
		m.sink.Emit(e)
	}
}

// tierNumber maps a sizer.ContextTier label to the 1-5 rank the System
// Prompt Builder's templates are keyed on (spec.md §4.3).
func tierNumber(t sizer.ContextTier) int {
	switch t {
	case sizer.TierMinimal:
		return 1
	case sizer.TierBasic:
		return 2
	case sizer.TierStandard:
		return 3
	case sizer.TierPremium:
		return 4
	case sizer.TierUltra:
		return 5
	default:
		return 3
	}
}

// renderSystemPrompt builds the full system prompt, including the active
// goal's block, using the Manager's current mode/tier/goal/skills state.
func (m *Manager) renderSystemPrompt() string {
	return m.builder.Build(prompt.BuildInput{
		Mode:              m.mode,
		Tier:              tierNumber(sizer.TierOf(m.userSize)),
		GoalBlock:         m.goalBlock(),
		Skills:            m.skills,
		SanityCheckOn:     m.sanityCheckOn,
		SanityCheckBlock:  m.sanityCheckBlock,
		ExtraInstructions: m.extraInstructions,
		IsReasoningModel:  m.isReasoningModel,
	})
}

// renderSystemPromptExcludingGoal omits the active goal's block, used for
// threshold accounting: spec.md §4.10 measures usage against "messages +
// system prompt, excluding the active goal" since the goal block is never a
// compression target.
func (m *Manager) renderSystemPromptExcludingGoal() string {
	return m.builder.Build(prompt.BuildInput{
		Mode:              m.mode,
		Tier:              tierNumber(sizer.TierOf(m.userSize)),
		Skills:            m.skills,
		SanityCheckOn:     m.sanityCheckOn,
		SanityCheckBlock:  m.sanityCheckBlock,
		ExtraInstructions: m.extraInstructions,
		IsReasoningModel:  m.isReasoningModel,
	})
}

func (m *Manager) goalBlock() string {
	if m.goals == nil {
		return ""
	}
	if g := m.goals.Active(); g != nil {
		return g.RenderBlock()
	}
	return ""
}

// replaceSystemMessage rebuilds and swaps messages[0], emitting
// system-prompt-updated. Caller must hold m.mu.
func (m *Manager) replaceSystemMessage() {
	rendered := m.renderSystemPrompt()
	sysMsg := convmsg.NewTextMessage(convmsg.RoleSystem, rendered)
	if len(m.messages) == 0 {
		m.messages = []convmsg.Message{sysMsg}
	} else {
		m.messages[0] = sysMsg
	}
	m.emit(Event{Kind: EventSystemPromptUpdated, Tier: string(sizer.TierOf(m.userSize)), Mode: string(m.mode)})
}

// Messages returns a copy of the live message list; callers may not mutate
// the Manager's state through it.
func (m *Manager) Messages() []convmsg.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]convmsg.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Checkpoints returns a copy of the live checkpoint list.
func (m *Manager) Checkpoints() []checkpoint.Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]checkpoint.Summary, len(m.checkpoints))
	copy(out, m.checkpoints)
	return out
}

// AppendMessage appends a new message (e.g. a user turn, or an assistant/
// tool message produced by the Agent Loop) to the live conversation.
func (m *Manager) AppendMessage(msg convmsg.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
}

// BeginStream marks a turn as actively streaming, deferring mode/size
// changes until EndStream (spec.md §4.10 "Mid-stream safety").
func (m *Manager) BeginStream() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streaming = true
}

// EndStream clears the streaming flag and applies any change that was
// deferred while it was set.
func (m *Manager) EndStream() {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.streaming = false
	m.mu.Unlock()

	if pending == nil {
		return
	}
	if pending.mode != nil {
		m.setMode(*pending.mode)
	}
	if pending.userSize != nil {
		m.setUserSize(*pending.userSize)
	}
}

// EmitTurnAborted emits a turn-aborted event on behalf of the Agent Loop
// (spec.md §6.2 attributes every domain event, including turn-aborted, to
// the Context Manager, even though the loop is what detects the
// cancellation). It does not itself alter conversation state; the caller
// is responsible for leaving the partial assistant message in place.
func (m *Manager) EmitTurnAborted(reason string) {
	m.emit(Event{Kind: EventTurnAborted, Reason: reason})
}

// SetMode changes the conversation mode, deferring the change if a turn is
// currently streaming.
func (m *Manager) SetMode(mode prompt.Mode) {
	m.mu.Lock()
	if m.streaming {
		if m.pending == nil {
			m.pending = &pendingChange{}
		}
		mm := mode
		m.pending.mode = &mm
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.setMode(mode)
}

func (m *Manager) setMode(mode prompt.Mode) {
	m.mu.Lock()
	old := m.mode
	m.mode = mode
	m.mu.Unlock()
	if old != mode {
		m.emit(Event{Kind: EventModeChanged, NewMode: string(mode)})
	}
	m.mu.Lock()
	m.replaceSystemMessage()
	m.mu.Unlock()
}

// SetUserSize implements the resize flow from spec.md §4.2: clamp -> derive
// tier -> if the tier changed, rebuild the system prompt and emit
// tier-changed + system-prompt-updated. Deferred if a turn is streaming.
func (m *Manager) SetUserSize(newSize int) {
	m.mu.Lock()
	if m.streaming {
		if m.pending == nil {
			m.pending = &pendingChange{}
		}
		s := newSize
		m.pending.userSize = &s
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.setUserSize(newSize)
}

func (m *Manager) setUserSize(newSize int) {
	clamped := sizer.Clamp(newSize)

	m.mu.Lock()
	oldTier := sizer.TierOf(m.userSize)
	m.userSize = clamped
	newTier := sizer.TierOf(m.userSize)
	m.mu.Unlock()

	if oldTier != newTier {
		m.emit(Event{Kind: EventTierChanged, NewTier: string(newTier)})
		m.mu.Lock()
		m.replaceSystemMessage()
		m.mu.Unlock()
	}
}

// UserSize returns the current user-facing context size.
func (m *Manager) UserSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userSize
}

// ServerSize returns the server-side context window (num_ctx) derived from
// the current user size.
func (m *Manager) ServerSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sizer.ServerSize(m.userSize)
}

// usageTokens estimates the token usage of messages plus the system prompt
// with its goal block excluded. Caller must hold m.mu.
func (m *Manager) usageTokens() int {
	perMessage := make([]int, 0, len(m.messages))
	for _, msg := range m.messages {
		perMessage = append(perMessage, sizer.MessageTokens(msg.Text(), len(msg.ToolCalls())))
	}
	return sizer.ConversationTokens(perMessage) + sizer.EstimateTokens(m.renderSystemPromptExcludingGoal())
}

// UsagePct returns the fraction of server_size currently used by messages
// and the (goal-excluded) system prompt.
func (m *Manager) UsagePct() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	server := sizer.ServerSize(m.userSize)
	if server == 0 {
		return 0
	}
	return float64(m.usageTokens()) / float64(server)
}

// compressibleRange returns the [start, end) range of messages eligible
// for compression: every message except index 0 (the system prompt). A
// message whose part content originated from goal-marker text is still
// eligible — the Goal Manager's own record, not the conversation message
// text, is what is exempt from compression (spec.md §4.5 "never
// compressed"). All messages[1:] are therefore candidates.
func (m *Manager) compressibleRange() (start, end int) {
	if len(m.messages) <= 1 {
		return 1, 1
	}
	return 1, len(m.messages)
}

// ValidateBudget runs the threshold ladder from spec.md §4.10 once,
// emitting warnings and triggering compression as needed. The Agent Loop
// calls this before every provider request and after appending a user
// message.
func (m *Manager) ValidateBudget(ctx context.Context) error {
	pct := m.UsagePct()

	switch {
	case pct >= criticalThreshold:
		m.emit(Event{Kind: EventContextWarningCritical, UsagePct: pct})
		return m.emergencyRollover(ctx)
	case pct >= memoryWarningThreshold:
		m.emit(Event{Kind: EventMemoryWarning, UsagePct: pct})
		return m.emergencyCompress(ctx)
	case pct >= lowWarningThreshold:
		m.emit(Event{Kind: EventContextWarningLow, UsagePct: pct})
		return m.maybeCompress(ctx)
	case pct >= normalCompressionThreshold:
		return m.maybeCompress(ctx)
	default:
		return nil
	}
}

// CompressForOverflow forces one synchronous compression pass regardless
// of the current usage percentage. The Agent Loop calls this when the
// provider reports a context-overflow error mid-turn (spec.md §4.12 step
// 3c, §7 "Budget"): the overflow already happened server-side, so waiting
// for ValidateBudget's threshold ladder to agree would be redundant. It
// reuses the same emergency-vs-normal escalation the ladder uses, judged
// against the usage ValidateBudget would have seen.
func (m *Manager) CompressForOverflow(ctx context.Context) error {
	pct := m.UsagePct()
	if pct >= memoryWarningThreshold {
		return m.emergencyCompress(ctx)
	}
	return m.maybeCompress(ctx)
}

// emergencyRollover discards all but the most recent messages via the
// Emergency Actions package when usage hits 100%.
func (m *Manager) emergencyRollover(ctx context.Context) error {
	m.mu.Lock()
	in := m.snapshotInput()
	m.mu.Unlock()

	result := m.emergency.Rollover(ctx, in, 5)
	if !result.Success {
		m.emit(Event{Kind: EventAutoSummaryFailed, Error: errString(result.Error)})
		return result.Error
	}

	m.mu.Lock()
	keep := 5
	if keep > len(m.messages)-1 {
		keep = len(m.messages) - 1
	}
	if keep < 0 {
		keep = 0
	}
	head := m.messages[:1]
	tail := m.messages[len(m.messages)-keep:]
	m.messages = append(append([]convmsg.Message{}, head...), tail...)
	m.checkpoints = nil
	m.mu.Unlock()

	m.emit(Event{Kind: EventSessionSaved, SnapshotID: result.SnapshotID})
	m.emit(Event{Kind: EventCompressed, TokensFreed: result.TokensFreed})
	return nil
}

// emergencyCompress recompresses the largest checkpoint, or falls back to
// aggressively summarizing the oldest non-goal messages when there are no
// checkpoints to compress, when usage hits 95%.
func (m *Manager) emergencyCompress(ctx context.Context) error {
	m.mu.Lock()
	in := m.snapshotInput()
	largest, hasCheckpoint := largestCheckpoint(m.checkpoints)
	m.mu.Unlock()

	if hasCheckpoint {
		result := m.emergency.CompressCheckpoint(ctx, largest, in)
		if !result.Success {
			m.emit(Event{Kind: EventAutoSummaryFailed, Error: errString(result.Error)})
			return result.Error
		}
		m.mu.Lock()
		m.replaceCheckpoint(largest.ID, nil)
		m.mu.Unlock()
		m.emit(Event{Kind: EventSessionSaved, SnapshotID: result.SnapshotID})
		m.emit(Event{Kind: EventCompressed, TokensFreed: result.TokensFreed})
		return nil
	}

	m.mu.Lock()
	start, end := m.compressibleRange()
	oldest := m.oldestNonSystem(start, end)
	m.mu.Unlock()
	if len(oldest) == 0 {
		return nil
	}

	result := m.emergency.AggressiveSummarization(ctx, oldest, in)
	if !result.Success {
		m.emit(Event{Kind: EventAutoSummaryFailed, Error: errString(result.Error)})
		return result.Error
	}

	m.mu.Lock()
	m.replaceOldestWithCheckpoint(len(oldest), result.Checkpoint)
	m.mu.Unlock()
	m.emit(Event{Kind: EventSessionSaved, SnapshotID: result.SnapshotID})
	m.emit(Event{Kind: EventCompressed, NewCheckpointID: result.Checkpoint.ID, TokensFreed: result.TokensFreed})
	return nil
}

// maybeCompress performs normal (non-emergency) compression: it selects
// the oldest contiguous non-goal message block covering the overshoot
// above the normal-compression threshold, summarizes it at L3, and
// replaces it with a new checkpoint. On failure it emits
// auto-summary-failed and leaves the conversation untouched.
func (m *Manager) maybeCompress(ctx context.Context) error {
	m.mu.Lock()
	server := sizer.ServerSize(m.userSize)
	overshoot := m.usageTokens() - int(float64(server)*normalCompressionThreshold)
	start, end := m.compressibleRange()
	block := m.selectBlockCoveringOvershoot(start, end, overshoot)
	m.mu.Unlock()

	if len(block) == 0 {
		return nil
	}

	if snapshotID, err := m.takePreCompressionSnapshot(ctx); err == nil {
		m.emit(Event{Kind: EventSessionSaved, SnapshotID: snapshotID})
	}

	m.emit(Event{Kind: EventSummarizing, Phase: "normal-compression"})

	result := m.summarizer.Summarize(ctx, m.model, summarize.Level3Standard, block)
	if !result.Success {
		m.emit(Event{Kind: EventAutoSummaryFailed, Error: errString(result.Error)})
		return result.Error
	}

	m.mu.Lock()
	ids := make([]string, 0, len(block))
	for _, msg := range block {
		ids = append(ids, msg.ID)
	}
	originalTokens := sizer.ConversationTokens(tokensOf(block))
	m.compressionNumber++
	newCheckpoint := checkpoint.Summary{
		ID:                 newCheckpointID(),
		SummaryText:        result.Summary,
		OriginalMessageIDs: ids,
		TokenCount:         result.TokenCount,
		Level:              summarize.Level3Standard,
		CompressionNumber:  m.compressionNumber,
	}
	m.checkpoints = append(m.checkpoints, newCheckpoint)
	m.replaceOldestWithCheckpoint(len(block), newCheckpoint)
	tokensFreed := originalTokens - result.TokenCount
	m.mu.Unlock()

	m.emit(Event{Kind: EventCompressed, NewCheckpointID: newCheckpoint.ID, TokensFreed: tokensFreed})
	m.runCheckpointMaintenance(ctx)
	return nil
}

// runCheckpointMaintenance ages every checkpoint and merges once enough L1
// checkpoints have accumulated, per spec.md §4.7's scheduling: every
// successful compression is followed by an aging pass and, if eligible, a
// merge. Errors here are non-fatal to the triggering compression.
func (m *Manager) runCheckpointMaintenance(ctx context.Context) {
	m.mu.Lock()
	checkpoints := append([]checkpoint.Summary{}, m.checkpoints...)
	n := m.compressionNumber
	m.mu.Unlock()

	ageResults := m.lifecycle.Age(ctx, checkpoints, n)
	if len(ageResults) > 0 {
		m.mu.Lock()
		for _, r := range ageResults {
			if r.Success {
				m.replaceCheckpointContent(r.OriginalID, r.AgedCheckpoint)
			}
		}
		checkpoints = append([]checkpoint.Summary{}, m.checkpoints...)
		m.mu.Unlock()
	}

	eligible := checkpoint.EligibleForMerging(checkpoints, 0)
	if eligible == nil {
		return
	}
	mergeResult := m.lifecycle.Merge(ctx, eligible)
	if !mergeResult.Success {
		return
	}

	m.mu.Lock()
	m.removeCheckpoints(eligible)
	m.checkpoints = append(m.checkpoints, mergeResult.Merged)
	m.mu.Unlock()
	m.emit(Event{Kind: EventCompressed, NewCheckpointID: mergeResult.Merged.ID, TokensFreed: mergeResult.TokensFreed})
}

// selectBlockCoveringOvershoot returns the oldest contiguous messages
// (indices [start,end)) whose combined token estimate is at least
// overshoot, or every compressible message if overshoot exceeds the total.
// Caller must hold m.mu.
func (m *Manager) selectBlockCoveringOvershoot(start, end, overshoot int) []convmsg.Message {
	if overshoot <= 0 || start >= end {
		return nil
	}
	var block []convmsg.Message
	covered := 0
	for i := start; i < end && covered < overshoot; i++ {
		msg := m.messages[i]
		block = append(block, msg)
		covered += sizer.MessageTokens(msg.Text(), len(msg.ToolCalls()))
	}
	return block
}

// oldestNonSystem returns up to half of the compressible messages
// (rounded up, at least one), oldest first. Caller must hold m.mu.
func (m *Manager) oldestNonSystem(start, end int) []convmsg.Message {
	count := (end - start + 1) / 2
	if count < 1 {
		count = 1
	}
	if start+count > end {
		count = end - start
	}
	out := make([]convmsg.Message, count)
	copy(out, m.messages[start:start+count])
	return out
}

// replaceOldestWithCheckpoint replaces the oldest `count` compressible
// messages with a single assistant-authored summary message. Caller must
// hold m.mu.
func (m *Manager) replaceOldestWithCheckpoint(count int, c checkpoint.Summary) {
	start, end := m.compressibleRange()
	if start+count > end {
		count = end - start
	}
	if count <= 0 {
		return
	}
	summaryMsg := convmsg.NewTextMessage(convmsg.RoleAssistant, c.SummaryText)
	rest := append([]convmsg.Message{}, m.messages[start+count:]...)
	m.messages = append(append(m.messages[:start], summaryMsg), rest...)
}

// replaceCheckpoint removes the checkpoint with id originalID; if
// replacement is non-nil it is appended in its place.
func (m *Manager) replaceCheckpoint(originalID string, replacement *checkpoint.Summary) {
	out := m.checkpoints[:0:0]
	for _, c := range m.checkpoints {
		if c.ID == originalID {
			continue
		}
		out = append(out, c)
	}
	if replacement != nil {
		out = append(out, *replacement)
	}
	m.checkpoints = out
}

func (m *Manager) replaceCheckpointContent(id string, updated checkpoint.Summary) {
	for i, c := range m.checkpoints {
		if c.ID == id {
			m.checkpoints[i] = updated
			return
		}
	}
}

func (m *Manager) removeCheckpoints(remove []checkpoint.Summary) {
	removing := make(map[string]bool, len(remove))
	for _, c := range remove {
		removing[c.ID] = true
	}
	out := m.checkpoints[:0:0]
	for _, c := range m.checkpoints {
		if !removing[c.ID] {
			out = append(out, c)
		}
	}
	m.checkpoints = out
}

// snapshotInput builds the emergency package's view of the conversation,
// excluding the live system prompt at index 0: spec.md §8 S7 counts
// archived/freed messages against the archivable history only, and the
// system message never leaves m.messages[0] regardless of how Rollover
// or CompressCheckpoint trims the rest. Caller must hold m.mu.
func (m *Manager) snapshotInput() emergency.SnapshotInput {
	goalJSON := []byte("{}")
	var archivable []convmsg.Message
	if len(m.messages) > 1 {
		archivable = append([]convmsg.Message{}, m.messages[1:]...)
	}
	return emergency.SnapshotInput{
		Messages:    archivable,
		Checkpoints: append([]checkpoint.Summary{}, m.checkpoints...),
		Goal:        goalJSON,
		Tier:        string(sizer.TierOf(m.userSize)),
		Mode:        string(m.mode),
		UserSize:    m.userSize,
	}
}

// takePreCompressionSnapshot saves the live context before normal
// compression mutates it (spec.md §4.10 "Snapshots": "a pre-compression
// snapshot before every compression").
func (m *Manager) takePreCompressionSnapshot(ctx context.Context) (string, error) {
	m.mu.Lock()
	messagesJSON, err := marshalMessages(m.messages)
	if err != nil {
		m.mu.Unlock()
		return "", err
	}
	checkpointsJSON, err := marshalCheckpoints(m.checkpoints)
	if err != nil {
		m.mu.Unlock()
		return "", err
	}
	state := snapshot.State{
		Messages:    messagesJSON,
		Checkpoints: checkpointsJSON,
		Goal:        []byte("{}"),
		Tier:        string(sizer.TierOf(m.userSize)),
		Mode:        string(m.mode),
		UserSize:    m.userSize,
	}
	m.mu.Unlock()

	return m.snapshots.Create(ctx, state, snapshot.ReasonPreCompression)
}

// Snapshot takes a manual safety snapshot of the live context on explicit
// user request (spec.md §4.8 "manual" reason).
func (m *Manager) Snapshot(ctx context.Context) (string, error) {
	m.mu.Lock()
	messagesJSON, err := marshalMessages(m.messages)
	if err != nil {
		m.mu.Unlock()
		return "", err
	}
	checkpointsJSON, err := marshalCheckpoints(m.checkpoints)
	if err != nil {
		m.mu.Unlock()
		return "", err
	}
	state := snapshot.State{
		Messages:    messagesJSON,
		Checkpoints: checkpointsJSON,
		Goal:        []byte("{}"),
		Tier:        string(sizer.TierOf(m.userSize)),
		Mode:        string(m.mode),
		UserSize:    m.userSize,
	}
	m.mu.Unlock()

	id, err := m.snapshots.Create(ctx, state, snapshot.ReasonManual)
	if err != nil {
		return "", err
	}
	m.emit(Event{Kind: EventSessionSaved, SnapshotID: id})
	return id, nil
}

func largestCheckpoint(checkpoints []checkpoint.Summary) (checkpoint.Summary, bool) {
	if len(checkpoints) == 0 {
		return checkpoint.Summary{}, false
	}
	largest := checkpoints[0]
	for _, c := range checkpoints[1:] {
		if c.TokenCount > largest.TokenCount {
			largest = c
		}
	}
	return largest, true
}

func tokensOf(messages []convmsg.Message) []int {
	out := make([]int, 0, len(messages))
	for _, msg := range messages {
		out = append(out, sizer.MessageTokens(msg.Text(), len(msg.ToolCalls())))
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

var checkpointSeq int

// newCheckpointID generates a sequence-based id; the Checkpoint Lifecycle
// itself uses uuid for merge/compress results, but normal compression's
// first-generation checkpoints are minted here, where a process-local
// monotonic id is sufficient ahead of the caller persisting them.
func newCheckpointID() string {
	checkpointSeq++
	return fmt.Sprintf("cp-%d", checkpointSeq)
}

func marshalMessages(messages []convmsg.Message) (json.RawMessage, error) {
	b, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("marshaling messages: %w", err)
	}
	return b, nil
}

func marshalCheckpoints(checkpoints []checkpoint.Summary) (json.RawMessage, error) {
	b, err := json.Marshal(checkpoints)
	if err != nil {
		return nil, fmt.Errorf("marshaling checkpoints: %w", err)
	}
	return b, nil
}
