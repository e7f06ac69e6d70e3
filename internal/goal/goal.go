// Package goal implements the Goal Manager (G) from spec.md §4.5: the
// active-goal state machine, its checkpoints/decisions/artifacts, and
// goal-marker parsing of assistant text. Grounded on dodo's
// internal/engine/miniplan.go (MiniPlan/FormatForPrompt), generalized from
// a single in-memory run plan into the spec's persistent, lockable,
// never-compressed Goal record.
package goal

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is a Goal's lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// CheckpointStatus is a goal checkpoint's progress state.
type CheckpointStatus string

const (
	CheckpointPending    CheckpointStatus = "pending"
	CheckpointInProgress CheckpointStatus = "in_progress"
	CheckpointCompleted  CheckpointStatus = "completed"
)

// Checkpoint is one step toward a Goal's completion. This is distinct from
// (and much lighter than) the Checkpoint Summary used by the Checkpoint
// Lifecycle (I) for conversation compression.
type Checkpoint struct {
	ID          string
	Description string
	Status      CheckpointStatus
}

// ArtifactAction is what happened to a file as a side effect of goal work.
type ArtifactAction string

const (
	ArtifactCreated  ArtifactAction = "created"
	ArtifactModified ArtifactAction = "modified"
	ArtifactDeleted  ArtifactAction = "deleted"
)

// Artifact records a file touched in service of a Goal.
type Artifact struct {
	Type   string
	Path   string
	Action ArtifactAction
}

// Decision is a recorded choice made while pursuing a Goal. Locked
// decisions are never revisited or overwritten.
type Decision struct {
	Description string
	Rationale   string
	Locked      bool
}

// Goal is the spec.md §3 Goal record. Goal content is excluded from every
// compression path (spec.md §3 Goal lifecycle): the Context Manager must
// never route a Goal through the Summarization Service.
type Goal struct {
	ID              string
	Description     string
	Priority        int
	Status          Status
	CreatedAt       time.Time
	CompletedAt     *time.Time
	Checkpoints     []Checkpoint
	Decisions       []Decision
	Artifacts       []Artifact
}

// Manager owns at most one active Goal at a time (spec.md §4.5: "Only one
// goal may be active; pausing the active goal activates no other").
type Manager struct {
	goals      map[string]*Goal
	order      []string
	activeID   string
}

// NewManager constructs an empty Manager.
func NewManager() *Manager {
	return &Manager{goals: make(map[string]*Goal)}
}

// CreateGoal creates a new Goal and makes it active, provided no other goal
// is currently active. Returns an error if a goal is already active — the
// caller must pause or complete it first.
func (m *Manager) CreateGoal(description string, priority int) (*Goal, error) {
	if m.activeID != "" {
		return nil, fmt.Errorf("goal %s is already active", m.activeID)
	}
	g := &Goal{
		ID:          uuid.NewString(),
		Description: description,
		Priority:    priority,
		Status:      StatusActive,
		CreatedAt:   time.Now(),
	}
	m.goals[g.ID] = g
	m.order = append(m.order, g.ID)
	m.activeID = g.ID
	return g, nil
}

// Active returns the currently active Goal, or nil if none is active.
func (m *Manager) Active() *Goal {
	if m.activeID == "" {
		return nil
	}
	return m.goals[m.activeID]
}

// Pause pauses the active goal. Pausing activates no other goal (spec.md
// §4.5); a subsequent CreateGoal or Resume is required to have a new
// active goal.
func (m *Manager) Pause(id string) error {
	g, err := m.require(id)
	if err != nil {
		return err
	}
	if g.Status != StatusActive {
		return fmt.Errorf("goal %s is not active", id)
	}
	g.Status = StatusPaused
	m.activeID = ""
	return nil
}

// Resume reactivates a paused goal, provided no other goal is active.
func (m *Manager) Resume(id string) error {
	g, err := m.require(id)
	if err != nil {
		return err
	}
	if g.Status != StatusPaused {
		return fmt.Errorf("goal %s is not paused", id)
	}
	if m.activeID != "" {
		return fmt.Errorf("goal %s is already active", m.activeID)
	}
	g.Status = StatusActive
	m.activeID = id
	return nil
}

// Complete marks a goal completed and, if it was active, clears the active
// slot.
func (m *Manager) Complete(id string) error {
	g, err := m.require(id)
	if err != nil {
		return err
	}
	now := time.Now()
	g.Status = StatusCompleted
	g.CompletedAt = &now
	if m.activeID == id {
		m.activeID = ""
	}
	return nil
}

// AddCheckpoint appends a pending checkpoint to the goal.
func (m *Manager) AddCheckpoint(id, description string) (Checkpoint, error) {
	g, err := m.require(id)
	if err != nil {
		return Checkpoint{}, err
	}
	cp := Checkpoint{ID: uuid.NewString(), Description: description, Status: CheckpointPending}
	g.Checkpoints = append(g.Checkpoints, cp)
	return cp, nil
}

// UpdateCheckpointStatus transitions a checkpoint's status.
func (m *Manager) UpdateCheckpointStatus(goalID, checkpointID string, status CheckpointStatus) error {
	g, err := m.require(goalID)
	if err != nil {
		return err
	}
	for i := range g.Checkpoints {
		if g.Checkpoints[i].ID == checkpointID {
			g.Checkpoints[i].Status = status
			return nil
		}
	}
	return fmt.Errorf("checkpoint %s not found on goal %s", checkpointID, goalID)
}

// RecordDecision appends an unlocked decision to the goal.
func (m *Manager) RecordDecision(id, description, rationale string) (*Decision, error) {
	g, err := m.require(id)
	if err != nil {
		return nil, err
	}
	g.Decisions = append(g.Decisions, Decision{Description: description, Rationale: rationale})
	return &g.Decisions[len(g.Decisions)-1], nil
}

// LockDecision locks a decision by its index, making it irreversible:
// callers must never unset Locked once true (spec.md §4.5 "lock_decision
// (irreversible)").
func (m *Manager) LockDecision(id string, index int) error {
	g, err := m.require(id)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(g.Decisions) {
		return fmt.Errorf("decision index %d out of range for goal %s", index, id)
	}
	g.Decisions[index].Locked = true
	return nil
}

// RecordArtifact appends an artifact to the goal.
func (m *Manager) RecordArtifact(id, artifactType, path string, action ArtifactAction) error {
	g, err := m.require(id)
	if err != nil {
		return err
	}
	g.Artifacts = append(g.Artifacts, Artifact{Type: artifactType, Path: path, Action: action})
	return nil
}

// Progress returns (completed, total) checkpoints for the goal.
func (m *Manager) Progress(id string) (completed, total int, err error) {
	g, requireErr := m.require(id)
	if requireErr != nil {
		return 0, 0, requireErr
	}
	for _, cp := range g.Checkpoints {
		if cp.Status == CheckpointCompleted {
			completed++
		}
	}
	return completed, len(g.Checkpoints), nil
}

func (m *Manager) require(id string) (*Goal, error) {
	g, ok := m.goals[id]
	if !ok {
		return nil, fmt.Errorf("goal not found: %s", id)
	}
	return g, nil
}

// RenderBlock formats the goal verbatim for inclusion in the system prompt
// (spec.md §4.4 section 2: "Active goal block ... includes checkpoints,
// locked decisions, artifacts, next steps"). Grounded on
// internal/engine/miniplan.go's FormatForPrompt.
func (g *Goal) RenderBlock() string {
	var sb strings.Builder

	sb.WriteString("[GOAL]\n")
	sb.WriteString(fmt.Sprintf("Description: %s\n", g.Description))

	if len(g.Checkpoints) > 0 {
		sb.WriteString("Checkpoints:\n")
		for i, cp := range g.Checkpoints {
			icon := " "
			switch cp.Status {
			case CheckpointCompleted:
				icon = "x"
			case CheckpointInProgress:
				icon = "~"
			}
			sb.WriteString(fmt.Sprintf("  %d. [%s] %s\n", i+1, icon, cp.Description))
		}
	}

	locked := lockedDecisions(g.Decisions)
	if len(locked) > 0 {
		sb.WriteString("Locked decisions:\n")
		for _, d := range locked {
			sb.WriteString(fmt.Sprintf("  - %s (%s)\n", d.Description, d.Rationale))
		}
	}

	if len(g.Artifacts) > 0 {
		sb.WriteString("Artifacts:\n")
		for _, a := range g.Artifacts {
			sb.WriteString(fmt.Sprintf("  - %s %s (%s)\n", a.Action, a.Path, a.Type))
		}
	}

	if next := nextPendingDescription(g.Checkpoints); next != "" {
		sb.WriteString(fmt.Sprintf("Next: %s\n", next))
	}

	sb.WriteString("[/GOAL]")
	return sb.String()
}

func lockedDecisions(decisions []Decision) []Decision {
	var out []Decision
	for _, d := range decisions {
		if d.Locked {
			out = append(out, d)
		}
	}
	return out
}

func nextPendingDescription(checkpoints []Checkpoint) string {
	for _, cp := range checkpoints {
		if cp.Status == CheckpointPending {
			return cp.Description
		}
	}
	return ""
}
