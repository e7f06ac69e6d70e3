// Package snapshot implements the Snapshot Lifecycle (J) from spec.md
// §4.8: durable, restorable pre-action snapshots of the full live state
// (messages, checkpoints, goal, tier, mode, user_size). Grounded on dodo's
// internal/indexer/db.go (sql.Open("sqlite", ...) + WAL-mode DSN, single
// writer via SetMaxOpenConns(1), schema-in-a-string init), adapted from a
// code-index table set into the spec's single content-addressed
// "snapshots" table.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rivulet-labs/convcore/internal/coreerr"
)

// Reason tags why a snapshot was created (spec.md §3 Snapshot).
type Reason string

const (
	ReasonManual         Reason = "manual"
	ReasonPreCompression Reason = "pre-compression"
	ReasonEmergency      Reason = "emergency"
	ReasonRollover       Reason = "rollover"
)

// State is the complete immutable payload captured by a snapshot. The
// caller supplies its own serializable representations of messages,
// checkpoints, and the active goal; this package treats them as opaque
// JSON payloads so it has no dependency on convmsg/checkpoint/goal types.
type State struct {
	Messages    json.RawMessage
	Checkpoints json.RawMessage
	Goal        json.RawMessage
	Tier        string
	Mode        string
	UserSize    int
}

// Snapshot is one stored, write-once record.
type Snapshot struct {
	ID        string
	State     State
	Reason    Reason
	CreatedAt time.Time
}

// Store is a sqlite-backed, content-addressed snapshot store. Single
// writer at a time, matching spec.md §5's "Snapshot storage: single writer
// at a time; the lifecycle manager serialises access" — enforced the same
// way dodo's indexer DB does, via SetMaxOpenConns(1).
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) a sqlite snapshot store at dbPath.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot store: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging snapshot store: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("initializing snapshot schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id           TEXT PRIMARY KEY,
		reason       TEXT NOT NULL,
		tier         TEXT NOT NULL,
		mode         TEXT NOT NULL,
		user_size    INTEGER NOT NULL,
		messages     TEXT NOT NULL,
		checkpoints  TEXT NOT NULL,
		goal         TEXT,
		created_at   INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_reason ON snapshots(reason);
	CREATE INDEX IF NOT EXISTS idx_snapshots_created ON snapshots(created_at);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create writes a new, write-once snapshot and returns its id.
func (s *Store) Create(ctx context.Context, state State, reason Reason) (string, error) {
	id := uuid.NewString()
	now := time.Now()

	goal := string(state.Goal)
	var goalArg any
	if goal == "" {
		goalArg = nil
	} else {
		goalArg = goal
	}

	query := `
		INSERT INTO snapshots (id, reason, tier, mode, user_size, messages, checkpoints, goal, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query, id, string(reason), state.Tier, state.Mode, state.UserSize,
		string(state.Messages), string(state.Checkpoints), goalArg, now.Unix())
	if err != nil {
		return "", &coreerr.LifecycleError{Op: "create_snapshot", Message: err.Error()}
	}
	return id, nil
}

// Restore loads a snapshot's full state by id. It performs no writes, so
// "atomic; on failure leaves caller's state untouched" (spec.md §4.8) holds
// trivially: a failed Restore never touches the caller's live state because
// the caller only swaps its state in after Restore returns successfully.
func (s *Store) Restore(ctx context.Context, id string) (Snapshot, error) {
	query := `SELECT reason, tier, mode, user_size, messages, checkpoints, goal, created_at FROM snapshots WHERE id = ?`
	var reason, tier, mode, messages, checkpoints string
	var goal sql.NullString
	var userSize int
	var createdAt int64

	err := s.db.QueryRowContext(ctx, query, id).Scan(&reason, &tier, &mode, &userSize, &messages, &checkpoints, &goal, &createdAt)
	if err == sql.ErrNoRows {
		return Snapshot{}, &coreerr.LifecycleError{Op: "restore", Message: fmt.Sprintf("snapshot not found: %s", id)}
	}
	if err != nil {
		return Snapshot{}, &coreerr.LifecycleError{Op: "restore", Message: err.Error()}
	}

	goalRaw := json.RawMessage(nil)
	if goal.Valid {
		goalRaw = json.RawMessage(goal.String)
	}

	return Snapshot{
		ID:     id,
		Reason: Reason(reason),
		State: State{
			Messages:    json.RawMessage(messages),
			Checkpoints: json.RawMessage(checkpoints),
			Goal:        goalRaw,
			Tier:        tier,
			Mode:        mode,
			UserSize:    userSize,
		},
		CreatedAt: time.Unix(createdAt, 0),
	}, nil
}

// List returns every snapshot's metadata (not full state), newest first.
func (s *Store) List(ctx context.Context) ([]Snapshot, error) {
	query := `SELECT id, reason, tier, mode, user_size, created_at FROM snapshots ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &coreerr.LifecycleError{Op: "list", Message: err.Error()}
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var sn Snapshot
		var reason string
		var createdAt int64
		if err := rows.Scan(&sn.ID, &reason, &sn.State.Tier, &sn.State.Mode, &sn.State.UserSize, &createdAt); err != nil {
			return nil, &coreerr.LifecycleError{Op: "list", Message: err.Error()}
		}
		sn.Reason = Reason(reason)
		sn.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, sn)
	}
	return out, rows.Err()
}

// Delete removes a snapshot by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id)
	if err != nil {
		return &coreerr.LifecycleError{Op: "delete", Message: err.Error()}
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return &coreerr.LifecycleError{Op: "delete", Message: fmt.Sprintf("snapshot not found: %s", id)}
	}
	return nil
}

// PrunePolicy decides which snapshots to delete, given all existing
// snapshots (metadata only). The core does not define a built-in policy —
// "retention policy is caller's" (spec.md §3 Snapshot lifecycle) — so
// Prune just applies whatever the caller supplies.
type PrunePolicy func([]Snapshot) (toDelete []string)

// Prune lists all snapshots, asks policy which ids to delete, and deletes
// them. Returns the deleted ids.
func (s *Store) Prune(ctx context.Context, policy PrunePolicy) ([]string, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	toDelete := policy(all)
	for _, id := range toDelete {
		if err := s.Delete(ctx, id); err != nil {
			return nil, err
		}
	}
	return toDelete, nil
}
