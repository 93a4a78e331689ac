package engine

import (
	"context"
	"time"
)

// PendingRun is a routing-triggered forward run queued for a later wave,
// serialized into checkpoints so a resumed run picks up routing decisions
// made before the interruption.
type PendingRun struct {
	Target string    `json:"target"`
	Scope  ScopePath `json:"scope,omitempty"`
	Event  string    `json:"event,omitempty"`
	Wave   int       `json:"wave"`
}

// RunCheckpoint is a resumable snapshot taken after a wave drains: the
// committed journal prefix, forward runs queued for later waves, and the
// RunState counters. Restoring one continues execution at Wave+1. The
// journal's append-only/MVCC semantics are unaffected; a checkpoint is a
// durable copy of a prefix, never a mutation of it.
type RunCheckpoint struct {
	SessionID        string              `json:"session_id"`
	Wave             int                 `json:"wave"`
	CommitID         uint64              `json:"commit_id"`
	Entries          []JournalEntry      `json:"entries"`
	Pending          []PendingRun        `json:"pending,omitempty"`
	RoutingLoopCount int                 `json:"routing_loop_count"`
	Stats            map[string]RunStats `json:"stats,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
}

// CheckpointStore persists journal entries and per-wave checkpoints durably.
// Implementations live in the store package (SQLite, MySQL, in-memory).
// Persistence failures are non-fatal to the run: the in-memory journal is
// still consistent, so the scheduler logs and continues, same policy as
// Memory Store persistence.
type CheckpointStore interface {
	// SaveEntry appends one committed entry to the durable journal log.
	SaveEntry(ctx context.Context, entry *JournalEntry) error
	// SaveCheckpoint upserts the latest resumable snapshot for a session.
	SaveCheckpoint(ctx context.Context, cp RunCheckpoint) error
	// LoadCheckpoint returns the latest snapshot for a session, or
	// store.ErrNotFound when the session has none.
	LoadCheckpoint(ctx context.Context, sessionID string) (RunCheckpoint, error)
	Close() error
}
