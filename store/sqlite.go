package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dshills/checkrun/engine"
)

// SQLiteStore persists the journal log and run checkpoints in a single-file
// database. Zero-setup persistence for single-process runs: the file is
// created and migrated on first use, WAL mode keeps readers unblocked by the
// scheduler's commit stream.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore opens (creating if needed) the database at path. Use
// ":memory:" for an ephemeral store in tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite supports a single writer; keep one connection alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	journalTable := `
		CREATE TABLE IF NOT EXISTS journal_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			commit_id INTEGER NOT NULL,
			check_id TEXT NOT NULL,
			scope TEXT NOT NULL DEFAULT '[]',
			event TEXT NOT NULL DEFAULT '',
			result TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(session_id, commit_id)
		)
	`
	if _, err := s.db.ExecContext(ctx, journalTable); err != nil {
		return fmt.Errorf("create journal_entries: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_journal_session ON journal_entries(session_id, commit_id)"); err != nil {
		return fmt.Errorf("create idx_journal_session: %w", err)
	}

	checkpointTable := `
		CREATE TABLE IF NOT EXISTS run_checkpoints (
			session_id TEXT NOT NULL PRIMARY KEY,
			wave INTEGER NOT NULL,
			payload TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := s.db.ExecContext(ctx, checkpointTable); err != nil {
		return fmt.Errorf("create run_checkpoints: %w", err)
	}
	return nil
}

// SaveEntry implements engine.CheckpointStore. Re-saving the same
// (session, commit) pair replaces the row, making retried saves idempotent.
func (s *SQLiteStore) SaveEntry(ctx context.Context, entry *engine.JournalEntry) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	s.mu.RUnlock()

	scopeJSON, err := json.Marshal(entry.Scope)
	if err != nil {
		return fmt.Errorf("marshal scope: %w", err)
	}
	resultJSON, err := json.Marshal(entry.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	query := `
		INSERT INTO journal_entries (session_id, commit_id, check_id, scope, event, result)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, commit_id) DO UPDATE SET
			check_id = excluded.check_id,
			scope = excluded.scope,
			event = excluded.event,
			result = excluded.result
	`
	if _, err := s.db.ExecContext(ctx, query, entry.SessionID, entry.CommitID, entry.CheckID, string(scopeJSON), entry.Event, string(resultJSON)); err != nil {
		return fmt.Errorf("save entry: %w", err)
	}
	return nil
}

// SaveCheckpoint implements engine.CheckpointStore, keeping only the latest
// checkpoint per session.
func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, cp engine.RunCheckpoint) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	s.mu.RUnlock()

	payload, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	query := `
		INSERT INTO run_checkpoints (session_id, wave, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			wave = excluded.wave,
			payload = excluded.payload,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query, cp.SessionID, cp.Wave, string(payload)); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint implements engine.CheckpointStore.
func (s *SQLiteStore) LoadCheckpoint(ctx context.Context, sessionID string) (engine.RunCheckpoint, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return engine.RunCheckpoint{}, ErrClosed
	}
	s.mu.RUnlock()

	var payload string
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM run_checkpoints WHERE session_id = ?", sessionID).Scan(&payload)
	if err == sql.ErrNoRows {
		return engine.RunCheckpoint{}, ErrNotFound
	}
	if err != nil {
		return engine.RunCheckpoint{}, fmt.Errorf("load checkpoint: %w", err)
	}

	var cp engine.RunCheckpoint
	if err := json.Unmarshal([]byte(payload), &cp); err != nil {
		return engine.RunCheckpoint{}, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return cp, nil
}

// Entries returns the durable journal log for a session in commit order,
// for audit and offline inspection.
func (s *SQLiteStore) Entries(ctx context.Context, sessionID string) ([]engine.JournalEntry, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrClosed
	}
	s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT commit_id, check_id, scope, event, result
		FROM journal_entries
		WHERE session_id = ?
		ORDER BY commit_id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []engine.JournalEntry
	for rows.Next() {
		var (
			entry      engine.JournalEntry
			scopeJSON  string
			resultJSON string
		)
		entry.SessionID = sessionID
		if err := rows.Scan(&entry.CommitID, &entry.CheckID, &scopeJSON, &entry.Event, &resultJSON); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if err := json.Unmarshal([]byte(scopeJSON), &entry.Scope); err != nil {
			return nil, fmt.Errorf("unmarshal scope: %w", err)
		}
		if err := json.Unmarshal([]byte(resultJSON), &entry.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return out, nil
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	s.mu.RUnlock()
	return s.db.PingContext(ctx)
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

// Close closes the database connection. Double-close is a no-op.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

var _ engine.CheckpointStore = (*SQLiteStore)(nil)

// PruneBefore deletes journal rows older than the cutoff for sessions whose
// checkpoint predates it too. Long-lived single-file databases need
// occasional pruning; checkpoints themselves are kept.
func (s *SQLiteStore) PruneBefore(ctx context.Context, cutoff time.Time) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	s.mu.RUnlock()

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM journal_entries
		WHERE created_at < ?
		  AND session_id IN (SELECT session_id FROM run_checkpoints WHERE updated_at < ?)
	`, cutoff.UTC().Format(time.RFC3339Nano), cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("prune entries: %w", err)
	}
	return nil
}
