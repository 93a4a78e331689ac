package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/dshills/checkrun/engine"
)

// MySQLStore persists the journal log and run checkpoints in MySQL/MariaDB.
// Intended for runs that must survive process restarts on shared
// infrastructure; connection pooling and upsert semantics follow the usual
// production discipline for this driver.
type MySQLStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore opens a pooled connection to the given DSN
// (user:pass@tcp(host:3306)/dbname) and migrates the schema. Credentials
// belong in the environment, never in source.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MySQLStore) createTables(ctx context.Context) error {
	journalTable := `
		CREATE TABLE IF NOT EXISTS journal_entries (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			session_id VARCHAR(64) NOT NULL,
			commit_id BIGINT UNSIGNED NOT NULL,
			check_id VARCHAR(255) NOT NULL,
			scope TEXT NOT NULL,
			event VARCHAR(255) NOT NULL DEFAULT '',
			result LONGTEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY uniq_session_commit (session_id, commit_id),
			KEY idx_journal_session (session_id, commit_id)
		)
	`
	if _, err := s.db.ExecContext(ctx, journalTable); err != nil {
		return fmt.Errorf("create journal_entries: %w", err)
	}

	checkpointTable := `
		CREATE TABLE IF NOT EXISTS run_checkpoints (
			session_id VARCHAR(64) NOT NULL PRIMARY KEY,
			wave INT NOT NULL,
			payload LONGTEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		)
	`
	if _, err := s.db.ExecContext(ctx, checkpointTable); err != nil {
		return fmt.Errorf("create run_checkpoints: %w", err)
	}
	return nil
}

// SaveEntry implements engine.CheckpointStore. Re-saving the same
// (session, commit) pair replaces the row, making retried saves idempotent.
func (s *MySQLStore) SaveEntry(ctx context.Context, entry *engine.JournalEntry) error {
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
		ON DUPLICATE KEY UPDATE
			check_id = VALUES(check_id),
			scope = VALUES(scope),
			event = VALUES(event),
			result = VALUES(result)
	`
	if _, err := s.db.ExecContext(ctx, query, entry.SessionID, entry.CommitID, entry.CheckID, string(scopeJSON), entry.Event, string(resultJSON)); err != nil {
		return fmt.Errorf("save entry: %w", err)
	}
	return nil
}

// SaveCheckpoint implements engine.CheckpointStore, keeping only the latest
// checkpoint per session.
func (s *MySQLStore) SaveCheckpoint(ctx context.Context, cp engine.RunCheckpoint) error {
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
		ON DUPLICATE KEY UPDATE
			wave = VALUES(wave),
			payload = VALUES(payload)
	`
	if _, err := s.db.ExecContext(ctx, query, cp.SessionID, cp.Wave, string(payload)); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint implements engine.CheckpointStore.
func (s *MySQLStore) LoadCheckpoint(ctx context.Context, sessionID string) (engine.RunCheckpoint, error) {
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

// Entries returns the durable journal log for a session in commit order.
func (s *MySQLStore) Entries(ctx context.Context, sessionID string) ([]engine.JournalEntry, error) {
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
func (s *MySQLStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	s.mu.RUnlock()
	return s.db.PingContext(ctx)
}

// Close closes the connection pool. Double-close is a no-op.
func (s *MySQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

var _ engine.CheckpointStore = (*MySQLStore)(nil)
