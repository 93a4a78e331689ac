package store

import (
	"context"
	"sync"

	"github.com/dshills/checkrun/engine"
)

// MemoryStore is an in-memory CheckpointStore for tests and single-process
// runs that want Resume without a database. Data is lost on process exit.
type MemoryStore struct {
	mu          sync.RWMutex
	entries     map[string][]engine.JournalEntry
	checkpoints map[string]engine.RunCheckpoint
	closed      bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:     make(map[string][]engine.JournalEntry),
		checkpoints: make(map[string]engine.RunCheckpoint),
	}
}

// SaveEntry implements engine.CheckpointStore.
func (s *MemoryStore) SaveEntry(_ context.Context, entry *engine.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.entries[entry.SessionID] = append(s.entries[entry.SessionID], *entry)
	return nil
}

// SaveCheckpoint implements engine.CheckpointStore.
func (s *MemoryStore) SaveCheckpoint(_ context.Context, cp engine.RunCheckpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.checkpoints[cp.SessionID] = cp
	return nil
}

// LoadCheckpoint implements engine.CheckpointStore.
func (s *MemoryStore) LoadCheckpoint(_ context.Context, sessionID string) (engine.RunCheckpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return engine.RunCheckpoint{}, ErrClosed
	}
	cp, ok := s.checkpoints[sessionID]
	if !ok {
		return engine.RunCheckpoint{}, ErrNotFound
	}
	return cp, nil
}

// Entries returns the durable journal log for a session, in append order.
func (s *MemoryStore) Entries(_ context.Context, sessionID string) ([]engine.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]engine.JournalEntry, len(s.entries[sessionID]))
	copy(out, s.entries[sessionID])
	return out, nil
}

// Close implements engine.CheckpointStore. Double-close is a no-op.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
