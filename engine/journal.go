package engine

import "sync"

// JournalEntry is the append-only unit committed by the Wave Scheduler after
// a provider returns. Entries are never mutated or deleted once committed.
type JournalEntry struct {
	CommitID  uint64      `json:"commit_id"`
	SessionID string      `json:"session_id"`
	Scope     ScopePath   `json:"scope,omitempty"`
	CheckID   string      `json:"check_id"`
	Event     string      `json:"event,omitempty"` // event name active at commit time
	Result    CheckResult `json:"result"`
}

// Journal is the MVCC-style results store. Commit is the linearization
// point: it atomically assigns the next commit id and appends. Readers
// obtain a snapshot cutoff under the same lock and thereafter read an
// immutable prefix, which is what gives providers in the same wave mutual
// invisibility (see Engine.runOne).
type Journal struct {
	mu         sync.RWMutex
	entries    []*JournalEntry
	byCheck    map[string][]*JournalEntry
	nextCommit uint64
}

// NewJournal returns an empty Journal.
func NewJournal() *Journal {
	return &Journal{byCheck: make(map[string][]*JournalEntry)}
}

// RestoreJournal rebuilds a Journal from a persisted entry prefix (see
// RunCheckpoint). Entries must be in commit order; the next commit id
// continues from the highest restored one.
func RestoreJournal(entries []JournalEntry) *Journal {
	j := NewJournal()
	for i := range entries {
		e := entries[i]
		j.entries = append(j.entries, &e)
		j.byCheck[e.CheckID] = append(j.byCheck[e.CheckID], &e)
		if e.CommitID > j.nextCommit {
			j.nextCommit = e.CommitID
		}
	}
	return j
}

// BeginSnapshot returns the current max commit id, to be used as a cutoff
// for a ContextView. Must be captured before invoking a provider so that
// sibling commits within the same wave are not observed.
func (j *Journal) BeginSnapshot() uint64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.nextCommit
}

// Commit atomically assigns the next commit id and appends the entry.
func (j *Journal) Commit(sessionID string, scope ScopePath, checkID, event string, result CheckResult) *JournalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.nextCommit++
	entry := &JournalEntry{
		CommitID:  j.nextCommit,
		SessionID: sessionID,
		Scope:     scope,
		CheckID:   checkID,
		Event:     event,
		Result:    result,
	}
	j.entries = append(j.entries, entry)
	j.byCheck[checkID] = append(j.byCheck[checkID], entry)
	return entry
}

// EntriesFor returns all committed entries for checkID with CommitID <=
// cutoff, in commit order.
func (j *Journal) EntriesFor(checkID string, cutoff uint64) []*JournalEntry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	all := j.byCheck[checkID]
	out := make([]*JournalEntry, 0, len(all))
	for _, e := range all {
		if e.CommitID <= cutoff {
			out = append(out, e)
		}
	}
	return out
}

// ReadVisible returns every entry with CommitID <= cutoff, in commit order,
// optionally filtered to a single event name (empty means no filter).
func (j *Journal) ReadVisible(cutoff uint64, event string) []*JournalEntry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]*JournalEntry, 0, len(j.entries))
	for _, e := range j.entries {
		if e.CommitID > cutoff {
			break
		}
		if event != "" && e.Event != event {
			continue
		}
		out = append(out, e)
	}
	return out
}

// HasVisible reports whether checkID has at least one committed entry at or
// before cutoff, regardless of scope. Used by the scheduler to check basic
// dependency satisfaction.
func (j *Journal) HasVisible(checkID string, cutoff uint64) bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	for _, e := range j.byCheck[checkID] {
		if e.CommitID <= cutoff {
			return true
		}
	}
	return false
}
