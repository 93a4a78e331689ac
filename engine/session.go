package engine

import (
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// RunStats are the per-check counters surfaced in the final RunReport.
type RunStats struct {
	Executions int `json:"executions"`
	Failures   int `json:"failures"`
	Retries    int `json:"retries"`
}

// RunState is the mutable, per-run bookkeeping shared by the Routing Engine
// and the Wave Scheduler. Counters are mutated from the worker goroutines of
// a batch (Engine.runOne and the routing step it calls), which run
// concurrently, so every method takes mu.
type RunState struct {
	mu sync.Mutex

	SessionID        string
	Wave             int
	RoutingLoopCount int
	MaxLoops         int

	// forwardRunGuards dedupes WaveRetry emissions per (origin, scope, wave)
	// within one scheduling batch; the scheduler resets it before each batch
	// so bounded self-retry loops proceed until the loop budget trips.
	forwardRunGuards map[string]bool

	stats map[string]*RunStats

	// failFastTriggered is set once a critical issue or error is committed
	// while FailFast is enabled.
	failFastTriggered bool
}

// NewRunState allocates a fresh session id and zeroed counters.
func NewRunState(maxLoops int) *RunState {
	if maxLoops <= 0 {
		maxLoops = 10
	}
	return &RunState{
		SessionID:        uuid.NewString(),
		MaxLoops:         maxLoops,
		forwardRunGuards: make(map[string]bool),
		stats:            make(map[string]*RunStats),
	}
}

// RestoreRunState rebuilds a RunState from a checkpoint's counters, keeping
// the original session id so restored journal entries stay attributable.
func RestoreRunState(sessionID string, maxLoops, routingLoopCount int, stats map[string]RunStats) *RunState {
	s := NewRunState(maxLoops)
	if sessionID != "" {
		s.SessionID = sessionID
	}
	s.RoutingLoopCount = routingLoopCount
	for id, st := range stats {
		copied := st
		s.stats[id] = &copied
	}
	return s
}

// RecordExecution increments the execution counter for checkID.
func (s *RunState) RecordExecution(checkID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statsFor(checkID).Executions++
}

// RecordFailure increments the failure counter for checkID.
func (s *RunState) RecordFailure(checkID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statsFor(checkID).Failures++
}

// RecordRetry increments the retry counter for checkID.
func (s *RunState) RecordRetry(checkID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statsFor(checkID).Retries++
}

func (s *RunState) statsFor(checkID string) *RunStats {
	st, ok := s.stats[checkID]
	if !ok {
		st = &RunStats{}
		s.stats[checkID] = st
	}
	return st
}

// Stats returns a copy of the accumulated per-check counters.
func (s *RunState) Stats() map[string]RunStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]RunStats, len(s.stats))
	for k, v := range s.stats {
		out[k] = *v
	}
	return out
}

// TryEmit increments the routing loop counter and reports whether the
// emission is within budget. Once the budget is exceeded it keeps returning
// false so callers stop emitting further forward requests for this branch.
func (s *RunState) TryEmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RoutingLoopCount >= s.MaxLoops {
		return false
	}
	s.RoutingLoopCount++
	return true
}

// LoopBudgetExceeded reports whether the routing loop counter has reached
// MaxLoops, without incrementing it.
func (s *RunState) LoopBudgetExceeded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.RoutingLoopCount >= s.MaxLoops
}

// GuardForwardRun reports whether a WaveRetry has already been emitted for
// (origin, scope, wave) within the current scheduling batch and marks it
// emitted if not. This only dedupes duplicate emissions from the same
// origin execution inside one batch (e.g. a check queued twice by two
// routing sources); termination of retry loops is the loop budget's job,
// not the guard's, so the scheduler calls ResetForwardRunGuards before
// every batch.
func (s *RunState) GuardForwardRun(origin string, scope ScopePath, wave int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := guardKey(origin, scope, wave)
	if s.forwardRunGuards[key] {
		return false
	}
	s.forwardRunGuards[key] = true
	return true
}

// ResetForwardRunGuards clears the batch-scoped WaveRetry dedupe state.
func (s *RunState) ResetForwardRunGuards() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forwardRunGuards = make(map[string]bool)
}

func guardKey(origin string, scope ScopePath, wave int) string {
	return origin + "@" + scope.String() + "#" + strconv.Itoa(wave)
}

// MarkFailFast records that a fail-fast condition has been observed.
func (s *RunState) MarkFailFast() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failFastTriggered = true
}

// FailFastTriggered reports whether a fail-fast condition has been observed.
func (s *RunState) FailFastTriggered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failFastTriggered
}
