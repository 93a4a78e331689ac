package engine

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/dshills/checkrun/engine/emit"
	"github.com/dshills/checkrun/sandbox"
	"golang.org/x/sync/semaphore"
)

// Engine ties the Resolver, Journal, Provider Gateway, Routing Engine, and
// ForEach Driver together into the Wave Scheduler described in the design:
// a bounded worker pool draining waves in order, with routing-triggered
// forward runs re-queued into the current or a later wave.
type Engine struct {
	resolver *Resolver
	journal  *Journal
	gateway  *Gateway
	eval     *sandbox.Evaluator
	memory   MemoryHandle
	emitter  emit.Emitter
	cfg      engineConfig
	foreach  *ForEachDriver
}

// NewEngine validates the check set (cycle/unknown-dep detection) and
// returns an Engine ready to run. Validation failures are a *ConfigError,
// the one error kind fatal before any check executes.
func NewEngine(checks []*Check, gateway *Gateway, memory MemoryHandle, emitter emit.Emitter, opts ...Option) (*Engine, error) {
	resolver, err := NewResolver(checks)
	if err != nil {
		return nil, err
	}
	if err := resolver.Validate(); err != nil {
		return nil, err
	}

	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.globalFailIf != "" && cfg.routing.GlobalFailIf == "" {
		cfg.routing.GlobalFailIf = cfg.globalFailIf
	}
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}

	return &Engine{
		resolver: resolver,
		journal:  NewJournal(),
		gateway:  gateway,
		eval:     sandbox.NewEvaluator(),
		memory:   memory,
		emitter:  emitter,
		cfg:      cfg,
		foreach:  NewForEachDriver(resolver),
	}, nil
}

// workItem is one queued (re)execution of a check, possibly forEach-scoped.
type workItem struct {
	checkID string
	scope   ScopePath
	event   string
}

// ExecuteChecks runs the full workflow (or, when targets is non-empty, only
// the named checks plus the forward runs routing triggers), draining waves in
// order. Dependencies of a target are not added: a target whose dependencies
// have no committed entry is skipped.
func (e *Engine) ExecuteChecks(ctx context.Context, targets []string, envelope EventEnvelope) (*RunReport, error) {
	return e.run(ctx, targets, envelope, NewRunState(e.cfg.maxLoops), 0, nil)
}

// Resume restores a session from its last persisted checkpoint and continues
// execution at the wave after the checkpointed one. Requires a
// CheckpointStore configured via WithCheckpointStore.
func (e *Engine) Resume(ctx context.Context, sessionID string, targets []string, envelope EventEnvelope) (*RunReport, error) {
	if e.cfg.checkpoints == nil {
		return nil, &ConfigError{Code: CodeInvalidWorkflow, Message: "resume requires a checkpoint store"}
	}
	cp, err := e.cfg.checkpoints.LoadCheckpoint(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	e.journal = RestoreJournal(cp.Entries)
	state := RestoreRunState(cp.SessionID, e.cfg.maxLoops, cp.RoutingLoopCount, cp.Stats)
	return e.run(ctx, targets, envelope, state, cp.Wave+1, cp.Pending)
}

func (e *Engine) run(ctx context.Context, targets []string, envelope EventEnvelope, state *RunState, startWave int, pending []PendingRun) (*RunReport, error) {
	started := time.Now()
	routing := NewRoutingEngine(e.resolver, e.eval, state, e.cfg.routing)

	runCtx := ctx
	if e.cfg.runBudget > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.cfg.runBudget)
		defer cancel()
	}
	runCtx, cancelRun := context.WithCancel(runCtx)
	defer cancelRun()

	targetSet := make(map[string]bool, len(targets))
	for _, t := range targets {
		targetSet[t] = true
	}
	wantAll := len(targetSet) == 0

	waves := e.resolver.Waves()
	sem := semaphore.NewWeighted(int64(maxInt(1, e.cfg.maxParallelism)))
	carry := make([][]workItem, len(waves))
	for _, p := range pending {
		if p.Wave >= 0 && p.Wave < len(carry) {
			carry[p.Wave] = append(carry[p.Wave], workItem{checkID: p.Target, scope: p.Scope, event: chooseEvent(p.Event, envelope.Name)})
		}
	}

	wavesExecuted := 0
	stopped := false
	stopReason := ""

	for w := startWave; w < len(waves) && !stopped; w++ {
		state.Wave = w

		queue := make([]workItem, 0, len(waves[w]))
		for _, id := range waves[w] {
			if !wantAll && !targetSet[id] {
				continue
			}
			check, _ := e.resolver.Check(id)
			if isMapDriven(e.resolver, check) {
				continue // scheduled only via ForEachDriver forward runs
			}
			queue = append(queue, workItem{checkID: id, event: envelope.Name})
		}
		queue = append(queue, carry[w]...)
		carry[w] = nil

		for len(queue) > 0 && !stopped {
			batch := queue
			queue = nil
			state.ResetForwardRunGuards()

			var mu sync.Mutex
			var wg sync.WaitGroup
			var forwards []ForwardRun

			e.emitter.Emit(emit.Event{SessionID: state.SessionID, Wave: w, Msg: "wave_batch_start", Meta: map[string]any{"size": len(batch)}})
			e.cfg.metrics.UpdateQueueDepth(len(batch))

			for _, item := range batch {
				if runCtx.Err() != nil {
					mu.Lock()
					if !stopped {
						stopped, stopReason = true, "cancelled"
					}
					mu.Unlock()
					break
				}
				if !e.eligible(item, envelope) {
					continue
				}
				if err := sem.Acquire(runCtx, 1); err != nil {
					mu.Lock()
					if !stopped {
						stopped, stopReason = true, "cancelled"
					}
					mu.Unlock()
					break
				}
				wg.Add(1)
				go func(item workItem) {
					defer sem.Release(1)
					defer wg.Done()

					fwds := e.runOne(runCtx, item, state, routing, envelope)

					mu.Lock()
					forwards = append(forwards, fwds...)
					if e.cfg.failFast && state.FailFastTriggered() {
						stopped = true
						stopReason = "fail_fast"
						cancelRun() // cancels in-flight checks and stops dispatch
					}
					mu.Unlock()
				}(item)
			}
			wg.Wait()

			for _, fr := range forwards {
				wi := workItem{checkID: fr.Target, scope: fr.Scope, event: chooseEvent(fr.Event, envelope.Name)}
				targetWave := waveIndexOf(waves, fr.Target)
				if targetWave < 0 || targetWave <= w {
					queue = append(queue, wi)
				} else {
					carry[targetWave] = append(carry[targetWave], wi)
				}
			}
		}
		wavesExecuted++

		if e.cfg.checkpoints != nil && !stopped {
			e.saveCheckpoint(runCtx, state, w, carry, envelope)
		}
	}

	report := aggregate(state.SessionID, started, e.journal, e.resolver, state, wavesExecuted)
	report.StoppedEarly = stopped
	report.StopReason = stopReason
	if stopped && stopReason == "fail_fast" {
		return report, ErrFailFastStop
	}
	return report, nil
}

// saveCheckpoint snapshots the journal prefix, the forward runs queued for
// later waves, and the RunState counters after wave w drains. Failures are
// logged and otherwise ignored: the in-memory run stays consistent.
func (e *Engine) saveCheckpoint(ctx context.Context, state *RunState, w int, carry [][]workItem, envelope EventEnvelope) {
	cutoff := e.journal.BeginSnapshot()
	visible := e.journal.ReadVisible(cutoff, "")
	entries := make([]JournalEntry, len(visible))
	for i, entry := range visible {
		entries[i] = *entry
	}

	var pendingRuns []PendingRun
	for wave := w + 1; wave < len(carry); wave++ {
		for _, item := range carry[wave] {
			event := item.event
			if event == envelope.Name {
				event = ""
			}
			pendingRuns = append(pendingRuns, PendingRun{Target: item.checkID, Scope: item.scope, Event: event, Wave: wave})
		}
	}

	cp := RunCheckpoint{
		SessionID:        state.SessionID,
		Wave:             w,
		CommitID:         cutoff,
		Entries:          entries,
		Pending:          pendingRuns,
		RoutingLoopCount: state.RoutingLoopCount,
		Stats:            state.Stats(),
		CreatedAt:        time.Now(),
	}
	if err := e.cfg.checkpoints.SaveCheckpoint(ctx, cp); err != nil {
		e.emitter.Emit(emit.Event{
			SessionID: state.SessionID, Wave: w, Msg: "checkpoint_save_error",
			Meta: map[string]any{"error": err.Error()},
		})
	}
}

// eligible checks dependency satisfaction and the check's `if` predicate
// under a fresh snapshot.
func (e *Engine) eligible(item workItem, envelope EventEnvelope) bool {
	check, ok := e.resolver.Check(item.checkID)
	if !ok {
		return false
	}
	cutoff := e.journal.BeginSnapshot()
	if !e.resolver.DependenciesSatisfied(e.journal, item.checkID, cutoff) {
		return false
	}
	if check.If == "" {
		return true
	}
	view := NewContextView(e.journal, "", cutoff, item.scope, item.event)
	scope := sandbox.Scope{
		Step:           sandbox.StepInfo{ID: check.ID, Tags: check.Tags, Group: check.Group},
		Outputs:        sandboxOutputs(e.resolver, view),
		OutputsRaw:     sandboxOutputsRaw(e.resolver, view),
		OutputsHistory: sandboxOutputsHistory(e.resolver, view),
		Event:          sandbox.EventInfo{Name: envelope.Name, Payload: envelope.Payload},
	}
	truthy, err := e.eval.EvalBool(check.If, scope)
	if err != nil {
		return false
	}
	return truthy
}

// runOne snapshots, invokes the provider (with the check's own retry policy
// applied around the Gateway call), commits the result, infers forEach
// propagation, and runs both the Routing Engine and the ForEach Driver over
// the new commit.
func (e *Engine) runOne(ctx context.Context, item workItem, state *RunState, routing *RoutingEngine, envelope EventEnvelope) []ForwardRun {
	check, ok := e.resolver.Check(item.checkID)
	if !ok {
		return nil
	}

	cutoff := e.journal.BeginSnapshot()
	view := NewContextView(e.journal, state.SessionID, cutoff, item.scope, item.event)

	deadline := e.cfg.defaultTimeout
	if check.Timeout > 0 {
		deadline = check.Timeout
	}

	state.RecordExecution(item.checkID)
	start := time.Now()

	result := e.invokeWithRetry(ctx, check, item, view, envelope, deadline, state)

	e.cfg.metrics.RecordCheckLatency(state.SessionID, item.checkID, time.Since(start), resultStatus(result))
	e.emitter.Emit(emit.Event{
		SessionID: state.SessionID, Wave: state.Wave, CheckID: item.checkID, Msg: "check_commit",
		Meta: map[string]any{"scope": item.scope.String(), "success": result.Success()},
	})

	if check.ForEach && result.Error == nil && !result.IsForEach {
		if items, ok := result.Output.([]any); ok {
			result.IsForEach = true
			result.ForEachItems = items
		}
	}

	entry := e.journal.Commit(state.SessionID, item.scope, item.checkID, item.event, result)
	if e.cfg.checkpoints != nil {
		if err := e.cfg.checkpoints.SaveEntry(ctx, entry); err != nil {
			e.emitter.Emit(emit.Event{
				SessionID: state.SessionID, Wave: state.Wave, CheckID: item.checkID, Msg: "checkpoint_entry_error",
				Meta: map[string]any{"error": err.Error()},
			})
		}
	}

	if result.HasCritical() || (result.Error != nil && e.cfg.failFast) {
		state.MarkFailFast()
	}

	routed := routing.Process(entry, view)
	forwards := routed.ForwardRuns
	forwards = append(forwards, e.foreach.Expand(entry)...)
	return forwards
}

// invokeWithRetry applies the check's RetryPolicy around a single Gateway
// invocation: a result carrying an error of any kind is retried, up to
// MaxAttempts in all, with computeBackoff's exponential backoff plus jitter
// between attempts; it returns early once ctx is done.
func (e *Engine) invokeWithRetry(ctx context.Context, check *Check, item workItem, view *ContextView, envelope EventEnvelope, deadline time.Duration, state *RunState) CheckResult {
	policy := check.Retry
	maxAttempts := 1
	if policy != nil && policy.MaxAttempts > 0 {
		maxAttempts = policy.MaxAttempts
	}

	cctx := &CheckContext{
		Context:  ctx,
		CheckID:  item.checkID,
		Scope:    item.scope,
		Event:    EventEnvelope{Name: item.event, Payload: envelope.Payload},
		Outputs:  view,
		Memory:   e.memory,
		Cost:     e.cfg.costTracker,
		Config:   check.Payload,
		Deadline: deadline,
		tag:      check.Provider,
	}

	var result CheckResult
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for attempt := 0; attempt < maxAttempts; attempt++ {
		result = e.gateway.Invoke(cctx)
		if result.Error == nil {
			return result
		}
		if attempt == maxAttempts-1 {
			return result
		}
		state.RecordRetry(item.checkID)
		e.cfg.metrics.IncrementRetries(state.SessionID, item.checkID)
		base, maxDelay := 200*time.Millisecond, 10*time.Second
		if policy != nil {
			if policy.BaseDelay > 0 {
				base = policy.BaseDelay
			}
			if policy.MaxDelay > 0 {
				maxDelay = policy.MaxDelay
			}
		}
		select {
		case <-time.After(computeBackoff(attempt, base, maxDelay, rng)):
		case <-ctx.Done():
			return result
		}
	}
	return result
}

// computeBackoff returns base*2^attempt capped at maxDelay, plus jitter in
// [0, base) to avoid synchronized retry storms across concurrent checks.
func computeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	delay := base * time.Duration(1<<uint(attempt))
	if delay > maxDelay {
		delay = maxDelay
	}
	jitter := time.Duration(rng.Int63n(int64(base)))
	return delay + jitter
}

func resultStatus(r CheckResult) string {
	if r.Error == nil {
		return "success"
	}
	return string(r.Error.Kind)
}

func chooseEvent(forwardEvent, current string) string {
	if forwardEvent != "" {
		return forwardEvent
	}
	return current
}

func waveIndexOf(waves [][]string, id string) int {
	for i, w := range waves {
		for _, x := range w {
			if x == id {
				return i
			}
		}
	}
	return -1
}

func isMapDriven(r *Resolver, c *Check) bool {
	if c == nil || c.EffectiveFanout() != FanoutMap {
		return false
	}
	for _, group := range c.DependencyGroups() {
		for _, dep := range group {
			if d, ok := r.Check(dep); ok && d.ForEach {
				return true
			}
		}
	}
	return false
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
