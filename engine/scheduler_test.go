package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dshills/checkrun/engine/emit"
)

// fakeMemory is a minimal MemoryHandle for tests that don't need persistence.
type fakeMemory struct {
	mu   sync.Mutex
	data map[string]any
}

func newFakeMemory() *fakeMemory { return &fakeMemory{data: make(map[string]any)} }

func (m *fakeMemory) Get(key string) (any, bool) { m.mu.Lock(); defer m.mu.Unlock(); v, ok := m.data[key]; return v, ok }
func (m *fakeMemory) Has(key string) bool        { m.mu.Lock(); defer m.mu.Unlock(); _, ok := m.data[key]; return ok }
func (m *fakeMemory) Set(key string, val any)    { m.mu.Lock(); defer m.mu.Unlock(); m.data[key] = val }
func (m *fakeMemory) Increment(key string, delta int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, _ := m.data[key].(int64)
	cur += delta
	m.data[key] = cur
	return cur
}
func (m *fakeMemory) Append(key string, val any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list, _ := m.data[key].([]any)
	m.data[key] = append(list, val)
}
func (m *fakeMemory) List() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]any, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out
}

func constProvider(output any) ProviderFunc {
	return func(ctx *CheckContext) (CheckResult, error) {
		return CheckResult{Output: output}, nil
	}
}

func failNTimes(n int32) ProviderFunc {
	var calls int32
	return func(ctx *CheckContext) (CheckResult, error) {
		if atomic.AddInt32(&calls, 1) <= n {
			return CheckResult{Error: &ErrorInfo{Kind: ErrorKindProvider, Message: "not yet"}}, nil
		}
		return CheckResult{Output: "recovered"}, nil
	}
}

func TestEngineLinearChainExecutesInOrder(t *testing.T) {
	var order []string
	var mu sync.Mutex
	record := func(id string) ProviderFunc {
		return func(ctx *CheckContext) (CheckResult, error) {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			return CheckResult{Output: id}, nil
		}
	}

	checks := []*Check{
		{ID: "lint", Provider: "t"},
		{ID: "test", Provider: "t", DependsOn: []string{"lint"}},
		{ID: "deploy", Provider: "t", DependsOn: []string{"test"}},
	}

	gw := NewGateway()
	gw.Register("t", ProviderFunc(func(ctx *CheckContext) (CheckResult, error) {
		return record(ctx.CheckID)(ctx)
	}))

	eng, err := NewEngine(checks, gw, newFakeMemory(), emit.NewNullEmitter(), WithMaxParallelism(1))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	report, err := eng.ExecuteChecks(context.Background(), nil, EventEnvelope{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if report.WavesExecuted != 3 {
		t.Errorf("expected 3 waves executed, got %d", report.WavesExecuted)
	}
	want := []string{"lint", "test", "deploy"}
	if len(order) != len(want) {
		t.Fatalf("expected execution order %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("execution order mismatch at %d: want %s got %s", i, want[i], order[i])
		}
	}
	for _, id := range want {
		if report.Outcomes[id].Error != nil {
			t.Errorf("expected %s to succeed, got error %+v", id, report.Outcomes[id].Error)
		}
	}
}

func TestEngineForEachFanoutMap(t *testing.T) {
	var mu sync.Mutex
	var scoped []string

	checks := []*Check{
		{ID: "list_files", Provider: "list", ForEach: true},
		{ID: "lint_file", Provider: "lint", Fanout: FanoutMap, DependsOn: []string{"list_files"}},
	}

	gw := NewGateway()
	gw.Register("list", constProvider([]any{"a.go", "b.go"}))
	gw.Register("lint", ProviderFunc(func(ctx *CheckContext) (CheckResult, error) {
		item, _ := ctx.Outputs.Get("list_files")
		mu.Lock()
		scoped = append(scoped, ctx.Scope.String()+"="+item.(string))
		mu.Unlock()
		return CheckResult{Output: "ok"}, nil
	}))

	eng, err := NewEngine(checks, gw, newFakeMemory(), emit.NewNullEmitter())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	report, err := eng.ExecuteChecks(context.Background(), nil, EventEnvelope{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if len(scoped) != 2 {
		t.Fatalf("expected lint_file to run once per item, got %d: %v", len(scoped), scoped)
	}
	if report.Outcomes["list_files"].Output == nil {
		t.Error("expected list_files to have a committed aggregate output")
	}
}

func TestEngineOnFailRetryRecoversWithinBudget(t *testing.T) {
	checks := []*Check{
		{ID: "flaky", Provider: "flaky", OnFail: &RoutingBlock{Goto: "flaky"}},
	}
	gw := NewGateway()
	gw.Register("flaky", failNTimes(2))

	eng, err := NewEngine(checks, gw, newFakeMemory(), emit.NewNullEmitter(), WithMaxLoops(5))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	report, err := eng.ExecuteChecks(context.Background(), nil, EventEnvelope{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	outcome := report.Outcomes["flaky"]
	if outcome.Error != nil {
		t.Errorf("expected the check to eventually recover via goto retries, got error %+v", outcome.Error)
	}
	if outcome.Output != "recovered" {
		t.Errorf("expected final output %q, got %v", "recovered", outcome.Output)
	}
	if outcome.Stats.Executions != 3 {
		t.Errorf("expected 3 executions (two failures + recovery), got %d", outcome.Stats.Executions)
	}
}

func TestEngineOnFailRetryExhaustsLoopBudget(t *testing.T) {
	// A check that always fails and retries itself runs initial + max_loops
	// times, then exactly one loop_budget_exceeded issue ends the branch.
	checks := []*Check{
		{ID: "f", Provider: "broken", OnFail: &RoutingBlock{Goto: "f"}},
	}
	gw := NewGateway()
	gw.Register("broken", ProviderFunc(func(ctx *CheckContext) (CheckResult, error) {
		return CheckResult{Error: &ErrorInfo{Kind: ErrorKindProvider, Message: "always"}}, nil
	}))

	eng, err := NewEngine(checks, gw, newFakeMemory(), emit.NewNullEmitter(), WithMaxLoops(3))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	report, err := eng.ExecuteChecks(context.Background(), nil, EventEnvelope{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	outcome := report.Outcomes["f"]
	if outcome.Stats.Executions != 4 {
		t.Errorf("expected 4 executions (initial + 3 budgeted retries), got %d", outcome.Stats.Executions)
	}
	budgetIssues := 0
	for _, exec := range outcome.Executions {
		for _, iss := range exec.Issues {
			if iss.RuleID == "f/routing/loop_budget_exceeded" {
				budgetIssues++
			}
		}
	}
	if budgetIssues != 1 {
		t.Errorf("expected exactly one loop_budget_exceeded issue, got %d", budgetIssues)
	}
}

func TestEngineDeterministicUnderSerialExecution(t *testing.T) {
	checks := []*Check{
		{ID: "a", Provider: "t"},
		{ID: "b", Provider: "t"},
		{ID: "c", Provider: "t"},
	}

	run := func() []string {
		var mu sync.Mutex
		var order []string
		gw := NewGateway()
		gw.Register("t", ProviderFunc(func(ctx *CheckContext) (CheckResult, error) {
			mu.Lock()
			order = append(order, ctx.CheckID)
			mu.Unlock()
			return CheckResult{Output: ctx.CheckID}, nil
		}))
		eng, err := NewEngine(checks, gw, newFakeMemory(), emit.NewNullEmitter(), WithMaxParallelism(1))
		if err != nil {
			t.Fatalf("new engine: %v", err)
		}
		if _, err := eng.ExecuteChecks(context.Background(), nil, EventEnvelope{}); err != nil {
			t.Fatalf("execute: %v", err)
		}
		return order
	}

	first := run()
	second := run()
	if len(first) != len(second) {
		t.Fatalf("expected identical execution lengths, got %v vs %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("expected identical order at max_parallelism=1, diverged at %d: %v vs %v", i, first, second)
		}
	}
}

func TestEngineMemoryIncrementIsIdempotentPerCall(t *testing.T) {
	mem := newFakeMemory()
	checks := []*Check{{ID: "count", Provider: "counter"}}
	gw := NewGateway()
	gw.Register("counter", ProviderFunc(func(ctx *CheckContext) (CheckResult, error) {
		v := ctx.Memory.Increment("runs", 1)
		return CheckResult{Output: v}, nil
	}))
	eng, err := NewEngine(checks, gw, mem, emit.NewNullEmitter())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if _, err := eng.ExecuteChecks(context.Background(), nil, EventEnvelope{}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if v, _ := mem.Get("runs"); v != int64(1) {
		t.Errorf("expected a single increment to produce 1, got %v", v)
	}
}

func TestEngineRejectsUnknownDependencyAtConstruction(t *testing.T) {
	checks := []*Check{{ID: "a", DependsOn: []string{"ghost"}}}
	_, err := NewEngine(checks, NewGateway(), newFakeMemory(), emit.NewNullEmitter())
	if !IsConfigCode(err, CodeUnknownDep) {
		t.Fatalf("expected construction to fail with UNKNOWN_DEP, got %v", err)
	}
}

func TestEngineTargetsSubsetSkipsUnrelatedChecks(t *testing.T) {
	var ran []string
	var mu sync.Mutex
	checks := []*Check{
		{ID: "lint", Provider: "t"},
		{ID: "docs", Provider: "t"},
	}
	gw := NewGateway()
	gw.Register("t", ProviderFunc(func(ctx *CheckContext) (CheckResult, error) {
		mu.Lock()
		ran = append(ran, ctx.CheckID)
		mu.Unlock()
		return CheckResult{Output: "ok"}, nil
	}))
	eng, err := NewEngine(checks, gw, newFakeMemory(), emit.NewNullEmitter())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if _, err := eng.ExecuteChecks(context.Background(), []string{"lint"}, EventEnvelope{}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(ran) != 1 || ran[0] != "lint" {
		t.Errorf("expected only lint to run, got %v", ran)
	}
}

func TestEngineCostTrackerReachesProviders(t *testing.T) {
	checks := []*Check{{ID: "bill", Provider: "meter"}}
	gw := NewGateway()
	gw.Register("meter", ProviderFunc(func(ctx *CheckContext) (CheckResult, error) {
		if ctx.Cost == nil {
			t.Error("expected the run-level cost tracker on CheckContext")
			return CheckResult{}, nil
		}
		ctx.Cost.RecordLLMCall("claude-3-5-sonnet-20241022", 1000, 500, ctx.CheckID)
		return CheckResult{Output: "billed"}, nil
	}))

	tracker := NewCostTracker("sess", "USD")
	eng, err := NewEngine(checks, gw, newFakeMemory(), emit.NewNullEmitter(), WithCostTracker(tracker))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if _, err := eng.ExecuteChecks(context.Background(), nil, EventEnvelope{}); err != nil {
		t.Fatalf("execute: %v", err)
	}

	in, out := tracker.TokenUsage()
	if in != 1000 || out != 500 {
		t.Errorf("expected token usage 1000/500 recorded through the engine, got %d/%d", in, out)
	}
	if len(tracker.CallHistory()) != 1 {
		t.Errorf("expected one recorded call, got %d", len(tracker.CallHistory()))
	}
}
