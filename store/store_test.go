package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dshills/checkrun/engine"
	"github.com/dshills/checkrun/engine/emit"
)

func sampleEntry(session string, commit uint64, check string) *engine.JournalEntry {
	return &engine.JournalEntry{
		CommitID:  commit,
		SessionID: session,
		CheckID:   check,
		Scope:     engine.ScopePath{{Check: "list", Index: 1}},
		Event:     "push",
		Result: engine.CheckResult{
			Output:  map[string]any{"msg": "hello"},
			Content: "hello",
			Issues:  []engine.Issue{{RuleID: "r1", Severity: engine.SeverityLow, Message: "note"}},
		},
	}
}

func sampleCheckpoint(session string) engine.RunCheckpoint {
	return engine.RunCheckpoint{
		SessionID:        session,
		Wave:             1,
		CommitID:         2,
		Entries:          []engine.JournalEntry{*sampleEntry(session, 1, "a"), *sampleEntry(session, 2, "b")},
		Pending:          []engine.PendingRun{{Target: "c", Wave: 2}},
		RoutingLoopCount: 3,
		Stats:            map[string]engine.RunStats{"a": {Executions: 1}},
		CreatedAt:        time.Now().UTC(),
	}
}

func TestMemoryStoreCheckpointRoundtrip(t *testing.T) {
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()
	ctx := context.Background()

	if _, err := s.LoadCheckpoint(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown session, got %v", err)
	}

	cp := sampleCheckpoint("sess-1")
	if err := s.SaveCheckpoint(ctx, cp); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}
	got, err := s.LoadCheckpoint(ctx, "sess-1")
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if got.Wave != 1 || len(got.Entries) != 2 || got.RoutingLoopCount != 3 {
		t.Errorf("checkpoint did not roundtrip: %+v", got)
	}
}

func TestMemoryStoreEntriesAppendInOrder(t *testing.T) {
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()
	ctx := context.Background()

	for i := uint64(1); i <= 3; i++ {
		if err := s.SaveEntry(ctx, sampleEntry("sess-1", i, "a")); err != nil {
			t.Fatalf("SaveEntry %d: %v", i, err)
		}
	}
	entries, err := s.Entries(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.CommitID != uint64(i+1) {
			t.Errorf("entry %d out of order: commit %d", i, e.CommitID)
		}
	}
}

func TestMemoryStoreClosedOperations(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("double Close should be a no-op: %v", err)
	}
	if err := s.SaveEntry(context.Background(), sampleEntry("s", 1, "a")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after Close, got %v", err)
	}
}

// End-to-end: a run persisted through a CheckpointStore can be resumed by a
// fresh Engine and the restored journal keeps the first run's outputs.
func TestEngineResumeFromCheckpoint(t *testing.T) {
	cps := NewMemoryStore()
	defer func() { _ = cps.Close() }()

	checks := []*engine.Check{
		{ID: "fetch", Provider: "stub"},
		{ID: "report", Provider: "stub", DependsOn: []string{"fetch"}},
	}
	gateway := engine.NewGateway()
	gateway.Register("stub", engine.ProviderFunc(func(ctx *engine.CheckContext) (engine.CheckResult, error) {
		return engine.CheckResult{Output: ctx.CheckID + "-done"}, nil
	}))

	eng, err := engine.NewEngine(checks, gateway, nil, emit.NewNullEmitter(), engine.WithCheckpointStore(cps))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	report, err := eng.ExecuteChecks(context.Background(), nil, engine.EventEnvelope{Name: "push"})
	if err != nil {
		t.Fatalf("ExecuteChecks: %v", err)
	}

	cp, err := cps.LoadCheckpoint(context.Background(), report.SessionID)
	if err != nil {
		t.Fatalf("LoadCheckpoint after run: %v", err)
	}
	if cp.Wave != 1 {
		t.Errorf("expected final checkpoint at wave 1, got %d", cp.Wave)
	}
	if len(cp.Entries) != 2 {
		t.Errorf("expected 2 journal entries in checkpoint, got %d", len(cp.Entries))
	}

	// A fresh engine resuming a completed session has no waves left to run
	// but must surface the restored journal in its report.
	eng2, err := engine.NewEngine(checks, gateway, nil, emit.NewNullEmitter(), engine.WithCheckpointStore(cps))
	if err != nil {
		t.Fatalf("NewEngine (resume): %v", err)
	}
	resumed, err := eng2.Resume(context.Background(), report.SessionID, nil, engine.EventEnvelope{Name: "push"})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.SessionID != report.SessionID {
		t.Errorf("resume changed session id: %s != %s", resumed.SessionID, report.SessionID)
	}
	outcome := resumed.Outcomes["fetch"]
	if outcome == nil || outcome.Output != "fetch-done" {
		t.Errorf("restored journal missing fetch output: %+v", outcome)
	}
}

func TestEngineResumeUnknownSession(t *testing.T) {
	cps := NewMemoryStore()
	defer func() { _ = cps.Close() }()

	checks := []*engine.Check{{ID: "only", Provider: "stub"}}
	gateway := engine.NewGateway()
	gateway.Register("stub", engine.ProviderFunc(func(ctx *engine.CheckContext) (engine.CheckResult, error) {
		return engine.CheckResult{}, nil
	}))
	eng, err := engine.NewEngine(checks, gateway, nil, emit.NewNullEmitter(), engine.WithCheckpointStore(cps))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if _, err := eng.Resume(context.Background(), "missing", nil, engine.EventEnvelope{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound resuming unknown session, got %v", err)
	}
}
