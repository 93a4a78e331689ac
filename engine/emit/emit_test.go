package emit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestBufferedEmitterRecordsPerSession(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{SessionID: "s1", Wave: 0, CheckID: "lint", Msg: "check_commit"})
	b.Emit(Event{SessionID: "s2", Wave: 0, CheckID: "test", Msg: "check_commit"})

	if len(b.GetHistory("s1")) != 1 {
		t.Fatalf("expected 1 event for s1, got %d", len(b.GetHistory("s1")))
	}
	if len(b.GetHistory("s2")) != 1 {
		t.Fatalf("expected 1 event for s2, got %d", len(b.GetHistory("s2")))
	}
}

func TestBufferedEmitterEmitBatchPreservesOrder(t *testing.T) {
	b := NewBufferedEmitter()
	events := []Event{
		{SessionID: "s1", Msg: "a"},
		{SessionID: "s1", Msg: "b"},
		{SessionID: "s1", Msg: "c"},
	}
	if err := b.EmitBatch(context.Background(), events); err != nil {
		t.Fatalf("emit batch: %v", err)
	}
	got := b.GetHistory("s1")
	for i, want := range []string{"a", "b", "c"} {
		if got[i].Msg != want {
			t.Errorf("event %d: expected %q, got %q", i, want, got[i].Msg)
		}
	}
}

func TestBufferedEmitterHistoryFilter(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{SessionID: "s1", Wave: 0, CheckID: "lint", Msg: "check_commit"})
	b.Emit(Event{SessionID: "s1", Wave: 1, CheckID: "test", Msg: "check_commit"})
	b.Emit(Event{SessionID: "s1", Wave: 1, CheckID: "test", Msg: "routing_forward"})

	filtered := b.GetHistoryWithFilter("s1", HistoryFilter{CheckID: "test", Msg: "check_commit"})
	if len(filtered) != 1 {
		t.Fatalf("expected 1 matching event, got %d", len(filtered))
	}

	min := 1
	byWave := b.GetHistoryWithFilter("s1", HistoryFilter{MinWave: &min})
	if len(byWave) != 2 {
		t.Fatalf("expected 2 events at wave >= 1, got %d", len(byWave))
	}
}

func TestBufferedEmitterClear(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{SessionID: "s1", Msg: "a"})
	b.Emit(Event{SessionID: "s2", Msg: "b"})

	b.Clear("s1")
	if len(b.GetHistory("s1")) != 0 {
		t.Error("expected s1 history to be cleared")
	}
	if len(b.GetHistory("s2")) != 1 {
		t.Error("expected s2 history to survive a scoped clear")
	}

	b.Clear("")
	if len(b.GetHistory("s2")) != 0 {
		t.Error("expected a blank sessionID to clear every session")
	}
}

func TestLogEmitterJSONMode(t *testing.T) {
	buf := new(bytes.Buffer)
	l := NewLogEmitter(buf, true)
	l.Emit(Event{SessionID: "s1", Wave: 2, CheckID: "lint", Msg: "check_commit", Meta: map[string]any{"success": true}})

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("expected valid JSON line, got error %v for %q", err, buf.String())
	}
	if decoded["checkID"] != "lint" {
		t.Errorf("expected checkID %q, got %v", "lint", decoded["checkID"])
	}
}

func TestLogEmitterTextMode(t *testing.T) {
	buf := new(bytes.Buffer)
	l := NewLogEmitter(buf, false)
	l.Emit(Event{SessionID: "s1", Wave: 0, CheckID: "lint", Msg: "check_commit"})

	if !strings.Contains(buf.String(), "check_commit") || !strings.Contains(buf.String(), "lint") {
		t.Errorf("expected text output to mention msg and check id, got %q", buf.String())
	}
}

func TestLogEmitterDefaultsToStdoutWhenNil(t *testing.T) {
	l := NewLogEmitter(nil, false)
	if l.writer == nil {
		t.Fatal("expected a nil writer to default to os.Stdout")
	}
}

func TestNullEmitterDiscardsEverything(t *testing.T) {
	n := NewNullEmitter()
	n.Emit(Event{Msg: "anything"})
	if err := n.EmitBatch(context.Background(), []Event{{Msg: "x"}}); err != nil {
		t.Fatalf("expected EmitBatch to be a no-op, got %v", err)
	}
	if err := n.Flush(context.Background()); err != nil {
		t.Fatalf("expected Flush to be a no-op, got %v", err)
	}
}
