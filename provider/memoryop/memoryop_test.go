package memoryop_test

import (
	"context"
	"testing"

	"github.com/dshills/checkrun/engine"
	"github.com/dshills/checkrun/memory"
	"github.com/dshills/checkrun/provider/memoryop"
)

func newMemory(t *testing.T) *memory.Store {
	t.Helper()
	s, err := memory.New(memory.Options{})
	if err != nil {
		t.Fatalf("memory.New: %v", err)
	}
	return s
}

func TestProviderSetAndGet(t *testing.T) {
	mem := newMemory(t)
	p := memoryop.New()

	if _, err := p.Invoke(&engine.CheckContext{
		Context: context.Background(), Memory: mem,
		Config: map[string]any{"op": memoryop.OpSet, "key": "k", "value": "v"},
	}); err != nil {
		t.Fatalf("set: %v", err)
	}

	result, err := p.Invoke(&engine.CheckContext{
		Context: context.Background(), Memory: mem,
		Config: map[string]any{"op": memoryop.OpGet, "key": "k"},
	})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if result.Output != "v" {
		t.Fatalf("expected v, got %v", result.Output)
	}
}

func TestProviderIncrement(t *testing.T) {
	mem := newMemory(t)
	p := memoryop.New()

	result, err := p.Invoke(&engine.CheckContext{
		Context: context.Background(), Memory: mem,
		Config: map[string]any{"op": memoryop.OpIncrement, "key": "counter"},
	})
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if result.Output != int64(1) {
		t.Fatalf("expected 1, got %v", result.Output)
	}

	result, err = p.Invoke(&engine.CheckContext{
		Context: context.Background(), Memory: mem,
		Config: map[string]any{"op": memoryop.OpIncrement, "key": "counter", "delta": int64(4)},
	})
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if result.Output != int64(5) {
		t.Fatalf("expected 5, got %v", result.Output)
	}
}

func TestProviderMissingMemoryStore(t *testing.T) {
	p := memoryop.New()
	result, err := p.Invoke(&engine.CheckContext{
		Context: context.Background(),
		Config:  map[string]any{"op": memoryop.OpGet, "key": "k"},
	})
	if err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	if result.Error == nil || result.Error.Kind != engine.ErrorKindMemory {
		t.Fatalf("expected memory error, got %+v", result.Error)
	}
}

func TestProviderUnknownOp(t *testing.T) {
	mem := newMemory(t)
	p := memoryop.New()
	result, err := p.Invoke(&engine.CheckContext{
		Context: context.Background(), Memory: mem,
		Config: map[string]any{"op": "bogus", "key": "k"},
	})
	if err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	if result.Error == nil {
		t.Fatalf("expected error for unknown op")
	}
}
