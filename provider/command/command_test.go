package command_test

import (
	"context"
	"runtime"
	"testing"

	"github.com/dshills/checkrun/engine"
	"github.com/dshills/checkrun/provider/command"
)

func TestProviderInvokeSuccess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell-dependent test")
	}
	p := command.New("")
	cctx := &engine.CheckContext{
		Context: context.Background(),
		Config:  map[string]any{"command": "echo hello"},
	}

	result, err := p.Invoke(cctx)
	if err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	if result.Error != nil {
		t.Fatalf("expected no error, got %+v", result.Error)
	}
	if result.Output != "hello" {
		t.Fatalf("expected output 'hello', got %q", result.Output)
	}
}

func TestProviderInvokeFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell-dependent test")
	}
	p := command.New("")
	cctx := &engine.CheckContext{
		Context: context.Background(),
		Config:  map[string]any{"command": "exit 1"},
	}

	result, err := p.Invoke(cctx)
	if err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	if result.Error == nil || result.Error.Kind != engine.ErrorKindProvider {
		t.Fatalf("expected provider error, got %+v", result.Error)
	}
}

func TestProviderInvokeMissingCommand(t *testing.T) {
	p := command.New("")
	cctx := &engine.CheckContext{Context: context.Background(), Config: map[string]any{}}

	result, err := p.Invoke(cctx)
	if err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	if result.Error == nil {
		t.Fatalf("expected error for missing command")
	}
}
