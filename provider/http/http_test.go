package http_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/dshills/checkrun/engine"
	checkhttp "github.com/dshills/checkrun/provider/http"
)

func TestProviderInvokeExtractsField(t *testing.T) {
	srv := httptest.NewServer(okHandler(`{"status":"ready","count":3}`))
	defer srv.Close()

	p := checkhttp.New(0)
	cctx := &engine.CheckContext{
		Context: context.Background(),
		Config:  map[string]any{"url": srv.URL, "extract": "status"},
	}

	result, err := p.Invoke(cctx)
	if err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	if result.Error != nil {
		t.Fatalf("expected no error, got %+v", result.Error)
	}
	if result.Output != "ready" {
		t.Fatalf("expected output 'ready', got %v", result.Output)
	}
}

func TestProviderInvokeNon2xxIsProviderError(t *testing.T) {
	srv := httptest.NewServer(failHandler())
	defer srv.Close()

	p := checkhttp.New(0)
	cctx := &engine.CheckContext{Context: context.Background(), Config: map[string]any{"url": srv.URL}}

	result, err := p.Invoke(cctx)
	if err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	if result.Error == nil || result.Error.Kind != engine.ErrorKindProvider {
		t.Fatalf("expected provider error, got %+v", result.Error)
	}
}

func TestProviderInvokeMissingURL(t *testing.T) {
	p := checkhttp.New(0)
	cctx := &engine.CheckContext{Context: context.Background(), Config: map[string]any{}}

	result, err := p.Invoke(cctx)
	if err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	if result.Error == nil {
		t.Fatalf("expected error for missing url")
	}
}
