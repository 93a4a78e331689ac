package llm

import (
	"reflect"
	"testing"
)

func TestExtractStructuredFencedJSON(t *testing.T) {
	reply := "Here are the findings:\n\n```json\n{\"severity\": \"high\", \"count\": 2}\n```\n\nLet me know if you need detail."
	got, ok := extractStructured(reply)
	if !ok {
		t.Fatal("expected a structured block to be found")
	}
	want := map[string]any{"severity": "high", "count": float64(2)}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("decoded %v, want %v", got, want)
	}
}

func TestExtractStructuredSkipsNonJSONFences(t *testing.T) {
	reply := "```go\nfunc main() {}\n```\n\n```json\n[1, 2, 3]\n```"
	got, ok := extractStructured(reply)
	if !ok {
		t.Fatal("expected the json fence to be found")
	}
	if !reflect.DeepEqual(got, []any{float64(1), float64(2), float64(3)}) {
		t.Errorf("decoded %v", got)
	}
}

func TestExtractStructuredPlainProse(t *testing.T) {
	if _, ok := extractStructured("no fences here, just prose"); ok {
		t.Error("expected no structured block in plain prose")
	}
}

func TestExtractStructuredInvalidJSONIgnored(t *testing.T) {
	if _, ok := extractStructured("```json\n{not valid\n```"); ok {
		t.Error("expected invalid json fence to be ignored")
	}
}
