package engine

import "testing"

func TestCostTrackerAccumulatesAcrossCalls(t *testing.T) {
	ct := NewCostTracker("sess", "USD")
	ct.RecordLLMCall("gpt-4o", 1_000_000, 1_000_000, "summarize")
	ct.RecordLLMCall("gpt-4o", 500_000, 0, "lint")

	want := 2.50 + 10.00 + 1.25
	if got := ct.TotalCost(); !floatNear(got, want) {
		t.Errorf("expected total cost %.4f, got %.4f", want, got)
	}

	input, output := ct.TokenUsage()
	if input != 1_500_000 || output != 1_000_000 {
		t.Errorf("expected token usage 1500000/1000000, got %d/%d", input, output)
	}
	if len(ct.CallHistory()) != 2 {
		t.Errorf("expected 2 recorded calls, got %d", len(ct.CallHistory()))
	}
}

func TestCostTrackerUnknownModelIsZeroCost(t *testing.T) {
	ct := NewCostTracker("sess", "USD")
	ct.RecordLLMCall("some-unlisted-model", 1000, 1000, "x")
	if got := ct.TotalCost(); got != 0 {
		t.Errorf("expected zero cost for an unlisted model, got %v", got)
	}
}

func TestCostTrackerCustomPricingOverride(t *testing.T) {
	ct := NewCostTracker("sess", "USD")
	ct.SetCustomPricing("house-model", 1.0, 2.0)
	ct.RecordLLMCall("house-model", 1_000_000, 1_000_000, "x")
	if got := ct.TotalCost(); !floatNear(got, 3.0) {
		t.Errorf("expected custom pricing to apply, got %.4f", got)
	}
}

func TestCostTrackerDisableStopsRecording(t *testing.T) {
	ct := NewCostTracker("sess", "USD")
	ct.Disable()
	ct.RecordLLMCall("gpt-4o", 1_000_000, 1_000_000, "x")
	if got := ct.TotalCost(); got != 0 {
		t.Errorf("expected no recording while disabled, got cost %.4f", got)
	}
	ct.Enable()
	ct.RecordLLMCall("gpt-4o", 1_000_000, 0, "x")
	if got := ct.TotalCost(); !floatNear(got, 2.50) {
		t.Errorf("expected recording to resume after Enable, got %.4f", got)
	}
}

func TestCostTrackerNilReceiverIsSafe(t *testing.T) {
	var ct *CostTracker
	ct.RecordLLMCall("gpt-4o", 1000, 1000, "x") // must not panic
}

func floatNear(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 0.0001
}
