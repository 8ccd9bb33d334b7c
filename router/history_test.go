package router

import (
	"testing"

	"github.com/itsneelabh/taskctl/core"
)

func TestHistoryOverrideRequiresMinimumAttempts(t *testing.T) {
	h := NewHistoryStore()
	sig := "sig-a"

	for i := 0; i < historyOverrideMinAttempts-1; i++ {
		h.Record(sig, "good-model", true, 0.01)
	}

	if _, _, ok := h.Override(sig, core.TierMid); ok {
		t.Fatal("expected no override below minimum attempt threshold")
	}
}

func TestHistoryOverrideFiresOnStrongSignal(t *testing.T) {
	h := NewHistoryStore()
	sig := "sig-b"

	for i := 0; i < 6; i++ {
		h.Record(sig, "good-model", true, 0.01)
	}
	for i := 0; i < 6; i++ {
		h.Record(sig, "bad-model", false, 0.01)
	}

	model, tier, ok := h.Override(sig, core.TierMid)
	if !ok {
		t.Fatal("expected override with strong success-rate delta")
	}
	if model != "good-model" {
		t.Fatalf("expected good-model selected, got %s", model)
	}
	if tier != core.TierMid {
		t.Fatalf("expected default tier preserved, got %s", tier)
	}
}

func TestHistoryNoOverrideWithoutConfidentDelta(t *testing.T) {
	h := NewHistoryStore()
	sig := "sig-c"

	for i := 0; i < 3; i++ {
		h.Record(sig, "model-x", true, 0.01)
		h.Record(sig, "model-y", true, 0.01)
	}

	if _, _, ok := h.Override(sig, core.TierMid); ok {
		t.Fatal("expected no override when success rates are similar")
	}
}

func TestHistoryRecordAccumulatesAvgCost(t *testing.T) {
	h := NewHistoryStore()
	sig := "sig-d"

	h.Record(sig, "model-x", true, 1.0)
	h.Record(sig, "model-x", true, 3.0)

	patterns := h.Patterns()[sig]
	if len(patterns) != 1 {
		t.Fatalf("expected one pattern for model-x, got %d", len(patterns))
	}
	if patterns[0].AvgCost != 2.0 {
		t.Fatalf("expected avg cost 2.0, got %f", patterns[0].AvgCost)
	}
	if patterns[0].SuccessCount != 2 {
		t.Fatalf("expected 2 successes, got %d", patterns[0].SuccessCount)
	}
}
