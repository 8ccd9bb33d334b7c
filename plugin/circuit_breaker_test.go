package plugin

import (
	"context"
	"testing"
	"time"

	"github.com/itsneelabh/taskctl/core"
	"github.com/itsneelabh/taskctl/llm"
)

func TestCircuitBreakerPluginTripsAfterThreshold(t *testing.T) {
	p, err := NewCircuitBreakerPlugin("test", 2, 50*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pctx := NewContext(context.Background(), "agent", "task-1", "sess-1")

	for i := 0; i < 2; i++ {
		if _, err := p.AfterModel(pctx, &core.Event{ErrorCode: "PROVIDER_ERROR"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	resp, stop, err := p.BeforeModel(pctx, &llm.Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !stop {
		t.Fatal("expected circuit to be open and short-circuit")
	}
	if resp.ErrorCode != "CIRCUIT_BREAKER_OPEN" {
		t.Fatalf("expected CIRCUIT_BREAKER_OPEN, got %s", resp.ErrorCode)
	}

	v, ok := pctx.Get(KeyCircuitBreaker)
	if !ok {
		t.Fatal("expected __circuit_breaker published")
	}
	if v.(CircuitBreakerInfo).State != core.CircuitOpen {
		t.Fatalf("expected open state, got %+v", v)
	}
}

func TestCircuitBreakerPluginClosedStatePassesThrough(t *testing.T) {
	p, err := NewCircuitBreakerPlugin("test2", 3, 50*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pctx := NewContext(context.Background(), "agent", "task-1", "sess-1")

	resp, stop, err := p.BeforeModel(pctx, &llm.Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stop || resp != nil {
		t.Fatalf("expected closed circuit to pass through, got resp=%+v stop=%v", resp, stop)
	}
}

func TestCircuitBreakerPluginRecoversAfterSleepWindow(t *testing.T) {
	p, err := NewCircuitBreakerPlugin("test3", 1, 10*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pctx := NewContext(context.Background(), "agent", "task-1", "sess-1")

	if _, err := p.AfterModel(pctx, &core.Event{ErrorCode: "PROVIDER_ERROR"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, stop, _ := p.BeforeModel(pctx, &llm.Request{}); !stop {
		t.Fatal("expected circuit open immediately after tripping")
	}

	time.Sleep(20 * time.Millisecond)

	if _, stop, _ := p.BeforeModel(pctx, &llm.Request{}); stop {
		t.Fatal("expected circuit to allow a half-open probe after the sleep window")
	}
}

func TestCircuitBreakerPluginSuccessResetsConsecutiveFailures(t *testing.T) {
	p, err := NewCircuitBreakerPlugin("test5", 2, 50*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pctx := NewContext(context.Background(), "agent", "task-1", "sess-1")

	// One failure, then a success: the breaker trips on *consecutive*
	// failures (§4.9), so this success must reset the count to zero.
	if _, err := p.AfterModel(pctx, &core.Event{ErrorCode: "PROVIDER_ERROR"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.AfterModel(pctx, &core.Event{ContentParts: []core.ContentPart{{Text: "ok"}}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// One more failure alone must not reach the threshold of 2.
	if _, err := p.AfterModel(pctx, &core.Event{ErrorCode: "PROVIDER_ERROR"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, stop, _ := p.BeforeModel(pctx, &llm.Request{}); stop {
		t.Fatal("expected circuit to remain closed: failures were not consecutive")
	}
}

func TestCircuitBreakerPluginValidationFailureCountsAsFailure(t *testing.T) {
	p, err := NewCircuitBreakerPlugin("test4", 1, 50*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pctx := NewContext(context.Background(), "agent", "task-1", "sess-1")
	pctx.Set(KeyValidation, ValidationResult{Passed: false})

	if _, err := p.AfterModel(pctx, &core.Event{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, stop, _ := p.BeforeModel(pctx, &llm.Request{}); !stop {
		t.Fatal("expected failed validation to trip the breaker")
	}
}
