package plugin

import (
	"context"
	"testing"

	"github.com/itsneelabh/taskctl/core"
)

func TestRetryPluginSignalsRetryBelowMax(t *testing.T) {
	p := NewRetryPlugin(3, nil)
	pctx := NewContext(context.Background(), "agent", "task-1", "sess-1")

	resp := &core.Event{ErrorCode: "PROVIDER_ERROR"}
	_, err := p.AfterModel(pctx, resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v, ok := pctx.Get(KeyRetry)
	if !ok {
		t.Fatal("expected __retry published")
	}
	info := v.(RetryInfo)
	if info.Attempt != 1 || info.MaxAttempts != 3 {
		t.Fatalf("unexpected retry info: %+v", info)
	}
}

func TestRetryPluginExhaustionStopsSignaling(t *testing.T) {
	p := NewRetryPlugin(2, nil)
	resp := &core.Event{ErrorCode: "PROVIDER_ERROR"}

	pctx := NewContext(context.Background(), "agent", "task-1", "sess-1")
	if _, err := p.AfterModel(pctx, resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.AfterModel(pctx, resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := pctx.Get(KeyRetry); ok {
		t.Fatal("expected no __retry published once attempts are exhausted")
	}
}

func TestRetryPluginClearsCounterOnSuccess(t *testing.T) {
	p := NewRetryPlugin(3, nil)
	pctx := NewContext(context.Background(), "agent", "task-1", "sess-1")

	if _, err := p.AfterModel(pctx, &core.Event{ErrorCode: "PROVIDER_ERROR"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.AfterModel(pctx, &core.Event{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p.mu.Lock()
	_, exists := p.attempts[pctx.SessionID]
	p.mu.Unlock()
	if exists {
		t.Fatal("expected attempt counter cleared after success")
	}
}

func TestRetryPluginIgnoresBudgetErrors(t *testing.T) {
	pctx := NewContext(context.Background(), "agent", "task-1", "sess-1")
	if isTransientFailure(pctx, &core.Event{ErrorCode: "BUDGET_EXCEEDED"}) {
		t.Fatal("expected BUDGET_EXCEEDED to not be treated as transient")
	}
	if isTransientFailure(pctx, &core.Event{ErrorCode: "TOKEN_LIMIT_EXCEEDED"}) {
		t.Fatal("expected TOKEN_LIMIT_EXCEEDED to not be treated as transient")
	}
}

func TestRetryPluginTreatsFailedValidationAsTransient(t *testing.T) {
	pctx := NewContext(context.Background(), "agent", "task-1", "sess-1")
	pctx.Set(KeyValidation, ValidationResult{Passed: false})
	if !isTransientFailure(pctx, &core.Event{}) {
		t.Fatal("expected failed validation to be treated as transient")
	}
}
