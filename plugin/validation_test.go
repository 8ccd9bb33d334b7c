package plugin

import (
	"context"
	"testing"
	"time"

	"github.com/itsneelabh/taskctl/core"
)

func TestValidationPluginAllStepsPass(t *testing.T) {
	steps := []ValidationStep{
		{Name: "typecheck", Command: "true"},
		{Name: "lint", Command: "true"},
	}
	p := NewValidationPlugin(steps, false, nil)
	pctx := NewContext(context.Background(), "agent", "task-1", "sess-1")

	out, err := p.AfterModel(pctx, &core.Event{ContentParts: []core.ContentPart{{Text: "ok"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.ContentParts) != 1 {
		t.Fatalf("expected no synthetic content appended on pass, got %+v", out.ContentParts)
	}

	v, ok := pctx.Get(KeyValidation)
	if !ok {
		t.Fatal("expected __validation published")
	}
	result := v.(ValidationResult)
	if !result.Passed {
		t.Fatalf("expected validation to pass, got %+v", result)
	}
}

func TestValidationPluginFailFastStopsAtFirstFailure(t *testing.T) {
	steps := []ValidationStep{
		{Name: "typecheck", Command: "false"},
		{Name: "lint", Command: "false"},
	}
	p := NewValidationPlugin(steps, true, nil)
	pctx := NewContext(context.Background(), "agent", "task-1", "sess-1")

	out, err := p.AfterModel(pctx, &core.Event{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v, _ := pctx.Get(KeyValidation)
	result := v.(ValidationResult)
	if result.Passed {
		t.Fatal("expected validation to fail")
	}
	if len(result.FailedSteps) != 1 || result.FailedSteps[0] != "typecheck" {
		t.Fatalf("expected fail-fast to stop after first failure, got %+v", result.FailedSteps)
	}
	if len(out.ContentParts) == 0 {
		t.Fatal("expected synthetic validationErrors content appended")
	}
	if out.ErrorCode != "" {
		t.Fatalf("expected validation failure to not set an error code, got %s", out.ErrorCode)
	}
}

func TestValidationPluginRunsAllStepsWithoutFailFast(t *testing.T) {
	steps := []ValidationStep{
		{Name: "typecheck", Command: "false"},
		{Name: "lint", Command: "false"},
	}
	p := NewValidationPlugin(steps, false, nil)
	pctx := NewContext(context.Background(), "agent", "task-1", "sess-1")

	if _, err := p.AfterModel(pctx, &core.Event{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v, _ := pctx.Get(KeyValidation)
	result := v.(ValidationResult)
	if len(result.FailedSteps) != 2 {
		t.Fatalf("expected both steps recorded as failed, got %+v", result.FailedSteps)
	}
}

func TestValidationPluginSkipsErroredEvents(t *testing.T) {
	p := NewValidationPlugin([]ValidationStep{{Name: "typecheck", Command: "false"}}, false, nil)
	pctx := NewContext(context.Background(), "agent", "task-1", "sess-1")

	if _, err := p.AfterModel(pctx, &core.Event{ErrorCode: "PROVIDER_ERROR"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := pctx.Get(KeyValidation); ok {
		t.Fatal("expected validation skipped for an already-errored event")
	}
}

func TestValidationPluginStepTimeoutFails(t *testing.T) {
	p := NewValidationPlugin([]ValidationStep{{Name: "slow", Command: "sleep", Args: []string{"5"}, Timeout: 10 * time.Millisecond}}, false, nil)
	pctx := NewContext(context.Background(), "agent", "task-1", "sess-1")

	if _, err := p.AfterModel(pctx, &core.Event{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, _ := pctx.Get(KeyValidation)
	result := v.(ValidationResult)
	if result.Passed {
		t.Fatal("expected timed-out step to count as a failure")
	}
}
