package plugin

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/itsneelabh/taskctl/core"
)

// ValidationStep is one named shell command run as a quality gate.
type ValidationStep struct {
	Name    string
	Command string
	Args    []string
	Timeout time.Duration
}

// ValidationResult is published under __validation (§4.8).
type ValidationResult struct {
	Passed        bool
	FailedSteps   []string
	TotalDuration time.Duration
}

// ValidationPlugin runs an ordered list of shell commands (typecheck, lint,
// unit tests, e2e tests, build) after a non-partial, non-error response.
type ValidationPlugin struct {
	BasePlugin
	steps    []ValidationStep
	failFast bool
	logger   core.Logger
}

// NewValidationPlugin returns a ValidationPlugin running steps in order;
// failFast stops at the first failing step.
func NewValidationPlugin(steps []ValidationStep, failFast bool, logger core.Logger) *ValidationPlugin {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &ValidationPlugin{steps: steps, failFast: failFast, logger: logger}
}

func (p *ValidationPlugin) Name() string { return "validation" }

func (p *ValidationPlugin) AfterModel(pctx *Context, resp *core.Event) (*core.Event, error) {
	if resp == nil || resp.Partial || resp.ErrorCode != "" {
		return resp, nil
	}

	start := time.Now()
	var failed []string

	for _, step := range p.steps {
		if !p.runStep(pctx.Ctx, step) {
			failed = append(failed, step.Name)
			if p.failFast {
				break
			}
		}
	}

	result := ValidationResult{Passed: len(failed) == 0, FailedSteps: failed, TotalDuration: time.Since(start)}
	pctx.Set(KeyValidation, result)

	if registry := core.GetGlobalMetricsRegistry(); registry != nil {
		registry.EmitWithContext(pctx.Ctx, "taskctl.validation.duration_ms", float64(result.TotalDuration.Milliseconds()), "passed", boolLabel(result.Passed))
	}

	if result.Passed {
		return resp, nil
	}

	out := *resp
	out.ContentParts = append(append([]core.ContentPart(nil), out.ContentParts...), core.ContentPart{
		Text: "validationErrors: " + strings.Join(failed, ", "),
	})
	return &out, nil
}

func (p *ValidationPlugin) runStep(ctx context.Context, step ValidationStep) bool {
	timeout := step.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, step.Command, step.Args...)
	if err := cmd.Run(); err != nil {
		p.logger.Warn("validation step failed", map[string]interface{}{"step": step.Name, "error": err.Error()})
		return false
	}
	return true
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
