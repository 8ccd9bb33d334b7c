package plugin

import (
	"sync"

	"github.com/itsneelabh/taskctl/core"
)

// RetryInfo is published under __retry when a retry is signaled.
type RetryInfo struct {
	Attempt    int
	MaxAttempts int
}

// RetryPlugin tracks per-session attempt counts and signals the Task
// Executor to resubmit on a retryable failure (§4.7). The executor
// recognizes __retry in the state delta and re-invokes the pipeline with
// appended error context; this plugin only does the counting and signaling.
type RetryPlugin struct {
	BasePlugin
	maxAttempts int
	logger      core.Logger

	mu       sync.Mutex
	attempts map[string]int
}

// NewRetryPlugin returns a RetryPlugin allowing up to maxAttempts per
// session before surfacing exhaustion as task failure.
func NewRetryPlugin(maxAttempts int, logger core.Logger) *RetryPlugin {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryPlugin{maxAttempts: maxAttempts, logger: logger, attempts: make(map[string]int)}
}

func (p *RetryPlugin) Name() string { return "retry" }

func (p *RetryPlugin) AfterModel(pctx *Context, resp *core.Event) (*core.Event, error) {
	if resp == nil {
		return resp, nil
	}

	failed := isTransientFailure(pctx, resp)
	if !failed {
		p.mu.Lock()
		delete(p.attempts, pctx.SessionID)
		p.mu.Unlock()
		return resp, nil
	}

	p.mu.Lock()
	p.attempts[pctx.SessionID]++
	attempt := p.attempts[pctx.SessionID]
	p.mu.Unlock()

	if attempt >= p.maxAttempts {
		p.logger.Warn("retry attempts exhausted", map[string]interface{}{"session_id": pctx.SessionID, "attempts": attempt})
		if registry := core.GetGlobalMetricsRegistry(); registry != nil {
			registry.Counter("taskctl.task.failures", "reason", "retry_exhausted")
		}
		delete(pctx.StateDelta, KeyRetry)
		return resp, nil
	}

	pctx.Set(KeyRetry, RetryInfo{Attempt: attempt, MaxAttempts: p.maxAttempts})
	if registry := core.GetGlobalMetricsRegistry(); registry != nil {
		registry.Counter("taskctl.task.retries")
	}
	return resp, nil
}

// isTransientFailure reports whether resp represents a failure this plugin
// should retry: either validation explicitly failed, or the response itself
// carries a transient (non-budget, non-context-limit) error code.
func isTransientFailure(pctx *Context, resp *core.Event) bool {
	if v, ok := pctx.Get(KeyValidation); ok {
		if validation, ok := v.(ValidationResult); ok && !validation.Passed {
			return true
		}
	}
	if resp.ErrorCode == "" {
		return false
	}
	switch resp.ErrorCode {
	case "BUDGET_EXCEEDED", "TOKEN_LIMIT_EXCEEDED":
		return false
	default:
		return true
	}
}
