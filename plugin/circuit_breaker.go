package plugin

import (
	"time"

	"github.com/itsneelabh/taskctl/core"
	"github.com/itsneelabh/taskctl/llm"
	"github.com/itsneelabh/taskctl/resilience"
)

// CircuitBreakerInfo is published under __circuit_breaker.
type CircuitBreakerInfo struct {
	State core.CircuitBreakerState
}

// CircuitBreakerPlugin wraps resilience.CircuitBreaker, reduced to a pure
// consecutive-failures state machine (§4.9) by configuring VolumeThreshold=1
// and the legacy FailureThreshold field — the teacher's circuit breaker
// trips on an error-rate-over-a-window; this plugin re-parameterizes the
// same state machine to trip after N consecutive failures instead, per
// spec.md's resolved Open Question that quality-gate commands are excluded
// from the circuit breaker by default (ValidationPlugin failures are
// observed, quality-gate-only failures are not routed through here).
type CircuitBreakerPlugin struct {
	BasePlugin
	cb     *resilience.CircuitBreaker
	logger core.Logger
}

// NewCircuitBreakerPlugin returns a CircuitBreakerPlugin tripping open after
// failureThreshold consecutive failures, reopening to half-open after
// resetTimeout, closing again on the first half-open success.
func NewCircuitBreakerPlugin(name string, failureThreshold int, resetTimeout time.Duration, logger core.Logger) (*CircuitBreakerPlugin, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	cb, err := resilience.NewCircuitBreaker(&resilience.CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: failureThreshold,
		VolumeThreshold:  1,
		ErrorThreshold:   1.0,
		SleepWindow:      resetTimeout,
		HalfOpenRequests: 1,
		SuccessThreshold: 1.0,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}
	return &CircuitBreakerPlugin{cb: cb, logger: logger}, nil
}

func (p *CircuitBreakerPlugin) Name() string { return "circuit_breaker" }

// BeforeModel rejects with the synthetic CIRCUIT_BREAKER_OPEN response while
// open, per §4.9; half-open and closed states pass through unchanged.
func (p *CircuitBreakerPlugin) BeforeModel(pctx *Context, req *llm.Request) (*core.Event, bool, error) {
	if !p.cb.CanExecute() {
		pctx.Set(KeyCircuitBreaker, CircuitBreakerInfo{State: core.CircuitOpen})
		return p.RejectionEvent(), true, nil
	}
	return nil, false, nil
}

func (p *CircuitBreakerPlugin) AfterModel(pctx *Context, resp *core.Event) (*core.Event, error) {
	if resp == nil {
		return resp, nil
	}

	failed := resp.ErrorCode != ""
	if v, ok := pctx.Get(KeyValidation); ok {
		if validation, ok := v.(ValidationResult); ok && !validation.Passed {
			failed = true
		}
	}

	if failed {
		p.cb.RecordFailure()
	} else {
		p.cb.RecordSuccess()
	}

	pctx.Set(KeyCircuitBreaker, CircuitBreakerInfo{State: stateOf(p.cb.GetState())})

	if registry := core.GetGlobalMetricsRegistry(); registry != nil {
		if failed {
			registry.Counter("taskctl.circuit_breaker.failure")
		} else {
			registry.Counter("taskctl.circuit_breaker.success")
		}
	}

	return resp, nil
}

// RejectionEvent builds the synthetic CIRCUIT_BREAKER_OPEN response §4.9
// requires when the circuit is open.
func (p *CircuitBreakerPlugin) RejectionEvent() *core.Event {
	return &core.Event{ErrorCode: "CIRCUIT_BREAKER_OPEN", ErrorMessage: "circuit breaker is open"}
}

func stateOf(s string) core.CircuitBreakerState {
	switch s {
	case "open":
		return core.CircuitOpen
	case "half-open":
		return core.CircuitHalfOpen
	default:
		return core.CircuitClosed
	}
}
