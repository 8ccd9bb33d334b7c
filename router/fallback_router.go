package router

import (
	"context"
	"time"

	"github.com/itsneelabh/taskctl/core"
	"github.com/itsneelabh/taskctl/llm"
)

// ProviderBackend pairs a model name with the Backend that should serve it,
// so FallbackRouter can walk an escalation path without the caller building
// a new Backend per attempt.
type ProviderBackend struct {
	Model   string
	Backend llm.Backend
}

// LivenessProbe checks whether a backend is reachable before committing a
// full Generate call to it. Implementations typically do a cheap Connect or
// a HEAD-style request; the zero value (nil) disables probing.
type LivenessProbe interface {
	Probe(ctx context.Context, backend llm.Backend) error
}

// noopProbe treats every backend as live, deferring failure detection to
// the Generate call itself.
type noopProbe struct{}

func (noopProbe) Probe(context.Context, llm.Backend) error { return nil }

// ConnectProbe probes a backend via its Connect method, bounded by
// probeTimeout. Backends that don't support Connect (most do not; it
// returns a "not supported" PortError) are treated as live, since Connect
// support is optional per the llm.Backend contract.
type ConnectProbe struct{}

func (ConnectProbe) Probe(ctx context.Context, backend llm.Backend) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	_, err := backend.Connect(ctx, llm.Request{})
	if err == nil {
		return nil
	}
	if perr, ok := err.(*llm.PortError); ok && perr.Message == "not supported" {
		return nil
	}
	return err
}

// FallbackRouter wraps a ModelRouter's escalation path with provider
// failover: it probes, then generates, walking the path until one backend
// succeeds or the path is exhausted (§4.3). Grounded on ai/chain_client.go's
// ChainClient.GenerateResponse attempt loop.
type FallbackRouter struct {
	model   *ModelRouter
	probe   LivenessProbe
	logger  core.Logger
	history *HistoryStore
}

// NewFallbackRouter builds a FallbackRouter over model. A nil probe disables
// pre-flight liveness checks.
func NewFallbackRouter(model *ModelRouter, history *HistoryStore, probe LivenessProbe, logger core.Logger) *FallbackRouter {
	if probe == nil {
		probe = noopProbe{}
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &FallbackRouter{model: model, probe: probe, logger: logger, history: history}
}

// isClientError reports whether err is a caller-side mistake that no amount
// of failover will fix; only a context-limit PortError counts, mirroring
// ai/chain_client.go's isClientError classification.
func isClientError(err error) bool {
	perr, ok := err.(*llm.PortError)
	if !ok {
		return false
	}
	return perr.Kind == llm.ErrorKindContextLimit
}

// Generate selects a model for attrs, then walks the resulting escalation
// path (primary first) until one backend's Generate succeeds or every
// candidate has failed. providers maps model name -> backend for everything
// reachable from the decision's SelectedModel and EscalationPath.
func (fr *FallbackRouter) Generate(ctx context.Context, attrs TaskAttributes, pref *ModelPreference, req llm.Request, providers map[string]llm.Backend) (core.RoutingDecision, llm.EventSequence, error) {
	decision := fr.model.Select(attrs, pref)

	candidates := append([]string{decision.SelectedModel}, decision.EscalationPath...)

	var lastErr error
	for i, model := range candidates {
		backend, ok := providers[model]
		if !ok {
			continue
		}

		if err := fr.probe.Probe(ctx, backend); err != nil {
			fr.logger.Warn("provider failed liveness probe, failing over", map[string]interface{}{"model": model, "error": err.Error()})
			lastErr = err
			continue
		}

		attemptReq := req
		attemptReq.Model = model

		seq := backend.Generate(ctx, attemptReq)
		events, genErr := drain(seq)
		if genErr == nil {
			fr.record(decision, model, true, 0)
			if i > 0 {
				fr.logger.Info("recovered via failover", map[string]interface{}{"task_id": attrs.TaskID, "model": model, "attempt": i + 1})
			}
			return decision, replay(events), nil
		}

		fr.record(decision, model, false, 0)
		lastErr = genErr
		if isClientError(genErr) {
			return decision, nil, genErr
		}
	}

	if lastErr == nil {
		lastErr = core.ErrNoProviderAvailable
	}
	return decision, nil, core.NewFrameworkError("router.Generate", "unavailable", lastErr)
}

func (fr *FallbackRouter) record(decision core.RoutingDecision, model string, success bool, cost float64) {
	if fr.history == nil {
		return
	}
	sig := Signature(decisionComplexity(decision), nil, 0)
	fr.history.Record(sig, model, success, cost)
}

// decisionComplexity is a best-effort reverse mapping from tier back to a
// representative complexity, used only to key history when the caller
// didn't thread the original TaskAttributes through. Callers that care about
// precise signatures should call HistoryStore.Record directly instead.
func decisionComplexity(decision core.RoutingDecision) core.Complexity {
	switch decision.Tier {
	case core.TierCheap:
		return core.ComplexitySimple
	case core.TierMid:
		return core.ComplexityModerate
	default:
		return core.ComplexityComplex
	}
}

// drain collects every event off seq, returning the first error encountered
// (if any) without losing already-received events.
func drain(seq llm.EventSequence) ([]llm.EventOrError, error) {
	var events []llm.EventOrError
	for e := range seq {
		events = append(events, e)
		if e.Err != nil {
			return events, e.Err
		}
	}
	return events, nil
}

// replay turns an already-drained slice back into a channel so callers see
// the same EventSequence contract regardless of whether failover occurred.
func replay(events []llm.EventOrError) llm.EventSequence {
	out := make(chan llm.EventOrError, len(events))
	for _, e := range events {
		out <- e
	}
	close(out)
	return out
}

// probeTimeout bounds how long a single liveness probe may take before the
// router treats the provider as down, per §4.3's probe step.
const probeTimeout = 5 * time.Second
