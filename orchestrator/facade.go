// Package orchestrator wires every other package into the control flow
// spec.md §2 describes: load PRD, build the plugin pipeline, drive the
// task graph through the Fallback Router, checkpoint between tasks, fan
// out lifecycle events, and run a final typecheck fix pass. Grounded on
// orchestration/orchestrator.go's OrchestratorConfig functional-options +
// DefaultConfig() env-overlay idiom — same layering, PRD task-loop
// semantics instead of NL-routing semantics.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/itsneelabh/taskctl/checkpoint"
	"github.com/itsneelabh/taskctl/core"
	"github.com/itsneelabh/taskctl/eventbus"
	"github.com/itsneelabh/taskctl/llm"
	"github.com/itsneelabh/taskctl/plugin"
	"github.com/itsneelabh/taskctl/prd"
	"github.com/itsneelabh/taskctl/router"
	"github.com/itsneelabh/taskctl/scheduler"
	"github.com/itsneelabh/taskctl/session"
)

// Facade is the top-level entry point: one instance drives one run of one
// PRD to completion (or cancellation).
type Facade struct {
	cfg        *core.Config
	logger     core.Logger
	router     *router.FallbackRouter
	pipeline   *plugin.Pipeline
	providers  map[string]llm.Backend
	sessions   session.Store
	checkpoint *checkpoint.Manager
	bus        *eventbus.Bus

	maxConcurrency    int
	enableCheckpoints bool
	continueOnFailure bool
	typecheckCommand  []string
}

// Option mutates a Facade during construction.
type Option func(*Facade)

// WithMaxConcurrency sets the Parallel Executor's worker count. 1 degrades
// to sequential execution (§4.14).
func WithMaxConcurrency(n int) Option {
	return func(f *Facade) {
		if n > 0 {
			f.maxConcurrency = n
		}
	}
}

// WithCheckpoints enables per-task checkpointing via the supplied Manager.
func WithCheckpoints(mgr *checkpoint.Manager) Option {
	return func(f *Facade) {
		f.checkpoint = mgr
		f.enableCheckpoints = mgr != nil
	}
}

// WithContinueOnFailure keeps driving independent branches of the task
// graph after a task fails, instead of aborting the whole run.
func WithContinueOnFailure(continueOnFailure bool) Option {
	return func(f *Facade) { f.continueOnFailure = continueOnFailure }
}

// WithEventBus attaches a Bus subscribers can register on before Run starts.
func WithEventBus(bus *eventbus.Bus) Option {
	return func(f *Facade) { f.bus = bus }
}

// WithTypecheckCommand sets the command the final fix pass runs (§4.18),
// e.g. []string{"npx", "tsc", "--noEmit"}. Unset (the default) disables
// the pass entirely.
func WithTypecheckCommand(command []string) Option {
	return func(f *Facade) { f.typecheckCommand = command }
}

// NewFacade builds a Facade. providers maps model name to the Backend
// that serves it, matching FallbackRouter.Generate's contract.
func NewFacade(cfg *core.Config, fr *router.FallbackRouter, pipeline *plugin.Pipeline, providers map[string]llm.Backend, sessions session.Store, opts ...Option) *Facade {
	logger := cfg.Logger()
	f := &Facade{
		cfg:            cfg,
		logger:         logger,
		router:         fr,
		pipeline:       pipeline,
		providers:      providers,
		sessions:       sessions,
		bus:            eventbus.New(logger),
		maxConcurrency: 1,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Bus returns the Facade's event bus, for registering subscribers before
// Run starts.
func (f *Facade) Bus() *eventbus.Bus { return f.bus }

// Run loads prdPath, drives its task graph to completion (or cancellation),
// and returns the final OrchestratorState. runID identifies this run for
// checkpointing and session persistence; the same runID resumes a
// previously interrupted run when checkpointing is enabled.
func (f *Facade) Run(ctx context.Context, prdPath, runID string) (*core.OrchestratorState, error) {
	document, err := prd.Load(prdPath)
	if err != nil {
		return nil, fmt.Errorf("load PRD: %w", err)
	}

	state := core.NewOrchestratorState(runID)
	graph := scheduler.BuildFromPRD(document)

	if f.enableCheckpoints {
		if snap := f.checkpoint.Resume(ctx, runID); snap != nil {
			state = snap.State
			markResumed(graph, state)
			f.logger.Info("resumed from checkpoint", map[string]interface{}{
				"run_id": runID, "completed": len(state.CompletedTasks), "failed": len(state.FailedTasks),
			})
		}
	}

	state.Status = core.StatusRunning
	state.StartedAt = time.Now()
	f.bus.Publish(eventbus.Event{Kind: eventbus.KindLoopStarted, RunID: runID})

	tasksByID := make(map[string]core.Task, len(document.Tasks))
	for _, t := range document.Tasks {
		tasksByID[t.ID] = t
	}

	executor := scheduler.NewParallelExecutor(graph, f.taskExecutor(ctx, state, runID), f.maxConcurrency, f.logger, f.continueOnFailure)
	_, runErr := executor.Run(ctx, tasksByID)

	// The per-task executor closure is the sole writer of
	// CompletedTasks/FailedTasks/token+cost totals (under its own mutex, since
	// tasks can finish concurrently); SkippedTasks is derived from the graph
	// here since skipping happens transitively, with no executor invocation
	// to drive it.
	state.SkippedTasks = graph.SkippedNodes()

	if ctx.Err() != nil {
		state.Status = core.StatusCancelled
		f.bus.Publish(eventbus.Event{Kind: eventbus.KindLoopCancelling, RunID: runID})
		return f.finish(ctx, state, runID)
	}

	if runErr != nil || (!f.continueOnFailure && len(state.FailedTasks) > 0) {
		state.Status = core.StatusFailed
		f.bus.Publish(eventbus.Event{Kind: eventbus.KindLoopFailed, RunID: runID, Payload: map[string]interface{}{"error": errString(runErr)}})
		return f.finish(ctx, state, runID)
	}

	f.runTypecheckFixPass(ctx, state, runID)

	state.Status = core.StatusCompleted
	f.bus.Publish(eventbus.Event{Kind: eventbus.KindLoopCompleted, RunID: runID})
	return f.finish(ctx, state, runID)
}

func (f *Facade) finish(ctx context.Context, state *core.OrchestratorState, runID string) (*core.OrchestratorState, error) {
	state.CompletedAt = time.Now()
	if f.sessions != nil {
		if err := f.sessions.Save(ctx, state); err != nil {
			f.logger.Warn("failed to persist final session state", map[string]interface{}{"run_id": runID, "error": err.Error()})
		}
	}
	if state.Status == core.StatusCompleted && f.enableCheckpoints {
		_ = f.checkpoint.Clear(ctx, runID)
	}
	var err error
	if state.Status == core.StatusFailed {
		err = fmt.Errorf("run %s failed: %d task(s) failed", runID, len(state.FailedTasks))
	}
	return state, err
}

// markResumed replays a resumed state's completed/failed tasks onto graph
// so ReadyNodes() skips them, per §6's idempotent-resume invariant.
func markResumed(graph *scheduler.TaskGraph, state *core.OrchestratorState) {
	for _, id := range state.CompletedTasks {
		graph.MarkCompleted(id)
	}
	for _, id := range state.FailedTasks {
		graph.MarkFailed(id)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
