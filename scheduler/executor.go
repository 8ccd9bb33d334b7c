package scheduler

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/itsneelabh/taskctl/core"
)

// TaskExecutor runs a single task to completion and reports its result.
// Implemented by the orchestrator, injected here so scheduler stays
// independent of routing/LLM concerns.
type TaskExecutor func(ctx context.Context, task core.Task) core.TaskExecutionResult

// ParallelExecutor drives a TaskGraph to completion in waves: it starts
// every ready task, at most MaxConcurrency at a time, waits for the whole
// wave to finish, and only then fetches the next set of ready tasks.
type ParallelExecutor struct {
	Graph             *TaskGraph
	Execute           TaskExecutor
	MaxConcurrency    int
	Logger            core.Logger
	ContinueOnFailure bool
}

// NewParallelExecutor builds an executor with a sane default concurrency.
// continueOnFailure, when false, stops scheduling new tasks as soon as one
// fails, rather than continuing to drive independent branches (§4.13).
func NewParallelExecutor(graph *TaskGraph, execute TaskExecutor, maxConcurrency int, logger core.Logger, continueOnFailure bool) *ParallelExecutor {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &ParallelExecutor{Graph: graph, Execute: execute, MaxConcurrency: maxConcurrency, Logger: logger, ContinueOnFailure: continueOnFailure}
}

// Run drives the graph until every task is terminal or ctx is cancelled.
// Tasks by a PRD that reference each other's IDs (after BuildFromPRD) run
// respecting their dependency order; independent tasks run concurrently.
func (p *ParallelExecutor) Run(ctx context.Context, tasks map[string]core.Task) (map[string]core.TaskExecutionResult, error) {
	results := make(map[string]core.TaskExecutionResult)
	var resultsMu sync.Mutex

	sem := make(chan struct{}, p.MaxConcurrency)
	var wg sync.WaitGroup
	var aborted atomic.Bool

	for {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		if p.Graph.IsComplete() {
			break
		}
		if !p.ContinueOnFailure && aborted.Load() {
			// A task has already failed: let in-flight work finish but stop
			// scheduling anything new (§4.13 continueOnFailure=false).
			wg.Wait()
			break
		}

		ready := p.Graph.ReadyNodes()
		if len(ready) == 0 {
			// Nothing ready and not complete: either all in-flight, or a
			// failed dependency stalled the rest. Wait for in-flight work.
			wg.Wait()
			if p.Graph.IsComplete() {
				break
			}
			if !p.ContinueOnFailure && aborted.Load() {
				break
			}
			// Re-check: if still nothing ready after draining, the graph is
			// stuck (every remaining node depends on a failed task that
			// wasn't marked skipped) — stop rather than spin.
			if len(p.Graph.ReadyNodes()) == 0 {
				break
			}
			continue
		}

		for _, id := range ready {
			task, ok := tasks[id]
			if !ok {
				p.Graph.MarkFailed(id)
				if !p.ContinueOnFailure {
					aborted.Store(true)
				}
				continue
			}

			p.Graph.MarkRunning(id)
			sem <- struct{}{}
			wg.Add(1)
			go func(id string, task core.Task) {
				defer wg.Done()
				defer func() { <-sem }()

				result := p.Execute(ctx, task)

				resultsMu.Lock()
				results[id] = result
				resultsMu.Unlock()

				if result.Success {
					p.Graph.MarkCompleted(id)
				} else {
					p.Graph.MarkFailed(id)
					p.Logger.Warn("task failed", map[string]interface{}{"task_id": id, "error": result.Error})
					if !p.ContinueOnFailure {
						aborted.Store(true)
					}
				}
			}(id, task)
		}

		wg.Wait()
	}

	if !p.ContinueOnFailure && aborted.Load() {
		return results, core.ErrAborted
	}
	return results, nil
}
