package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/itsneelabh/taskctl/core"
	"github.com/itsneelabh/taskctl/eventbus"
	"github.com/itsneelabh/taskctl/llm"
	"github.com/itsneelabh/taskctl/plugin"
	"github.com/itsneelabh/taskctl/resilience"
	"github.com/itsneelabh/taskctl/router"
	"github.com/itsneelabh/taskctl/scheduler"
)

// errRetrySignaled is never returned to a caller; it only tells
// resilience.Retry to run another attempt after the Retry Plugin has
// signaled one via __retry.
var errRetrySignaled = errors.New("retry signaled by plugin pipeline")

// retryBackoff bounds the delay between plugin-signaled retries. The Retry
// Plugin's own per-session counter (§4.7), not MaxAttempts here, is what
// actually caps attempt count; MaxAttempts is only a safety backstop.
var retryBackoff = &resilience.RetryConfig{
	MaxAttempts:   10,
	InitialDelay:  200 * time.Millisecond,
	MaxDelay:      5 * time.Second,
	BackoffFactor: 2.0,
	JitterEnabled: true,
}

// taskExecutor returns the scheduler.TaskExecutor the Parallel Executor
// drives: build a prompt, run it through the Fallback Router inside the
// Plugin Pipeline, classify the outcome, checkpoint, and emit events.
// state is mutated under stateMu since multiple tasks may finish
// concurrently.
func (f *Facade) taskExecutor(_ context.Context, state *core.OrchestratorState, runID string) scheduler.TaskExecutor {
	var stateMu sync.Mutex

	return func(ctx context.Context, task core.Task) core.TaskExecutionResult {
		start := time.Now()
		f.bus.Publish(eventbus.Event{Kind: eventbus.KindTaskStarted, RunID: runID, TaskID: task.ID})
		f.bus.Publish(eventbus.Event{Kind: eventbus.KindAttemptStarted, RunID: runID, TaskID: task.ID})

		pctx := plugin.NewContext(ctx, task.ID, task.ID, runID)
		req := &llm.Request{Contents: []llm.Content{{Role: "user", Parts: buildPromptParts(task)}}}

		var result core.TaskExecutionResult
		attempts := 0
		// resilience.Retry supplies the backoff timing between attempts; the
		// Retry Plugin (via __retry in the state delta) decides whether one
		// is warranted at all.
		_ = resilience.Retry(ctx, retryBackoff, func() error {
			attempts++
			if attempts > 1 {
				f.bus.Publish(eventbus.Event{Kind: eventbus.KindAttemptStarted, RunID: runID, TaskID: task.ID})
			}
			result = f.runOneAttempt(ctx, pctx, req, task, runID)
			result.Attempts = attempts

			if _, retrying := pctx.Get(plugin.KeyRetry); retrying {
				delete(pctx.StateDelta, plugin.KeyRetry)
				// Carry the failure into the task's user message for the next attempt.
				last := &req.Contents[len(req.Contents)-1]
				last.Parts = append(last.Parts, core.ContentPart{Text: "\n\nPrevious attempt failed: " + result.Error})
				return errRetrySignaled
			}
			return nil
		})
		result.Duration = time.Since(start)

		f.publishPluginEvents(pctx, runID, task.ID)

		stateMu.Lock()
		if result.Success {
			state.CompletedTasks = append(state.CompletedTasks, task.ID)
		} else {
			state.FailedTasks = append(state.FailedTasks, task.ID)
		}
		state.TotalTokensUsed += result.TokensUsed
		state.TotalCostUSD += result.CostUSD
		snapshotState := *state
		stateMu.Unlock()

		if f.enableCheckpoints {
			if err := f.checkpoint.Checkpoint(ctx, runID, &snapshotState, result); err != nil {
				f.logger.Warn("checkpoint write failed", map[string]interface{}{"run_id": runID, "task_id": task.ID, "error": err.Error()})
			}
		}

		if result.Success {
			f.bus.Publish(eventbus.Event{Kind: eventbus.KindTaskCompleted, RunID: runID, TaskID: task.ID})
		} else {
			f.bus.Publish(eventbus.Event{Kind: eventbus.KindTaskFailed, RunID: runID, TaskID: task.ID, Payload: map[string]interface{}{"error": result.Error}})
		}

		return result
	}
}

func (f *Facade) runOneAttempt(ctx context.Context, pctx *plugin.Context, req *llm.Request, task core.Task, runID string) core.TaskExecutionResult {
	resp, shortCircuited, err := f.pipeline.BeforeModel(pctx, req)
	if err != nil {
		return core.TaskExecutionResult{TaskID: task.ID, Success: false, Attempts: 1, Error: err.Error()}
	}

	if !shortCircuited {
		attrs := router.TaskAttributes{
			TaskID:        task.ID,
			Complexity:    task.EffectiveComplexity(),
			FilesCount:    len(task.FilesAffected),
			CriteriaCount: len(task.AcceptanceCriteria),
			Tags:          task.Tags,
		}

		_, seq, genErr := f.router.Generate(ctx, attrs, nil, *req, f.providers)
		if genErr != nil {
			if substitute, handled := f.pipeline.OnModelError(pctx, req, genErr); handled {
				resp = substitute
			} else {
				return core.TaskExecutionResult{TaskID: task.ID, Success: false, Attempts: 1, Error: genErr.Error()}
			}
		} else {
			resp, err = f.drainThroughPipeline(pctx, seq)
			if err != nil {
				return core.TaskExecutionResult{TaskID: task.ID, Success: false, Attempts: 1, Error: err.Error()}
			}
		}
	}

	f.pipeline.AfterRun(pctx)

	return classify(task.ID, resp, pctx)
}

// drainThroughPipeline runs every event off seq through AfterModel in turn
// and returns the last one seen (§4.1: callers must fully drain the
// sequence; plugins see every event, not just the final one).
func (f *Facade) drainThroughPipeline(pctx *plugin.Context, seq llm.EventSequence) (*core.Event, error) {
	var final *core.Event
	for eoe := range seq {
		if eoe.Err != nil {
			return final, eoe.Err
		}
		out, err := f.pipeline.AfterModel(pctx, eoe.Event)
		if err != nil {
			return out, err
		}
		final = out
	}
	return final, nil
}

// classify applies §4.12 step 6's success classification: all four
// conditions must hold, checked in the spec's own order, with its verbatim
// failure reasons.
func classify(taskID string, resp *core.Event, pctx *plugin.Context) core.TaskExecutionResult {
	result := core.TaskExecutionResult{TaskID: taskID, Attempts: 1}

	if resp == nil {
		result.Error = "No model response received"
		return result
	}

	if v, ok := pctx.Get(plugin.KeyValidation); ok {
		if validation, ok := v.(plugin.ValidationResult); ok && !validation.Passed {
			result.Error = "Validation failed"
			return result
		}
	}

	if resp.ErrorCode != "" {
		result.Error = resp.ErrorMessage
		if result.Error == "" {
			result.Error = resp.ErrorCode
		}
		return result
	}

	if !resp.HasText() && !resp.HasFunctionCall() {
		result.Error = "Empty response from model"
		return result
	}

	if v, ok := pctx.Get(plugin.KeyCost); ok {
		if totals, ok := v.(plugin.CostTotals); ok {
			result.CostUSD = totals.CurrentUSD
			result.TokensUsed = totals.TotalTokens
		}
	}

	result.Success = true
	return result
}

// buildPromptParts builds the system prompt per §4.12 step 2: title,
// description, user story, acceptance criteria (with their test commands),
// and the affected files.
func buildPromptParts(task core.Task) []core.ContentPart {
	text := task.Title + "\n\n" + task.Description
	if task.UserStory != "" {
		text += "\n\nUser story: " + task.UserStory
	}
	for _, ac := range task.AcceptanceCriteria {
		text += "\n- " + ac.Description
		if ac.TestCommand != "" {
			text += " (test: " + ac.TestCommand + ")"
		}
	}
	if len(task.FilesAffected) > 0 {
		text += "\n\nFiles affected:"
		for _, f := range task.FilesAffected {
			text += "\n- " + f
		}
	}
	return []core.ContentPart{{Text: text}}
}

func (f *Facade) publishPluginEvents(pctx *plugin.Context, runID, taskID string) {
	if v, ok := pctx.Get(plugin.KeyValidation); ok {
		f.bus.Publish(eventbus.Event{Kind: eventbus.KindValidationCompleted, RunID: runID, TaskID: taskID, Payload: map[string]interface{}{"result": v}})
	}
	if v, ok := pctx.Get(plugin.KeyCost); ok {
		f.bus.Publish(eventbus.Event{Kind: eventbus.KindCostUpdate, RunID: runID, TaskID: taskID, Payload: map[string]interface{}{"totals": v}})
	}
	if v, ok := pctx.Get(plugin.KeyCircuitBreaker); ok {
		if info, ok := v.(plugin.CircuitBreakerInfo); ok && info.State == core.CircuitOpen {
			f.bus.Publish(eventbus.Event{Kind: eventbus.KindCircuitBreakerTripped, RunID: runID, TaskID: taskID})
		}
	}
}
