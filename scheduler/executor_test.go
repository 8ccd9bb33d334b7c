package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/itsneelabh/taskctl/core"
)

func taskSet(ids ...string) map[string]core.Task {
	tasks := make(map[string]core.Task, len(ids))
	for _, id := range ids {
		tasks[id] = core.Task{ID: id}
	}
	return tasks
}

func TestParallelExecutorAbortsOnFailureByDefault(t *testing.T) {
	g := NewTaskGraph()
	g.AddNode("a", nil)
	g.AddNode("b", nil)
	g.AddNode("c", []string{"b"})

	executed := make(map[string]bool)
	exec := func(_ context.Context, task core.Task) core.TaskExecutionResult {
		executed[task.ID] = true
		return core.TaskExecutionResult{TaskID: task.ID, Success: task.ID != "b"}
	}

	p := NewParallelExecutor(g, exec, 1, nil, false)
	_, err := p.Run(context.Background(), taskSet("a", "b", "c"))

	if !errors.Is(err, core.ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if executed["c"] {
		t.Fatal("c depends on failed b and should never have run")
	}
	if g.Node("c").Status != NodeSkipped {
		t.Fatalf("expected c skipped, got %s", g.Node("c").Status)
	}
}

func TestParallelExecutorContinuesOnFailureWhenConfigured(t *testing.T) {
	g := NewTaskGraph()
	g.AddNode("a", nil)
	g.AddNode("b", nil)

	exec := func(_ context.Context, task core.Task) core.TaskExecutionResult {
		return core.TaskExecutionResult{TaskID: task.ID, Success: task.ID != "b"}
	}

	p := NewParallelExecutor(g, exec, 2, nil, true)
	results, err := p.Run(context.Background(), taskSet("a", "b"))

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected both independent tasks to run, got %+v", results)
	}
	if g.Node("a").Status != NodeCompleted {
		t.Fatalf("expected a completed, got %s", g.Node("a").Status)
	}
}

func TestParallelExecutorRespectsContextCancellation(t *testing.T) {
	g := NewTaskGraph()
	g.AddNode("a", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := func(_ context.Context, task core.Task) core.TaskExecutionResult {
		return core.TaskExecutionResult{TaskID: task.ID, Success: true}
	}

	p := NewParallelExecutor(g, exec, 1, nil, false)
	_, err := p.Run(ctx, taskSet("a"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
