package checkpoint

import (
	"context"
	"os"
	"testing"

	"github.com/itsneelabh/taskctl/core"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	dir, err := os.MkdirTemp("", "checkpoint-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return NewManager(store, 5, nil), dir
}

func TestCheckpointWriteThenResumeRoundTrips(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	state := core.NewOrchestratorState("run-1")
	state.Status = core.StatusRunning
	state.CompletedTasks = append(state.CompletedTasks, "A")

	result := core.TaskExecutionResult{TaskID: "A", Success: true}
	if err := mgr.Checkpoint(ctx, "run-1", state, result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snapshot := mgr.Resume(ctx, "run-1")
	if snapshot == nil {
		t.Fatal("expected a snapshot")
	}
	if len(snapshot.State.CompletedTasks) != 1 || snapshot.State.CompletedTasks[0] != "A" {
		t.Fatalf("expected completed task A, got %v", snapshot.State.CompletedTasks)
	}
	if len(snapshot.LastResults) != 1 || snapshot.LastResults[0].TaskID != "A" {
		t.Fatalf("expected result for A, got %v", snapshot.LastResults)
	}
}

func TestCheckpointResumeIsIdempotent(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	state := core.NewOrchestratorState("run-2")
	state.CompletedTasks = append(state.CompletedTasks, "A", "B")
	if err := mgr.Checkpoint(ctx, "run-2", state, core.TaskExecutionResult{TaskID: "B", Success: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first := mgr.Resume(ctx, "run-2")
	second := mgr.Resume(ctx, "run-2")

	if len(first.State.CompletedTasks) != len(second.State.CompletedTasks) {
		t.Fatal("expected identical completed-task sets across repeated resumes")
	}
	for i, id := range first.State.CompletedTasks {
		if second.State.CompletedTasks[i] != id {
			t.Fatalf("expected matching task order, got %v vs %v", first.State.CompletedTasks, second.State.CompletedTasks)
		}
	}
}

func TestResumeMissingCheckpointReturnsNil(t *testing.T) {
	mgr, _ := newTestManager(t)
	if snapshot := mgr.Resume(context.Background(), "no-such-run"); snapshot != nil {
		t.Fatalf("expected nil snapshot, got %+v", snapshot)
	}
}

func TestResumeDiscardsCorruptedCheckpoint(t *testing.T) {
	mgr, dir := newTestManager(t)
	ctx := context.Background()

	state := core.NewOrchestratorState("run-3")
	if err := mgr.Checkpoint(ctx, "run-3", state, core.TaskExecutionResult{TaskID: "A", Success: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path := dir + "/" + core.SanitizeAgentName("run-3") + ".checkpoint.json"
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if snapshot := mgr.Resume(ctx, "run-3"); snapshot != nil {
		t.Fatalf("expected corrupted checkpoint to be discarded, got %+v", snapshot)
	}
}

func TestCheckpointKeepsOnlyLastNResults(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()
	state := core.NewOrchestratorState("run-4")

	for i := 0; i < 8; i++ {
		taskID := string(rune('A' + i))
		if err := mgr.Checkpoint(ctx, "run-4", state, core.TaskExecutionResult{TaskID: taskID, Success: true}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	snapshot := mgr.Resume(ctx, "run-4")
	if len(snapshot.LastResults) != 5 {
		t.Fatalf("expected 5 retained results, got %d", len(snapshot.LastResults))
	}
}

func TestClearRemovesCheckpoint(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()
	state := core.NewOrchestratorState("run-5")

	if err := mgr.Checkpoint(ctx, "run-5", state, core.TaskExecutionResult{TaskID: "A", Success: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mgr.Clear(ctx, "run-5"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snapshot := mgr.Resume(ctx, "run-5"); snapshot != nil {
		t.Fatalf("expected no snapshot after clear, got %+v", snapshot)
	}
}
