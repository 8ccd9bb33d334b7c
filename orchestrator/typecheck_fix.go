package orchestrator

import (
	"context"
	"os/exec"
	"regexp"
	"time"

	"github.com/itsneelabh/taskctl/core"
)

// filesAffectedPattern extracts source file references out of a typecheck
// tool's error text, per §4.18's extraction regex.
var filesAffectedPattern = regexp.MustCompile(`([^\s]+\.tsx?)[(:][\d,]+[):]`)

const typecheckOutputBudget = 2000 // characters, per §4.18/§5

// runTypecheckFixPass runs the project's typecheck command once the task
// loop exits cleanly (no cancellation, no unrecovered failure). If it
// fails, it synthesizes a "fix-typecheck-errors" task carrying the
// truncated error output and up to 10 unique affected files, runs it
// once through the same task executor closure used for every task (Retry
// Plugin retries included), and appends the result without
// recursing — §4.18 is explicit this never runs twice.
func (f *Facade) runTypecheckFixPass(ctx context.Context, state *core.OrchestratorState, runID string) {
	if len(f.typecheckCommand) == 0 {
		return
	}

	output, passed := runTypecheck(ctx, f.typecheckCommand)
	if passed {
		return
	}

	task := core.Task{
		ID:            "fix-typecheck-errors",
		Title:         "Fix typecheck errors",
		Description:   truncate(output, typecheckOutputBudget),
		FilesAffected: extractAffectedFiles(output),
		Complexity:    core.ComplexityModerate,
	}

	f.logger.Warn("typecheck failed after task loop, running fix pass", map[string]interface{}{
		"run_id": runID, "files_affected": len(task.FilesAffected),
	})

	// The executor closure itself appends to state.CompletedTasks/FailedTasks
	// and the cost/token totals; nothing further to apply here.
	executor := f.taskExecutor(ctx, state, runID)
	executor(ctx, task)
}

func runTypecheck(ctx context.Context, command []string) (output string, passed bool) {
	runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	cmd := exec.CommandContext(runCtx, command[0], command[1:]...)
	out, err := cmd.CombinedOutput()
	return string(out), err == nil
}

func extractAffectedFiles(output string) []string {
	matches := filesAffectedPattern.FindAllStringSubmatch(output, -1)
	seen := make(map[string]bool)
	var files []string
	for _, m := range matches {
		file := m[1]
		if seen[file] {
			continue
		}
		seen[file] = true
		files = append(files, file)
		if len(files) == 10 {
			break
		}
	}
	return files
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
