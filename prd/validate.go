package prd

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/itsneelabh/taskctl/core"
	"github.com/itsneelabh/taskctl/scheduler"
)

var taskIDPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var validComplexities = map[core.Complexity]bool{
	core.ComplexityTrivial:  true,
	core.ComplexitySimple:   true,
	core.ComplexityModerate: true,
	core.ComplexityComplex:  true,
	core.ComplexityEpic:     true,
	"":                      true, // defaults to moderate
}

// ValidationError joins every problem found across a PRD's tasks, so a
// caller sees the whole set of mistakes in one pass instead of fixing them
// one submission at a time.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid PRD: %s", strings.Join(e.Problems, "; "))
}

// Validate checks prd against §3's data model invariants: a non-empty
// project and task list, unique and agent-name-sanitizable task ids, known
// complexity bands, and an acyclic dependency graph. Dependencies on
// unknown task ids are NOT an error — they are treated as already
// satisfied external work, per the DAG invariant.
func Validate(prd *core.PRD) error {
	var problems []string

	if strings.TrimSpace(prd.Project) == "" {
		problems = append(problems, "project must not be empty")
	}
	if len(prd.Tasks) == 0 {
		problems = append(problems, "tasks must not be empty")
	}

	seen := make(map[string]bool, len(prd.Tasks))
	for i, t := range prd.Tasks {
		if strings.TrimSpace(t.ID) == "" {
			problems = append(problems, fmt.Sprintf("task[%d]: id must not be empty", i))
			continue
		}
		if !taskIDPattern.MatchString(t.ID) {
			problems = append(problems, fmt.Sprintf("task %q: id must match %s after sanitization", t.ID, taskIDPattern.String()))
		}
		if seen[t.ID] {
			problems = append(problems, fmt.Sprintf("task %q: duplicate id", t.ID))
		}
		seen[t.ID] = true

		if !validComplexities[t.Complexity] {
			problems = append(problems, fmt.Sprintf("task %q: unknown complexity %q", t.ID, t.Complexity))
		}
		if strings.TrimSpace(t.Title) == "" {
			problems = append(problems, fmt.Sprintf("task %q: title must not be empty", t.ID))
		}
	}

	graph := scheduler.BuildFromPRD(prd)
	if err := graph.Validate(); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: problems}
}
