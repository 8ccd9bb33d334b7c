package core

import "time"

// Complexity is a task's size band, used by the model router's scoring
// function and the LLM Port's per-invocation timeout derivation.
type Complexity string

const (
	ComplexityTrivial  Complexity = "trivial"
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
	ComplexityEpic     Complexity = "epic"
)

// AcceptanceCriterion is either a plain description string or a description
// paired with an optional shell command that verifies it.
type AcceptanceCriterion struct {
	Description string `json:"description"`
	TestCommand string `json:"testCommand,omitempty"`
}

// Task is one unit of work in a PRD.
type Task struct {
	ID                 string                 `json:"id"`
	Title              string                 `json:"title"`
	Description        string                 `json:"description"`
	UserStory          string                 `json:"userStory,omitempty"`
	AcceptanceCriteria []AcceptanceCriterion  `json:"acceptance_criteria,omitempty"`
	FilesAffected      []string               `json:"files_affected,omitempty"`
	Dependencies       []string               `json:"dependencies,omitempty"`
	Complexity         Complexity             `json:"complexity,omitempty"`
	Priority           int                    `json:"priority,omitempty"`
	Tags               []string               `json:"tags,omitempty"`
	Labels             []string               `json:"labels,omitempty"`
	RelatedFiles       []string               `json:"relatedFiles,omitempty"`
}

// EffectiveComplexity returns t.Complexity, defaulting to moderate.
func (t *Task) EffectiveComplexity() Complexity {
	if t.Complexity == "" {
		return ComplexityModerate
	}
	return t.Complexity
}

// PRDConfig carries optional run-wide settings embedded in a PRD file.
type PRDConfig struct {
	AutoCommit bool `json:"autoCommit,omitempty"`
}

// PRD is the validated declarative input: a project name, its tasks, and
// optional run configuration.
type PRD struct {
	Project string     `json:"project"`
	Tasks   []Task     `json:"tasks"`
	Config  *PRDConfig `json:"config,omitempty"`
}

// RunStatus is the orchestrator's lifecycle state.
type RunStatus string

const (
	StatusIdle      RunStatus = "idle"
	StatusRunning   RunStatus = "running"
	StatusPaused    RunStatus = "paused"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// OrchestratorState is the per-run state: in memory during execution,
// checkpointable between task boundaries.
type OrchestratorState struct {
	Status          RunStatus `json:"status"`
	SessionID       string    `json:"sessionId"`
	CompletedTasks  []string  `json:"completedTasks"`
	FailedTasks     []string  `json:"failedTasks"`
	SkippedTasks    []string  `json:"skippedTasks"`
	TotalTokensUsed int       `json:"totalTokensUsed"`
	TotalCostUSD    float64   `json:"totalCostUsd"`
	StartedAt       time.Time `json:"startedAt"`
	CompletedAt     time.Time `json:"completedAt,omitempty"`
}

// NewOrchestratorState returns a fresh idle state for a new run.
func NewOrchestratorState(sessionID string) *OrchestratorState {
	return &OrchestratorState{
		Status:         StatusIdle,
		SessionID:      sessionID,
		CompletedTasks: []string{},
		FailedTasks:    []string{},
		SkippedTasks:   []string{},
	}
}

// IsTaskDone reports whether taskID has already completed or failed.
func (s *OrchestratorState) IsTaskDone(taskID string) bool {
	for _, id := range s.CompletedTasks {
		if id == taskID {
			return true
		}
	}
	for _, id := range s.FailedTasks {
		if id == taskID {
			return true
		}
	}
	return false
}

// TaskExecutionResult is the outcome of running one task through the Task
// Executor.
type TaskExecutionResult struct {
	TaskID       string        `json:"taskId"`
	Success      bool          `json:"success"`
	Attempts     int           `json:"attempts"`
	TokensUsed   int           `json:"tokensUsed"`
	CostUSD      float64       `json:"costUsd"`
	Duration     time.Duration `json:"duration"`
	FileChanges  []string      `json:"fileChanges,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// ModelTier is the cost/capability band a Routing Decision selects.
type ModelTier string

const (
	TierCheap   ModelTier = "cheap"
	TierMid     ModelTier = "mid"
	TierPremium ModelTier = "premium"
)

// RoutingSource records which selection rule produced a Routing Decision.
type RoutingSource string

const (
	SourceRule        RoutingSource = "rule"
	SourceHistory      RoutingSource = "history"
	SourcePreference   RoutingSource = "preference"
	SourceEscalation   RoutingSource = "escalation"
)

// ExecutionMode is the task executor's fan-out shape for a routing decision.
type ExecutionMode string

const (
	ExecutionSingle ExecutionMode = "single"
	ExecutionMulti  ExecutionMode = "multi"
)

// ExecutionPlan is the routing decision's recommendation for how many
// agents should work a task.
type ExecutionPlan struct {
	Mode                ExecutionMode `json:"mode"`
	Parallelizable      bool          `json:"parallelizable"`
	SuggestedAgentCount int           `json:"suggestedAgentCount"`
	Reason              string        `json:"reason"`
}

// RoutingDecision is the Model Router's output for one task.
type RoutingDecision struct {
	TaskID         string        `json:"taskId"`
	SelectedModel  string        `json:"selectedModel"`
	Tier           ModelTier     `json:"tier"`
	Source         RoutingSource `json:"source"`
	Score          int           `json:"score"`
	CanEscalate    bool          `json:"canEscalate"`
	EscalationPath []string      `json:"escalationPath"`
	Execution      ExecutionPlan `json:"execution"`
}

// CircuitBreakerState is one of the three states of the Circuit Breaker
// Plugin's protocol state machine.
type CircuitBreakerState string

const (
	CircuitClosed   CircuitBreakerState = "closed"
	CircuitOpen     CircuitBreakerState = "open"
	CircuitHalfOpen CircuitBreakerState = "half_open"
)

// CircuitState is a point-in-time snapshot of the circuit breaker.
type CircuitState struct {
	State               CircuitBreakerState `json:"state"`
	ConsecutiveFailures int                 `json:"consecutiveFailures"`
	LastFailureTime     time.Time           `json:"lastFailureTime,omitempty"`
	TotalFailures       int                 `json:"totalFailures"`
	TotalSuccesses      int                 `json:"totalSuccesses"`
}

// FilesRange buckets a task's affected-file count for the routing
// signature hash.
type FilesRange string

const (
	FilesFew  FilesRange = "few"  // 1-2
	FilesSome FilesRange = "some" // 3-5
	FilesMany FilesRange = "many" // 6+
)

// RoutingPattern is one history record keyed by signature hash.
type RoutingPattern struct {
	SignatureHash string    `json:"signatureHash"`
	Model         string    `json:"model"`
	SuccessCount  int       `json:"successCount"`
	FailCount     int       `json:"failCount"`
	AvgCost       float64   `json:"avgCost"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

// UsageMetadata carries token accounting for one LLM Event.
type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// ContentPart is one piece of an Event's content: text or a tool/function
// call/result. Exactly one of the fields is populated.
type ContentPart struct {
	Text         string                 `json:"text,omitempty"`
	FunctionCall *FunctionCall          `json:"functionCall,omitempty"`
	FunctionResp map[string]interface{} `json:"functionResponse,omitempty"`
}

// FunctionCall is a tool invocation requested by the model.
type FunctionCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args,omitempty"`
}

// EventActions carries the state delta a plugin (or the backend) wants
// merged into the session's state bag.
type EventActions struct {
	StateDelta map[string]interface{} `json:"stateDelta,omitempty"`
}

// Event is the smallest unit emitted by the LLM Port.
type Event struct {
	Author        string         `json:"author"`
	ContentParts  []ContentPart  `json:"contentParts,omitempty"`
	Actions       *EventActions  `json:"actions,omitempty"`
	UsageMetadata *UsageMetadata `json:"usageMetadata,omitempty"`
	ErrorCode     string         `json:"errorCode,omitempty"`
	ErrorMessage  string         `json:"errorMessage,omitempty"`
	Partial       bool           `json:"partial,omitempty"`
}

// HasText reports whether any content part carries non-empty text.
func (e *Event) HasText() bool {
	for _, p := range e.ContentParts {
		if p.Text != "" {
			return true
		}
	}
	return false
}

// HasFunctionCall reports whether any content part is a tool/function call.
func (e *Event) HasFunctionCall() bool {
	for _, p := range e.ContentParts {
		if p.FunctionCall != nil {
			return true
		}
	}
	return false
}
