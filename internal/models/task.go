package models

import (
	"strings"
	"time"
)

// TaskStatus is the lifecycle state of a multi-step task.
// Running is the sole non-terminal state.
type TaskStatus string

const (
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusStopped   TaskStatus = "stopped"
)

// Terminal reports whether no further iteration will be attempted.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusStopped
}

// Iteration is one unit of work inside a multi-step task. Append-only;
// once written it is never mutated.
type Iteration struct {
	// Number is the 1-based iteration index.
	Number int `json:"number"`

	// Timestamp is when the iteration finished.
	Timestamp time.Time `json:"timestamp"`

	// Action describes what the step executor was asked to do.
	Action string `json:"action"`

	// Result is the step executor's textual output.
	Result string `json:"result"`

	// CompletionDetected records whether this iteration carried a
	// completion signal.
	CompletionDetected bool `json:"completion_detected"`
}

// Task is the persistent state of one multi-step execution attempt.
// The iteration engine is its single writer; status readers may poll it.
type Task struct {
	// ID is the unique task identifier.
	ID string `json:"id"`

	// UserID references the user who started the task.
	UserID string `json:"user_id"`

	// Prompt is the original multi-step request.
	Prompt string `json:"prompt"`

	// CurrentIteration equals the number of recorded iterations.
	CurrentIteration int `json:"current_iteration"`

	// MaxIterations bounds the loop.
	MaxIterations int `json:"max_iterations"`

	// StartedAt is when the task was created.
	StartedAt time.Time `json:"started_at"`

	// LastIterationAt is when the most recent iteration was recorded.
	LastIterationAt *time.Time `json:"last_iteration_at,omitempty"`

	// Status is the lifecycle state.
	Status TaskStatus `json:"status"`

	// CompletionToken is the sentinel the step executor embeds in its
	// output to signal completion.
	CompletionToken string `json:"completion_token"`

	// Error carries the terminal error message for failed tasks.
	Error string `json:"error,omitempty"`

	// Iterations is the ordered record of work units.
	Iterations []Iteration `json:"iterations,omitempty"`
}

// Validate checks required fields before persistence.
func (t *Task) Validate() error {
	validation := &ValidationErrors{}
	if strings.TrimSpace(t.UserID) == "" {
		validation.AddMessage("user_id", "user_id is required")
	}
	if strings.TrimSpace(t.Prompt) == "" {
		validation.AddMessage("prompt", "prompt is required")
	}
	if t.MaxIterations <= 0 {
		validation.AddMessage("max_iterations", "max_iterations must be positive")
	}
	return validation.Err()
}

// RunResult is the uniform shape every engine run reports, regardless of
// outcome, so callers never need to distinguish failure modes structurally.
type RunResult struct {
	Success        bool       `json:"success"`
	TaskID         string     `json:"task_id"`
	IterationCount int        `json:"iteration_count"`
	FinalStatus    TaskStatus `json:"final_status"`
	Output         string     `json:"output,omitempty"`
	Error          string     `json:"error,omitempty"`
}
