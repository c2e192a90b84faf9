package engine

import (
	"context"
	"fmt"

	"aide/internal/llm"
)

// StepResult is the outcome of one work unit.
type StepResult struct {
	// Text is the step's textual output. The engine scans it for the
	// completion token.
	Text string

	// Usage is best-effort token accounting.
	Usage llm.Usage
}

// StepExecutor performs one work unit given the cumulative task context.
// Implementations must tolerate being retried after transient errors.
type StepExecutor interface {
	Step(ctx context.Context, taskContext string) (StepResult, error)
}

// LLMStepExecutor drives work units through the language model.
type LLMStepExecutor struct {
	client          llm.Client
	completionToken string
}

// NewLLMStepExecutor creates the production step executor.
func NewLLMStepExecutor(client llm.Client, completionToken string) *LLMStepExecutor {
	return &LLMStepExecutor{
		client:          client,
		completionToken: completionToken,
	}
}

// Step asks the model to advance the task by exactly one unit of work.
func (e *LLMStepExecutor) Step(ctx context.Context, taskContext string) (StepResult, error) {
	system := fmt.Sprintf(
		"You are an autonomous assistant working through a multi-step task. "+
			"Perform exactly one step of work and describe the result. "+
			"When the whole task is finished, include the literal token %s in your reply.",
		e.completionToken,
	)

	resp, err := e.client.Complete(ctx, llm.Request{
		System: system,
		Prompt: taskContext,
	})
	if err != nil {
		return StepResult{}, err
	}
	return StepResult{Text: resp.Text, Usage: resp.Usage}, nil
}
