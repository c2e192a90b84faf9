// Package adapters holds the concrete executors behind the router's
// ReadAdapter and the gateway's Watcher interfaces. Real integrations
// plug in here; everything else in the pipeline stays unaware of them.
package adapters

import (
	"context"
	"encoding/json"
	"fmt"

	"aide/internal/engine"
	"aide/internal/models"
)

// LoopWatcher executes approved run_loop actions by handing the original
// prompt to the iteration engine.
type LoopWatcher struct {
	engine *engine.Engine
}

// NewLoopWatcher creates a LoopWatcher.
func NewLoopWatcher(e *engine.Engine) *LoopWatcher {
	return &LoopWatcher{engine: e}
}

// CanHandle reports whether this watcher executes the action type.
func (w *LoopWatcher) CanHandle(actionType models.ActionType) bool {
	return actionType == models.ActionTypeRunLoop
}

// Execute runs the multi-step task to a terminal state and reports the
// run outcome as the execution result.
func (w *LoopWatcher) Execute(ctx context.Context, approval *models.Approval) (models.ExecutionResult, error) {
	var payload models.ActionPayload
	if err := json.Unmarshal(approval.ActionData, &payload); err != nil {
		return models.ExecutionResult{}, fmt.Errorf("invalid action data: %w", err)
	}

	run, err := w.engine.Run(ctx, approval.UserID, payload.RawUtterance)
	if err != nil {
		return models.ExecutionResult{}, err
	}

	data, _ := json.Marshal(run)
	return models.ExecutionResult{
		Success: run.Success,
		Output:  run.Output,
		Error:   run.Error,
		Data:    data,
	}, nil
}
