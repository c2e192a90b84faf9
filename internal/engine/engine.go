// Package engine runs bounded multi-step task loops. Every run terminates:
// the iteration cap, the wall clock, the consecutive-error cap, and the
// stop signal each bound the loop independently.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"aide/internal/config"
	"aide/internal/db"
	"aide/internal/logging"
	"aide/internal/models"
	"aide/internal/vault"
)

// Engine errors surfaced to callers.
var (
	// ErrTaskNotFound means the task id is unknown.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskNotRunning means the task already reached a terminal state.
	ErrTaskNotRunning = errors.New("task is not running")
)

// Engine drives multi-step tasks to a terminal state.
type Engine struct {
	tasks    *db.TaskRepository
	events   *db.EventRepository
	vault    *vault.Store
	executor StepExecutor
	cfg      config.EngineConfig
	logger   zerolog.Logger
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithNow overrides the engine's clock.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an Engine.
func NewEngine(tasks *db.TaskRepository, events *db.EventRepository, store *vault.Store, executor StepExecutor, cfg config.EngineConfig, opts ...Option) *Engine {
	engine := &Engine{
		tasks:    tasks,
		events:   events,
		vault:    store,
		executor: executor,
		cfg:      cfg,
		logger:   logging.Component("engine"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// Start creates a running task without iterating. Callers drive it with
// Resume, usually on a background goroutine.
func (e *Engine) Start(ctx context.Context, userID, prompt string) (*models.Task, error) {
	task := &models.Task{
		UserID:          userID,
		Prompt:          prompt,
		MaxIterations:   e.cfg.MaxIterations,
		CompletionToken: e.cfg.CompletionToken,
		Status:          models.TaskStatusRunning,
	}
	if err := e.tasks.Create(ctx, task); err != nil {
		return nil, err
	}
	if err := e.vault.WriteTask(task); err != nil {
		e.logger.Warn().Err(err).Str("task_id", task.ID).Msg("failed to write task artifact")
	}
	e.appendEvent(ctx, models.EventTypeTaskStarted, task.ID, nil)

	e.logger.Info().
		Str("task_id", task.ID).
		Int("max_iterations", task.MaxIterations).
		Msg("task started")
	return task, nil
}

// Run creates a task and drives it to a terminal state. The returned
// RunResult has the same shape for every outcome; the error return is
// reserved for persistence failures before the loop starts.
func (e *Engine) Run(ctx context.Context, userID, prompt string) (*models.RunResult, error) {
	task, err := e.Start(ctx, userID, prompt)
	if err != nil {
		return nil, err
	}
	return e.loop(ctx, task), nil
}

// Resume continues a running task, picking up after its last recorded
// iteration. Used after a restart.
func (e *Engine) Resume(ctx context.Context, taskID string) (*models.RunResult, error) {
	task, err := e.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, mapTaskError(err)
	}
	if task.Status.Terminal() {
		return nil, ErrTaskNotRunning
	}
	e.logger.Info().
		Str("task_id", task.ID).
		Int("current_iteration", task.CurrentIteration).
		Msg("task resumed")
	return e.loop(ctx, task), nil
}

// Status returns the task with its full iteration history.
func (e *Engine) Status(ctx context.Context, taskID string) (*models.Task, error) {
	task, err := e.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, mapTaskError(err)
	}
	return task, nil
}

// Cancel signals a running task to stop. The loop observes the signal at
// the next iteration boundary; in-flight work finishes first.
func (e *Engine) Cancel(ctx context.Context, taskID string) error {
	task, err := e.tasks.Get(ctx, taskID)
	if err != nil {
		return mapTaskError(err)
	}
	if task.Status.Terminal() {
		return ErrTaskNotRunning
	}
	if err := e.vault.StopTask(taskID); err != nil {
		return err
	}
	e.logger.Info().Str("task_id", taskID).Msg("task stop requested")
	return nil
}

func (e *Engine) loop(ctx context.Context, task *models.Task) *models.RunResult {
	deadline := task.StartedAt.Add(e.cfg.Timeout())
	consecutiveErrors := 0
	lastOutput := ""

	for number := task.CurrentIteration + 1; number <= task.MaxIterations; number++ {
		if ctx.Err() != nil {
			return e.finish(ctx, task, models.TaskStatusStopped, "")
		}
		if e.vault.TaskStopped(task.ID) {
			return e.finish(ctx, task, models.TaskStatusStopped, "")
		}
		if e.now().After(deadline) {
			return e.finish(ctx, task, models.TaskStatusFailed,
				fmt.Sprintf("timed out after %s", e.cfg.Timeout()))
		}

		if len(task.Iterations) > 0 {
			if err := sleepContext(ctx, e.cfg.IterationDelay()); err != nil {
				return e.finish(ctx, task, models.TaskStatusStopped, "")
			}
		}

		result, err := e.executor.Step(ctx, e.buildContext(task))
		iteration := models.Iteration{
			Number:    number,
			Timestamp: e.now().UTC(),
			Action:    fmt.Sprintf("iteration %d of %d", number, task.MaxIterations),
		}

		if err != nil {
			consecutiveErrors++
			iteration.Result = "error: " + err.Error()
			e.record(ctx, task, iteration)
			e.logger.Warn().
				Err(err).
				Str("task_id", task.ID).
				Int("iteration", number).
				Int("consecutive_errors", consecutiveErrors).
				Msg("iteration failed")
			if consecutiveErrors >= e.cfg.MaxConsecutiveErrors {
				return e.finish(ctx, task, models.TaskStatusFailed,
					fmt.Sprintf("aborted after %d consecutive errors: %s", consecutiveErrors, err))
			}
			continue
		}

		consecutiveErrors = 0
		lastOutput = result.Text
		iteration.Result = result.Text
		iteration.CompletionDetected = strings.Contains(result.Text, task.CompletionToken) ||
			e.vault.TaskDone(task.ID)
		e.record(ctx, task, iteration)

		e.logger.Debug().
			Str("task_id", task.ID).
			Int("iteration", number).
			Bool("completion_detected", iteration.CompletionDetected).
			Msg("iteration recorded")

		if iteration.CompletionDetected {
			return e.finishWithOutput(ctx, task, models.TaskStatusCompleted, "", lastOutput)
		}
	}

	return e.finishWithOutput(ctx, task, models.TaskStatusFailed,
		fmt.Sprintf("incomplete after %d iterations", task.MaxIterations), lastOutput)
}

// buildContext assembles the cumulative prompt: the original request plus
// every prior iteration's result, oldest first.
func (e *Engine) buildContext(task *models.Task) string {
	var builder strings.Builder
	builder.WriteString("Task: " + task.Prompt + "\n")
	for _, it := range task.Iterations {
		builder.WriteString(fmt.Sprintf("\nIteration %d result:\n%s\n", it.Number, it.Result))
	}
	if len(task.Iterations) == 0 {
		builder.WriteString("\nNo work done yet. Begin with the first step.\n")
	}
	return builder.String()
}

func (e *Engine) record(ctx context.Context, task *models.Task, iteration models.Iteration) {
	ctx = context.WithoutCancel(ctx)
	if err := e.tasks.AppendIteration(ctx, task.ID, iteration); err != nil {
		e.logger.Error().Err(err).Str("task_id", task.ID).Msg("failed to record iteration")
	}
	task.Iterations = append(task.Iterations, iteration)
	task.CurrentIteration = iteration.Number
	timestamp := iteration.Timestamp
	task.LastIterationAt = &timestamp

	if err := e.vault.WriteTask(task); err != nil {
		e.logger.Warn().Err(err).Str("task_id", task.ID).Msg("failed to refresh task artifact")
	}
	e.appendEvent(ctx, models.EventTypeTaskIteration, task.ID, nil)
}

func (e *Engine) finish(ctx context.Context, task *models.Task, status models.TaskStatus, taskErr string) *models.RunResult {
	return e.finishWithOutput(ctx, task, status, taskErr, "")
}

func (e *Engine) finishWithOutput(ctx context.Context, task *models.Task, status models.TaskStatus, taskErr, output string) *models.RunResult {
	// The terminal record must land even when the run's context was
	// canceled.
	ctx = context.WithoutCancel(ctx)

	task.Status = status
	task.Error = taskErr
	if err := e.tasks.SetStatus(ctx, task.ID, status, taskErr); err != nil {
		e.logger.Error().Err(err).Str("task_id", task.ID).Msg("failed to record task status")
	}

	switch status {
	case models.TaskStatusStopped:
		// A vault-initiated stop already moved the artifact; a context
		// cancellation has not.
		if !e.vault.TaskStopped(task.ID) {
			if err := e.vault.StopTask(task.ID); err != nil {
				e.logger.Warn().Err(err).Str("task_id", task.ID).Msg("failed to move task artifact")
			}
		}
	default:
		if err := e.vault.FinishTask(task); err != nil {
			e.logger.Warn().Err(err).Str("task_id", task.ID).Msg("failed to move task artifact")
		}
	}

	eventType := models.EventTypeTaskStopped
	switch status {
	case models.TaskStatusCompleted:
		eventType = models.EventTypeTaskCompleted
	case models.TaskStatusFailed:
		eventType = models.EventTypeTaskFailed
	}
	payload, _ := json.Marshal(models.TaskTerminalPayload{
		IterationCount: task.CurrentIteration,
		Error:          taskErr,
	})
	e.appendEvent(ctx, eventType, task.ID, payload)

	e.logger.Info().
		Str("task_id", task.ID).
		Str("status", string(status)).
		Int("iterations", task.CurrentIteration).
		Msg("task finished")

	return &models.RunResult{
		Success:        status == models.TaskStatusCompleted,
		TaskID:         task.ID,
		IterationCount: task.CurrentIteration,
		FinalStatus:    status,
		Output:         output,
		Error:          taskErr,
	}
}

func (e *Engine) appendEvent(ctx context.Context, eventType models.EventType, taskID string, payload json.RawMessage) {
	event := &models.Event{
		Type:       eventType,
		EntityType: models.EntityTypeTask,
		EntityID:   taskID,
		Payload:    payload,
	}
	if err := e.events.Append(ctx, event); err != nil {
		e.logger.Warn().Err(err).Str("task_id", taskID).Msg("failed to append event")
	}
}

func mapTaskError(err error) error {
	if errors.Is(err, db.ErrTaskNotFound) {
		return ErrTaskNotFound
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
