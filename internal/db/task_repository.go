package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"aide/internal/models"
)

// Task repository errors.
var (
	ErrTaskNotFound = errors.New("task not found")
)

// TaskRepository handles multi-step task persistence.
type TaskRepository struct {
	db *DB
}

// NewTaskRepository creates a new TaskRepository.
func NewTaskRepository(db *DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create persists a new task in the running state.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.Status == "" {
		task.Status = models.TaskStatusRunning
	}
	task.StartedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tasks (
			id, user_id, prompt, current_iteration, max_iterations,
			started_at, last_iteration_at, status, completion_token, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		task.ID,
		task.UserID,
		task.Prompt,
		task.CurrentIteration,
		task.MaxIterations,
		task.StartedAt.Format(time.RFC3339),
		stringTimePtr(task.LastIterationAt),
		string(task.Status),
		task.CompletionToken,
		task.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// Get returns a task with its ordered iterations.
func (r *TaskRepository) Get(ctx context.Context, id string) (*models.Task, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT
			id, user_id, prompt, current_iteration, max_iterations,
			started_at, last_iteration_at, status, completion_token, error
		FROM tasks
		WHERE id = ?
	`, id)

	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}

	iterations, err := r.iterations(ctx, id)
	if err != nil {
		return nil, err
	}
	task.Iterations = iterations
	return task, nil
}

// AppendIteration records a completed work unit and advances the task's
// iteration counter in the same transaction. Re-appending an iteration
// number that already exists is a no-op, so replaying an unchanged state
// never duplicates a record.
func (r *TaskRepository) AppendIteration(ctx context.Context, taskID string, iteration models.Iteration) error {
	if iteration.Number <= 0 {
		return fmt.Errorf("iteration number must be positive")
	}

	return r.db.TransactionWithRetry(ctx, 0, 0, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO task_iterations (
				task_id, number, timestamp, action, result, completion_detected
			) VALUES (?, ?, ?, ?, ?, ?)
		`,
			taskID,
			iteration.Number,
			iteration.Timestamp.UTC().Format(time.RFC3339),
			iteration.Action,
			iteration.Result,
			boolToInt(iteration.CompletionDetected),
		)
		if err != nil {
			return fmt.Errorf("failed to insert iteration: %w", err)
		}

		inserted, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if inserted == 0 {
			return nil
		}

		updated, err := tx.ExecContext(ctx, `
			UPDATE tasks
			SET current_iteration = ?, last_iteration_at = ?
			WHERE id = ?
		`, iteration.Number, iteration.Timestamp.UTC().Format(time.RFC3339), taskID)
		if err != nil {
			return fmt.Errorf("failed to advance task iteration: %w", err)
		}
		rowsAffected, err := updated.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return ErrTaskNotFound
		}
		return nil
	})
}

// SetStatus records the task's lifecycle state and terminal error, if any.
func (r *TaskRepository) SetStatus(ctx context.Context, id string, status models.TaskStatus, taskErr string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, error = ? WHERE id = ?
	`, string(status), taskErr, id)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// ListActive lists running tasks for a user, oldest first.
func (r *TaskRepository) ListActive(ctx context.Context, userID string) ([]*models.Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			id, user_id, prompt, current_iteration, max_iterations,
			started_at, last_iteration_at, status, completion_token, error
		FROM tasks
		WHERE status = 'running' AND user_id = ?
		ORDER BY started_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (r *TaskRepository) iterations(ctx context.Context, taskID string) ([]models.Iteration, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT number, timestamp, action, result, completion_detected
		FROM task_iterations
		WHERE task_id = ?
		ORDER BY number
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query iterations: %w", err)
	}
	defer rows.Close()

	var iterations []models.Iteration
	for rows.Next() {
		var it models.Iteration
		var timestamp string
		var completed int
		if err := rows.Scan(&it.Number, &timestamp, &it.Action, &it.Result, &completed); err != nil {
			return nil, fmt.Errorf("failed to scan iteration: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339, timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to parse iteration timestamp: %w", err)
		}
		it.Timestamp = parsed
		it.CompletionDetected = completed != 0
		iterations = append(iterations, it)
	}
	return iterations, rows.Err()
}

func scanTask(row rowScanner) (*models.Task, error) {
	var task models.Task
	var startedAt, status string
	var lastIterationAt, taskErr sql.NullString

	if err := row.Scan(
		&task.ID,
		&task.UserID,
		&task.Prompt,
		&task.CurrentIteration,
		&task.MaxIterations,
		&startedAt,
		&lastIterationAt,
		&status,
		&task.CompletionToken,
		&taskErr,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	task.Status = models.TaskStatus(status)
	if taskErr.Valid {
		task.Error = taskErr.String
	}

	started, err := time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at: %w", err)
	}
	task.StartedAt = started

	if task.LastIterationAt, err = parseTimePtr(lastIterationAt); err != nil {
		return nil, fmt.Errorf("failed to parse last_iteration_at: %w", err)
	}
	return &task, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
