package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"aide/internal/models"
)

func createTestTask(t *testing.T, repo *TaskRepository) *models.Task {
	t.Helper()

	task := &models.Task{
		UserID:          "user-1",
		Prompt:          "research competitors and create a summary",
		MaxIterations:   10,
		CompletionToken: "TASK_COMPLETE",
	}
	if err := repo.Create(context.Background(), task); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return task
}

func TestTaskRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()

	task := createTestTask(t, repo)
	if task.Status != models.TaskStatusRunning {
		t.Fatalf("expected running status, got %s", task.Status)
	}

	got, err := repo.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.CurrentIteration != 0 {
		t.Fatalf("expected 0 iterations, got %d", got.CurrentIteration)
	}
	if len(got.Iterations) != 0 {
		t.Fatalf("expected no iteration records, got %d", len(got.Iterations))
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestTaskRepository_AppendIteration(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()

	task := createTestTask(t, repo)

	for n := 1; n <= 3; n++ {
		err := repo.AppendIteration(ctx, task.ID, models.Iteration{
			Number:    n,
			Timestamp: time.Now().UTC(),
			Action:    "step",
			Result:    "did some work",
		})
		if err != nil {
			t.Fatalf("AppendIteration %d failed: %v", n, err)
		}
	}

	got, err := repo.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.CurrentIteration != 3 {
		t.Fatalf("expected current_iteration=3, got %d", got.CurrentIteration)
	}
	if len(got.Iterations) != got.CurrentIteration {
		t.Fatalf("iteration count %d does not match counter %d", len(got.Iterations), got.CurrentIteration)
	}
	if got.LastIterationAt == nil {
		t.Fatal("expected last_iteration_at to be set")
	}
}

func TestTaskRepository_AppendIterationIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()

	task := createTestTask(t, repo)

	iteration := models.Iteration{
		Number:    1,
		Timestamp: time.Now().UTC(),
		Action:    "step",
		Result:    "first pass",
	}
	if err := repo.AppendIteration(ctx, task.ID, iteration); err != nil {
		t.Fatalf("AppendIteration failed: %v", err)
	}
	// Replaying the same iteration must not duplicate it or bump the counter.
	if err := repo.AppendIteration(ctx, task.ID, iteration); err != nil {
		t.Fatalf("replayed AppendIteration failed: %v", err)
	}

	got, err := repo.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.CurrentIteration != 1 {
		t.Fatalf("expected current_iteration=1 after replay, got %d", got.CurrentIteration)
	}
	if len(got.Iterations) != 1 {
		t.Fatalf("expected 1 iteration after replay, got %d", len(got.Iterations))
	}
}

func TestTaskRepository_SetStatus(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()

	task := createTestTask(t, repo)

	if err := repo.SetStatus(ctx, task.ID, models.TaskStatusFailed, "timeout exceeded"); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}

	got, err := repo.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != models.TaskStatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.Error != "timeout exceeded" {
		t.Fatalf("unexpected error field %q", got.Error)
	}

	if err := repo.SetStatus(ctx, "missing", models.TaskStatusStopped, ""); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestTaskRepository_ListActive(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()

	first := createTestTask(t, repo)
	createTestTask(t, repo)

	active, err := repo.ListActive(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active tasks, got %d", len(active))
	}

	if err := repo.SetStatus(ctx, first.ID, models.TaskStatusCompleted, ""); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}

	active, err = repo.ListActive(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active task, got %d", len(active))
	}
}
