package vault

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"aide/internal/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return store
}

func testApproval(id string, status models.ApprovalStatus) *models.Approval {
	return &models.Approval{
		ID:          id,
		UserID:      "user-1",
		ActionType:  models.ActionTypeSendEmail,
		ActionData:  json.RawMessage(`{"intent":"SEND_EMAIL"}`),
		Status:      status,
		RequestedAt: time.Now().UTC(),
	}
}

func TestWriteApprovalFollowsStatus(t *testing.T) {
	store := testStore(t)

	approval := testApproval("ap-1", models.ApprovalStatusPending)
	if err := store.WriteApproval(approval); err != nil {
		t.Fatalf("WriteApproval failed: %v", err)
	}

	pendingPath := filepath.Join(store.Root, "approvals", "pending", "ap-1.md")
	data, err := os.ReadFile(pendingPath)
	if err != nil {
		t.Fatalf("artifact not in pending area: %v", err)
	}
	if !strings.Contains(string(data), "status: pending") {
		t.Fatal("artifact missing status front matter")
	}

	// Status change relocates the artifact.
	approval.Status = models.ApprovalStatusApproved
	if err := store.WriteApproval(approval); err != nil {
		t.Fatalf("WriteApproval failed: %v", err)
	}
	if _, err := os.Stat(pendingPath); !os.IsNotExist(err) {
		t.Fatal("stale artifact left in pending area")
	}
	if _, err := os.Stat(filepath.Join(store.Root, "approvals", "approved", "ap-1.md")); err != nil {
		t.Fatalf("artifact not in approved area: %v", err)
	}
}

func TestScanDecisions(t *testing.T) {
	store := testStore(t)

	if err := store.WriteApproval(testApproval("ap-1", models.ApprovalStatusPending)); err != nil {
		t.Fatalf("WriteApproval failed: %v", err)
	}
	if err := store.WriteApproval(testApproval("ap-2", models.ApprovalStatusPending)); err != nil {
		t.Fatalf("WriteApproval failed: %v", err)
	}

	// A human approves ap-1 by moving the file.
	src := filepath.Join(store.Root, "approvals", "pending", "ap-1.md")
	dst := filepath.Join(store.Root, "approvals", "approved", "ap-1.md")
	if err := os.Rename(src, dst); err != nil {
		t.Fatalf("move failed: %v", err)
	}

	decisions, err := store.ScanDecisions()
	if err != nil {
		t.Fatalf("ScanDecisions failed: %v", err)
	}
	if len(decisions) != 1 {
		t.Fatalf("expected 1 decision, got %d", len(decisions))
	}
	if decisions[0].ApprovalID != "ap-1" || decisions[0].Status != models.ApprovalStatusApproved {
		t.Fatalf("unexpected decision %+v", decisions[0])
	}
}

func testTask(id string) *models.Task {
	return &models.Task{
		ID:              id,
		UserID:          "user-1",
		Prompt:          "research and summarize",
		MaxIterations:   10,
		Status:          models.TaskStatusRunning,
		StartedAt:       time.Now().UTC(),
		CompletionToken: "TASK_COMPLETE",
	}
}

func TestTaskLifecycleArtifacts(t *testing.T) {
	store := testStore(t)

	task := testTask("task-1")
	if err := store.WriteTask(task); err != nil {
		t.Fatalf("WriteTask failed: %v", err)
	}
	if area := store.TaskArea("task-1"); area != AreaActive {
		t.Fatalf("expected active area, got %q", area)
	}
	if store.TaskStopped("task-1") || store.TaskDone("task-1") {
		t.Fatal("fresh task should not be stopped or done")
	}

	task.Status = models.TaskStatusCompleted
	if err := store.FinishTask(task); err != nil {
		t.Fatalf("FinishTask failed: %v", err)
	}
	if !store.TaskDone("task-1") {
		t.Fatal("completed task artifact should be in done area")
	}
}

func TestFinishTaskFailedGoesToNeedsReview(t *testing.T) {
	store := testStore(t)

	task := testTask("task-2")
	if err := store.WriteTask(task); err != nil {
		t.Fatalf("WriteTask failed: %v", err)
	}

	task.Status = models.TaskStatusFailed
	task.Error = "timeout exceeded"
	if err := store.FinishTask(task); err != nil {
		t.Fatalf("FinishTask failed: %v", err)
	}
	if area := store.TaskArea("task-2"); area != AreaNeedsReview {
		t.Fatalf("expected needs-review area, got %q", area)
	}
}

func TestStopTaskSignal(t *testing.T) {
	store := testStore(t)

	task := testTask("task-3")
	if err := store.WriteTask(task); err != nil {
		t.Fatalf("WriteTask failed: %v", err)
	}
	if err := store.StopTask("task-3"); err != nil {
		t.Fatalf("StopTask failed: %v", err)
	}
	if !store.TaskStopped("task-3") {
		t.Fatal("expected stopped signal")
	}
}

func TestWriteTaskRefreshesInPlace(t *testing.T) {
	store := testStore(t)

	task := testTask("task-4")
	if err := store.WriteTask(task); err != nil {
		t.Fatalf("WriteTask failed: %v", err)
	}
	if err := store.StopTask("task-4"); err != nil {
		t.Fatalf("StopTask failed: %v", err)
	}

	// A refresh must not undo the human's move back into the active area.
	if err := store.WriteTask(task); err != nil {
		t.Fatalf("WriteTask failed: %v", err)
	}
	if !store.TaskStopped("task-4") {
		t.Fatal("refresh moved the artifact out of the stopped area")
	}
}
