// Package vault is the human-facing mirror of approval and task state: a
// directory tree of markdown artifacts a person can review and move with
// any file manager. The database stays authoritative; artifact moves are
// read back as an alternate transport for the same state transitions.
package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"aide/internal/models"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// Approval artifact areas.
const (
	AreaPending  = "pending"
	AreaApproved = "approved"
	AreaRejected = "rejected"
)

// Task artifact areas.
const (
	AreaActive      = "active"
	AreaDone        = "done"
	AreaNeedsReview = "needs-review"
	AreaStopped     = "stopped"
)

// Store is a file-based review surface rooted at a single directory.
type Store struct {
	Root string
	now  func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore initializes a store rooted at root.
func NewStore(root string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("vault root required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	store := &Store{
		Root: abs,
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// EnsureLayout creates the directory tree.
func (s *Store) EnsureLayout() error {
	dirs := []string{
		s.approvalDir(AreaPending),
		s.approvalDir(AreaApproved),
		s.approvalDir(AreaRejected),
		s.taskDir(AreaActive),
		s.taskDir(AreaDone),
		s.taskDir(AreaNeedsReview),
		s.taskDir(AreaStopped),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return fmt.Errorf("failed to create vault dir: %w", err)
		}
	}
	return nil
}

func (s *Store) approvalDir(area string) string {
	return filepath.Join(s.Root, "approvals", area)
}

func (s *Store) taskDir(area string) string {
	return filepath.Join(s.Root, "tasks", area)
}

func (s *Store) approvalPath(area, id string) string {
	return filepath.Join(s.approvalDir(area), id+".md")
}

func (s *Store) taskPath(area, id string) string {
	return filepath.Join(s.taskDir(area), id+".md")
}

// WriteApproval writes the artifact into the area matching the approval's
// status, removing any copy in other areas.
func (s *Store) WriteApproval(approval *models.Approval) error {
	if err := s.EnsureLayout(); err != nil {
		return err
	}

	area := approvalArea(approval.Status)
	for _, other := range []string{AreaPending, AreaApproved, AreaRejected} {
		if other != area {
			_ = os.Remove(s.approvalPath(other, approval.ID))
		}
	}

	content := s.renderApproval(approval)
	if err := os.WriteFile(s.approvalPath(area, approval.ID), []byte(content), filePerm); err != nil {
		return fmt.Errorf("failed to write approval artifact: %w", err)
	}
	return nil
}

func approvalArea(status models.ApprovalStatus) string {
	switch status {
	case models.ApprovalStatusApproved:
		return AreaApproved
	case models.ApprovalStatusRejected:
		return AreaRejected
	default:
		return AreaPending
	}
}

func (s *Store) renderApproval(approval *models.Approval) string {
	var builder strings.Builder
	builder.WriteString("---\n")
	builder.WriteString("id: " + approval.ID + "\n")
	builder.WriteString("user: " + approval.UserID + "\n")
	builder.WriteString("action: " + string(approval.ActionType) + "\n")
	builder.WriteString("status: " + string(approval.Status) + "\n")
	builder.WriteString("requested: " + approval.RequestedAt.Format(time.RFC3339) + "\n")
	builder.WriteString("---\n\n")
	builder.WriteString("# Approval: " + string(approval.ActionType) + "\n\n")
	builder.WriteString("To approve, move this file to `approvals/approved/`.\n")
	builder.WriteString("To reject, move it to `approvals/rejected/`.\n\n")
	if len(approval.ActionData) > 0 {
		builder.WriteString("```json\n")
		builder.Write(approval.ActionData)
		builder.WriteString("\n```\n")
	}
	return builder.String()
}

// Decision is an out-of-band decision read from artifact location.
type Decision struct {
	ApprovalID string
	Status     models.ApprovalStatus
}

// ScanDecisions lists approval artifacts found in the approved and
// rejected areas. The caller reconciles them against the database.
func (s *Store) ScanDecisions() ([]Decision, error) {
	var decisions []Decision
	areas := map[string]models.ApprovalStatus{
		AreaApproved: models.ApprovalStatusApproved,
		AreaRejected: models.ApprovalStatusRejected,
	}
	for area, status := range areas {
		entries, err := os.ReadDir(s.approvalDir(area))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to scan vault area %s: %w", area, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
				continue
			}
			decisions = append(decisions, Decision{
				ApprovalID: strings.TrimSuffix(entry.Name(), ".md"),
				Status:     status,
			})
		}
	}
	return decisions, nil
}

// WriteTask writes the working artifact for a task. The artifact is
// refreshed in whatever area it currently sits in, so a human move is
// never undone by a refresh.
func (s *Store) WriteTask(task *models.Task) error {
	if err := s.EnsureLayout(); err != nil {
		return err
	}
	area := s.TaskArea(task.ID)
	if area == "" {
		area = AreaActive
	}
	content := s.renderTask(task)
	if err := os.WriteFile(s.taskPath(area, task.ID), []byte(content), filePerm); err != nil {
		return fmt.Errorf("failed to write task artifact: %w", err)
	}
	return nil
}

func (s *Store) renderTask(task *models.Task) string {
	var builder strings.Builder
	builder.WriteString("---\n")
	builder.WriteString("id: " + task.ID + "\n")
	builder.WriteString("user: " + task.UserID + "\n")
	builder.WriteString("status: " + string(task.Status) + "\n")
	builder.WriteString(fmt.Sprintf("iteration: %d/%d\n", task.CurrentIteration, task.MaxIterations))
	builder.WriteString("started: " + task.StartedAt.Format(time.RFC3339) + "\n")
	builder.WriteString("---\n\n")
	builder.WriteString("# Task\n\n")
	builder.WriteString(task.Prompt + "\n\n")
	builder.WriteString("To stop this task, move this file to `tasks/stopped/`.\n\n")
	for _, it := range task.Iterations {
		builder.WriteString(fmt.Sprintf("## Iteration %d\n\n%s\n\n", it.Number, it.Result))
	}
	return builder.String()
}

// TaskArea returns the area the task's artifact currently sits in, or ""
// if no artifact exists.
func (s *Store) TaskArea(taskID string) string {
	for _, area := range []string{AreaActive, AreaDone, AreaNeedsReview, AreaStopped} {
		if _, err := os.Stat(s.taskPath(area, taskID)); err == nil {
			return area
		}
	}
	return ""
}

// TaskStopped reports whether the task artifact was moved to the stopped
// area, the manual cancellation signal.
func (s *Store) TaskStopped(taskID string) bool {
	return s.TaskArea(taskID) == AreaStopped
}

// TaskDone reports whether the task artifact was moved to the done area,
// the out-of-band completion signal.
func (s *Store) TaskDone(taskID string) bool {
	return s.TaskArea(taskID) == AreaDone
}

// StopTask moves the task artifact to the stopped area.
func (s *Store) StopTask(taskID string) error {
	return s.moveTask(taskID, AreaStopped)
}

// FinishTask relocates the task artifact to the area matching the outcome:
// done for completed, needs-review otherwise.
func (s *Store) FinishTask(task *models.Task) error {
	// Refresh the artifact so the final iteration log is visible.
	if err := s.WriteTask(task); err != nil {
		return err
	}
	area := AreaNeedsReview
	if task.Status == models.TaskStatusCompleted {
		area = AreaDone
	}
	return s.moveTask(task.ID, area)
}

func (s *Store) moveTask(taskID, target string) error {
	if err := s.EnsureLayout(); err != nil {
		return err
	}
	current := s.TaskArea(taskID)
	if current == "" {
		return fmt.Errorf("task artifact %s not found", taskID)
	}
	if current == target {
		return nil
	}
	if err := os.Rename(s.taskPath(current, taskID), s.taskPath(target, taskID)); err != nil {
		return fmt.Errorf("failed to move task artifact: %w", err)
	}
	return nil
}
