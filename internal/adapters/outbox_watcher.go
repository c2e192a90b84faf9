package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"aide/internal/models"
)

const (
	outboxDirPerm  = 0o755
	outboxFilePerm = 0o644
)

// OutboxWatcher executes local mutating actions by writing them to an
// outbox directory, one JSON record per executed action. Delivery to real
// external systems picks records up from there; the approval record stays
// the source of truth for whether execution happened.
type OutboxWatcher struct {
	root string
	now  func() time.Time
}

// Option customizes an OutboxWatcher.
type Option func(*OutboxWatcher)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(w *OutboxWatcher) {
		if now != nil {
			w.now = now
		}
	}
}

// NewOutboxWatcher creates an OutboxWatcher rooted at root.
func NewOutboxWatcher(root string, opts ...Option) *OutboxWatcher {
	w := &OutboxWatcher{
		root: root,
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// localActions are the action types the outbox can execute.
var localActions = map[models.ActionType]bool{
	models.ActionTypeSendEmail:      true,
	models.ActionTypeCreateReminder: true,
	models.ActionTypeCreateTask:     true,
	models.ActionTypeCreateEvent:    true,
	models.ActionTypeSaveKnowledge:  true,
}

// CanHandle reports whether this watcher executes the action type.
func (w *OutboxWatcher) CanHandle(actionType models.ActionType) bool {
	return localActions[actionType]
}

// outboxRecord is the JSON shape written per executed action.
type outboxRecord struct {
	ApprovalID string          `json:"approval_id"`
	UserID     string          `json:"user_id"`
	ActionType string          `json:"action_type"`
	ExecutedAt time.Time       `json:"executed_at"`
	Action     json.RawMessage `json:"action"`
}

// Execute writes the action record into the outbox.
func (w *OutboxWatcher) Execute(_ context.Context, approval *models.Approval) (models.ExecutionResult, error) {
	dir := filepath.Join(w.root, string(approval.ActionType))
	if err := os.MkdirAll(dir, outboxDirPerm); err != nil {
		return models.ExecutionResult{}, fmt.Errorf("failed to create outbox dir: %w", err)
	}

	record := outboxRecord{
		ApprovalID: approval.ID,
		UserID:     approval.UserID,
		ActionType: string(approval.ActionType),
		ExecutedAt: w.now(),
		Action:     approval.ActionData,
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return models.ExecutionResult{}, fmt.Errorf("failed to encode outbox record: %w", err)
	}

	path := filepath.Join(dir, approval.ID+".json")
	if err := os.WriteFile(path, data, outboxFilePerm); err != nil {
		return models.ExecutionResult{}, fmt.Errorf("failed to write outbox record: %w", err)
	}

	return models.ExecutionResult{
		Success: true,
		Output:  fmt.Sprintf("%s written to outbox", approval.ActionType),
		Data:    data,
	}, nil
}
