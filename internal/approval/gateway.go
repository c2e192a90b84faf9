// Package approval owns the approval lifecycle: creation, the human
// decision, and the single gated execution hand-off.
package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"aide/internal/db"
	"aide/internal/logging"
	"aide/internal/models"
	"aide/internal/vault"
)

// Gateway errors surfaced to callers.
var (
	// ErrNotFound means the approval id is unknown.
	ErrNotFound = errors.New("approval not found")

	// ErrInvalidTransition means the decision was already recorded.
	ErrInvalidTransition = errors.New("approval already decided")

	// ErrNotApproved means execution was requested without an approval.
	ErrNotApproved = errors.New("approval is not approved")

	// ErrAlreadyExecuting means a concurrent execution holds the marker.
	ErrAlreadyExecuting = errors.New("approval execution already in progress")

	// ErrAlreadyTerminal means an execution result was already recorded.
	ErrAlreadyTerminal = errors.New("approval execution already recorded")

	// ErrNoWatcher means no executor can handle the action type.
	ErrNoWatcher = errors.New("no watcher for action type")
)

// Watcher performs the actual side effect for an approved action.
// Consumed by the gateway, implemented elsewhere.
type Watcher interface {
	CanHandle(actionType models.ActionType) bool
	Execute(ctx context.Context, approval *models.Approval) (models.ExecutionResult, error)
}

// Gateway coordinates approvals across the database, the vault mirror,
// and the watcher registry.
type Gateway struct {
	approvals *db.ApprovalRepository
	events    *db.EventRepository
	vault     *vault.Store
	watchers  []Watcher
	logger    zerolog.Logger
}

// NewGateway creates a Gateway.
func NewGateway(approvals *db.ApprovalRepository, events *db.EventRepository, store *vault.Store, watchers ...Watcher) *Gateway {
	return &Gateway{
		approvals: approvals,
		events:    events,
		vault:     store,
		watchers:  watchers,
		logger:    logging.Component("approval-gateway"),
	}
}

// Create persists a new pending approval and mirrors it to the vault.
// It never executes anything.
func (g *Gateway) Create(ctx context.Context, userID string, actionType models.ActionType, payload models.ActionPayload) (*models.Approval, error) {
	actionData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode action data: %w", err)
	}

	approval := &models.Approval{
		UserID:     userID,
		ActionType: actionType,
		ActionData: actionData,
		Status:     models.ApprovalStatusPending,
	}
	if err := g.approvals.Create(ctx, approval); err != nil {
		return nil, err
	}

	g.mirror(approval)
	g.appendEvent(ctx, models.EventTypeApprovalRequested, approval.ID, nil)

	g.logger.Info().
		Str("approval_id", approval.ID).
		Str("action_type", string(actionType)).
		Msg("approval requested")
	return approval, nil
}

// Decide records the human decision. decidedBy names the decision channel
// ("user", "vault", ...).
func (g *Gateway) Decide(ctx context.Context, id string, approve bool, reason, decidedBy string) (*models.Approval, error) {
	status := models.ApprovalStatusRejected
	eventType := models.EventTypeApprovalRejected
	if approve {
		status = models.ApprovalStatusApproved
		eventType = models.EventTypeApprovalApproved
	}

	if err := g.approvals.Decide(ctx, id, status, reason); err != nil {
		return nil, mapRepoError(err)
	}

	approval, err := g.approvals.Get(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}

	g.mirror(approval)
	payload, _ := json.Marshal(models.DecisionPayload{DecidedBy: decidedBy, Reason: reason})
	g.appendEvent(ctx, eventType, id, payload)

	g.logger.Info().
		Str("approval_id", id).
		Str("status", string(status)).
		Str("decided_by", decidedBy).
		Msg("approval decided")
	return approval, nil
}

// Execute runs the single permitted execution attempt for an approved
// approval. The executing marker is written before the watcher is invoked,
// so a crash in between surfaces as a stuck record instead of a re-run.
func (g *Gateway) Execute(ctx context.Context, id string) (models.ExecutionResult, error) {
	if err := g.approvals.MarkExecuting(ctx, id); err != nil {
		return models.ExecutionResult{}, mapRepoError(err)
	}

	approval, err := g.approvals.Get(ctx, id)
	if err != nil {
		return models.ExecutionResult{}, mapRepoError(err)
	}

	watcher := g.watcherFor(approval.ActionType)
	if watcher == nil {
		result := models.ExecutionResult{
			Success: false,
			Error:   fmt.Sprintf("no watcher for action type %s", approval.ActionType),
		}
		g.finish(ctx, approval, result)
		return result, ErrNoWatcher
	}

	result, execErr := watcher.Execute(ctx, approval)
	if execErr != nil {
		result = models.ExecutionResult{Success: false, Error: execErr.Error()}
	}
	g.finish(ctx, approval, result)
	return result, nil
}

func (g *Gateway) finish(ctx context.Context, approval *models.Approval, result models.ExecutionResult) {
	status := models.ExecutionStatusFailed
	if result.Success {
		status = models.ExecutionStatusSuccess
	}

	data, _ := json.Marshal(result)
	if err := g.approvals.FinishExecution(ctx, approval.ID, status, data); err != nil {
		g.logger.Error().Err(err).Str("approval_id", approval.ID).Msg("failed to record execution result")
		return
	}

	approval.ExecutionStatus = status
	approval.ExecutionData = data
	g.mirror(approval)

	payload, _ := json.Marshal(models.ExecutedPayload{Status: status, Error: result.Error})
	g.appendEvent(ctx, models.EventTypeApprovalExecuted, approval.ID, payload)

	g.logger.Info().
		Str("approval_id", approval.ID).
		Str("execution_status", string(status)).
		Msg("approval executed")
}

// Get returns a single approval.
func (g *Gateway) Get(ctx context.Context, id string) (*models.Approval, error) {
	approval, err := g.approvals.Get(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return approval, nil
}

// ListPending lists pending approvals for a user (all users if empty).
func (g *Gateway) ListPending(ctx context.Context, userID string) ([]*models.Approval, error) {
	return g.approvals.ListPending(ctx, userID)
}

// SyncVaultDecisions applies decisions made by moving artifacts in the
// vault. Artifacts for already-decided approvals are ignored; the database
// remains authoritative.
func (g *Gateway) SyncVaultDecisions(ctx context.Context) error {
	if g.vault == nil {
		return nil
	}
	decisions, err := g.vault.ScanDecisions()
	if err != nil {
		return err
	}
	for _, decision := range decisions {
		approval, err := g.approvals.Get(ctx, decision.ApprovalID)
		if err != nil {
			if errors.Is(err, db.ErrApprovalNotFound) {
				continue
			}
			return err
		}
		if approval.Status != models.ApprovalStatusPending {
			continue
		}
		approve := decision.Status == models.ApprovalStatusApproved
		if _, err := g.Decide(ctx, decision.ApprovalID, approve, "decided via vault", "vault"); err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				continue
			}
			return err
		}
		if !approve {
			continue
		}
		// An approval decided through the vault gets the same treatment
		// as one approved over HTTP or the CLI: execute it now.
		if _, err := g.Execute(ctx, decision.ApprovalID); err != nil {
			g.logger.Warn().Err(err).Str("approval_id", decision.ApprovalID).Msg("vault-approved execution failed")
		}
	}
	return nil
}

// stuckExecutionAge is how long an approval may sit in executing before
// it is reported as stuck. Stuck approvals are surfaced for operator
// review, never retried automatically.
const stuckExecutionAge = 10 * time.Minute

// ReportStuckExecutions logs approvals that have been executing for
// longer than stuckExecutionAge.
func (g *Gateway) ReportStuckExecutions(ctx context.Context) error {
	stuck, err := g.approvals.ListStuckExecuting(ctx, time.Now().Add(-stuckExecutionAge))
	if err != nil {
		return err
	}
	for _, approval := range stuck {
		g.logger.Warn().
			Str("approval_id", approval.ID).
			Str("action_type", string(approval.ActionType)).
			Msg("approval stuck in executing; manual review required")
	}
	return nil
}

// SyncLoop polls the vault for out-of-band decisions until ctx is done.
// Each tick also reports executions that appear stuck.
func (g *Gateway) SyncLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := g.SyncVaultDecisions(ctx); err != nil {
				g.logger.Warn().Err(err).Msg("vault decision sync failed")
			}
			if err := g.ReportStuckExecutions(ctx); err != nil {
				g.logger.Warn().Err(err).Msg("stuck execution scan failed")
			}
		}
	}
}

func (g *Gateway) watcherFor(actionType models.ActionType) Watcher {
	for _, watcher := range g.watchers {
		if watcher.CanHandle(actionType) {
			return watcher
		}
	}
	return nil
}

// mirror updates the vault artifact best-effort. A mirror failure never
// blocks the authoritative record.
func (g *Gateway) mirror(approval *models.Approval) {
	if g.vault == nil {
		return
	}
	if err := g.vault.WriteApproval(approval); err != nil {
		g.logger.Warn().Err(err).Str("approval_id", approval.ID).Msg("vault mirror failed")
	}
}

func (g *Gateway) appendEvent(ctx context.Context, eventType models.EventType, approvalID string, payload json.RawMessage) {
	if g.events == nil {
		return
	}
	err := g.events.Append(ctx, &models.Event{
		Type:       eventType,
		EntityType: models.EntityTypeApproval,
		EntityID:   approvalID,
		Payload:    payload,
	})
	if err != nil {
		g.logger.Warn().Err(err).Msg("failed to append event")
	}
}

func mapRepoError(err error) error {
	switch {
	case errors.Is(err, db.ErrApprovalNotFound):
		return ErrNotFound
	case errors.Is(err, db.ErrApprovalDecided):
		return ErrInvalidTransition
	case errors.Is(err, db.ErrApprovalNotActive):
		return ErrNotApproved
	case errors.Is(err, db.ErrApprovalExecuting):
		return ErrAlreadyExecuting
	case errors.Is(err, db.ErrApprovalTerminal):
		return ErrAlreadyTerminal
	default:
		return err
	}
}
