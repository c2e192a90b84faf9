package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"aide/internal/models"
)

// Approval repository errors.
var (
	ErrApprovalNotFound  = errors.New("approval not found")
	ErrApprovalDecided   = errors.New("approval already decided")
	ErrApprovalNotActive = errors.New("approval is not approved")
	ErrApprovalExecuting = errors.New("approval execution already in progress")
	ErrApprovalTerminal  = errors.New("approval execution already recorded")
)

// ApprovalRepository handles approval persistence.
type ApprovalRepository struct {
	db *DB
}

// NewApprovalRepository creates a new ApprovalRepository.
func NewApprovalRepository(db *DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// Create adds a new approval request to the database.
func (r *ApprovalRepository) Create(ctx context.Context, approval *models.Approval) error {
	if err := approval.Validate(); err != nil {
		return fmt.Errorf("invalid approval: %w", err)
	}

	if approval.ID == "" {
		approval.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	approval.RequestedAt = now
	if approval.Status == "" {
		approval.Status = models.ApprovalStatusPending
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO approvals (
			id, user_id, action_type, action_data_json,
			status, execution_status, requested_at, responded_at,
			rejection_reason, executed_at, execution_data_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		approval.ID,
		approval.UserID,
		string(approval.ActionType),
		string(approval.ActionData),
		string(approval.Status),
		string(approval.ExecutionStatus),
		approval.RequestedAt.Format(time.RFC3339),
		stringTimePtr(approval.RespondedAt),
		approval.RejectionReason,
		stringTimePtr(approval.ExecutedAt),
		string(approval.ExecutionData),
	)
	if err != nil {
		return fmt.Errorf("failed to insert approval: %w", err)
	}

	return nil
}

// Get returns a single approval by id.
func (r *ApprovalRepository) Get(ctx context.Context, id string) (*models.Approval, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT
			id, user_id, action_type, action_data_json,
			status, execution_status, requested_at, responded_at,
			rejection_reason, executed_at, execution_data_json
		FROM approvals
		WHERE id = ?
	`, id)
	approval, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrApprovalNotFound
	}
	return approval, err
}

// ListPending lists pending approvals for a user, oldest first. An empty
// userID lists pending approvals for all users.
func (r *ApprovalRepository) ListPending(ctx context.Context, userID string) ([]*models.Approval, error) {
	query := `
		SELECT
			id, user_id, action_type, action_data_json,
			status, execution_status, requested_at, responded_at,
			rejection_reason, executed_at, execution_data_json
		FROM approvals
		WHERE status = 'pending'
	`
	args := []any{}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY requested_at`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query approvals: %w", err)
	}
	defer rows.Close()

	var approvals []*models.Approval
	for rows.Next() {
		approval, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		approvals = append(approvals, approval)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating approvals: %w", err)
	}
	return approvals, nil
}

// Decide records the human decision. Returns ErrApprovalDecided if the
// approval is no longer pending.
func (r *ApprovalRepository) Decide(ctx context.Context, id string, status models.ApprovalStatus, reason string) error {
	if !status.Terminal() {
		return fmt.Errorf("decision status must be approved or rejected, got %q", status)
	}

	now := time.Now().UTC().Format(time.RFC3339)

	return r.db.TransactionWithRetry(ctx, 0, 0, func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx, `SELECT status FROM approvals WHERE id = ?`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrApprovalNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read approval status: %w", err)
		}
		if models.ApprovalStatus(current).Terminal() {
			return ErrApprovalDecided
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE approvals
			SET status = ?, responded_at = ?, rejection_reason = ?
			WHERE id = ?
		`, string(status), now, reason, id); err != nil {
			return fmt.Errorf("failed to update approval: %w", err)
		}
		return nil
	})
}

// MarkExecuting transitions execution_status from empty to executing.
// The marker is written before any external side effect is attempted, so a
// crash between marking and execution surfaces as a stuck record rather
// than a silent re-run.
func (r *ApprovalRepository) MarkExecuting(ctx context.Context, id string) error {
	return r.db.TransactionWithRetry(ctx, 0, 0, func(tx *sql.Tx) error {
		var status, executionStatus string
		err := tx.QueryRowContext(ctx,
			`SELECT status, execution_status FROM approvals WHERE id = ?`, id,
		).Scan(&status, &executionStatus)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrApprovalNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read approval: %w", err)
		}

		switch models.ExecutionStatus(executionStatus) {
		case models.ExecutionStatusExecuting:
			return ErrApprovalExecuting
		case models.ExecutionStatusSuccess, models.ExecutionStatusFailed:
			return ErrApprovalTerminal
		}
		if models.ApprovalStatus(status) != models.ApprovalStatusApproved {
			return ErrApprovalNotActive
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE approvals SET execution_status = ? WHERE id = ?
		`, string(models.ExecutionStatusExecuting), id); err != nil {
			return fmt.Errorf("failed to mark approval executing: %w", err)
		}
		return nil
	})
}

// FinishExecution records the terminal execution result for an approval
// previously marked executing.
func (r *ApprovalRepository) FinishExecution(ctx context.Context, id string, status models.ExecutionStatus, data json.RawMessage) error {
	if !status.Terminal() {
		return fmt.Errorf("execution status must be success or failed, got %q", status)
	}

	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx, `
		UPDATE approvals
		SET execution_status = ?, executed_at = ?, execution_data_json = ?
		WHERE id = ? AND execution_status = ?
	`, string(status), now, string(data), id, string(models.ExecutionStatusExecuting))
	if err != nil {
		return fmt.Errorf("failed to finish approval execution: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrApprovalNotFound
	}
	return nil
}

// ListStuckExecuting lists approvals marked executing before the cutoff.
// These are surfaced to an operator; the core never auto-retries them.
func (r *ApprovalRepository) ListStuckExecuting(ctx context.Context, cutoff time.Time) ([]*models.Approval, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			id, user_id, action_type, action_data_json,
			status, execution_status, requested_at, responded_at,
			rejection_reason, executed_at, execution_data_json
		FROM approvals
		WHERE execution_status = 'executing' AND responded_at < ?
		ORDER BY responded_at
	`, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to query stuck approvals: %w", err)
	}
	defer rows.Close()

	var approvals []*models.Approval
	for rows.Next() {
		approval, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		approvals = append(approvals, approval)
	}
	return approvals, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApproval(row rowScanner) (*models.Approval, error) {
	var approval models.Approval
	var actionType, status, executionStatus, requestedAt string
	var actionData, respondedAt, rejectionReason, executedAt, executionData sql.NullString

	if err := row.Scan(
		&approval.ID,
		&approval.UserID,
		&actionType,
		&actionData,
		&status,
		&executionStatus,
		&requestedAt,
		&respondedAt,
		&rejectionReason,
		&executedAt,
		&executionData,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan approval: %w", err)
	}

	approval.ActionType = models.ActionType(actionType)
	approval.Status = models.ApprovalStatus(status)
	approval.ExecutionStatus = models.ExecutionStatus(executionStatus)

	if actionData.Valid && actionData.String != "" {
		approval.ActionData = json.RawMessage(actionData.String)
	}
	if executionData.Valid && executionData.String != "" {
		approval.ExecutionData = json.RawMessage(executionData.String)
	}
	if rejectionReason.Valid {
		approval.RejectionReason = rejectionReason.String
	}

	requested, err := time.Parse(time.RFC3339, requestedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse requested_at: %w", err)
	}
	approval.RequestedAt = requested

	if approval.RespondedAt, err = parseTimePtr(respondedAt); err != nil {
		return nil, fmt.Errorf("failed to parse responded_at: %w", err)
	}
	if approval.ExecutedAt, err = parseTimePtr(executedAt); err != nil {
		return nil, fmt.Errorf("failed to parse executed_at: %w", err)
	}

	return &approval, nil
}

func stringTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
