package models

import (
	"encoding/json"
	"time"
)

// ApprovalStatus represents the human decision state of an approval.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// Terminal reports whether the decision can no longer change.
func (s ApprovalStatus) Terminal() bool {
	return s == ApprovalStatusApproved || s == ApprovalStatusRejected
}

// ExecutionStatus tracks the single execution attempt of an approved action.
// Empty means execution has not started.
type ExecutionStatus string

const (
	ExecutionStatusNone      ExecutionStatus = ""
	ExecutionStatusExecuting ExecutionStatus = "executing"
	ExecutionStatusSuccess   ExecutionStatus = "success"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// Terminal reports whether an execution result has been recorded.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusSuccess || s == ExecutionStatusFailed
}

// ActionType categorizes the mutating action an approval proposes.
type ActionType string

const (
	ActionTypeSendEmail      ActionType = "send_email"
	ActionTypeCreateReminder ActionType = "create_reminder"
	ActionTypeCreateTask     ActionType = "create_task"
	ActionTypeCreateEvent    ActionType = "create_event"
	ActionTypeSaveKnowledge  ActionType = "save_knowledge"
	ActionTypeRunLoop        ActionType = "run_loop"
	ActionTypeUnknown        ActionType = "unknown"
)

// Approval is a single proposed mutating action awaiting or having received
// a human decision. The database row is authoritative for execution gating;
// the vault artifact is a human-readable mirror of the same state.
type Approval struct {
	// ID is the unique identifier for the approval.
	ID string `json:"id"`

	// UserID references the user the action was proposed for.
	UserID string `json:"user_id"`

	// ActionType categorizes the proposed action.
	ActionType ActionType `json:"action_type"`

	// ActionData carries the opaque payload: intent, entities, raw text.
	ActionData json.RawMessage `json:"action_data"`

	// Status is the current decision status.
	Status ApprovalStatus `json:"status"`

	// ExecutionStatus tracks the single execution attempt. It only moves
	// while Status is approved; a rejected approval never has one.
	ExecutionStatus ExecutionStatus `json:"execution_status,omitempty"`

	// RequestedAt is when the approval was created.
	RequestedAt time.Time `json:"requested_at"`

	// RespondedAt is when the human decision was recorded.
	RespondedAt *time.Time `json:"responded_at,omitempty"`

	// RejectionReason is the optional reason supplied with a rejection.
	RejectionReason string `json:"rejection_reason,omitempty"`

	// ExecutedAt is when the execution attempt finished.
	ExecutedAt *time.Time `json:"executed_at,omitempty"`

	// ExecutionData carries the execution result payload.
	ExecutionData json.RawMessage `json:"execution_data,omitempty"`
}

// Validate checks required fields before persistence.
func (a *Approval) Validate() error {
	validation := &ValidationErrors{}
	if a.UserID == "" {
		validation.AddMessage("user_id", "user_id is required")
	}
	if a.ActionType == "" {
		validation.AddMessage("action_type", "action_type is required")
	}
	return validation.Err()
}

// ActionPayload is the shape stored in Approval.ActionData.
type ActionPayload struct {
	Intent       Intent   `json:"intent"`
	Entities     Entities `json:"entities,omitempty"`
	RawUtterance string   `json:"raw_utterance"`
}

// ActionTypeForIntent maps an intent to the action type an approval carries.
// The mapping is total; anything unmapped is ActionTypeUnknown.
func ActionTypeForIntent(intent Intent) ActionType {
	switch intent {
	case IntentSendEmail:
		return ActionTypeSendEmail
	case IntentCreateReminder:
		return ActionTypeCreateReminder
	case IntentCreateTask:
		return ActionTypeCreateTask
	case IntentCreateEvent:
		return ActionTypeCreateEvent
	case IntentSaveKnowledge:
		return ActionTypeSaveKnowledge
	case IntentStartLoop, IntentResearch:
		return ActionTypeRunLoop
	default:
		return ActionTypeUnknown
	}
}

// ExecutionResult is what a watcher reports back after performing the
// side effect for an approved action.
type ExecutionResult struct {
	Success bool            `json:"success"`
	Output  string          `json:"output,omitempty"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}
