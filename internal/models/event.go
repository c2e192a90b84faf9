package models

import (
	"encoding/json"
	"time"
)

// EventType categorizes events in the system.
type EventType string

const (
	// Message events
	EventTypeMessageClassified EventType = "message.classified"

	// Approval events
	EventTypeApprovalRequested EventType = "approval.requested"
	EventTypeApprovalApproved  EventType = "approval.approved"
	EventTypeApprovalRejected  EventType = "approval.rejected"
	EventTypeApprovalExecuted  EventType = "approval.executed"

	// Task events
	EventTypeTaskStarted   EventType = "task.started"
	EventTypeTaskIteration EventType = "task.iteration"
	EventTypeTaskCompleted EventType = "task.completed"
	EventTypeTaskFailed    EventType = "task.failed"
	EventTypeTaskStopped   EventType = "task.stopped"

	// System events
	EventTypeError   EventType = "error"
	EventTypeWarning EventType = "warning"
)

// EntityType identifies the type of entity an event relates to.
type EntityType string

const (
	EntityTypeApproval EntityType = "approval"
	EntityTypeTask     EntityType = "task"
	EntityTypeMessage  EntityType = "message"
	EntityTypeSystem   EntityType = "system"
)

// Event represents an append-only audit log entry.
type Event struct {
	// ID is the unique identifier for the event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// EntityType identifies what kind of entity this event relates to.
	EntityType EntityType `json:"entity_type"`

	// EntityID is the ID of the related entity.
	EntityID string `json:"entity_id"`

	// Payload contains event-specific data.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ClassifiedPayload is the payload for message.classified events.
type ClassifiedPayload struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// DecisionPayload is the payload for approval.approved/rejected events.
type DecisionPayload struct {
	DecidedBy string `json:"decided_by"`
	Reason    string `json:"reason,omitempty"`
}

// ExecutedPayload is the payload for approval.executed events.
type ExecutedPayload struct {
	Status ExecutionStatus `json:"status"`
	Error  string          `json:"error,omitempty"`
}

// TaskTerminalPayload is the payload for terminal task events.
type TaskTerminalPayload struct {
	IterationCount int    `json:"iteration_count"`
	Error          string `json:"error,omitempty"`
}
