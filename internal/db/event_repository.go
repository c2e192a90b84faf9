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

// Event repository errors.
var (
	ErrInvalidEvent = errors.New("invalid event")
)

// EventRepository handles the append-only audit log.
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// Append adds a new event to the log. Returns ErrInvalidEvent if required
// fields are missing.
func (r *EventRepository) Append(ctx context.Context, event *models.Event) error {
	if event.Type == "" || event.EntityType == "" || event.EntityID == "" {
		return ErrInvalidEvent
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO events (id, timestamp, type, entity_type, entity_id, payload_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		event.ID,
		event.Timestamp.UTC().Format(time.RFC3339),
		string(event.Type),
		string(event.EntityType),
		event.EntityID,
		string(event.Payload),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// ListByEntity returns events for a single entity, oldest first.
func (r *EventRepository) ListByEntity(ctx context.Context, entityType models.EntityType, entityID string) ([]*models.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, timestamp, type, entity_type, entity_id, payload_json
		FROM events
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY timestamp
	`, string(entityType), entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		var event models.Event
		var timestamp, eventType, entType string
		var payload sql.NullString
		if err := rows.Scan(&event.ID, &timestamp, &eventType, &entType, &event.EntityID, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339, timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to parse event timestamp: %w", err)
		}
		event.Timestamp = parsed
		event.Type = models.EventType(eventType)
		event.EntityType = models.EntityType(entType)
		if payload.Valid && payload.String != "" {
			event.Payload = json.RawMessage(payload.String)
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}
