package events

import (
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// EventType defines the type of event
type EventType string

const (
	EventTypeLevelReconciled EventType = "subdivisions.level.reconciled"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType     EventType `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// LevelReconciled is emitted after a level's transaction commits.
type LevelReconciled struct {
	BaseEvent
	Operation    string `json:"operation"`
	Level        string `json:"level"`
	Year         int    `json:"year"`
	Created      int    `json:"created"`
	YearExtended int    `json:"year_extended"`
	Unchanged    int    `json:"unchanged"`
	Updated      int    `json:"updated"`
	Skipped      int    `json:"skipped"`
	DataPoints   int    `json:"data_points"`
	SourceURL    string `json:"source_url"`
	Trigger      string `json:"trigger,omitempty"`
}

// NewBaseEvent creates a base event with common fields
func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		Timestamp:     time.Now().UTC(),
		CorrelationID: uuid.New().String(),
	}
}
