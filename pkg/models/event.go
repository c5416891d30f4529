package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// State event types
const (
	EventStateChanged  = "state_changed"
	EventEntityRemoved = "entity_removed"
)

// StateEvent is one entity state change published on the state stream
type StateEvent struct {
	Type      string    `json:"type" validate:"oneof=state_changed entity_removed"`
	EntityID  string    `json:"entity_id" validate:"required"`
	State     string    `json:"state"`
	ChangedAt time.Time `json:"changed_at"`
}

// ParseStateEvent decodes and validates a JSON state event. A missing type
// means state_changed.
func ParseStateEvent(payload []byte) (*StateEvent, error) {
	var event StateEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state event: %w", err)
	}
	if event.Type == "" {
		event.Type = EventStateChanged
	}

	if err := validate.Struct(&event); err != nil {
		return nil, fmt.Errorf("invalid state event: %w", err)
	}
	return &event, nil
}
