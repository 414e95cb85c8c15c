package models

import "time"

// EntityRef identifies the CRM entity an event is about, together with
// its state snapshot at the time the event was published.
type EntityRef struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Snapshot map[string]any `json:"snapshot,omitempty"`
}

// DomainEvent is the inbound event contract published by the CRM CRUD
// layer whenever a tracked entity changes, or by the scheduler on a
// time-based tick.
type DomainEvent struct {
	ID         string         `json:"id"`
	Type       TriggerType    `json:"type"`
	Entity     EntityRef      `json:"entity"`
	Payload    map[string]any `json:"payload,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// PayloadString returns a payload field as a string, with ok=false when
// missing or not a string.
func (e *DomainEvent) PayloadString(key string) (string, bool) {
	if e.Payload == nil {
		return "", false
	}

	v, exists := e.Payload[key]
	if !exists {
		return "", false
	}

	s, ok := v.(string)

	return s, ok
}

// PayloadNumber returns a payload field as a float64, with ok=false when
// missing or not numeric.
func (e *DomainEvent) PayloadNumber(key string) (float64, bool) {
	if e.Payload == nil {
		return 0, false
	}

	switch v := e.Payload[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
