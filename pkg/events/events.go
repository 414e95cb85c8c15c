// Package events defines the event types exchanged between the API,
// the scheduler and the worker.
package events

import (
	"time"

	"github.com/casaflow/casaflow/pkg/models"
)

type EventType string

// Kafka topics.
const CRMTopic = "casaflow.crm.events"       // Inbound domain events from the CRM
const EngineTopic = "casaflow.engine.events" // Engine lifecycle events

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Inbound contract.
	DomainEventReceivedType EventType = "crm.event.received"

	// Automation lifecycle events.
	AutomationTriggeredEvent EventType = "automation.triggered"
	AutomationCompletedEvent EventType = "automation.completed"
	AutomationFailedEvent    EventType = "automation.failed"

	// Enrollment lifecycle events.
	EnrollmentStepDueEvent       EventType = "enrollment.step.due"
	EnrollmentStepCompletedEvent EventType = "enrollment.step.completed"
	EnrollmentPausedEvent        EventType = "enrollment.paused"
	EnrollmentCompletedEvent     EventType = "enrollment.completed"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// DomainEventReceived wraps an inbound CRM event for transport. The
// scheduler also emits these for due time_based schedules.
type DomainEventReceived struct {
	BaseEvent

	Event models.DomainEvent `json:"event"`
}

func (d DomainEventReceived) GetType() EventType {
	return DomainEventReceivedType
}

type AutomationTriggered struct {
	BaseEvent

	AutomationID string             `json:"automation_id"`
	ExecutionID  string             `json:"execution_id"`
	Event        models.DomainEvent `json:"event"`
}

func (a AutomationTriggered) GetType() EventType {
	return AutomationTriggeredEvent
}

type AutomationCompleted struct {
	BaseEvent

	AutomationID string                 `json:"automation_id"`
	ExecutionID  string                 `json:"execution_id"`
	EntityID     string                 `json:"entity_id"`
	Status       models.ExecutionStatus `json:"status"`
	DurationMs   int64                  `json:"duration_ms"`
}

func (a AutomationCompleted) GetType() EventType {
	return AutomationCompletedEvent
}

type AutomationFailed struct {
	BaseEvent

	AutomationID string `json:"automation_id"`
	ExecutionID  string `json:"execution_id"`
	EntityID     string `json:"entity_id"`
	Error        string `json:"error"`
	DurationMs   int64  `json:"duration_ms"`
}

func (a AutomationFailed) GetType() EventType {
	return AutomationFailedEvent
}

// EnrollmentStepDue tells a worker that an enrollment's delay elapsed
// and the next step should run.
type EnrollmentStepDue struct {
	BaseEvent

	EnrollmentID string `json:"enrollment_id"`
	WorkflowID   string `json:"workflow_id"`
	EntityID     string `json:"entity_id"`
	StepIndex    int    `json:"step_index"`
}

func (e EnrollmentStepDue) GetType() EventType {
	return EnrollmentStepDueEvent
}

type EnrollmentStepCompleted struct {
	BaseEvent

	EnrollmentID string                 `json:"enrollment_id"`
	WorkflowID   string                 `json:"workflow_id"`
	EntityID     string                 `json:"entity_id"`
	StepIndex    int                    `json:"step_index"`
	StepName     string                 `json:"step_name"`
	Status       models.ExecutionStatus `json:"status"`
}

func (e EnrollmentStepCompleted) GetType() EventType {
	return EnrollmentStepCompletedEvent
}

type EnrollmentPaused struct {
	BaseEvent

	EnrollmentID string `json:"enrollment_id"`
	WorkflowID   string `json:"workflow_id"`
	EntityID     string `json:"entity_id"`
	StepIndex    int    `json:"step_index"`
	Reason       string `json:"reason"`
}

func (e EnrollmentPaused) GetType() EventType {
	return EnrollmentPausedEvent
}

type EnrollmentCompleted struct {
	BaseEvent

	EnrollmentID string `json:"enrollment_id"`
	WorkflowID   string `json:"workflow_id"`
	EntityID     string `json:"entity_id"`
	StepsRun     int    `json:"steps_run"`
}

func (e EnrollmentCompleted) GetType() EventType {
	return EnrollmentCompletedEvent
}
