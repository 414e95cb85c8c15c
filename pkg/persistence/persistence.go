// Package persistence provides the storage abstraction for automations,
// workflows, enrollments, schedules and the execution ledger.
package persistence

import (
	"context"
	"time"

	"github.com/casaflow/casaflow/pkg/models"
)

// ListOptions controls pagination for list endpoints.
type ListOptions struct {
	Limit  int
	Offset int
}

// ExecutionQuery filters ledger reads. AutomationID and WorkflowID are
// mutually exclusive; an empty query returns the most recent records.
type ExecutionQuery struct {
	AutomationID string
	WorkflowID   string
	EntityID     string
	Status       models.ExecutionStatus
	Limit        int
	Offset       int
}

type Persistence interface {
	// Automations.
	Automations(ctx context.Context, opts ListOptions) ([]*models.Automation, error)
	AutomationByID(ctx context.Context, id string) (*models.Automation, error)
	ActiveAutomationsByTrigger(ctx context.Context, triggerType models.TriggerType) ([]*models.Automation, error)
	SaveAutomation(ctx context.Context, automation *models.Automation) error
	// DeleteAutomation removes the automation together with its schedule
	// and its ledger records.
	DeleteAutomation(ctx context.Context, id string) error

	// Workflows.
	Workflows(ctx context.Context, opts ListOptions) ([]*models.Workflow, error)
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	ActiveWorkflowsByTrigger(ctx context.Context, triggerType models.TriggerType) ([]*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
	DeleteWorkflow(ctx context.Context, id string) error

	// Enrollments.
	EnrollmentByID(ctx context.Context, id string) (*models.SequenceEnrollment, error)
	ActiveEnrollment(ctx context.Context, workflowID, entityID string) (*models.SequenceEnrollment, error)
	EnrollmentsForEntity(ctx context.Context, entityID string) ([]*models.SequenceEnrollment, error)
	SaveEnrollment(ctx context.Context, enrollment *models.SequenceEnrollment) error
	// UpdateEnrollmentVersioned persists the enrollment only when the
	// stored version still matches enrollment.Version, then increments
	// it. Returns ErrVersionConflict otherwise.
	UpdateEnrollmentVersioned(ctx context.Context, enrollment *models.SequenceEnrollment) error
	DueEnrollments(ctx context.Context, now time.Time, limit int) ([]*models.SequenceEnrollment, error)

	// Execution ledger.
	RecordExecution(ctx context.Context, record *models.ExecutionRecord) error
	Executions(ctx context.Context, query ExecutionQuery) ([]*models.ExecutionRecord, error)
	ExecutionStats(ctx context.Context, parentID string, since time.Time) (*models.ExecutionStats, error)

	// Schedules.
	SaveSchedule(ctx context.Context, schedule *models.Schedule) error
	ScheduleForAutomation(ctx context.Context, automationID string) (*models.Schedule, error)
	DeleteScheduleForAutomation(ctx context.Context, automationID string) error
	DueSchedules(ctx context.Context, now time.Time) ([]*models.Schedule, error)

	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
