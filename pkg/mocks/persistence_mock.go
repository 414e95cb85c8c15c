package mocks

import (
	"context"
	"time"

	"github.com/casaflow/casaflow/pkg/models"
	"github.com/casaflow/casaflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of persistence.Persistence.
type MockPersistence struct {
	mock.Mock
}

func (m *MockPersistence) Automations(ctx context.Context, opts persistence.ListOptions) ([]*models.Automation, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Automation), args.Error(1)
}

func (m *MockPersistence) AutomationByID(ctx context.Context, id string) (*models.Automation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Automation), args.Error(1)
}

func (m *MockPersistence) ActiveAutomationsByTrigger(ctx context.Context, triggerType models.TriggerType) ([]*models.Automation, error) {
	args := m.Called(ctx, triggerType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Automation), args.Error(1)
}

func (m *MockPersistence) SaveAutomation(ctx context.Context, automation *models.Automation) error {
	args := m.Called(ctx, automation)

	return args.Error(0)
}

func (m *MockPersistence) DeleteAutomation(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockPersistence) Workflows(ctx context.Context, opts persistence.ListOptions) ([]*models.Workflow, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockPersistence) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockPersistence) ActiveWorkflowsByTrigger(ctx context.Context, triggerType models.TriggerType) ([]*models.Workflow, error) {
	args := m.Called(ctx, triggerType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockPersistence) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockPersistence) DeleteWorkflow(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockPersistence) EnrollmentByID(ctx context.Context, id string) (*models.SequenceEnrollment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.SequenceEnrollment), args.Error(1)
}

func (m *MockPersistence) ActiveEnrollment(ctx context.Context, workflowID, entityID string) (*models.SequenceEnrollment, error) {
	args := m.Called(ctx, workflowID, entityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.SequenceEnrollment), args.Error(1)
}

func (m *MockPersistence) EnrollmentsForEntity(ctx context.Context, entityID string) ([]*models.SequenceEnrollment, error) {
	args := m.Called(ctx, entityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.SequenceEnrollment), args.Error(1)
}

func (m *MockPersistence) SaveEnrollment(ctx context.Context, enrollment *models.SequenceEnrollment) error {
	args := m.Called(ctx, enrollment)

	return args.Error(0)
}

func (m *MockPersistence) UpdateEnrollmentVersioned(ctx context.Context, enrollment *models.SequenceEnrollment) error {
	args := m.Called(ctx, enrollment)

	return args.Error(0)
}

func (m *MockPersistence) DueEnrollments(ctx context.Context, now time.Time, limit int) ([]*models.SequenceEnrollment, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.SequenceEnrollment), args.Error(1)
}

func (m *MockPersistence) RecordExecution(ctx context.Context, record *models.ExecutionRecord) error {
	args := m.Called(ctx, record)

	return args.Error(0)
}

func (m *MockPersistence) Executions(ctx context.Context, query persistence.ExecutionQuery) ([]*models.ExecutionRecord, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ExecutionRecord), args.Error(1)
}

func (m *MockPersistence) ExecutionStats(ctx context.Context, parentID string, since time.Time) (*models.ExecutionStats, error) {
	args := m.Called(ctx, parentID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ExecutionStats), args.Error(1)
}

func (m *MockPersistence) SaveSchedule(ctx context.Context, schedule *models.Schedule) error {
	args := m.Called(ctx, schedule)

	return args.Error(0)
}

func (m *MockPersistence) ScheduleForAutomation(ctx context.Context, automationID string) (*models.Schedule, error) {
	args := m.Called(ctx, automationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Schedule), args.Error(1)
}

func (m *MockPersistence) DeleteScheduleForAutomation(ctx context.Context, automationID string) error {
	args := m.Called(ctx, automationID)

	return args.Error(0)
}

func (m *MockPersistence) DueSchedules(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Schedule), args.Error(1)
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

var _ persistence.Persistence = (*MockPersistence)(nil)
