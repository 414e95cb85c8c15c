package services

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/casaflow/casaflow/pkg/clients/capture"
	"github.com/casaflow/casaflow/pkg/cmd"
	"github.com/casaflow/casaflow/pkg/models"
	"github.com/casaflow/casaflow/pkg/persistence"
	"github.com/casaflow/casaflow/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWorkflowService(t *testing.T) (*Workflow, persistence.Persistence) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	p := file.NewPersistence(t.TempDir())
	reg := cmd.NewRegistry(logger, capture.NewRecorder().Set())

	return NewWorkflow(p, reg, logger), p
}

func validWorkflow() *models.Workflow {
	return &models.Workflow{
		Name:        "Buyer onboarding",
		TriggerType: models.TriggerClientStatusChange,
		IsActive:    true,
		Steps: []models.WorkflowStep{
			{
				Name:      "welcome task",
				DelayDays: 1,
				Actions: []models.ActionItem{
					{Type: "create_task", Parameters: map[string]any{"title": "Welcome call"}},
				},
			},
		},
	}
}

func TestWorkflowSaveAssignsID(t *testing.T) {
	s, _ := newWorkflowService(t)

	saved, err := s.Save(context.Background(), validWorkflow())
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)

	loaded, err := s.Get(context.Background(), saved.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.Steps, 1)
}

func TestWorkflowSaveRejectsActiveWithoutStepActions(t *testing.T) {
	s, _ := newWorkflowService(t)

	workflow := validWorkflow()
	workflow.Steps = []models.WorkflowStep{{Name: "empty step"}}

	_, err := s.Save(context.Background(), workflow)
	assert.ErrorIs(t, err, ErrStepsRequired)
}

func TestWorkflowSaveValidatesStepDetail(t *testing.T) {
	s, _ := newWorkflowService(t)

	workflow := validWorkflow()
	workflow.Steps[0].Conditions = []models.Condition{
		{Source: "weather", Field: "status", Operator: models.OperatorEquals},
	}

	_, err := s.Save(context.Background(), workflow)
	assert.ErrorIs(t, err, ErrUnknownConditionSource)

	workflow = validWorkflow()
	workflow.Steps[0].Actions = []models.ActionItem{
		{Type: "send_email", Parameters: map[string]any{}},
	}

	_, err = s.Save(context.Background(), workflow)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestWorkflowDeleteRemovesEnrollments(t *testing.T) {
	ctx := context.Background()
	s, p := newWorkflowService(t)

	saved, err := s.Save(ctx, validWorkflow())
	require.NoError(t, err)

	require.NoError(t, p.SaveEnrollment(ctx, &models.SequenceEnrollment{
		ID:         "enr-1",
		WorkflowID: saved.ID,
		EntityID:   "c1",
		EntityType: "client",
		Status:     models.EnrollmentActive,
		Version:    1,
	}))

	require.NoError(t, s.Delete(ctx, saved.ID))

	_, err = s.Get(ctx, saved.ID)
	assert.True(t, persistence.IsWorkflowNotFound(err))

	enrollments, err := s.Enrollments(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, enrollments)
}
