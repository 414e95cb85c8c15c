package sequence

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/casaflow/casaflow/pkg/actions/task"
	"github.com/casaflow/casaflow/pkg/clients"
	"github.com/casaflow/casaflow/pkg/clients/capture"
	"github.com/casaflow/casaflow/pkg/dispatcher"
	"github.com/casaflow/casaflow/pkg/models"
	"github.com/casaflow/casaflow/pkg/persistence"
	"github.com/casaflow/casaflow/pkg/persistence/file"
	"github.com/casaflow/casaflow/pkg/protocol"
	"github.com/casaflow/casaflow/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingAction struct{}

func (a *failingAction) Execute(context.Context, models.ExecutionContext, *slog.Logger) (any, error) {
	return nil, errors.New("provider rejected the request")
}

func (a *failingAction) Validate(context.Context) error { return nil }

type failingFactory struct{}

func (f *failingFactory) Create(context.Context, map[string]any) (protocol.Action, error) {
	return &failingAction{}, nil
}

func (f *failingFactory) ID() string { return "send_email" }

func (f *failingFactory) Schema() map[string]any {
	return map[string]any{"type": "object"}
}

type fixture struct {
	runner      *Runner
	persistence persistence.Persistence
	recorder    *capture.Recorder
}

func newFixture(t *testing.T, failEmail bool) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	recorder := capture.NewRecorder()

	reg := registry.NewRegistry(logger)
	reg.RegisterAction(task.NewFactory(recorder))

	if failEmail {
		reg.RegisterAction(&failingFactory{})
	}

	p := file.NewPersistence(t.TempDir())
	d := dispatcher.NewDispatcher(reg, logger, dispatcher.WithRetry(1, time.Millisecond))

	return &fixture{
		runner:      NewRunner(p, d, recorder, nil, logger, "test-worker"),
		persistence: p,
		recorder:    recorder,
	}
}

func taskStep(name string, delayDays int64, required bool) models.WorkflowStep {
	return models.WorkflowStep{
		Name:      name,
		DelayDays: delayDays,
		Required:  required,
		Actions: []models.ActionItem{
			{Type: "create_task", Parameters: map[string]any{"title": "Call {{entity.first_name}}"}},
		},
	}
}

func saveWorkflow(t *testing.T, p persistence.Persistence, steps ...models.WorkflowStep) *models.Workflow {
	t.Helper()

	workflow := &models.Workflow{
		ID:          "wf-1",
		Name:        "Buyer onboarding",
		TriggerType: models.TriggerClientStatusChange,
		Steps:       steps,
		IsActive:    true,
	}
	require.NoError(t, p.SaveWorkflow(context.Background(), workflow))

	return workflow
}

func saveEnrollment(t *testing.T, p persistence.Persistence, status models.EnrollmentStatus, stepsCompleted int) *models.SequenceEnrollment {
	t.Helper()

	now := time.Now().UTC()
	enrollment := &models.SequenceEnrollment{
		ID:             "enr-1",
		WorkflowID:     "wf-1",
		EntityID:       "c1",
		EntityType:     "client",
		StepsCompleted: stepsCompleted,
		Status:         status,
		NextStepAt:     &now,
		Version:        1,
	}
	require.NoError(t, p.SaveEnrollment(context.Background(), enrollment))

	return enrollment
}

func TestRunStepExecutesAndAdvances(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.recorder.Entities["client/c1"] = map[string]any{"first_name": "Ana"}

	saveWorkflow(t, f.persistence, taskStep("intro task", 0, false), taskStep("followup task", 2, false))
	saveEnrollment(t, f.persistence, models.EnrollmentActive, 0)

	require.NoError(t, f.runner.RunStep(ctx, "enr-1"))

	calls := f.recorder.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "create_task", calls[0].Operation)
	assert.Equal(t, "Call Ana", calls[0].Detail.(clients.Task).Title)

	enrollment, err := f.persistence.EnrollmentByID(ctx, "enr-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentActive, enrollment.Status)
	assert.Equal(t, 1, enrollment.StepsCompleted)
	assert.EqualValues(t, 2, enrollment.Version)
	require.NotNil(t, enrollment.NextStepAt)
	assert.WithinDuration(t, time.Now().UTC().Add(48*time.Hour), *enrollment.NextStepAt, time.Minute)

	records, err := f.persistence.Executions(ctx, persistence.ExecutionQuery{WorkflowID: "wf-1"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.ExecutionSuccess, records[0].Status)
	assert.Equal(t, "enr-1", records[0].EnrollmentID)
}

func TestRunStepCompletesEnrollmentAfterLastStep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	saveWorkflow(t, f.persistence, taskStep("only step", 0, false))
	saveEnrollment(t, f.persistence, models.EnrollmentActive, 0)

	require.NoError(t, f.runner.RunStep(ctx, "enr-1"))

	enrollment, err := f.persistence.EnrollmentByID(ctx, "enr-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentCompleted, enrollment.Status)
	assert.Nil(t, enrollment.NextStepAt)
	assert.Equal(t, 1, enrollment.StepsCompleted)
}

func TestRunStepRequiredFailurePausesWithoutAdvancing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	step := models.WorkflowStep{
		Name:     "welcome email",
		Required: true,
		Actions: []models.ActionItem{
			{Type: "send_email", Parameters: map[string]any{}},
		},
	}
	saveWorkflow(t, f.persistence, step, taskStep("followup", 1, false))
	saveEnrollment(t, f.persistence, models.EnrollmentActive, 0)

	require.NoError(t, f.runner.RunStep(ctx, "enr-1"))

	enrollment, err := f.persistence.EnrollmentByID(ctx, "enr-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentPaused, enrollment.Status)
	assert.Equal(t, 0, enrollment.StepsCompleted)
	assert.Nil(t, enrollment.NextStepAt)

	records, err := f.persistence.Executions(ctx, persistence.ExecutionQuery{WorkflowID: "wf-1"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.ExecutionFailed, records[0].Status)
	assert.Contains(t, records[0].Error, "provider rejected")
}

func TestRunStepOptionalFailureAdvances(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	step := models.WorkflowStep{
		Name: "courtesy email",
		Actions: []models.ActionItem{
			{Type: "send_email", Parameters: map[string]any{}},
		},
	}
	saveWorkflow(t, f.persistence, step, taskStep("followup", 0, false))
	saveEnrollment(t, f.persistence, models.EnrollmentActive, 0)

	require.NoError(t, f.runner.RunStep(ctx, "enr-1"))

	enrollment, err := f.persistence.EnrollmentByID(ctx, "enr-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentActive, enrollment.Status)
	assert.Equal(t, 1, enrollment.StepsCompleted)
}

func TestRunStepSkipsWhenConditionsNotMet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.recorder.Entities["client/c1"] = map[string]any{"status": "Closed"}

	step := taskStep("check in", 0, false)
	step.Conditions = []models.Condition{
		{Source: models.SourceEntity, Field: "status", Operator: models.OperatorEquals, Value: "Active"},
	}
	saveWorkflow(t, f.persistence, step)
	saveEnrollment(t, f.persistence, models.EnrollmentActive, 0)

	require.NoError(t, f.runner.RunStep(ctx, "enr-1"))

	assert.Empty(t, f.recorder.Calls())

	records, err := f.persistence.Executions(ctx, persistence.ExecutionQuery{WorkflowID: "wf-1"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.ExecutionSkipped, records[0].Status)

	// A skipped step still advances the cursor and completes the run.
	enrollment, err := f.persistence.EnrollmentByID(ctx, "enr-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentCompleted, enrollment.Status)
}

func TestRunStepHonorsDelayOnRedelivery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.recorder.Entities["client/c1"] = map[string]any{"first_name": "Ana"}

	saveWorkflow(t, f.persistence, taskStep("intro task", 0, false), taskStep("followup task", 2, false))

	// The followup step's 48h delay has not elapsed. A redelivered
	// step-due event must not run it early.
	enrollment := saveEnrollment(t, f.persistence, models.EnrollmentActive, 1)
	future := time.Now().UTC().Add(48 * time.Hour)
	enrollment.NextStepAt = &future
	require.NoError(t, f.persistence.SaveEnrollment(ctx, enrollment))

	require.NoError(t, f.runner.RunStep(ctx, "enr-1"))

	assert.Empty(t, f.recorder.Calls())

	reloaded, err := f.persistence.EnrollmentByID(ctx, "enr-1")
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.StepsCompleted)
	assert.Equal(t, models.EnrollmentActive, reloaded.Status)
	require.NotNil(t, reloaded.NextStepAt)
	assert.WithinDuration(t, future, *reloaded.NextStepAt, time.Second)

	records, err := f.persistence.Executions(ctx, persistence.ExecutionQuery{WorkflowID: "wf-1"})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRunStepIgnoresInactiveEnrollments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	saveWorkflow(t, f.persistence, taskStep("step", 0, false))

	for _, status := range []models.EnrollmentStatus{models.EnrollmentPaused, models.EnrollmentCompleted, models.EnrollmentCancelled} {
		enrollment := saveEnrollment(t, f.persistence, status, 0)

		require.NoError(t, f.runner.RunStep(ctx, enrollment.ID))
		assert.Empty(t, f.recorder.Calls())
	}
}

func TestResumeReactivatesPausedEnrollment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	saveWorkflow(t, f.persistence, taskStep("step", 0, false))
	saveEnrollment(t, f.persistence, models.EnrollmentPaused, 0)

	require.NoError(t, f.runner.Resume(ctx, "enr-1"))

	enrollment, err := f.persistence.EnrollmentByID(ctx, "enr-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentActive, enrollment.Status)
	require.NotNil(t, enrollment.NextStepAt)
	assert.WithinDuration(t, time.Now().UTC(), *enrollment.NextStepAt, time.Minute)

	require.Error(t, f.runner.Resume(ctx, "enr-1"))
}

func TestCancelIsIdempotentOnTerminalEnrollments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	saveWorkflow(t, f.persistence, taskStep("step", 0, false))
	saveEnrollment(t, f.persistence, models.EnrollmentActive, 0)

	require.NoError(t, f.runner.Cancel(ctx, "enr-1"))

	enrollment, err := f.persistence.EnrollmentByID(ctx, "enr-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentCancelled, enrollment.Status)

	require.NoError(t, f.runner.Cancel(ctx, "enr-1"))
}

func TestProcessDueRunsEveryDueEnrollment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	saveWorkflow(t, f.persistence, taskStep("step", 0, false))

	past := time.Now().UTC().Add(-time.Minute)
	for _, id := range []string{"enr-a", "enr-b"} {
		require.NoError(t, f.persistence.SaveEnrollment(ctx, &models.SequenceEnrollment{
			ID:         id,
			WorkflowID: "wf-1",
			EntityID:   "c-" + id,
			EntityType: "client",
			Status:     models.EnrollmentActive,
			NextStepAt: &past,
			Version:    1,
		}))
	}

	require.NoError(t, f.runner.ProcessDue(ctx, 50))

	assert.Len(t, f.recorder.Calls(), 2)
}
