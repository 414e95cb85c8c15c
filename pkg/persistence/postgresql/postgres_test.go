package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"
	"time"

	"github.com/casaflow/casaflow/pkg/models"
	"github.com/casaflow/casaflow/pkg/persistence"
	"github.com/casaflow/casaflow/pkg/persistence/postgresql"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Drop tables in reverse dependency order (children first, parents last)
	for _, table := range []string{"execution_records", "schedules", "sequence_enrollments", "workflows", "automations", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	t.Cleanup(cancel)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("casaflow_test"),
			postgres.WithUsername("casaflow"),
			postgres.WithPassword("casaflow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	p, err := postgresql.NewPersistence(ctx, slog.Default(), databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = p.Close(context.Background())
	})

	return p, ctx
}

func TestAutomationLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	p, ctx := setupTestDB(t)

	automation := &models.Automation{
		Name:        "Qualified stage follow up",
		TriggerType: models.TriggerDealStageChange,
		TriggerRules: map[string]any{
			"target_stage": "Qualified",
		},
		Actions: []models.ActionItem{
			{Type: models.ActionCreateTask, Parameters: map[string]any{"title": "Call the client"}},
		},
		Priority: 5,
		IsActive: true,
	}

	require.NoError(t, p.SaveAutomation(ctx, automation))
	require.NotEmpty(t, automation.ID)

	loaded, err := p.AutomationByID(ctx, automation.ID)
	require.NoError(t, err)
	assert.Equal(t, automation.Name, loaded.Name)
	assert.Equal(t, "Qualified", loaded.TriggerRules["target_stage"])
	require.Len(t, loaded.Actions, 1)

	active, err := p.ActiveAutomationsByTrigger(ctx, models.TriggerDealStageChange)
	require.NoError(t, err)
	require.Len(t, active, 1)

	require.NoError(t, p.DeleteAutomation(ctx, automation.ID))

	_, err = p.AutomationByID(ctx, automation.ID)
	assert.True(t, persistence.IsAutomationNotFound(err))
}

func TestDeleteAutomationCascadesLedgerAndSchedule(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	p, ctx := setupTestDB(t)

	automation := &models.Automation{
		Name:        "Weekly check in",
		TriggerType: models.TriggerTimeBased,
		IsActive:    true,
	}
	require.NoError(t, p.SaveAutomation(ctx, automation))

	schedule, err := models.NewSchedule("", automation.ID, "0 9 * * 1")
	require.NoError(t, err)
	require.NoError(t, p.SaveSchedule(ctx, schedule))

	require.NoError(t, p.RecordExecution(ctx, &models.ExecutionRecord{
		AutomationID: automation.ID,
		EntityID:     "client-1",
		EntityType:   "client",
		TriggerType:  models.TriggerTimeBased,
		Status:       models.ExecutionSuccess,
		DurationMs:   42,
	}))

	require.NoError(t, p.DeleteAutomation(ctx, automation.ID))

	_, err = p.ScheduleForAutomation(ctx, automation.ID)
	assert.ErrorIs(t, err, persistence.ErrScheduleNotFound)

	records, err := p.Executions(ctx, persistence.ExecutionQuery{AutomationID: automation.ID})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestEnrollmentOptimisticConcurrency(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	p, ctx := setupTestDB(t)

	workflow := &models.Workflow{
		Name:        "New client onboarding",
		TriggerType: models.TriggerClientStatusChange,
		Steps: []models.WorkflowStep{
			{Name: "Welcome email", Actions: []models.ActionItem{{Type: models.ActionSendEmail}}},
		},
		IsActive: true,
	}
	require.NoError(t, p.SaveWorkflow(ctx, workflow))

	enrollment := &models.SequenceEnrollment{
		WorkflowID: workflow.ID,
		EntityID:   "client-7",
		EntityType: "client",
		Status:     models.EnrollmentActive,
	}
	require.NoError(t, p.SaveEnrollment(ctx, enrollment))

	winner := *enrollment
	winner.StepsCompleted = 1
	require.NoError(t, p.UpdateEnrollmentVersioned(ctx, &winner))

	loser := *enrollment
	loser.StepsCompleted = 1
	err := p.UpdateEnrollmentVersioned(ctx, &loser)
	assert.True(t, persistence.IsVersionConflict(err))

	fresh, err := p.EnrollmentByID(ctx, enrollment.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.StepsCompleted)
	assert.Equal(t, winner.Version, fresh.Version)
}

func TestExecutionStats(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	p, ctx := setupTestDB(t)

	automation := &models.Automation{
		Name:        "Score alert",
		TriggerType: models.TriggerScoreThreshold,
		IsActive:    true,
	}
	require.NoError(t, p.SaveAutomation(ctx, automation))

	statuses := []models.ExecutionStatus{
		models.ExecutionSuccess,
		models.ExecutionFailed,
		models.ExecutionSkipped,
	}
	for i, status := range statuses {
		require.NoError(t, p.RecordExecution(ctx, &models.ExecutionRecord{
			AutomationID: automation.ID,
			EntityID:     "deal-1",
			EntityType:   "deal",
			TriggerType:  models.TriggerScoreThreshold,
			Status:       status,
			DurationMs:   int64(100 * (i + 1)),
		}))
	}

	stats, err := p.ExecutionStats(ctx, automation.ID, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.TotalExecutions)
	assert.Equal(t, int64(1), stats.SuccessfulExecutions)
	assert.Equal(t, int64(1), stats.FailedExecutions)
	assert.InDelta(t, 0.5, stats.SuccessRate, 0.001)
	require.NotNil(t, stats.LastExecution)
}
