package file

import (
	"context"
	"testing"
	"time"

	"github.com/casaflow/casaflow/pkg/models"
	"github.com/casaflow/casaflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPersistence(t *testing.T) persistence.Persistence {
	t.Helper()

	return NewPersistence(t.TempDir())
}

func TestAutomationRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)

	automation := &models.Automation{
		ID:          "auto-1",
		Name:        "Stage change follow up",
		TriggerType: models.TriggerDealStageChange,
		Actions:     []models.ActionItem{{Type: models.ActionCreateTask}},
		IsActive:    true,
	}

	require.NoError(t, p.SaveAutomation(ctx, automation))

	loaded, err := p.AutomationByID(ctx, "auto-1")
	require.NoError(t, err)
	assert.Equal(t, automation.Name, loaded.Name)
	assert.False(t, loaded.CreatedAt.IsZero())

	_, err = p.AutomationByID(ctx, "missing")
	assert.True(t, persistence.IsAutomationNotFound(err))
}

func TestAutomationsSortedByPriority(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)

	older := time.Now().UTC().Add(-time.Hour)

	require.NoError(t, p.SaveAutomation(ctx, &models.Automation{
		ID: "low", Name: "Low priority", TriggerType: models.TriggerManual, Priority: 10,
	}))
	require.NoError(t, p.SaveAutomation(ctx, &models.Automation{
		ID: "tie-old", Name: "Old tie", TriggerType: models.TriggerManual, Priority: 5, CreatedAt: older,
	}))
	require.NoError(t, p.SaveAutomation(ctx, &models.Automation{
		ID: "tie-new", Name: "New tie", TriggerType: models.TriggerManual, Priority: 5,
	}))

	automations, err := p.Automations(ctx, persistence.ListOptions{})
	require.NoError(t, err)
	require.Len(t, automations, 3)

	assert.Equal(t, "tie-old", automations[0].ID)
	assert.Equal(t, "tie-new", automations[1].ID)
	assert.Equal(t, "low", automations[2].ID)
}

func TestActiveAutomationsByTriggerFilters(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)

	require.NoError(t, p.SaveAutomation(ctx, &models.Automation{
		ID: "a", Name: "Stage watcher", TriggerType: models.TriggerDealStageChange, IsActive: true,
	}))
	require.NoError(t, p.SaveAutomation(ctx, &models.Automation{
		ID: "b", Name: "Disabled watcher", TriggerType: models.TriggerDealStageChange, IsActive: false,
	}))
	require.NoError(t, p.SaveAutomation(ctx, &models.Automation{
		ID: "c", Name: "Score watcher", TriggerType: models.TriggerScoreThreshold, IsActive: true,
	}))

	matching, err := p.ActiveAutomationsByTrigger(ctx, models.TriggerDealStageChange)
	require.NoError(t, err)
	require.Len(t, matching, 1)
	assert.Equal(t, "a", matching[0].ID)
}

func TestDeleteAutomationCascades(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)

	require.NoError(t, p.SaveAutomation(ctx, &models.Automation{
		ID: "auto-2", Name: "Weekly digest", TriggerType: models.TriggerTimeBased,
	}))

	schedule, err := models.NewSchedule("sched-1", "auto-2", "0 9 * * 1")
	require.NoError(t, err)
	require.NoError(t, p.SaveSchedule(ctx, schedule))

	require.NoError(t, p.RecordExecution(ctx, &models.ExecutionRecord{
		ID: "exec-1", AutomationID: "auto-2", EntityID: "deal-1", Status: models.ExecutionSuccess,
	}))

	require.NoError(t, p.DeleteAutomation(ctx, "auto-2"))

	_, err = p.AutomationByID(ctx, "auto-2")
	assert.True(t, persistence.IsAutomationNotFound(err))

	_, err = p.ScheduleForAutomation(ctx, "auto-2")
	assert.ErrorIs(t, err, persistence.ErrScheduleNotFound)

	records, err := p.Executions(ctx, persistence.ExecutionQuery{AutomationID: "auto-2"})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestEnrollmentVersionedUpdate(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)

	enrollment := &models.SequenceEnrollment{
		ID:         "enr-1",
		WorkflowID: "wf-1",
		EntityID:   "client-1",
		Status:     models.EnrollmentActive,
		Version:    1,
	}
	require.NoError(t, p.SaveEnrollment(ctx, enrollment))

	first := *enrollment
	first.StepsCompleted = 1
	require.NoError(t, p.UpdateEnrollmentVersioned(ctx, &first))
	assert.Equal(t, int64(2), first.Version)

	// A second writer still holding version 1 loses the race.
	stale := *enrollment
	stale.StepsCompleted = 1
	err := p.UpdateEnrollmentVersioned(ctx, &stale)
	assert.True(t, persistence.IsVersionConflict(err))
}

func TestDueEnrollments(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)

	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	require.NoError(t, p.SaveEnrollment(ctx, &models.SequenceEnrollment{
		ID: "due", WorkflowID: "wf-1", EntityID: "c1", Status: models.EnrollmentActive, NextStepAt: &past,
	}))
	require.NoError(t, p.SaveEnrollment(ctx, &models.SequenceEnrollment{
		ID: "later", WorkflowID: "wf-1", EntityID: "c2", Status: models.EnrollmentActive, NextStepAt: &future,
	}))
	require.NoError(t, p.SaveEnrollment(ctx, &models.SequenceEnrollment{
		ID: "paused", WorkflowID: "wf-1", EntityID: "c3", Status: models.EnrollmentPaused, NextStepAt: &past,
	}))

	due, err := p.DueEnrollments(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "due", due[0].ID)
}

func TestExecutionStatsAggregation(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)

	started := time.Now().UTC().Add(-time.Minute)

	records := []*models.ExecutionRecord{
		{ID: "e1", AutomationID: "auto-3", EntityID: "d1", Status: models.ExecutionSuccess, StartedAt: started, DurationMs: 100},
		{ID: "e2", AutomationID: "auto-3", EntityID: "d2", Status: models.ExecutionFailed, StartedAt: started.Add(time.Second), DurationMs: 300},
		{ID: "e3", AutomationID: "auto-3", EntityID: "d3", Status: models.ExecutionSkipped, StartedAt: started.Add(2 * time.Second)},
		{ID: "e4", AutomationID: "other", EntityID: "d4", Status: models.ExecutionSuccess, StartedAt: started},
	}
	for _, record := range records {
		require.NoError(t, p.RecordExecution(ctx, record))
	}

	stats, err := p.ExecutionStats(ctx, "auto-3", time.Time{})
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.TotalExecutions)
	assert.Equal(t, int64(1), stats.SuccessfulExecutions)
	assert.Equal(t, int64(1), stats.FailedExecutions)
	assert.InDelta(t, 0.5, stats.SuccessRate, 0.001)
	assert.InDelta(t, 200.0, stats.AvgExecutionTimeMs, 0.001)
	require.NotNil(t, stats.LastExecution)
}

func TestDueSchedules(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)

	overdue, err := models.NewSchedule("s1", "auto-4", "* * * * *")
	require.NoError(t, err)
	overdue.NextDueAt = time.Now().UTC().Add(-time.Minute)
	require.NoError(t, p.SaveSchedule(ctx, overdue))

	upcoming, err := models.NewSchedule("s2", "auto-5", "0 9 1 1 *")
	require.NoError(t, err)
	require.NoError(t, p.SaveSchedule(ctx, upcoming))

	due, err := p.DueSchedules(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "auto-4", due[0].AutomationID)
}

func TestHealthCheck(t *testing.T) {
	ctx := context.Background()

	p := NewPersistence(t.TempDir())
	assert.NoError(t, p.HealthCheck(ctx))

	missing := NewPersistence("/nonexistent/casaflow-test")
	assert.Error(t, missing.HealthCheck(ctx))
}
