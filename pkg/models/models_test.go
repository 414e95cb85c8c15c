package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutomationHasActions(t *testing.T) {
	automation := &Automation{}
	assert.False(t, automation.HasActions())

	automation.Actions = []ActionItem{{Type: ActionCreateTask}}
	assert.True(t, automation.HasActions())
}

func TestAutomationRuleHelpers(t *testing.T) {
	automation := &Automation{
		TriggerRules: map[string]any{
			"target_stage": "Qualified",
			"threshold":    float64(80),
		},
	}

	stage, ok := automation.RuleString("target_stage")
	assert.True(t, ok)
	assert.Equal(t, "Qualified", stage)

	_, ok = automation.RuleString("missing")
	assert.False(t, ok)

	threshold, ok := automation.RuleNumber("threshold")
	assert.True(t, ok)
	assert.InDelta(t, 80.0, threshold, 0.001)

	_, ok = automation.RuleNumber("target_stage")
	assert.False(t, ok)
}

func TestWorkflowStepDelay(t *testing.T) {
	step := WorkflowStep{DelayDays: 2, DelayHours: 3, DelaySeconds: 30}
	expected := 2*24*time.Hour + 3*time.Hour + 30*time.Second
	assert.Equal(t, expected, step.Delay())

	assert.Equal(t, time.Duration(0), (&WorkflowStep{}).Delay())
}

func TestEnrollmentDue(t *testing.T) {
	now := time.Now().UTC()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	enrollment := &SequenceEnrollment{Status: EnrollmentActive, NextStepAt: &past}
	assert.True(t, enrollment.Due(now))

	enrollment.NextStepAt = &future
	assert.False(t, enrollment.Due(now))

	// No scheduled time means immediately due.
	enrollment.NextStepAt = nil
	assert.True(t, enrollment.Due(now))

	enrollment.Status = EnrollmentPaused
	assert.False(t, enrollment.Due(now))
}

func TestEnrollmentTerminal(t *testing.T) {
	assert.True(t, (&SequenceEnrollment{Status: EnrollmentCompleted}).Terminal())
	assert.True(t, (&SequenceEnrollment{Status: EnrollmentCancelled}).Terminal())
	assert.False(t, (&SequenceEnrollment{Status: EnrollmentActive}).Terminal())
	assert.False(t, (&SequenceEnrollment{Status: EnrollmentPaused}).Terminal())
}

func TestNewSchedule(t *testing.T) {
	schedule, err := NewSchedule("sched-1", "auto-1", "0 9 * * 1")
	require.NoError(t, err)

	assert.True(t, schedule.Active)
	assert.False(t, schedule.NextDueAt.IsZero())
	assert.True(t, schedule.NextDueAt.After(time.Now().UTC().Add(-time.Minute)))
}

func TestNewScheduleInvalidCron(t *testing.T) {
	_, err := NewSchedule("sched-1", "auto-1", "not a cron")
	assert.Error(t, err)
}

func TestScheduleIsDue(t *testing.T) {
	schedule, err := NewSchedule("sched-1", "auto-1", "* * * * *")
	require.NoError(t, err)

	assert.False(t, schedule.IsDue(time.Now().UTC()))
	assert.True(t, schedule.IsDue(schedule.NextDueAt))
	assert.True(t, schedule.IsDue(schedule.NextDueAt.Add(time.Hour)))

	schedule.Active = false
	assert.False(t, schedule.IsDue(schedule.NextDueAt))
}

func TestScheduleAdvance(t *testing.T) {
	schedule, err := NewSchedule("sched-1", "auto-1", "* * * * *")
	require.NoError(t, err)

	first := schedule.NextDueAt
	require.NoError(t, schedule.Advance(first))
	assert.True(t, schedule.NextDueAt.After(first))
}

func TestScheduleValidate(t *testing.T) {
	schedule := &Schedule{ID: "s", AutomationID: "a", CronExpression: "*/5 * * * *"}
	assert.NoError(t, schedule.Validate())

	schedule.CronExpression = ""
	assert.ErrorIs(t, schedule.Validate(), ErrInvalidSchedule)
}
