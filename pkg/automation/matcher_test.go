package automation

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/casaflow/casaflow/pkg/models"
	"github.com/stretchr/testify/assert"
)

func newTestMatcher() *Matcher {
	return NewMatcher(slog.New(slog.NewTextHandler(os.Stdout, nil)))
}

func stageEvent(newStage string) models.DomainEvent {
	return models.DomainEvent{
		ID:   "evt-1",
		Type: models.TriggerDealStageChange,
		Entity: models.EntityRef{
			ID:       "d1",
			Type:     "deal",
			Snapshot: map[string]any{"stage": newStage},
		},
		Payload:    map[string]any{"new_stage": newStage, "previous_stage": "Lead"},
		OccurredAt: time.Now().UTC(),
	}
}

func TestMatchFiltersByTriggerTypeAndActivity(t *testing.T) {
	m := newTestMatcher()

	automations := []*models.Automation{
		{ID: "wrong-type", TriggerType: models.TriggerClientStatusChange, IsActive: true},
		{ID: "inactive", TriggerType: models.TriggerDealStageChange, IsActive: false},
		{ID: "fits", TriggerType: models.TriggerDealStageChange, IsActive: true},
	}

	matched := m.Match(stageEvent("Qualified"), automations)

	assert.Len(t, matched, 1)
	assert.Equal(t, "fits", matched[0].ID)
}

func TestMatchTargetStageRule(t *testing.T) {
	m := newTestMatcher()

	automations := []*models.Automation{
		{
			ID:           "qualified-only",
			TriggerType:  models.TriggerDealStageChange,
			IsActive:     true,
			TriggerRules: map[string]any{"target_stage": "Qualified"},
		},
		{
			ID:           "closed-only",
			TriggerType:  models.TriggerDealStageChange,
			IsActive:     true,
			TriggerRules: map[string]any{"target_stage": "Closed"},
		},
		// No rules: fires on any stage.
		{ID: "any-stage", TriggerType: models.TriggerDealStageChange, IsActive: true},
	}

	matched := m.Match(stageEvent("Qualified"), automations)

	ids := make([]string, 0, len(matched))
	for _, a := range matched {
		ids = append(ids, a.ID)
	}

	assert.ElementsMatch(t, []string{"qualified-only", "any-stage"}, ids)
}

func TestMatchSkipsMalformedRules(t *testing.T) {
	m := newTestMatcher()

	automations := []*models.Automation{
		{
			ID:           "malformed",
			TriggerType:  models.TriggerDealStageChange,
			IsActive:     true,
			TriggerRules: map[string]any{"target_stage": 42},
		},
	}

	assert.Empty(t, m.Match(stageEvent("Qualified"), automations))
}

func TestMatchOrdersByPriorityThenCreatedAt(t *testing.T) {
	m := newTestMatcher()
	older := time.Now().UTC().Add(-time.Hour)
	newer := time.Now().UTC()

	automations := []*models.Automation{
		{ID: "late", TriggerType: models.TriggerDealStageChange, IsActive: true, Priority: 10, CreatedAt: newer},
		{ID: "tie-newer", TriggerType: models.TriggerDealStageChange, IsActive: true, Priority: 1, CreatedAt: newer},
		{ID: "tie-older", TriggerType: models.TriggerDealStageChange, IsActive: true, Priority: 1, CreatedAt: older},
	}

	matched := m.Match(stageEvent("Qualified"), automations)

	ids := make([]string, 0, len(matched))
	for _, a := range matched {
		ids = append(ids, a.ID)
	}

	assert.Equal(t, []string{"tie-older", "tie-newer", "late"}, ids)
}

func TestMatchScoreThresholdCrossing(t *testing.T) {
	m := newTestMatcher()

	automation := &models.Automation{
		ID:           "hot-lead",
		TriggerType:  models.TriggerScoreThreshold,
		IsActive:     true,
		TriggerRules: map[string]any{"threshold": float64(80)},
	}

	event := func(previous, current float64) models.DomainEvent {
		return models.DomainEvent{
			Type:    models.TriggerScoreThreshold,
			Entity:  models.EntityRef{ID: "c1", Type: "client"},
			Payload: map[string]any{"previous_score": previous, "new_score": current},
		}
	}

	assert.Len(t, m.Match(event(70, 85), []*models.Automation{automation}), 1)

	// Already above the threshold: no crossing, no fire.
	assert.Empty(t, m.Match(event(82, 90), []*models.Automation{automation}))

	// Still below.
	assert.Empty(t, m.Match(event(10, 50), []*models.Automation{automation}))
}

func TestMatchesWorkflowAppliesTriggerRules(t *testing.T) {
	m := newTestMatcher()

	workflow := func(id string, rules map[string]any) *models.Workflow {
		return &models.Workflow{
			ID:           id,
			TriggerType:  models.TriggerDealStageChange,
			TriggerRules: rules,
			IsActive:     true,
		}
	}

	event := stageEvent("Qualified")

	assert.True(t, m.MatchesWorkflow(event, workflow("any-stage", nil)))
	assert.True(t, m.MatchesWorkflow(event, workflow("qualified", map[string]any{"target_stage": "Qualified"})))
	assert.False(t, m.MatchesWorkflow(event, workflow("closed", map[string]any{"target_stage": "Closed"})))
	assert.False(t, m.MatchesWorkflow(event, workflow("malformed", map[string]any{"target_stage": 42})))

	inactive := workflow("inactive", nil)
	inactive.IsActive = false
	assert.False(t, m.MatchesWorkflow(event, inactive))
}

func TestMatchTimeBasedScopedByAutomationID(t *testing.T) {
	m := newTestMatcher()

	automations := []*models.Automation{
		{ID: "digest", TriggerType: models.TriggerTimeBased, IsActive: true},
		{ID: "cleanup", TriggerType: models.TriggerTimeBased, IsActive: true},
	}

	event := models.DomainEvent{
		Type:    models.TriggerTimeBased,
		Payload: map[string]any{"automation_id": "digest"},
	}

	matched := m.Match(event, automations)

	assert.Len(t, matched, 1)
	assert.Equal(t, "digest", matched[0].ID)
}
