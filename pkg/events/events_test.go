package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/casaflow/casaflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypes(t *testing.T) {
	assert.Equal(t, DomainEventReceivedType, DomainEventReceived{}.GetType())
	assert.Equal(t, AutomationTriggeredEvent, AutomationTriggered{}.GetType())
	assert.Equal(t, AutomationCompletedEvent, AutomationCompleted{}.GetType())
	assert.Equal(t, AutomationFailedEvent, AutomationFailed{}.GetType())
	assert.Equal(t, EnrollmentStepDueEvent, EnrollmentStepDue{}.GetType())
	assert.Equal(t, EnrollmentStepCompletedEvent, EnrollmentStepCompleted{}.GetType())
	assert.Equal(t, EnrollmentPausedEvent, EnrollmentPaused{}.GetType())
	assert.Equal(t, EnrollmentCompletedEvent, EnrollmentCompleted{}.GetType())
}

func TestDomainEventReceivedCarriesSnapshot(t *testing.T) {
	event := DomainEventReceived{
		BaseEvent: BaseEvent{
			ID:        "evt-1",
			Type:      DomainEventReceivedType,
			Timestamp: time.Now().UTC(),
		},
		Event: models.DomainEvent{
			ID:   "crm-1",
			Type: models.TriggerDealStageChange,
			Entity: models.EntityRef{
				ID:   "deal-1",
				Type: "deal",
				Snapshot: map[string]any{
					"stage": "Qualified",
				},
			},
			Payload: map[string]any{
				"previous_stage": "Lead",
				"new_stage":      "Qualified",
			},
		},
	}

	payload, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded DomainEventReceived

	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "deal-1", decoded.Event.Entity.ID)
	assert.Equal(t, "Qualified", decoded.Event.Entity.Snapshot["stage"])
	assert.Equal(t, "Lead", decoded.Event.Payload["previous_stage"])
}
