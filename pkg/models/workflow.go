package models

import "time"

// Workflow is a multi-step, potentially delayed automation. Entities are
// bound to a running workflow through a SequenceEnrollment.
type Workflow struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"         validate:"required,min=3"`
	Description  string         `json:"description"`
	Category     string         `json:"category,omitempty"`
	TriggerType  TriggerType    `json:"trigger_type" validate:"required"`
	TriggerRules map[string]any `json:"trigger_rules,omitempty"`
	Steps        []WorkflowStep `json:"workflow_steps"`
	IsActive     bool           `json:"is_active"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    *time.Time     `json:"deleted_at,omitempty"`
}

// HasActions reports whether any step carries at least one action.
func (w *Workflow) HasActions() bool {
	for _, step := range w.Steps {
		if len(step.Actions) > 0 {
			return true
		}
	}

	return false
}

// WorkflowStep is one ordered step of a workflow. Delay is relative to
// the completion of the previous step (or to enrollment creation for
// step 0). A required step that fails after retries pauses the
// enrollment instead of advancing it.
type WorkflowStep struct {
	Name         string       `json:"name"`
	Actions      []ActionItem `json:"actions"`
	Conditions   []Condition  `json:"conditions,omitempty"`
	DelaySeconds int64        `json:"delay,omitempty"`
	DelayHours   int64        `json:"delay_hours,omitempty"`
	DelayDays    int64        `json:"delay_days,omitempty"`
	Required     bool         `json:"required"`
}

// Delay returns the total configured delay for the step.
func (s *WorkflowStep) Delay() time.Duration {
	return time.Duration(s.DelaySeconds)*time.Second +
		time.Duration(s.DelayHours)*time.Hour +
		time.Duration(s.DelayDays)*24*time.Hour
}
