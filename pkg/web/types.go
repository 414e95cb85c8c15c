package web

import "github.com/casaflow/casaflow/pkg/models"

// CreateAutomationRequest is the payload for creating an automation.
type CreateAutomationRequest struct {
	Name         string              `json:"name"         validate:"required,min=3"`
	Description  string              `json:"description"`
	TriggerType  models.TriggerType  `json:"trigger_type" validate:"required"`
	TriggerRules map[string]any      `json:"trigger_rules,omitempty"`
	Conditions   []models.Condition  `json:"conditions,omitempty"`
	Actions      []models.ActionItem `json:"actions,omitempty"`
	Priority     int                 `json:"priority"`
	IsActive     bool                `json:"is_active"`
}

// UpdateAutomationRequest is the payload for partially updating an
// automation. Nil fields are left untouched.
type UpdateAutomationRequest struct {
	Name         *string             `json:"name,omitempty"         validate:"omitempty,min=3"`
	Description  *string             `json:"description,omitempty"`
	TriggerType  *models.TriggerType `json:"trigger_type,omitempty"`
	TriggerRules map[string]any      `json:"trigger_rules,omitempty"`
	Conditions   []models.Condition  `json:"conditions,omitempty"`
	Actions      []models.ActionItem `json:"actions,omitempty"`
	Priority     *int                `json:"priority,omitempty"`
	IsActive     *bool               `json:"is_active,omitempty"`
}

// CreateWorkflowRequest is the payload for creating a workflow.
type CreateWorkflowRequest struct {
	Name         string                `json:"name"           validate:"required,min=3"`
	Description  string                `json:"description"`
	Category     string                `json:"category,omitempty"`
	TriggerType  models.TriggerType    `json:"trigger_type"   validate:"required"`
	TriggerRules map[string]any        `json:"trigger_rules,omitempty"`
	Steps        []models.WorkflowStep `json:"workflow_steps"`
	IsActive     bool                  `json:"is_active"`
}

// UpdateWorkflowRequest is the payload for partially updating a workflow.
type UpdateWorkflowRequest struct {
	Name         *string               `json:"name,omitempty"  validate:"omitempty,min=3"`
	Description  *string               `json:"description,omitempty"`
	Category     *string               `json:"category,omitempty"`
	TriggerType  *models.TriggerType   `json:"trigger_type,omitempty"`
	TriggerRules map[string]any        `json:"trigger_rules,omitempty"`
	Steps        []models.WorkflowStep `json:"workflow_steps,omitempty"`
	IsActive     *bool                 `json:"is_active,omitempty"`
}

// TestAutomationRequest carries the sample event for a dry run.
type TestAutomationRequest struct {
	Event models.DomainEvent `json:"event" validate:"required"`
}
