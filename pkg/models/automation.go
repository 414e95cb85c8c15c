// Package models defines the core domain models for CRM pipeline automation.
package models

import "time"

// TriggerType classifies the domain event category an automation reacts to.
type TriggerType string

const (
	TriggerDealStageChange    TriggerType = "deal_stage_change"
	TriggerClientStatusChange TriggerType = "client_status_change"
	TriggerTimeBased          TriggerType = "time_based"
	TriggerScoreThreshold     TriggerType = "score_threshold"
	TriggerTaskCompleted      TriggerType = "task_completed"
	TriggerManual             TriggerType = "manual"
)

// KnownTriggerTypes lists every trigger type accepted at the CRUD boundary.
var KnownTriggerTypes = []TriggerType{
	TriggerDealStageChange,
	TriggerClientStatusChange,
	TriggerTimeBased,
	TriggerScoreThreshold,
	TriggerTaskCompleted,
	TriggerManual,
}

// Automation is a single trigger -> conditions -> actions rule.
//
// TriggerRules carries trigger-type specific parameters, for example
// {"target_stage": "Qualified"} for deal_stage_change or
// {"cron": "0 9 * * 1"} for time_based. An unset rule field means "any".
type Automation struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"         validate:"required,min=3"`
	Description  string         `json:"description"`
	TriggerType  TriggerType    `json:"trigger_type" validate:"required"`
	TriggerRules map[string]any `json:"trigger_rules,omitempty"`
	Conditions   []Condition    `json:"conditions"`
	Actions      []ActionItem   `json:"actions"`
	Priority     int            `json:"priority"`
	IsActive     bool           `json:"is_active"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    *time.Time     `json:"deleted_at,omitempty"`
}

// HasActions reports whether the automation carries at least one action.
// Active automations without actions are never persisted; the engine
// re-checks this at execution entry instead of trusting the stored record.
func (a *Automation) HasActions() bool {
	return len(a.Actions) > 0
}

// RuleString returns a trigger rule as a string, with ok=false when the
// rule is unset or not a string.
func (a *Automation) RuleString(key string) (string, bool) {
	if a.TriggerRules == nil {
		return "", false
	}

	v, exists := a.TriggerRules[key]
	if !exists || v == nil {
		return "", false
	}

	s, ok := v.(string)

	return s, ok
}

// RuleNumber returns a trigger rule as a float64, with ok=false when the
// rule is unset or not numeric.
func (a *Automation) RuleNumber(key string) (float64, bool) {
	if a.TriggerRules == nil {
		return 0, false
	}

	switch v := a.TriggerRules[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
