package models

import "maps"

// ExecutionContext carries everything an action needs at execution time:
// the triggering event, the entity snapshot, and results of actions that
// already ran in the same automation.
type ExecutionContext struct {
	ID            string         `json:"id"`
	AutomationID  string         `json:"automation_id,omitempty"`
	WorkflowID    string         `json:"workflow_id,omitempty"`
	Event         DomainEvent    `json:"event"`
	ActionResults []ActionResult `json:"action_results,omitempty"`
	DryRun        bool           `json:"dry_run,omitempty"`
}

// TemplateData flattens the context into the map resolved against
// template placeholders. The entity snapshot is reachable both as
// "entity.<field>" and as "<entity type>.<field>" so rules can be
// written as {{client.first_name}} or {{deal.stage}}.
func (c *ExecutionContext) TemplateData() map[string]any {
	data := map[string]any{
		"entity":  c.Event.Entity.Snapshot,
		"trigger": c.Event.Payload,
		"event": map[string]any{
			"id":          c.Event.ID,
			"type":        string(c.Event.Type),
			"entity_id":   c.Event.Entity.ID,
			"entity_type": c.Event.Entity.Type,
			"occurred_at": c.Event.OccurredAt,
		},
	}

	if c.Event.Entity.Type != "" {
		data[c.Event.Entity.Type] = c.Event.Entity.Snapshot
	}

	return data
}

// Snapshot returns a copy of the entity snapshot, never nil.
func (c *ExecutionContext) Snapshot() map[string]any {
	out := make(map[string]any, len(c.Event.Entity.Snapshot))
	maps.Copy(out, c.Event.Entity.Snapshot)

	return out
}
