package models

// ActionType identifies one externally visible effect an automation performs.
type ActionType string

const (
	ActionUpdateStatus     ActionType = "update_status"
	ActionCreateTask       ActionType = "create_task"
	ActionSendEmail        ActionType = "send_email"
	ActionSendSMS          ActionType = "send_sms"
	ActionCreateNote       ActionType = "create_note"
	ActionUpdateScore      ActionType = "update_score"
	ActionAssignToUser     ActionType = "assign_to_user"
	ActionMoveToStage      ActionType = "move_to_stage"
	ActionScheduleFollowUp ActionType = "schedule_follow_up"
	ActionWebhook          ActionType = "webhook"
)

// ActionItem is one step of an automation's ordered action list.
// Parameters are type-specific and may contain template placeholders
// (e.g. {{client.first_name}}) resolved against the triggering entity
// at execution time.
type ActionItem struct {
	Type       ActionType     `json:"type" validate:"required"`
	Parameters map[string]any `json:"parameters"`
}

// ActionStatus is the outcome of a single executed action.
type ActionStatus string

const (
	ActionSuccess ActionStatus = "success"
	ActionFailed  ActionStatus = "failed"
	ActionSkipped ActionStatus = "skipped"
)

// ActionResult records the outcome and latency of one dispatched action.
type ActionResult struct {
	Type       ActionType   `json:"type"`
	Status     ActionStatus `json:"status"`
	Error      string       `json:"error,omitempty"`
	Attempts   int          `json:"attempts"`
	DurationMs int64        `json:"duration_ms"`
	Output     any          `json:"output,omitempty"`
}
