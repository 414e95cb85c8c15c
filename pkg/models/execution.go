package models

import "time"

// ExecutionStatus is the overall outcome of one automation or workflow
// step run as recorded in the ledger.
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
	// ExecutionPartial marks a run where some, but not all, actions failed.
	ExecutionPartial ExecutionStatus = "partial"
	// ExecutionSkipped marks a run whose conditions evaluated to false.
	ExecutionSkipped ExecutionStatus = "skipped"
)

// ExecutionRecord is one append-only ledger entry. Exactly one of
// AutomationID and WorkflowID is set.
type ExecutionRecord struct {
	ID            string          `json:"id"`
	AutomationID  string          `json:"automation_id,omitempty"`
	WorkflowID    string          `json:"workflow_id,omitempty"`
	EnrollmentID  string          `json:"enrollment_id,omitempty"`
	EntityID      string          `json:"entity_id"`
	EntityType    string          `json:"entity_type"`
	TriggerType   TriggerType     `json:"trigger_type"`
	Status        ExecutionStatus `json:"status"`
	Error         string          `json:"error,omitempty"`
	ActionResults []ActionResult  `json:"action_results,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	DurationMs    int64           `json:"duration_ms"`
}

// ParentID returns the owning automation or workflow ID.
func (r *ExecutionRecord) ParentID() string {
	if r.AutomationID != "" {
		return r.AutomationID
	}

	return r.WorkflowID
}

// ExecutionStats are the per-automation/workflow aggregates surfaced to
// the UI's list views.
type ExecutionStats struct {
	TotalExecutions      int64      `json:"total_executions"`
	SuccessfulExecutions int64      `json:"successful_executions"`
	FailedExecutions     int64      `json:"failed_executions"`
	SuccessRate          float64    `json:"success_rate"`
	AvgExecutionTimeMs   float64    `json:"avg_execution_time"`
	LastExecution        *time.Time `json:"last_execution,omitempty"`
}
