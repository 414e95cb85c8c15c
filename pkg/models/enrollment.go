package models

import "time"

// EnrollmentStatus is the lifecycle state of a sequence enrollment.
type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentPaused    EnrollmentStatus = "paused"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentCancelled EnrollmentStatus = "cancelled"
)

// SequenceEnrollment binds one entity to one running workflow instance.
// It is the unit of resumability: a paused or interrupted run resumes
// from StepsCompleted and NextStepAt. Version backs optimistic
// concurrency so two runners never double-advance the same enrollment.
type SequenceEnrollment struct {
	ID             string           `json:"id"`
	WorkflowID     string           `json:"workflow_id"`
	EntityID       string           `json:"entity_id"`
	EntityType     string           `json:"entity_type"`
	StepsCompleted int              `json:"steps_completed"`
	Status         EnrollmentStatus `json:"status"`
	NextStepAt     *time.Time       `json:"next_step_at,omitempty"`
	Version        int64            `json:"version"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Terminal reports whether the enrollment can never run another step.
func (e *SequenceEnrollment) Terminal() bool {
	return e.Status == EnrollmentCompleted || e.Status == EnrollmentCancelled
}

// Due reports whether the next step is ready to run at the given time.
func (e *SequenceEnrollment) Due(now time.Time) bool {
	if e.Status != EnrollmentActive {
		return false
	}

	return e.NextStepAt == nil || !e.NextStepAt.After(now)
}
