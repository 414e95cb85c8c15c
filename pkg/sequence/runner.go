// Package sequence advances workflow enrollments step by step.
package sequence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/casaflow/casaflow/pkg/clients"
	"github.com/casaflow/casaflow/pkg/conditions"
	"github.com/casaflow/casaflow/pkg/dispatcher"
	"github.com/casaflow/casaflow/pkg/eventbus"
	"github.com/casaflow/casaflow/pkg/events"
	"github.com/casaflow/casaflow/pkg/models"
	"github.com/casaflow/casaflow/pkg/persistence"
	"github.com/google/uuid"
)

// Runner executes the next due step of an enrollment and advances its
// cursor. Every state change goes through a versioned update; a runner
// that loses the race drops its work and lets the winner's state stand.
type Runner struct {
	persistence persistence.Persistence
	dispatcher  *dispatcher.Dispatcher
	evaluator   *conditions.Evaluator
	entities    clients.EntityClient
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	workerID    string
}

func NewRunner(
	p persistence.Persistence,
	d *dispatcher.Dispatcher,
	entities clients.EntityClient,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	workerID string,
) *Runner {
	return &Runner{
		persistence: p,
		dispatcher:  d,
		evaluator:   conditions.NewEvaluator(logger),
		entities:    entities,
		publisher:   publisher,
		logger:      logger.With("module", "sequence_runner", "worker_id", workerID),
		workerID:    workerID,
	}
}

// ProcessDue runs every enrollment whose delay has elapsed. Individual
// failures are logged and do not stop the batch.
func (r *Runner) ProcessDue(ctx context.Context, limit int) error {
	due, err := r.persistence.DueEnrollments(ctx, time.Now().UTC(), limit)
	if err != nil {
		return fmt.Errorf("failed to load due enrollments: %w", err)
	}

	for _, enrollment := range due {
		err := r.RunStep(ctx, enrollment.ID)
		if err != nil {
			r.logger.ErrorContext(ctx, "Failed to run enrollment step",
				"enrollment_id", enrollment.ID,
				"error", err)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return nil
}

// RunStep executes the enrollment's next step. The status is re-read
// from storage first so pauses and cancellations issued after the
// delay started are honored (cooperative cancellation). Running a
// completed enrollment is a no-op.
func (r *Runner) RunStep(ctx context.Context, enrollmentID string) error {
	enrollment, err := r.persistence.EnrollmentByID(ctx, enrollmentID)
	if err != nil {
		return err
	}

	logger := r.logger.With(
		"enrollment_id", enrollment.ID,
		"workflow_id", enrollment.WorkflowID,
		"entity_id", enrollment.EntityID,
	)

	if enrollment.Status != models.EnrollmentActive {
		logger.InfoContext(ctx, "Enrollment not active, skipping", "status", enrollment.Status)

		return nil
	}

	// The bus delivers at least once. A redelivered step-due event must
	// not run the step ahead of its delay, so due-ness is re-checked
	// against storage, not trusted from the message.
	if !enrollment.Due(time.Now().UTC()) {
		logger.InfoContext(ctx, "Enrollment not due yet, skipping", "next_step_at", enrollment.NextStepAt)

		return nil
	}

	workflow, err := r.persistence.WorkflowByID(ctx, enrollment.WorkflowID)
	if err != nil {
		return err
	}

	if enrollment.StepsCompleted >= len(workflow.Steps) {
		return r.complete(ctx, enrollment, logger)
	}

	stepIndex := enrollment.StepsCompleted
	step := workflow.Steps[stepIndex]
	logger = logger.With("step_index", stepIndex, "step_name", step.Name)

	// Step conditions run against a fresh snapshot, not the one from
	// enrollment time. The entity may have changed during the delay.
	snapshot, err := r.entities.GetEntity(ctx, enrollment.EntityType, enrollment.EntityID)
	if err != nil {
		return fmt.Errorf("failed to fetch entity snapshot: %w", err)
	}

	event := models.DomainEvent{
		ID:   newID(),
		Type: workflow.TriggerType,
		Entity: models.EntityRef{
			ID:       enrollment.EntityID,
			Type:     enrollment.EntityType,
			Snapshot: snapshot,
		},
		OccurredAt: time.Now().UTC(),
	}

	record := &models.ExecutionRecord{
		ID:           newID(),
		WorkflowID:   workflow.ID,
		EnrollmentID: enrollment.ID,
		EntityID:     enrollment.EntityID,
		EntityType:   enrollment.EntityType,
		TriggerType:  workflow.TriggerType,
		StartedAt:    time.Now().UTC(),
	}

	status := models.ExecutionSkipped

	var results []models.ActionResult

	if r.evaluator.Evaluate(step.Conditions, snapshot, nil) {
		executionCtx := models.ExecutionContext{
			ID:         record.ID,
			WorkflowID: workflow.ID,
			Event:      event,
		}

		results = r.dispatcher.Execute(ctx, step.Actions, &executionCtx)
		status = summarizeStep(results)
	} else {
		logger.InfoContext(ctx, "Step conditions not met, skipping step")
	}

	record.Status = status
	record.ActionResults = results
	record.Error = firstFailure(results)
	record.DurationMs = time.Since(record.StartedAt).Milliseconds()

	err = r.persistence.RecordExecution(ctx, record)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to record step execution", "error", err)
	}

	if status == models.ExecutionFailed && step.Required {
		return r.pause(ctx, enrollment, stepIndex, record.Error, logger)
	}

	return r.advance(ctx, enrollment, workflow, stepIndex, step, status, logger)
}

// advance moves the cursor past the finished (or skipped) step and
// schedules the next one.
func (r *Runner) advance(
	ctx context.Context,
	enrollment *models.SequenceEnrollment,
	workflow *models.Workflow,
	stepIndex int,
	step models.WorkflowStep,
	status models.ExecutionStatus,
	logger *slog.Logger,
) error {
	enrollment.StepsCompleted = stepIndex + 1

	if enrollment.StepsCompleted >= len(workflow.Steps) {
		enrollment.Status = models.EnrollmentCompleted
		enrollment.NextStepAt = nil
	} else {
		nextDue := time.Now().UTC().Add(workflow.Steps[enrollment.StepsCompleted].Delay())
		enrollment.NextStepAt = &nextDue
	}

	err := r.persistence.UpdateEnrollmentVersioned(ctx, enrollment)
	if err != nil {
		if persistence.IsVersionConflict(err) {
			logger.WarnContext(ctx, "Enrollment advanced by another runner, dropping update")

			return nil
		}

		return err
	}

	r.publish(ctx, enrollment.EntityID, events.EnrollmentStepCompleted{
		BaseEvent:    r.baseEvent(events.EnrollmentStepCompletedEvent),
		EnrollmentID: enrollment.ID,
		WorkflowID:   enrollment.WorkflowID,
		EntityID:     enrollment.EntityID,
		StepIndex:    stepIndex,
		StepName:     step.Name,
		Status:       status,
	})

	if enrollment.Status == models.EnrollmentCompleted {
		r.publish(ctx, enrollment.EntityID, events.EnrollmentCompleted{
			BaseEvent:    r.baseEvent(events.EnrollmentCompletedEvent),
			EnrollmentID: enrollment.ID,
			WorkflowID:   enrollment.WorkflowID,
			EntityID:     enrollment.EntityID,
			StepsRun:     enrollment.StepsCompleted,
		})

		logger.InfoContext(ctx, "Enrollment completed", "steps_run", enrollment.StepsCompleted)
	}

	return nil
}

// pause stops the enrollment without advancing the cursor so the failed
// required step reruns when the enrollment is resumed.
func (r *Runner) pause(ctx context.Context, enrollment *models.SequenceEnrollment, stepIndex int, reason string, logger *slog.Logger) error {
	enrollment.Status = models.EnrollmentPaused
	enrollment.NextStepAt = nil

	err := r.persistence.UpdateEnrollmentVersioned(ctx, enrollment)
	if err != nil {
		if persistence.IsVersionConflict(err) {
			logger.WarnContext(ctx, "Enrollment changed by another runner, dropping pause")

			return nil
		}

		return err
	}

	r.publish(ctx, enrollment.EntityID, events.EnrollmentPaused{
		BaseEvent:    r.baseEvent(events.EnrollmentPausedEvent),
		EnrollmentID: enrollment.ID,
		WorkflowID:   enrollment.WorkflowID,
		EntityID:     enrollment.EntityID,
		StepIndex:    stepIndex,
		Reason:       reason,
	})

	logger.WarnContext(ctx, "Required step failed, enrollment paused", "reason", reason)

	return nil
}

// complete handles the edge where the cursor already passed the last
// step, for example after steps were removed from the workflow.
func (r *Runner) complete(ctx context.Context, enrollment *models.SequenceEnrollment, logger *slog.Logger) error {
	enrollment.Status = models.EnrollmentCompleted
	enrollment.NextStepAt = nil

	err := r.persistence.UpdateEnrollmentVersioned(ctx, enrollment)
	if err != nil {
		if persistence.IsVersionConflict(err) {
			return nil
		}

		return err
	}

	logger.InfoContext(ctx, "Enrollment completed")

	return nil
}

// Resume reactivates a paused enrollment and makes its current step due
// immediately.
func (r *Runner) Resume(ctx context.Context, enrollmentID string) error {
	enrollment, err := r.persistence.EnrollmentByID(ctx, enrollmentID)
	if err != nil {
		return err
	}

	if enrollment.Status != models.EnrollmentPaused {
		return fmt.Errorf("enrollment %s is %s, only paused enrollments can resume", enrollmentID, enrollment.Status)
	}

	now := time.Now().UTC()
	enrollment.Status = models.EnrollmentActive
	enrollment.NextStepAt = &now

	return r.persistence.UpdateEnrollmentVersioned(ctx, enrollment)
}

// Cancel terminally stops an enrollment.
func (r *Runner) Cancel(ctx context.Context, enrollmentID string) error {
	enrollment, err := r.persistence.EnrollmentByID(ctx, enrollmentID)
	if err != nil {
		return err
	}

	if enrollment.Terminal() {
		return nil
	}

	enrollment.Status = models.EnrollmentCancelled
	enrollment.NextStepAt = nil

	return r.persistence.UpdateEnrollmentVersioned(ctx, enrollment)
}

func (r *Runner) publish(ctx context.Context, key string, event eventbus.Event) {
	if r.publisher == nil {
		return
	}

	err := r.publisher.Publish(ctx, key, event)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to publish event", "error", err, "event_type", event.GetType())
	}
}

func (r *Runner) baseEvent(eventType events.EventType) events.BaseEvent {
	return events.BaseEvent{
		ID:        newID(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		WorkerID:  r.workerID,
	}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}

func summarizeStep(results []models.ActionResult) models.ExecutionStatus {
	if len(results) == 0 {
		return models.ExecutionSkipped
	}

	failed := 0

	for _, result := range results {
		if result.Status == models.ActionFailed {
			failed++
		}
	}

	switch failed {
	case 0:
		return models.ExecutionSuccess
	case len(results):
		return models.ExecutionFailed
	default:
		return models.ExecutionPartial
	}
}

func firstFailure(results []models.ActionResult) string {
	for _, result := range results {
		if result.Status == models.ActionFailed {
			return result.Error
		}
	}

	return ""
}
