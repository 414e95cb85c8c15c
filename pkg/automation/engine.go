package automation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/casaflow/casaflow/pkg/conditions"
	"github.com/casaflow/casaflow/pkg/dispatcher"
	"github.com/casaflow/casaflow/pkg/eventbus"
	"github.com/casaflow/casaflow/pkg/events"
	"github.com/casaflow/casaflow/pkg/models"
	"github.com/casaflow/casaflow/pkg/persistence"
	"github.com/google/uuid"
)

// Engine reacts to inbound domain events: it matches automations, runs
// them, enrolls entities into matching workflows and writes the ledger.
type Engine struct {
	persistence persistence.Persistence
	matcher     *Matcher
	evaluator   *conditions.Evaluator
	dispatcher  *dispatcher.Dispatcher
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	workerID    string
}

func NewEngine(
	p persistence.Persistence,
	d *dispatcher.Dispatcher,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	workerID string,
) *Engine {
	return &Engine{
		persistence: p,
		matcher:     NewMatcher(logger),
		evaluator:   conditions.NewEvaluator(logger),
		dispatcher:  d,
		publisher:   publisher,
		logger:      logger.With("module", "engine", "worker_id", workerID),
		workerID:    workerID,
	}
}

// HandleEvent runs every matching automation concurrently and enrolls
// the entity into matching workflows. It returns after everything the
// event activated has finished.
func (e *Engine) HandleEvent(ctx context.Context, event models.DomainEvent) error {
	logger := e.logger.With(
		"event_id", event.ID,
		"trigger_type", event.Type,
		"entity_id", event.Entity.ID,
	)

	candidates, err := e.persistence.ActiveAutomationsByTrigger(ctx, event.Type)
	if err != nil {
		return err
	}

	matched := e.matcher.Match(event, candidates)
	logger.InfoContext(ctx, "Matched automations", "candidates", len(candidates), "matched", len(matched))

	var wg sync.WaitGroup

	for _, automation := range matched {
		wg.Add(1)

		go func(automation *models.Automation) {
			defer wg.Done()

			e.runAutomation(ctx, automation, event)
		}(automation)
	}

	wg.Wait()

	return e.enrollWorkflows(ctx, event)
}

// runAutomation executes one matched automation end to end. Failures
// are recorded in the ledger, never propagated, so one automation can
// not take down its siblings.
func (e *Engine) runAutomation(ctx context.Context, automation *models.Automation, event models.DomainEvent) {
	logger := e.logger.With("automation_id", automation.ID, "event_id", event.ID)

	started := time.Now().UTC()

	record := &models.ExecutionRecord{
		ID:           newExecutionID(),
		AutomationID: automation.ID,
		EntityID:     event.Entity.ID,
		EntityType:   event.Entity.Type,
		TriggerType:  event.Type,
		StartedAt:    started,
	}

	// Stored state is re-checked at execution entry: an automation may
	// have been emptied between matching and running.
	if !automation.HasActions() {
		logger.WarnContext(ctx, "Automation has no actions, skipping")

		record.Status = models.ExecutionSkipped
		e.record(ctx, record, started)

		return
	}

	if !e.evaluator.Evaluate(automation.Conditions, event.Entity.Snapshot, event.Payload) {
		logger.InfoContext(ctx, "Conditions not met, skipping")

		record.Status = models.ExecutionSkipped
		e.record(ctx, record, started)

		return
	}

	executionCtx := models.ExecutionContext{
		ID:           record.ID,
		AutomationID: automation.ID,
		Event:        event,
	}

	e.publish(ctx, event.Entity.ID, events.AutomationTriggered{
		BaseEvent:    e.baseEvent(events.AutomationTriggeredEvent),
		AutomationID: automation.ID,
		ExecutionID:  record.ID,
		Event:        event,
	})

	results := e.dispatcher.Execute(ctx, automation.Actions, &executionCtx)

	record.ActionResults = results
	record.Status = summarize(results)
	record.Error = firstError(results)

	e.record(ctx, record, started)

	switch record.Status {
	case models.ExecutionFailed:
		e.publish(ctx, event.Entity.ID, events.AutomationFailed{
			BaseEvent:    e.baseEvent(events.AutomationFailedEvent),
			AutomationID: automation.ID,
			ExecutionID:  record.ID,
			EntityID:     event.Entity.ID,
			Error:        record.Error,
			DurationMs:   record.DurationMs,
		})
	case models.ExecutionSuccess, models.ExecutionPartial, models.ExecutionSkipped:
		e.publish(ctx, event.Entity.ID, events.AutomationCompleted{
			BaseEvent:    e.baseEvent(events.AutomationCompletedEvent),
			AutomationID: automation.ID,
			ExecutionID:  record.ID,
			EntityID:     event.Entity.ID,
			Status:       record.Status,
			DurationMs:   record.DurationMs,
		})
	}

	logger.InfoContext(ctx, "Automation executed",
		"status", record.Status,
		"actions", len(results),
		"duration_ms", record.DurationMs)
}

// enrollWorkflows binds the entity to every active workflow whose
// trigger rules match the event. An entity is enrolled at most once per
// workflow.
func (e *Engine) enrollWorkflows(ctx context.Context, event models.DomainEvent) error {
	workflows, err := e.persistence.ActiveWorkflowsByTrigger(ctx, event.Type)
	if err != nil {
		return err
	}

	for _, workflow := range workflows {
		if !workflow.HasActions() {
			continue
		}

		if !e.matcher.MatchesWorkflow(event, workflow) {
			continue
		}

		existing, err := e.persistence.ActiveEnrollment(ctx, workflow.ID, event.Entity.ID)
		if err != nil {
			return err
		}

		if existing != nil {
			continue
		}

		enrollment := &models.SequenceEnrollment{
			ID:         newExecutionID(),
			WorkflowID: workflow.ID,
			EntityID:   event.Entity.ID,
			EntityType: event.Entity.Type,
			Status:     models.EnrollmentActive,
			Version:    1,
		}

		if len(workflow.Steps) > 0 {
			firstDue := time.Now().UTC().Add(workflow.Steps[0].Delay())
			enrollment.NextStepAt = &firstDue
		}

		err = e.persistence.SaveEnrollment(ctx, enrollment)
		if err != nil {
			return err
		}

		e.logger.InfoContext(ctx, "Enrolled entity into workflow",
			"workflow_id", workflow.ID,
			"entity_id", event.Entity.ID,
			"enrollment_id", enrollment.ID)
	}

	return nil
}

func (e *Engine) record(ctx context.Context, record *models.ExecutionRecord, started time.Time) {
	record.DurationMs = time.Since(started).Milliseconds()

	err := e.persistence.RecordExecution(ctx, record)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to record execution", "error", err, "execution_id", record.ID)
	}
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	err := e.publisher.Publish(ctx, key, event)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish event", "error", err, "event_type", event.GetType())
	}
}

func (e *Engine) baseEvent(eventType events.EventType) events.BaseEvent {
	return events.BaseEvent{
		ID:        newExecutionID(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		WorkerID:  e.workerID,
	}
}

func newExecutionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}

// summarize folds per-action results into the run status.
func summarize(results []models.ActionResult) models.ExecutionStatus {
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

func firstError(results []models.ActionResult) string {
	for _, result := range results {
		if result.Status == models.ActionFailed {
			return result.Error
		}
	}

	return ""
}
