// Package scheduler implements the durable time poller: it drives
// time_based automation schedules and due workflow enrollments off
// their persisted due times, so pending work survives restarts.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/casaflow/casaflow/pkg/eventbus"
	"github.com/casaflow/casaflow/pkg/events"
	"github.com/casaflow/casaflow/pkg/models"
	"github.com/casaflow/casaflow/pkg/persistence"
	"github.com/casaflow/casaflow/pkg/protocol"
	"github.com/google/uuid"
)

const defaultPollInterval = 1 * time.Minute

// DefaultDueBatch caps how many due enrollments one tick picks up.
const DefaultDueBatch = 100

// Source polls the store for due automation schedules and due
// enrollments. Due-ness lives entirely in the database, so a restart
// resumes from where the store says things stand; overdue items run
// immediately on the next tick instead of being skipped.
type Source struct {
	persistence  persistence.Persistence
	publisher    eventbus.EventPublisher
	logger       *slog.Logger
	workerID     string
	pollInterval time.Duration
	dueBatch     int

	callback protocol.SourceCallback
	ticker   *time.Ticker
	done     chan bool
	started  bool
	mu       sync.Mutex
}

type Option func(*Source)

func WithPollInterval(interval time.Duration) Option {
	return func(s *Source) {
		if interval > 0 {
			s.pollInterval = interval
		}
	}
}

func WithDueBatch(limit int) Option {
	return func(s *Source) {
		if limit > 0 {
			s.dueBatch = limit
		}
	}
}

func NewSource(p persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger, workerID string, opts ...Option) *Source {
	source := &Source{
		persistence:  p,
		publisher:    publisher,
		logger:       logger.With("module", "scheduler", "worker_id", workerID),
		workerID:     workerID,
		pollInterval: defaultPollInterval,
		dueBatch:     DefaultDueBatch,
	}

	for _, opt := range opts {
		opt(source)
	}

	return source
}

func (s *Source) Validate() error {
	if s.persistence == nil {
		return errors.New("scheduler requires a persistence backend")
	}

	return nil
}

// Start begins polling. The callback receives one synthetic time_based
// domain event per due schedule; due enrollments are announced on the
// event bus instead, since the step runner owns them.
func (s *Source) Start(ctx context.Context, callback protocol.SourceCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	err := s.Validate()
	if err != nil {
		return err
	}

	s.callback = callback
	s.ticker = time.NewTicker(s.pollInterval)
	s.done = make(chan bool)
	s.started = true

	s.logger.InfoContext(ctx, "Starting scheduler poller", "poll_interval", s.pollInterval)

	go s.run(ctx)

	return nil
}

func (s *Source) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.ticker.Stop()
	close(s.done)
	s.started = false

	s.logger.InfoContext(ctx, "Scheduler poller stopped")

	return nil
}

func (s *Source) run(ctx context.Context) {
	// Immediate first pass picks up anything that came due while the
	// process was down.
	s.poll(ctx)

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-s.ticker.C:
			s.poll(ctx)
		}
	}
}

// Poll runs one scheduling pass. Exported so tests and one-shot
// invocations can drive it without the ticker.
func (s *Source) Poll(ctx context.Context) {
	s.poll(ctx)
}

func (s *Source) poll(ctx context.Context) {
	now := time.Now().UTC()

	err := s.processDueSchedules(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to process due schedules", "error", err)
	}

	err = s.processDueEnrollments(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to process due enrollments", "error", err)
	}
}

func (s *Source) processDueSchedules(ctx context.Context, now time.Time) error {
	due, err := s.persistence.DueSchedules(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to load due schedules: %w", err)
	}

	if len(due) > 0 {
		s.logger.InfoContext(ctx, "Processing due schedules", "count", len(due))
	}

	for _, schedule := range due {
		err := s.fireSchedule(ctx, schedule, now)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to fire schedule",
				"schedule_id", schedule.ID,
				"automation_id", schedule.AutomationID,
				"error", err)

			continue
		}

		// Advance before saving so a publish/advance failure leaves the
		// schedule due and retried on the next tick.
		err = schedule.Advance(now)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to advance schedule",
				"schedule_id", schedule.ID,
				"cron_expression", schedule.CronExpression,
				"error", err)

			continue
		}

		err = s.persistence.SaveSchedule(ctx, schedule)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to save advanced schedule",
				"schedule_id", schedule.ID,
				"error", err)
		}
	}

	return nil
}

// fireSchedule emits a synthetic time_based domain event for the
// schedule's automation. Deleted or deactivated automations retire
// their schedule instead of firing.
func (s *Source) fireSchedule(ctx context.Context, schedule *models.Schedule, now time.Time) error {
	automation, err := s.persistence.AutomationByID(ctx, schedule.AutomationID)
	if err != nil {
		if persistence.IsAutomationNotFound(err) {
			s.logger.WarnContext(ctx, "Schedule points at a deleted automation, removing",
				"schedule_id", schedule.ID,
				"automation_id", schedule.AutomationID)

			return s.persistence.DeleteScheduleForAutomation(ctx, schedule.AutomationID)
		}

		return err
	}

	if !automation.IsActive {
		s.logger.InfoContext(ctx, "Automation inactive, schedule not fired",
			"automation_id", automation.ID)

		return nil
	}

	event := models.DomainEvent{
		ID:   newID(),
		Type: models.TriggerTimeBased,
		Payload: map[string]any{
			"automation_id":   automation.ID,
			"cron_expression": schedule.CronExpression,
			"due_at":          schedule.NextDueAt.Format(time.RFC3339),
		},
		OccurredAt: now,
	}

	return s.callback(ctx, event)
}

func (s *Source) processDueEnrollments(ctx context.Context, now time.Time) error {
	due, err := s.persistence.DueEnrollments(ctx, now, s.dueBatch)
	if err != nil {
		return fmt.Errorf("failed to load due enrollments: %w", err)
	}

	if len(due) > 0 {
		s.logger.InfoContext(ctx, "Announcing due enrollment steps", "count", len(due))
	}

	for _, enrollment := range due {
		stepDue := events.EnrollmentStepDue{
			BaseEvent: events.BaseEvent{
				ID:        newID(),
				Type:      events.EnrollmentStepDueEvent,
				Timestamp: now,
				WorkerID:  s.workerID,
			},
			EnrollmentID: enrollment.ID,
			WorkflowID:   enrollment.WorkflowID,
			EntityID:     enrollment.EntityID,
			StepIndex:    enrollment.StepsCompleted,
		}

		err := s.publisher.Publish(ctx, enrollment.EntityID, stepDue)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to announce due enrollment",
				"enrollment_id", enrollment.ID,
				"error", err)
		}
	}

	return nil
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}
