package models

import (
	"errors"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidSchedule is returned when schedule validation fails.
var ErrInvalidSchedule = errors.New("invalid schedule configuration")

// Schedule backs a time_based automation. The cron expression and the
// precomputed next execution time are stored so the scheduler can poll
// due rows without keeping per-automation timers.
type Schedule struct {
	ID             string    `json:"id"             validate:"required"`
	AutomationID   string    `json:"automation_id"  validate:"required"`
	CronExpression string    `json:"cron_expression" validate:"required"`
	NextDueAt      time.Time `json:"next_due_at"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewSchedule creates a schedule with its first due time computed from now.
func NewSchedule(id, automationID, cronExpression string) (*Schedule, error) {
	now := time.Now().UTC()
	schedule := &Schedule{
		ID:             id,
		AutomationID:   automationID,
		CronExpression: cronExpression,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := schedule.computeNextDueAt(now)
	if err != nil {
		return nil, err
	}

	return schedule, nil
}

// Advance moves NextDueAt to the next occurrence after the given time.
// Called by the scheduler after a due schedule has fired.
func (s *Schedule) Advance(after time.Time) error {
	return s.computeNextDueAt(after)
}

func (s *Schedule) computeNextDueAt(reference time.Time) error {
	cronSchedule, err := cronParser().Parse(s.CronExpression)
	if err != nil {
		return err
	}

	s.NextDueAt = cronSchedule.Next(reference)
	s.UpdatedAt = time.Now().UTC()

	return nil
}

// IsDue reports whether the schedule should fire at the given time.
func (s *Schedule) IsDue(now time.Time) bool {
	return s.Active && !s.NextDueAt.After(now)
}

// Validate checks identifiers and the cron expression format.
func (s *Schedule) Validate() error {
	if s.ID == "" || s.AutomationID == "" || s.CronExpression == "" {
		return ErrInvalidSchedule
	}

	_, err := cronParser().Parse(s.CronExpression)

	return err
}

// cronParser accepts the standard 5-field format (minute hour dom month dow).
func cronParser() cron.Parser {
	return cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
}
