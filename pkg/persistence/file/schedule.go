package file

import (
	"context"
	"time"

	"github.com/casaflow/casaflow/pkg/models"
	"github.com/casaflow/casaflow/pkg/persistence"
)

// Schedules are keyed by automation ID, one schedule per automation.

func (fp *Persistence) SaveSchedule(_ context.Context, schedule *models.Schedule) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	now := time.Now().UTC()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}

	schedule.UpdatedAt = now

	return fp.writeJSON(schedulesDir, schedule.AutomationID, schedule)
}

func (fp *Persistence) ScheduleForAutomation(_ context.Context, automationID string) (*models.Schedule, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	var schedule models.Schedule

	found, err := fp.readJSON(schedulesDir, automationID, &schedule)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ErrScheduleNotFound
	}

	return &schedule, nil
}

func (fp *Persistence) DeleteScheduleForAutomation(_ context.Context, automationID string) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	return fp.removeJSON(schedulesDir, automationID)
}

func (fp *Persistence) DueSchedules(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	ids, err := fp.listIDs(schedulesDir)
	if err != nil {
		return nil, err
	}

	due := make([]*models.Schedule, 0)

	for _, id := range ids {
		var schedule models.Schedule

		found, err := fp.readJSON(schedulesDir, id, &schedule)
		if err != nil {
			return nil, err
		}

		if found && schedule.IsDue(now) {
			due = append(due, &schedule)
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return due, nil
}
