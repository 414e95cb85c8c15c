package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/casaflow/casaflow/pkg/models"
	"github.com/casaflow/casaflow/pkg/persistence"
	"github.com/google/uuid"
)

// ScheduleRepository handles schedule rows backing time_based automations.
type ScheduleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *sql.DB, logger *slog.Logger) *ScheduleRepository {
	return &ScheduleRepository{db: db, logger: logger}
}

const scheduleColumns = `
	id
  , automation_id
  , cron_expression
  , next_due_at
  , active
  , created_at
  , updated_at
`

func scanSchedule(row rowScanner) (*models.Schedule, error) {
	var schedule models.Schedule

	err := row.Scan(
		&schedule.ID,
		&schedule.AutomationID,
		&schedule.CronExpression,
		&schedule.NextDueAt,
		&schedule.Active,
		&schedule.CreatedAt,
		&schedule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &schedule, nil
}

// Save upserts on the automation ID so each automation keeps exactly
// one schedule row.
func (r *ScheduleRepository) Save(ctx context.Context, schedule *models.Schedule) error {
	now := time.Now().UTC()

	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}

	schedule.UpdatedAt = now

	if schedule.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate schedule ID: %w", err)
		}

		schedule.ID = id.String()
	}

	query := `
		INSERT INTO schedules (
			id, automation_id, cron_expression, next_due_at, active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (automation_id) DO UPDATE SET
			cron_expression = EXCLUDED.cron_expression,
			next_due_at = EXCLUDED.next_due_at,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		schedule.ID,
		schedule.AutomationID,
		schedule.CronExpression,
		schedule.NextDueAt,
		schedule.Active,
		schedule.CreatedAt,
		schedule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save schedule for automation %s: %w", schedule.AutomationID, err)
	}

	return nil
}

func (r *ScheduleRepository) GetForAutomation(ctx context.Context, automationID string) (*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE automation_id = $1`

	schedule, err := scanSchedule(r.db.QueryRowContext(ctx, query, automationID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrScheduleNotFound
		}

		return nil, fmt.Errorf("failed to scan schedule: %w", err)
	}

	return schedule, nil
}

func (r *ScheduleRepository) DeleteForAutomation(ctx context.Context, automationID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM schedules WHERE automation_id = $1`, automationID)
	if err != nil {
		return fmt.Errorf("failed to delete schedule for automation %s: %w", automationID, err)
	}

	return nil
}

func (r *ScheduleRepository) GetDue(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM schedules
		WHERE active = TRUE AND next_due_at <= $1
		ORDER BY next_due_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due schedules: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	schedules := make([]*models.Schedule, 0)

	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}

		schedules = append(schedules, schedule)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating schedules: %w", err)
	}

	return schedules, nil
}

// Persistence passthroughs.

func (p *Persistence) SaveSchedule(ctx context.Context, schedule *models.Schedule) error {
	return p.schedules.Save(ctx, schedule)
}

func (p *Persistence) ScheduleForAutomation(ctx context.Context, automationID string) (*models.Schedule, error) {
	return p.schedules.GetForAutomation(ctx, automationID)
}

func (p *Persistence) DeleteScheduleForAutomation(ctx context.Context, automationID string) error {
	return p.schedules.DeleteForAutomation(ctx, automationID)
}

func (p *Persistence) DueSchedules(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	return p.schedules.GetDue(ctx, now)
}
