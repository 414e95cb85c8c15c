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

// EnrollmentRepository handles sequence enrollment database operations.
type EnrollmentRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewEnrollmentRepository creates a new enrollment repository.
func NewEnrollmentRepository(db *sql.DB, logger *slog.Logger) *EnrollmentRepository {
	return &EnrollmentRepository{db: db, logger: logger}
}

const enrollmentColumns = `
	id
  , workflow_id
  , entity_id
  , entity_type
  , steps_completed
  , status
  , next_step_at
  , version
  , created_at
  , updated_at
`

func scanEnrollment(row rowScanner) (*models.SequenceEnrollment, error) {
	var enrollment models.SequenceEnrollment

	err := row.Scan(
		&enrollment.ID,
		&enrollment.WorkflowID,
		&enrollment.EntityID,
		&enrollment.EntityType,
		&enrollment.StepsCompleted,
		&enrollment.Status,
		&enrollment.NextStepAt,
		&enrollment.Version,
		&enrollment.CreatedAt,
		&enrollment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &enrollment, nil
}

func (r *EnrollmentRepository) collect(ctx context.Context, rows *sql.Rows) ([]*models.SequenceEnrollment, error) {
	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	enrollments := make([]*models.SequenceEnrollment, 0)

	for rows.Next() {
		enrollment, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}

		enrollments = append(enrollments, enrollment)
	}

	err := rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating enrollments: %w", err)
	}

	return enrollments, nil
}

func (r *EnrollmentRepository) GetByID(ctx context.Context, id string) (*models.SequenceEnrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM sequence_enrollments WHERE id = $1`

	enrollment, err := scanEnrollment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEnrollmentError("GetByID", id, persistence.ErrEnrollmentNotFound)
		}

		return nil, fmt.Errorf("failed to scan enrollment: %w", err)
	}

	return enrollment, nil
}

// GetActive returns the active enrollment for the workflow and entity
// pair, or nil when none exists.
func (r *EnrollmentRepository) GetActive(ctx context.Context, workflowID, entityID string) (*models.SequenceEnrollment, error) {
	query := `
		SELECT ` + enrollmentColumns + `
		FROM sequence_enrollments
		WHERE workflow_id = $1 AND entity_id = $2 AND status = 'active'
	`

	enrollment, err := scanEnrollment(r.db.QueryRowContext(ctx, query, workflowID, entityID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan enrollment: %w", err)
	}

	return enrollment, nil
}

func (r *EnrollmentRepository) GetForEntity(ctx context.Context, entityID string) ([]*models.SequenceEnrollment, error) {
	query := `
		SELECT ` + enrollmentColumns + `
		FROM sequence_enrollments
		WHERE entity_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query enrollments: %w", err)
	}

	return r.collect(ctx, rows)
}

func (r *EnrollmentRepository) Save(ctx context.Context, enrollment *models.SequenceEnrollment) error {
	now := time.Now().UTC()

	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}

	enrollment.UpdatedAt = now

	if enrollment.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate enrollment ID: %w", err)
		}

		enrollment.ID = id.String()
	}

	if enrollment.Version == 0 {
		enrollment.Version = 1
	}

	query := `
		INSERT INTO sequence_enrollments (
			id, workflow_id, entity_id, entity_type, steps_completed,
			status, next_step_at, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			steps_completed = EXCLUDED.steps_completed,
			status = EXCLUDED.status,
			next_step_at = EXCLUDED.next_step_at,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		enrollment.ID,
		enrollment.WorkflowID,
		enrollment.EntityID,
		enrollment.EntityType,
		enrollment.StepsCompleted,
		enrollment.Status,
		enrollment.NextStepAt,
		enrollment.Version,
		enrollment.CreatedAt,
		enrollment.UpdatedAt,
	)
	if err != nil {
		return persistence.NewEnrollmentError("Save", enrollment.ID, err)
	}

	return nil
}

// UpdateVersioned performs a compare-and-swap on the version column so
// concurrent runners cannot double-advance the same enrollment.
func (r *EnrollmentRepository) UpdateVersioned(ctx context.Context, enrollment *models.SequenceEnrollment) error {
	enrollment.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE sequence_enrollments SET
			steps_completed = $1,
			status = $2,
			next_step_at = $3,
			version = version + 1,
			updated_at = $4
		WHERE id = $5 AND version = $6
	`

	result, err := r.db.ExecContext(ctx, query,
		enrollment.StepsCompleted,
		enrollment.Status,
		enrollment.NextStepAt,
		enrollment.UpdatedAt,
		enrollment.ID,
		enrollment.Version,
	)
	if err != nil {
		return persistence.NewEnrollmentError("UpdateVersioned", enrollment.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewEnrollmentError("UpdateVersioned", enrollment.ID, err)
	}

	if affected == 0 {
		return persistence.NewEnrollmentError("UpdateVersioned", enrollment.ID, persistence.ErrVersionConflict)
	}

	enrollment.Version++

	return nil
}

func (r *EnrollmentRepository) GetDue(ctx context.Context, now time.Time, limit int) ([]*models.SequenceEnrollment, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT ` + enrollmentColumns + `
		FROM sequence_enrollments
		WHERE status = 'active' AND (next_step_at IS NULL OR next_step_at <= $1)
		ORDER BY next_step_at ASC NULLS FIRST
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due enrollments: %w", err)
	}

	return r.collect(ctx, rows)
}

// Persistence passthroughs.

func (p *Persistence) EnrollmentByID(ctx context.Context, id string) (*models.SequenceEnrollment, error) {
	return p.enrollments.GetByID(ctx, id)
}

func (p *Persistence) ActiveEnrollment(ctx context.Context, workflowID, entityID string) (*models.SequenceEnrollment, error) {
	return p.enrollments.GetActive(ctx, workflowID, entityID)
}

func (p *Persistence) EnrollmentsForEntity(ctx context.Context, entityID string) ([]*models.SequenceEnrollment, error) {
	return p.enrollments.GetForEntity(ctx, entityID)
}

func (p *Persistence) SaveEnrollment(ctx context.Context, enrollment *models.SequenceEnrollment) error {
	return p.enrollments.Save(ctx, enrollment)
}

func (p *Persistence) UpdateEnrollmentVersioned(ctx context.Context, enrollment *models.SequenceEnrollment) error {
	return p.enrollments.UpdateVersioned(ctx, enrollment)
}

func (p *Persistence) DueEnrollments(ctx context.Context, now time.Time, limit int) ([]*models.SequenceEnrollment, error) {
	return p.enrollments.GetDue(ctx, now, limit)
}
