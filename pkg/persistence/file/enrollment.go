package file

import (
	"context"
	"sort"
	"time"

	"github.com/casaflow/casaflow/pkg/models"
	"github.com/casaflow/casaflow/pkg/persistence"
)

func (fp *Persistence) EnrollmentByID(_ context.Context, id string) (*models.SequenceEnrollment, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	return fp.loadEnrollment(id)
}

func (fp *Persistence) loadEnrollment(id string) (*models.SequenceEnrollment, error) {
	var enrollment models.SequenceEnrollment

	found, err := fp.readJSON(enrollmentsDir, id, &enrollment)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.NewEnrollmentError("GetByID", id, persistence.ErrEnrollmentNotFound)
	}

	return &enrollment, nil
}

func (fp *Persistence) loadEnrollments(ctx context.Context) ([]*models.SequenceEnrollment, error) {
	ids, err := fp.listIDs(enrollmentsDir)
	if err != nil {
		return nil, err
	}

	enrollments := make([]*models.SequenceEnrollment, 0, len(ids))

	for _, id := range ids {
		var enrollment models.SequenceEnrollment

		found, err := fp.readJSON(enrollmentsDir, id, &enrollment)
		if err != nil {
			return nil, err
		}

		if found {
			enrollments = append(enrollments, &enrollment)
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return enrollments, nil
}

// ActiveEnrollment returns the active enrollment binding the entity to
// the workflow, or nil when none exists. Used to keep enrollments unique
// per workflow and entity.
func (fp *Persistence) ActiveEnrollment(ctx context.Context, workflowID, entityID string) (*models.SequenceEnrollment, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	enrollments, err := fp.loadEnrollments(ctx)
	if err != nil {
		return nil, err
	}

	for _, enrollment := range enrollments {
		if enrollment.WorkflowID == workflowID &&
			enrollment.EntityID == entityID &&
			enrollment.Status == models.EnrollmentActive {
			return enrollment, nil
		}
	}

	return nil, nil
}

func (fp *Persistence) EnrollmentsForEntity(ctx context.Context, entityID string) ([]*models.SequenceEnrollment, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	enrollments, err := fp.loadEnrollments(ctx)
	if err != nil {
		return nil, err
	}

	matching := make([]*models.SequenceEnrollment, 0)

	for _, enrollment := range enrollments {
		if enrollment.EntityID == entityID {
			matching = append(matching, enrollment)
		}
	}

	sort.Slice(matching, func(i, j int) bool {
		return matching[i].CreatedAt.Before(matching[j].CreatedAt)
	})

	return matching, nil
}

func (fp *Persistence) SaveEnrollment(_ context.Context, enrollment *models.SequenceEnrollment) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	now := time.Now().UTC()
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}

	enrollment.UpdatedAt = now

	return fp.writeJSON(enrollmentsDir, enrollment.ID, enrollment)
}

// UpdateEnrollmentVersioned applies the update only when the stored
// version still matches. The write lock makes the compare-and-swap
// atomic for this backend.
func (fp *Persistence) UpdateEnrollmentVersioned(_ context.Context, enrollment *models.SequenceEnrollment) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	stored, err := fp.loadEnrollment(enrollment.ID)
	if err != nil {
		return err
	}

	if stored.Version != enrollment.Version {
		return persistence.NewEnrollmentError("UpdateVersioned", enrollment.ID, persistence.ErrVersionConflict)
	}

	enrollment.Version++
	enrollment.UpdatedAt = time.Now().UTC()

	return fp.writeJSON(enrollmentsDir, enrollment.ID, enrollment)
}

func (fp *Persistence) DueEnrollments(ctx context.Context, now time.Time, limit int) ([]*models.SequenceEnrollment, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	enrollments, err := fp.loadEnrollments(ctx)
	if err != nil {
		return nil, err
	}

	due := make([]*models.SequenceEnrollment, 0)

	for _, enrollment := range enrollments {
		if enrollment.Due(now) {
			due = append(due, enrollment)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		left, right := due[i].NextStepAt, due[j].NextStepAt
		if left == nil || right == nil {
			return right != nil
		}

		return left.Before(*right)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	return due, nil
}
