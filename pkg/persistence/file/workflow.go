package file

import (
	"context"
	"sort"
	"time"

	"github.com/casaflow/casaflow/pkg/models"
	"github.com/casaflow/casaflow/pkg/persistence"
)

func (fp *Persistence) Workflows(ctx context.Context, opts persistence.ListOptions) ([]*models.Workflow, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	workflows, err := fp.loadWorkflows(ctx)
	if err != nil {
		return nil, err
	}

	return paginate(workflows, opts.Limit, opts.Offset), nil
}

func (fp *Persistence) loadWorkflows(ctx context.Context) ([]*models.Workflow, error) {
	ids, err := fp.listIDs(workflowsDir)
	if err != nil {
		return nil, err
	}

	workflows := make([]*models.Workflow, 0, len(ids))

	for _, id := range ids {
		var workflow models.Workflow

		found, err := fp.readJSON(workflowsDir, id, &workflow)
		if err != nil {
			return nil, err
		}

		if found {
			workflows = append(workflows, &workflow)
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
	})

	return workflows, nil
}

func (fp *Persistence) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	var workflow models.Workflow

	found, err := fp.readJSON(workflowsDir, id, &workflow)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ErrWorkflowNotFound
	}

	return &workflow, nil
}

func (fp *Persistence) ActiveWorkflowsByTrigger(ctx context.Context, triggerType models.TriggerType) ([]*models.Workflow, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	workflows, err := fp.loadWorkflows(ctx)
	if err != nil {
		return nil, err
	}

	matching := make([]*models.Workflow, 0)

	for _, workflow := range workflows {
		if workflow.IsActive && workflow.TriggerType == triggerType {
			matching = append(matching, workflow)
		}
	}

	return matching, nil
}

func (fp *Persistence) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	return fp.writeJSON(workflowsDir, workflow.ID, workflow)
}

func (fp *Persistence) DeleteWorkflow(ctx context.Context, id string) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	err := fp.removeJSON(workflowsDir, id)
	if err != nil {
		return err
	}

	err = fp.deleteEnrollmentsForWorkflow(id)
	if err != nil {
		return err
	}

	return fp.deleteExecutionsForParent(ctx, id)
}

func (fp *Persistence) deleteEnrollmentsForWorkflow(workflowID string) error {
	ids, err := fp.listIDs(enrollmentsDir)
	if err != nil {
		return err
	}

	for _, id := range ids {
		var enrollment models.SequenceEnrollment

		found, err := fp.readJSON(enrollmentsDir, id, &enrollment)
		if err != nil {
			return err
		}

		if !found || enrollment.WorkflowID != workflowID {
			continue
		}

		err = fp.removeJSON(enrollmentsDir, id)
		if err != nil {
			return err
		}
	}

	return nil
}
