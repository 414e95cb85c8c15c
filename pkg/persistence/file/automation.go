package file

import (
	"context"
	"sort"
	"time"

	"github.com/casaflow/casaflow/pkg/models"
	"github.com/casaflow/casaflow/pkg/persistence"
)

// Automations returns all automations sorted by priority ascending with
// created_at as the tie-breaker.
func (fp *Persistence) Automations(ctx context.Context, opts persistence.ListOptions) ([]*models.Automation, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	automations, err := fp.loadAutomations(ctx)
	if err != nil {
		return nil, err
	}

	return paginate(automations, opts.Limit, opts.Offset), nil
}

func (fp *Persistence) loadAutomations(ctx context.Context) ([]*models.Automation, error) {
	ids, err := fp.listIDs(automationsDir)
	if err != nil {
		return nil, err
	}

	automations := make([]*models.Automation, 0, len(ids))

	for _, id := range ids {
		var automation models.Automation

		found, err := fp.readJSON(automationsDir, id, &automation)
		if err != nil {
			return nil, err
		}

		if found {
			automations = append(automations, &automation)
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	sortAutomations(automations)

	return automations, nil
}

func sortAutomations(automations []*models.Automation) {
	sort.Slice(automations, func(i, j int) bool {
		if automations[i].Priority != automations[j].Priority {
			return automations[i].Priority < automations[j].Priority
		}

		return automations[i].CreatedAt.Before(automations[j].CreatedAt)
	})
}

func (fp *Persistence) AutomationByID(_ context.Context, id string) (*models.Automation, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	var automation models.Automation

	found, err := fp.readJSON(automationsDir, id, &automation)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.NewAutomationError("GetByID", id, persistence.ErrAutomationNotFound)
	}

	return &automation, nil
}

func (fp *Persistence) ActiveAutomationsByTrigger(ctx context.Context, triggerType models.TriggerType) ([]*models.Automation, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	automations, err := fp.loadAutomations(ctx)
	if err != nil {
		return nil, err
	}

	matching := make([]*models.Automation, 0)

	for _, automation := range automations {
		if automation.IsActive && automation.TriggerType == triggerType {
			matching = append(matching, automation)
		}
	}

	return matching, nil
}

func (fp *Persistence) SaveAutomation(_ context.Context, automation *models.Automation) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	now := time.Now().UTC()
	if automation.CreatedAt.IsZero() {
		automation.CreatedAt = now
	}

	automation.UpdatedAt = now

	return fp.writeJSON(automationsDir, automation.ID, automation)
}

// DeleteAutomation removes the automation, its schedule row and every
// ledger record it produced.
func (fp *Persistence) DeleteAutomation(ctx context.Context, id string) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	err := fp.removeJSON(automationsDir, id)
	if err != nil {
		return persistence.NewAutomationError("Delete", id, err)
	}

	err = fp.removeJSON(schedulesDir, id)
	if err != nil {
		return persistence.NewAutomationError("Delete", id, err)
	}

	return fp.deleteExecutionsForParent(ctx, id)
}
