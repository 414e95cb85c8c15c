package file

import (
	"context"
	"sort"
	"time"

	"github.com/casaflow/casaflow/pkg/models"
	"github.com/casaflow/casaflow/pkg/persistence"
)

func (fp *Persistence) RecordExecution(_ context.Context, record *models.ExecutionRecord) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	if record.StartedAt.IsZero() {
		record.StartedAt = time.Now().UTC()
	}

	return fp.writeJSON(executionsDir, record.ID, record)
}

func (fp *Persistence) loadExecutions(ctx context.Context) ([]*models.ExecutionRecord, error) {
	ids, err := fp.listIDs(executionsDir)
	if err != nil {
		return nil, err
	}

	records := make([]*models.ExecutionRecord, 0, len(ids))

	for _, id := range ids {
		var record models.ExecutionRecord

		found, err := fp.readJSON(executionsDir, id, &record)
		if err != nil {
			return nil, err
		}

		if found {
			records = append(records, &record)
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return records, nil
}

// Executions returns ledger records matching the query, most recent first.
func (fp *Persistence) Executions(ctx context.Context, query persistence.ExecutionQuery) ([]*models.ExecutionRecord, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	records, err := fp.loadExecutions(ctx)
	if err != nil {
		return nil, err
	}

	matching := make([]*models.ExecutionRecord, 0)

	for _, record := range records {
		if query.AutomationID != "" && record.AutomationID != query.AutomationID {
			continue
		}

		if query.WorkflowID != "" && record.WorkflowID != query.WorkflowID {
			continue
		}

		if query.EntityID != "" && record.EntityID != query.EntityID {
			continue
		}

		if query.Status != "" && record.Status != query.Status {
			continue
		}

		matching = append(matching, record)
	}

	sort.Slice(matching, func(i, j int) bool {
		return matching[i].StartedAt.After(matching[j].StartedAt)
	})

	return paginate(matching, query.Limit, query.Offset), nil
}

// ExecutionStats aggregates the ledger for one automation or workflow.
// Skipped runs count toward the total but not toward the success rate.
func (fp *Persistence) ExecutionStats(ctx context.Context, parentID string, since time.Time) (*models.ExecutionStats, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	records, err := fp.loadExecutions(ctx)
	if err != nil {
		return nil, err
	}

	stats := &models.ExecutionStats{}

	var totalDurationMs int64

	var executed int64

	for _, record := range records {
		if record.ParentID() != parentID {
			continue
		}

		if !since.IsZero() && record.StartedAt.Before(since) {
			continue
		}

		stats.TotalExecutions++

		switch record.Status {
		case models.ExecutionSuccess:
			stats.SuccessfulExecutions++
		case models.ExecutionFailed, models.ExecutionPartial:
			stats.FailedExecutions++
		case models.ExecutionSkipped:
		}

		if record.Status != models.ExecutionSkipped {
			executed++
			totalDurationMs += record.DurationMs
		}

		if stats.LastExecution == nil || record.StartedAt.After(*stats.LastExecution) {
			startedAt := record.StartedAt
			stats.LastExecution = &startedAt
		}
	}

	if executed > 0 {
		stats.SuccessRate = float64(stats.SuccessfulExecutions) / float64(executed)
		stats.AvgExecutionTimeMs = float64(totalDurationMs) / float64(executed)
	}

	return stats, nil
}

func (fp *Persistence) deleteExecutionsForParent(ctx context.Context, parentID string) error {
	records, err := fp.loadExecutions(ctx)
	if err != nil {
		return err
	}

	for _, record := range records {
		if record.ParentID() != parentID {
			continue
		}

		err = fp.removeJSON(executionsDir, record.ID)
		if err != nil {
			return err
		}
	}

	return nil
}
