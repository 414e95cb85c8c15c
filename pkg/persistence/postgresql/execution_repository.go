package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/casaflow/casaflow/pkg/models"
	"github.com/casaflow/casaflow/pkg/persistence"
	"github.com/google/uuid"
)

// ExecutionRepository handles the append-only execution ledger.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

func (r *ExecutionRepository) Record(ctx context.Context, record *models.ExecutionRecord) error {
	if record.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate execution ID: %w", err)
		}

		record.ID = id.String()
	}

	if record.StartedAt.IsZero() {
		record.StartedAt = time.Now().UTC()
	}

	resultsJSON, err := json.Marshal(record.ActionResults)
	if err != nil {
		return fmt.Errorf("failed to marshal action results: %w", err)
	}

	query := `
		INSERT INTO execution_records (
			id, automation_id, workflow_id, enrollment_id, entity_id,
			entity_type, trigger_type, status, error, action_results,
			started_at, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = r.db.ExecContext(ctx, query,
		record.ID,
		nullableID(record.AutomationID),
		nullableID(record.WorkflowID),
		nullableID(record.EnrollmentID),
		record.EntityID,
		record.EntityType,
		record.TriggerType,
		record.Status,
		record.Error,
		resultsJSON,
		record.StartedAt,
		record.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to record execution %s: %w", record.ID, err)
	}

	return nil
}

func nullableID(id string) any {
	if id == "" {
		return nil
	}

	return id
}

func (r *ExecutionRepository) Query(ctx context.Context, query persistence.ExecutionQuery) ([]*models.ExecutionRecord, error) {
	if query.Limit <= 0 || query.Limit > 100 {
		query.Limit = 20
	}

	clauses := make([]string, 0, 4)
	args := make([]any, 0, 6)

	addClause := func(column string, value any) {
		args = append(args, value)
		clauses = append(clauses, column+" = $"+strconv.Itoa(len(args)))
	}

	if query.AutomationID != "" {
		addClause("automation_id", query.AutomationID)
	}

	if query.WorkflowID != "" {
		addClause("workflow_id", query.WorkflowID)
	}

	if query.EntityID != "" {
		addClause("entity_id", query.EntityID)
	}

	if query.Status != "" {
		addClause("status", query.Status)
	}

	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}

	args = append(args, query.Limit, query.Offset)

	sqlQuery := fmt.Sprintf(`
		SELECT
			id
		  , COALESCE(automation_id::text, '')
		  , COALESCE(workflow_id::text, '')
		  , COALESCE(enrollment_id::text, '')
		  , entity_id
		  , entity_type
		  , trigger_type
		  , status
		  , error
		  , action_results
		  , started_at
		  , duration_ms
		FROM execution_records
		%s
		ORDER BY started_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	records := make([]*models.ExecutionRecord, 0)

	for rows.Next() {
		var (
			record      models.ExecutionRecord
			resultsJSON []byte
		)

		err = rows.Scan(
			&record.ID,
			&record.AutomationID,
			&record.WorkflowID,
			&record.EnrollmentID,
			&record.EntityID,
			&record.EntityType,
			&record.TriggerType,
			&record.Status,
			&record.Error,
			&resultsJSON,
			&record.StartedAt,
			&record.DurationMs,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		err = json.Unmarshal(resultsJSON, &record.ActionResults)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal action results: %w", err)
		}

		records = append(records, &record)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return records, nil
}

// Stats aggregates the ledger for one automation or workflow. Skipped
// runs count toward the total but not toward the success rate.
func (r *ExecutionRepository) Stats(ctx context.Context, parentID string, since time.Time) (*models.ExecutionStats, error) {
	query := `
		SELECT
			COUNT(*)
		  , COUNT(*) FILTER (WHERE status = 'success')
		  , COUNT(*) FILTER (WHERE status IN ('failed', 'partial'))
		  , COALESCE(AVG(duration_ms) FILTER (WHERE status <> 'skipped'), 0)
		  , MAX(started_at)
		FROM execution_records
		WHERE (automation_id = $1 OR workflow_id = $1)
		  AND ($2::timestamptz IS NULL OR started_at >= $2)
	`

	var sinceArg any
	if !since.IsZero() {
		sinceArg = since
	}

	stats := &models.ExecutionStats{}

	var lastExecution sql.NullTime

	err := r.db.QueryRowContext(ctx, query, parentID, sinceArg).Scan(
		&stats.TotalExecutions,
		&stats.SuccessfulExecutions,
		&stats.FailedExecutions,
		&stats.AvgExecutionTimeMs,
		&lastExecution,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution stats: %w", err)
	}

	executed := stats.SuccessfulExecutions + stats.FailedExecutions
	if executed > 0 {
		stats.SuccessRate = float64(stats.SuccessfulExecutions) / float64(executed)
	}

	if lastExecution.Valid {
		stats.LastExecution = &lastExecution.Time
	}

	return stats, nil
}

// Persistence passthroughs.

func (p *Persistence) RecordExecution(ctx context.Context, record *models.ExecutionRecord) error {
	return p.executions.Record(ctx, record)
}

func (p *Persistence) Executions(ctx context.Context, query persistence.ExecutionQuery) ([]*models.ExecutionRecord, error) {
	return p.executions.Query(ctx, query)
}

func (p *Persistence) ExecutionStats(ctx context.Context, parentID string, since time.Time) (*models.ExecutionStats, error) {
	return p.executions.Stats(ctx, parentID, since)
}
