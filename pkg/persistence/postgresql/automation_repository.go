package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/casaflow/casaflow/pkg/models"
	"github.com/casaflow/casaflow/pkg/persistence"
	"github.com/google/uuid"
)

// AutomationRepository handles automation-related database operations.
type AutomationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAutomationRepository creates a new automation repository.
func NewAutomationRepository(db *sql.DB, logger *slog.Logger) *AutomationRepository {
	return &AutomationRepository{db: db, logger: logger}
}

const automationColumns = `
	id
  , name
  , description
  , trigger_type
  , trigger_rules
  , conditions
  , actions
  , priority
  , is_active
  , created_at
  , updated_at
  , deleted_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAutomation(row rowScanner) (*models.Automation, error) {
	var (
		automation  models.Automation
		rulesJSON   []byte
		condsJSON   []byte
		actionsJSON []byte
	)

	err := row.Scan(
		&automation.ID,
		&automation.Name,
		&automation.Description,
		&automation.TriggerType,
		&rulesJSON,
		&condsJSON,
		&actionsJSON,
		&automation.Priority,
		&automation.IsActive,
		&automation.CreatedAt,
		&automation.UpdatedAt,
		&automation.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(rulesJSON, &automation.TriggerRules)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger rules: %w", err)
	}

	err = json.Unmarshal(condsJSON, &automation.Conditions)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal conditions: %w", err)
	}

	err = json.Unmarshal(actionsJSON, &automation.Actions)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal actions: %w", err)
	}

	return &automation, nil
}

func (r *AutomationRepository) collect(ctx context.Context, rows *sql.Rows) ([]*models.Automation, error) {
	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	automations := make([]*models.Automation, 0)

	for rows.Next() {
		automation, err := scanAutomation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan automation: %w", err)
		}

		automations = append(automations, automation)
	}

	err := rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating automations: %w", err)
	}

	return automations, nil
}

// GetAll returns automations ordered by priority with created_at as the
// tie-breaker.
func (r *AutomationRepository) GetAll(ctx context.Context, opts persistence.ListOptions) ([]*models.Automation, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	query := `
		SELECT ` + automationColumns + `
		FROM automations
		WHERE deleted_at IS NULL
		ORDER BY priority ASC, created_at ASC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query automations: %w", err)
	}

	return r.collect(ctx, rows)
}

func (r *AutomationRepository) GetByID(ctx context.Context, id string) (*models.Automation, error) {
	query := `
		SELECT ` + automationColumns + `
		FROM automations
		WHERE id = $1 AND deleted_at IS NULL
	`

	automation, err := scanAutomation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewAutomationError("GetByID", id, persistence.ErrAutomationNotFound)
		}

		return nil, fmt.Errorf("failed to scan automation: %w", err)
	}

	return automation, nil
}

func (r *AutomationRepository) GetActiveByTrigger(ctx context.Context, triggerType models.TriggerType) ([]*models.Automation, error) {
	query := `
		SELECT ` + automationColumns + `
		FROM automations
		WHERE trigger_type = $1 AND is_active = TRUE AND deleted_at IS NULL
		ORDER BY priority ASC, created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, triggerType)
	if err != nil {
		return nil, fmt.Errorf("failed to query automations by trigger: %w", err)
	}

	return r.collect(ctx, rows)
}

// Save upserts the automation, generating a UUIDv7 for new records.
func (r *AutomationRepository) Save(ctx context.Context, automation *models.Automation) error {
	now := time.Now().UTC()

	if automation.CreatedAt.IsZero() {
		automation.CreatedAt = now
	}

	automation.UpdatedAt = now

	if automation.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate automation ID: %w", err)
		}

		automation.ID = id.String()
	}

	rulesJSON, err := json.Marshal(automation.TriggerRules)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger rules: %w", err)
	}

	condsJSON, err := json.Marshal(automation.Conditions)
	if err != nil {
		return fmt.Errorf("failed to marshal conditions: %w", err)
	}

	actionsJSON, err := json.Marshal(automation.Actions)
	if err != nil {
		return fmt.Errorf("failed to marshal actions: %w", err)
	}

	query := `
		INSERT INTO automations (
			id, name, description, trigger_type, trigger_rules,
			conditions, actions, priority, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			trigger_type = EXCLUDED.trigger_type,
			trigger_rules = EXCLUDED.trigger_rules,
			conditions = EXCLUDED.conditions,
			actions = EXCLUDED.actions,
			priority = EXCLUDED.priority,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		automation.ID,
		automation.Name,
		automation.Description,
		automation.TriggerType,
		rulesJSON,
		condsJSON,
		actionsJSON,
		automation.Priority,
		automation.IsActive,
		automation.CreatedAt,
		automation.UpdatedAt,
	)
	if err != nil {
		return persistence.NewAutomationError("Save", automation.ID, err)
	}

	return nil
}

// Delete soft deletes the automation and hard deletes its schedule and
// ledger records in one transaction.
func (r *AutomationRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result, err := tx.ExecContext(ctx,
		`UPDATE automations SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return persistence.NewAutomationError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewAutomationError("Delete", id, err)
	}

	if affected == 0 {
		err = persistence.ErrAutomationNotFound

		return persistence.NewAutomationError("Delete", id, err)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM schedules WHERE automation_id = $1`, id)
	if err != nil {
		return persistence.NewAutomationError("Delete", id, err)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM execution_records WHERE automation_id = $1`, id)
	if err != nil {
		return persistence.NewAutomationError("Delete", id, err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit automation delete: %w", err)
	}

	return nil
}

// Persistence passthroughs.

func (p *Persistence) Automations(ctx context.Context, opts persistence.ListOptions) ([]*models.Automation, error) {
	return p.automations.GetAll(ctx, opts)
}

func (p *Persistence) AutomationByID(ctx context.Context, id string) (*models.Automation, error) {
	return p.automations.GetByID(ctx, id)
}

func (p *Persistence) ActiveAutomationsByTrigger(ctx context.Context, triggerType models.TriggerType) ([]*models.Automation, error) {
	return p.automations.GetActiveByTrigger(ctx, triggerType)
}

func (p *Persistence) SaveAutomation(ctx context.Context, automation *models.Automation) error {
	return p.automations.Save(ctx, automation)
}

func (p *Persistence) DeleteAutomation(ctx context.Context, id string) error {
	return p.automations.Delete(ctx, id)
}
