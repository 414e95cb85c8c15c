package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/casaflow/casaflow/pkg/models"
	"github.com/casaflow/casaflow/pkg/persistence"
	"github.com/casaflow/casaflow/pkg/registry"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ErrAutomationNotFound is returned when an automation is not found.
var ErrAutomationNotFound = persistence.ErrAutomationNotFound

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}

// Automation handles automation CRUD, validation and stats.
type Automation struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewAutomation(p persistence.Persistence, reg *registry.Registry, logger *slog.Logger) *Automation {
	return &Automation{
		persistence: p,
		registry:    reg,
		validator:   validator.New(),
		logger:      logger.With("module", "automation_service"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Automation) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// List returns automations ordered by priority with created_at as the
// tie-breaker.
func (s *Automation) List(ctx context.Context, limit, offset int) ([]*models.Automation, error) {
	return s.persistence.Automations(ctx, persistence.ListOptions{Limit: limit, Offset: offset})
}

// Get returns one automation by ID.
func (s *Automation) Get(ctx context.Context, id string) (*models.Automation, error) {
	return s.persistence.AutomationByID(ctx, id)
}

// Save validates and persists the automation. A time_based automation
// gets its schedule created or updated in the same call, so the
// scheduler picks it up on its next tick.
func (s *Automation) Save(ctx context.Context, automation *models.Automation) (*models.Automation, error) {
	if automation == nil {
		return nil, ErrAutomationNil
	}

	err := s.validate(automation)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if automation.ID == "" {
		automation.ID = newID()
		automation.CreatedAt = now
	}

	automation.UpdatedAt = now

	err = s.persistence.SaveAutomation(ctx, automation)
	if err != nil {
		return nil, fmt.Errorf("failed to save automation: %w", err)
	}

	err = s.syncSchedule(ctx, automation)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Automation saved",
		"automation_id", automation.ID,
		"trigger_type", automation.TriggerType,
		"is_active", automation.IsActive)

	return automation, nil
}

// Delete removes the automation together with its schedule and ledger
// records.
func (s *Automation) Delete(ctx context.Context, id string) error {
	err := s.persistence.DeleteAutomation(ctx, id)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Automation deleted", "automation_id", id)

	return nil
}

// Stats aggregates the automation's ledger entries since the given time.
func (s *Automation) Stats(ctx context.Context, id string, since time.Time) (*models.ExecutionStats, error) {
	_, err := s.persistence.AutomationByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return s.persistence.ExecutionStats(ctx, id, since)
}

// Executions returns ledger entries matching the query, most recent first.
func (s *Automation) Executions(ctx context.Context, query persistence.ExecutionQuery) ([]*models.ExecutionRecord, error) {
	return s.persistence.Executions(ctx, query)
}

// validate enforces the CRUD-boundary invariants: malformed automations
// never reach storage, so the engine can trust what it loads.
func (s *Automation) validate(automation *models.Automation) error {
	err := s.validator.Struct(automation)
	if err != nil {
		return NewValidationError("save_automation", err.Error(), ErrNameRequired)
	}

	if !slices.Contains(models.KnownTriggerTypes, automation.TriggerType) {
		return NewValidationError("save_automation",
			fmt.Sprintf("trigger type %q is not supported", automation.TriggerType),
			ErrUnknownTriggerType)
	}

	if automation.IsActive && !automation.HasActions() {
		return NewValidationError("save_automation",
			"active automations must have at least one action",
			ErrActionsRequired)
	}

	err = s.validateConditions(automation.Conditions)
	if err != nil {
		return err
	}

	for i, action := range automation.Actions {
		err := s.registry.ValidateParameters(action.Type, action.Parameters)
		if err != nil {
			return NewValidationError("save_automation",
				fmt.Sprintf("action %d (%s): %v", i, action.Type, err),
				ErrInvalidRequest)
		}
	}

	if automation.TriggerType == models.TriggerTimeBased {
		return s.validateCronRule(automation)
	}

	return nil
}

func (s *Automation) validateConditions(conds []models.Condition) error {
	for i, condition := range conds {
		if condition.Source != models.SourceEntity && condition.Source != models.SourceTrigger {
			return NewValidationError("save_automation",
				fmt.Sprintf("condition %d: source %q is not supported", i, condition.Source),
				ErrUnknownConditionSource)
		}

		if !slices.Contains(models.KnownOperators, condition.Operator) {
			return NewValidationError("save_automation",
				fmt.Sprintf("condition %d: operator %q is not supported", i, condition.Operator),
				ErrUnknownOperator)
		}
	}

	return nil
}

func (s *Automation) validateCronRule(automation *models.Automation) error {
	expression, ok := automation.RuleString("cron")
	if !ok || expression == "" {
		return NewValidationError("save_automation",
			"time_based automations require trigger_rules.cron",
			ErrCronRequired)
	}

	probe := models.Schedule{ID: "probe", AutomationID: "probe", CronExpression: expression}

	err := probe.Validate()
	if err != nil {
		return NewValidationError("save_automation",
			fmt.Sprintf("cron expression %q: %v", expression, err),
			ErrInvalidCron)
	}

	return nil
}

// syncSchedule keeps the schedule row in step with the automation's
// cron rule. Non-time_based automations retire any leftover schedule.
func (s *Automation) syncSchedule(ctx context.Context, automation *models.Automation) error {
	if automation.TriggerType != models.TriggerTimeBased {
		// The trigger may have been changed away from time_based.
		return s.persistence.DeleteScheduleForAutomation(ctx, automation.ID)
	}

	expression, _ := automation.RuleString("cron")

	existing, err := s.persistence.ScheduleForAutomation(ctx, automation.ID)
	if err != nil && !persistence.IsScheduleNotFound(err) {
		return fmt.Errorf("failed to load schedule: %w", err)
	}

	if existing != nil {
		existing.CronExpression = expression
		existing.Active = automation.IsActive

		err = existing.Advance(time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to advance schedule: %w", err)
		}

		return s.persistence.SaveSchedule(ctx, existing)
	}

	schedule, err := models.NewSchedule(newID(), automation.ID, expression)
	if err != nil {
		return fmt.Errorf("failed to build schedule: %w", err)
	}

	schedule.Active = automation.IsActive

	return s.persistence.SaveSchedule(ctx, schedule)
}
