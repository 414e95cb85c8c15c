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
)

// ErrWorkflowNotFound is returned when a workflow is not found.
var ErrWorkflowNotFound = persistence.ErrWorkflowNotFound

// Workflow handles workflow CRUD, validation, enrollments and stats.
type Workflow struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewWorkflow(p persistence.Persistence, reg *registry.Registry, logger *slog.Logger) *Workflow {
	return &Workflow{
		persistence: p,
		registry:    reg,
		validator:   validator.New(),
		logger:      logger.With("module", "workflow_service"),
	}
}

// List returns workflows, newest first.
func (s *Workflow) List(ctx context.Context, limit, offset int) ([]*models.Workflow, error) {
	return s.persistence.Workflows(ctx, persistence.ListOptions{Limit: limit, Offset: offset})
}

// Get returns one workflow by ID.
func (s *Workflow) Get(ctx context.Context, id string) (*models.Workflow, error) {
	return s.persistence.WorkflowByID(ctx, id)
}

// Save validates and persists the workflow. Existing enrollments keep
// running against the updated step list from their current cursor.
func (s *Workflow) Save(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	err := s.validate(workflow)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if workflow.ID == "" {
		workflow.ID = newID()
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	err = s.persistence.SaveWorkflow(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	s.logger.InfoContext(ctx, "Workflow saved",
		"workflow_id", workflow.ID,
		"trigger_type", workflow.TriggerType,
		"steps", len(workflow.Steps),
		"is_active", workflow.IsActive)

	return workflow, nil
}

// Delete removes the workflow, its enrollments and its ledger records.
func (s *Workflow) Delete(ctx context.Context, id string) error {
	err := s.persistence.DeleteWorkflow(ctx, id)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Workflow deleted", "workflow_id", id)

	return nil
}

// Enrollments returns every enrollment of the given entity.
func (s *Workflow) Enrollments(ctx context.Context, entityID string) ([]*models.SequenceEnrollment, error) {
	return s.persistence.EnrollmentsForEntity(ctx, entityID)
}

// Stats aggregates the workflow's ledger entries since the given time.
func (s *Workflow) Stats(ctx context.Context, id string, since time.Time) (*models.ExecutionStats, error) {
	_, err := s.persistence.WorkflowByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return s.persistence.ExecutionStats(ctx, id, since)
}

func (s *Workflow) validate(workflow *models.Workflow) error {
	err := s.validator.Struct(workflow)
	if err != nil {
		return NewValidationError("save_workflow", err.Error(), ErrNameRequired)
	}

	if !slices.Contains(models.KnownTriggerTypes, workflow.TriggerType) {
		return NewValidationError("save_workflow",
			fmt.Sprintf("trigger type %q is not supported", workflow.TriggerType),
			ErrUnknownTriggerType)
	}

	if workflow.IsActive && !workflow.HasActions() {
		return NewValidationError("save_workflow",
			"active workflows must have at least one step with actions",
			ErrStepsRequired)
	}

	for i, step := range workflow.Steps {
		err := s.validateStep(i, step)
		if err != nil {
			return err
		}
	}

	return nil
}

func (s *Workflow) validateStep(index int, step models.WorkflowStep) error {
	for _, condition := range step.Conditions {
		if condition.Source != models.SourceEntity && condition.Source != models.SourceTrigger {
			return NewValidationError("save_workflow",
				fmt.Sprintf("step %d: condition source %q is not supported", index, condition.Source),
				ErrUnknownConditionSource)
		}

		if !slices.Contains(models.KnownOperators, condition.Operator) {
			return NewValidationError("save_workflow",
				fmt.Sprintf("step %d: operator %q is not supported", index, condition.Operator),
				ErrUnknownOperator)
		}
	}

	for j, action := range step.Actions {
		err := s.registry.ValidateParameters(action.Type, action.Parameters)
		if err != nil {
			return NewValidationError("save_workflow",
				fmt.Sprintf("step %d action %d (%s): %v", index, j, action.Type, err),
				ErrInvalidRequest)
		}
	}

	return nil
}
