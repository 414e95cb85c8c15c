// Package entity provides the four entity-mutation actions:
// update_status, update_score, move_to_stage and assign_to_user. They
// share one implementation parameterized by operation, each exposed
// through its own factory.
package entity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/casaflow/casaflow/pkg/clients"
	"github.com/casaflow/casaflow/pkg/models"
	"github.com/casaflow/casaflow/pkg/template"
)

// Operation selects which mutation the action performs.
type Operation string

const (
	OpUpdateStatus Operation = "update_status"
	OpUpdateScore  Operation = "update_score"
	OpMoveToStage  Operation = "move_to_stage"
	OpAssignToUser Operation = "assign_to_user"
)

var (
	// ErrValueRequired is returned when the operation's value parameter
	// is missing.
	ErrValueRequired = errors.New("entity action requires a 'value' parameter")
	// ErrScoreNotNumeric is returned when update_score's rendered value
	// does not parse as a number.
	ErrScoreNotNumeric = errors.New("update_score value is not numeric")
	// ErrUnknownOperation is returned for an unrecognized operation.
	ErrUnknownOperation = errors.New("unknown entity operation")
)

// Action mutates the triggering entity (or another entity named by
// entity_type/entity_id parameters) through the entity collaborator.
type Action struct {
	Op         Operation
	Value      string
	EntityType string
	EntityID   string

	entities clients.EntityClient
}

func NewAction(op Operation, params map[string]any, entities clients.EntityClient) (*Action, error) {
	value := ""

	switch v := params["value"].(type) {
	case string:
		value = v
	case float64:
		value = strconv.FormatFloat(v, 'f', -1, 64)
	}

	if value == "" {
		return nil, ErrValueRequired
	}

	entityType, _ := params["entity_type"].(string)
	entityID, _ := params["entity_id"].(string)

	return &Action{
		Op:         op,
		Value:      value,
		EntityType: entityType,
		EntityID:   entityID,
		entities:   entities,
	}, nil
}

func (a *Action) Validate(_ context.Context) error {
	if a.Value == "" {
		return ErrValueRequired
	}

	return nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger = logger.With("action_type", string(a.Op))

	// Default to the triggering entity when no explicit target is set.
	entityType := a.EntityType
	if entityType == "" {
		entityType = executionCtx.Event.Entity.Type
	}

	entityID := template.RenderWithContext(a.EntityID, &executionCtx)
	if entityID == "" {
		entityID = executionCtx.Event.Entity.ID
	}

	value := template.RenderWithContext(a.Value, &executionCtx)

	var err error

	switch a.Op {
	case OpUpdateStatus:
		err = a.entities.UpdateStatus(ctx, entityType, entityID, value)
	case OpUpdateScore:
		delta, parseErr := strconv.ParseFloat(value, 64)
		if parseErr != nil {
			return nil, fmt.Errorf("%w: %q", ErrScoreNotNumeric, value)
		}

		err = a.entities.UpdateScore(ctx, entityType, entityID, delta)
	case OpMoveToStage:
		err = a.entities.MoveToStage(ctx, entityID, value)
	case OpAssignToUser:
		err = a.entities.AssignToUser(ctx, entityType, entityID, value)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, a.Op)
	}

	if err != nil {
		return nil, fmt.Errorf("entity mutation %s failed: %w", a.Op, err)
	}

	logger.InfoContext(ctx, "Entity mutated",
		"entity_type", entityType,
		"entity_id", entityID,
		"value", value)

	return map[string]any{
		"entity_type": entityType,
		"entity_id":   entityID,
		"value":       value,
	}, nil
}
