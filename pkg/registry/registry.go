// Package registry holds the action factories keyed by action type and
// validates stored parameters against each factory's schema before an
// action is built.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/casaflow/casaflow/pkg/models"
	"github.com/casaflow/casaflow/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

type Registry struct {
	logger          *slog.Logger
	actionFactories map[string]protocol.ActionFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:          logger,
		actionFactories: make(map[string]protocol.ActionFactory),
	}
}

func (r *Registry) RegisterAction(factory protocol.ActionFactory) {
	r.actionFactories[factory.ID()] = factory
}

// ActionTypes returns every registered action type.
func (r *Registry) ActionTypes() []string {
	types := make([]string, 0, len(r.actionFactories))
	for actionType := range r.actionFactories {
		types = append(types, actionType)
	}

	return types
}

// CreateAction validates params against the factory schema and builds
// the action.
func (r *Registry) CreateAction(ctx context.Context, actionType models.ActionType, params map[string]any) (protocol.Action, error) {
	factory, ok := r.actionFactories[string(actionType)]
	if !ok {
		return nil, fmt.Errorf("action type '%s' not registered", actionType)
	}

	err := r.ValidateParameters(actionType, params)
	if err != nil {
		return nil, err
	}

	return factory.Create(ctx, params)
}

// ValidateParameters checks action parameters against the registered
// schema without building the action. The CRUD boundary calls this on
// save so malformed parameters never reach the engine.
func (r *Registry) ValidateParameters(actionType models.ActionType, params map[string]any) error {
	factory, ok := r.actionFactories[string(actionType)]
	if !ok {
		return fmt.Errorf("action type '%s' not registered", actionType)
	}

	if params == nil {
		params = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(factory.Schema())
	paramsLoader := gojsonschema.NewGoLoader(params)

	result, err := gojsonschema.Validate(schemaLoader, paramsLoader)
	if err != nil {
		return fmt.Errorf("failed to validate parameters for action '%s': %w", actionType, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return fmt.Errorf("invalid parameters for action '%s': %s", actionType, strings.Join(details, "; "))
	}

	return nil
}
