package entity

import (
	"context"

	"github.com/casaflow/casaflow/pkg/clients"
	"github.com/casaflow/casaflow/pkg/protocol"
)

// Factory creates one flavour of entity-mutation action.
type Factory struct {
	op       Operation
	entities clients.EntityClient
}

func NewFactory(op Operation, entities clients.EntityClient) *Factory {
	return &Factory{op: op, entities: entities}
}

// Factories returns one factory per entity-mutation action type.
func Factories(entities clients.EntityClient) []*Factory {
	return []*Factory{
		NewFactory(OpUpdateStatus, entities),
		NewFactory(OpUpdateScore, entities),
		NewFactory(OpMoveToStage, entities),
		NewFactory(OpAssignToUser, entities),
	}
}

func (f *Factory) ID() string {
	return string(f.op)
}

func (f *Factory) Create(_ context.Context, params map[string]any) (protocol.Action, error) {
	return NewAction(f.op, params, f.entities)
}

func (f *Factory) Schema() map[string]any {
	valueDescription := map[Operation]string{
		OpUpdateStatus: "New status value. Supports placeholders.",
		OpUpdateScore:  "Score delta, positive or negative.",
		OpMoveToStage:  "Target pipeline stage.",
		OpAssignToUser: "User ID to assign the entity to.",
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"value": map[string]any{
				"type":        []string{"string", "number"},
				"description": valueDescription[f.op],
			},
			"entity_type": map[string]any{
				"type":        "string",
				"description": "Target entity type. Defaults to the triggering entity's type.",
			},
			"entity_id": map[string]any{
				"type":        "string",
				"description": "Target entity ID. Defaults to the triggering entity. Supports placeholders.",
			},
		},
		"required":             []string{"value"},
		"additionalProperties": false,
	}
}
