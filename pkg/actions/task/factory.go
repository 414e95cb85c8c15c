package task

import (
	"context"

	"github.com/casaflow/casaflow/pkg/clients"
	"github.com/casaflow/casaflow/pkg/protocol"
)

// Factory creates create_task actions bound to the task collaborator.
type Factory struct {
	tasks clients.TaskClient
}

func NewFactory(tasks clients.TaskClient) *Factory {
	return &Factory{tasks: tasks}
}

func (f *Factory) ID() string {
	return "create_task"
}

func (f *Factory) Create(_ context.Context, params map[string]any) (protocol.Action, error) {
	return NewAction(params, f.tasks)
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Task title. Supports placeholders like {{client.first_name}}.",
			},
			"description": map[string]any{
				"type":        "string",
				"description": "Task body. Supports placeholders.",
			},
			"due_days": map[string]any{
				"type":        "number",
				"minimum":     0,
				"description": "Days from execution time until the task is due.",
			},
			"due_hours": map[string]any{
				"type":        "number",
				"minimum":     0,
				"description": "Hours from execution time until the task is due.",
			},
			"assignee_id": map[string]any{
				"type":        "string",
				"description": "User the task is assigned to. Supports placeholders.",
			},
		},
		"required":             []string{"title"},
		"additionalProperties": false,
	}
}
