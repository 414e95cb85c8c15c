// Package note provides the create_note action.
package note

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/casaflow/casaflow/pkg/clients"
	"github.com/casaflow/casaflow/pkg/models"
	"github.com/casaflow/casaflow/pkg/protocol"
	"github.com/casaflow/casaflow/pkg/template"
)

// ErrContentRequired is returned when the note content is missing.
var ErrContentRequired = errors.New("create_note requires a 'content' parameter")

// Action attaches a note to the triggering entity.
type Action struct {
	Content string

	tasks clients.TaskClient
}

func NewAction(params map[string]any, tasks clients.TaskClient) (*Action, error) {
	content, _ := params["content"].(string)
	if content == "" {
		return nil, ErrContentRequired
	}

	return &Action{Content: content, tasks: tasks}, nil
}

func (a *Action) Validate(_ context.Context) error {
	if a.Content == "" {
		return ErrContentRequired
	}

	return nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger = logger.With("action_type", "create_note")

	note := clients.Note{
		Content:    template.RenderWithContext(a.Content, &executionCtx),
		EntityID:   executionCtx.Event.Entity.ID,
		EntityType: executionCtx.Event.Entity.Type,
		AuthorID:   executionCtx.Event.ActorID,
	}

	noteID, err := a.tasks.CreateNote(ctx, note)
	if err != nil {
		return nil, fmt.Errorf("failed to create note: %w", err)
	}

	logger.InfoContext(ctx, "Note created", "note_id", noteID)

	return map[string]any{"note_id": noteID}, nil
}

// Factory creates create_note actions.
type Factory struct {
	tasks clients.TaskClient
}

func NewFactory(tasks clients.TaskClient) *Factory {
	return &Factory{tasks: tasks}
}

func (f *Factory) ID() string {
	return "create_note"
}

func (f *Factory) Create(_ context.Context, params map[string]any) (protocol.Action, error) {
	return NewAction(params, f.tasks)
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Note body. Supports placeholders.",
			},
		},
		"required":             []string{"content"},
		"additionalProperties": false,
	}
}
