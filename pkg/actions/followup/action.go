// Package followup provides the schedule_follow_up action: a task
// created at a future date to bring the entity back in front of an
// agent.
package followup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/casaflow/casaflow/pkg/clients"
	"github.com/casaflow/casaflow/pkg/models"
	"github.com/casaflow/casaflow/pkg/protocol"
	"github.com/casaflow/casaflow/pkg/template"
)

// ErrDaysRequired is returned when the follow-up delay is missing or
// not positive.
var ErrDaysRequired = errors.New("schedule_follow_up requires a positive 'days' parameter")

type Action struct {
	Days       float64
	Note       string
	AssigneeID string

	tasks clients.TaskClient
}

func NewAction(params map[string]any, tasks clients.TaskClient) (*Action, error) {
	days, _ := params["days"].(float64)
	if days <= 0 {
		return nil, ErrDaysRequired
	}

	note, _ := params["note"].(string)
	assigneeID, _ := params["assignee_id"].(string)

	return &Action{Days: days, Note: note, AssigneeID: assigneeID, tasks: tasks}, nil
}

func (a *Action) Validate(_ context.Context) error {
	if a.Days <= 0 {
		return ErrDaysRequired
	}

	return nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger = logger.With("action_type", "schedule_follow_up")

	dueAt := time.Now().UTC().Add(time.Duration(a.Days * 24 * float64(time.Hour)))

	description := a.Note
	if description == "" {
		description = "Automated follow-up"
	}

	task := clients.Task{
		Title:       "Follow up",
		Description: template.RenderWithContext(description, &executionCtx),
		DueAt:       dueAt,
		AssigneeID:  template.RenderWithContext(a.AssigneeID, &executionCtx),
		EntityID:    executionCtx.Event.Entity.ID,
		EntityType:  executionCtx.Event.Entity.Type,
	}

	taskID, err := a.tasks.CreateTask(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule follow-up: %w", err)
	}

	logger.InfoContext(ctx, "Follow-up scheduled", "task_id", taskID, "due_at", dueAt)

	return map[string]any{"task_id": taskID, "due_at": dueAt.Format(time.RFC3339)}, nil
}

type Factory struct {
	tasks clients.TaskClient
}

func NewFactory(tasks clients.TaskClient) *Factory {
	return &Factory{tasks: tasks}
}

func (f *Factory) ID() string {
	return "schedule_follow_up"
}

func (f *Factory) Create(_ context.Context, params map[string]any) (protocol.Action, error) {
	return NewAction(params, f.tasks)
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"days": map[string]any{
				"type":        "number",
				"minimum":     1,
				"description": "Days from now until the follow-up is due.",
			},
			"note": map[string]any{
				"type":        "string",
				"description": "Follow-up note. Supports placeholders.",
			},
			"assignee_id": map[string]any{
				"type":        "string",
				"description": "User to assign. Supports placeholders.",
			},
		},
		"required":             []string{"days"},
		"additionalProperties": false,
	}
}
