// Package task provides the create_task action.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/casaflow/casaflow/pkg/clients"
	"github.com/casaflow/casaflow/pkg/models"
	"github.com/casaflow/casaflow/pkg/template"
)

// ErrTitleRequired is returned when the task title parameter is missing.
var ErrTitleRequired = errors.New("create_task requires a 'title' parameter")

// Action creates a CRM task for the triggering entity. Title and
// description support template placeholders; the due date is computed
// from due_days/due_hours relative to execution time.
type Action struct {
	Title       string
	Description string
	DueDays     float64
	DueHours    float64
	AssigneeID  string

	tasks clients.TaskClient
}

func NewAction(params map[string]any, tasks clients.TaskClient) (*Action, error) {
	title, _ := params["title"].(string)
	if title == "" {
		return nil, ErrTitleRequired
	}

	description, _ := params["description"].(string)
	assigneeID, _ := params["assignee_id"].(string)
	dueDays, _ := params["due_days"].(float64)
	dueHours, _ := params["due_hours"].(float64)

	return &Action{
		Title:       title,
		Description: description,
		DueDays:     dueDays,
		DueHours:    dueHours,
		AssigneeID:  assigneeID,
		tasks:       tasks,
	}, nil
}

func (a *Action) Validate(_ context.Context) error {
	if a.Title == "" {
		return ErrTitleRequired
	}

	return nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger = logger.With("action_type", "create_task")

	dueAt := time.Now().UTC().
		Add(time.Duration(a.DueDays * 24 * float64(time.Hour))).
		Add(time.Duration(a.DueHours * float64(time.Hour)))

	task := clients.Task{
		Title:       template.RenderWithContext(a.Title, &executionCtx),
		Description: template.RenderWithContext(a.Description, &executionCtx),
		DueAt:       dueAt,
		AssigneeID:  template.RenderWithContext(a.AssigneeID, &executionCtx),
		EntityID:    executionCtx.Event.Entity.ID,
		EntityType:  executionCtx.Event.Entity.Type,
	}

	taskID, err := a.tasks.CreateTask(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	logger.InfoContext(ctx, "Task created", "task_id", taskID, "due_at", dueAt)

	return map[string]any{"task_id": taskID, "due_at": dueAt.Format(time.RFC3339)}, nil
}
