package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/casaflow/casaflow/pkg/models"
	"github.com/casaflow/casaflow/pkg/protocol"
	"github.com/casaflow/casaflow/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAction struct {
	execute func(ctx context.Context) (any, error)
}

func (s *stubAction) Execute(ctx context.Context, _ models.ExecutionContext, _ *slog.Logger) (any, error) {
	return s.execute(ctx)
}

func (s *stubAction) Validate(_ context.Context) error { return nil }

type stubFactory struct {
	id     string
	action *stubAction
}

func (f *stubFactory) ID() string { return f.id }

func (f *stubFactory) Create(_ context.Context, _ map[string]any) (protocol.Action, error) {
	return f.action, nil
}

func (f *stubFactory) Schema() map[string]any {
	return map[string]any{"type": "object"}
}

func newTestDispatcher(t *testing.T, factories ...*stubFactory) *Dispatcher {
	t.Helper()

	reg := registry.NewRegistry(slog.Default())
	for _, f := range factories {
		reg.RegisterAction(f)
	}

	return NewDispatcher(reg, slog.Default(), WithRetry(3, time.Millisecond))
}

func TestExecuteRunsActionsInOrderDespiteFailure(t *testing.T) {
	var order []string

	failing := &stubFactory{id: "create_task", action: &stubAction{
		execute: func(_ context.Context) (any, error) {
			order = append(order, "create_task")
			return nil, fmt.Errorf("upstream down: %w", protocol.ErrTransient)
		},
	}}
	succeeding := &stubFactory{id: "create_note", action: &stubAction{
		execute: func(_ context.Context) (any, error) {
			order = append(order, "create_note")
			return "noted", nil
		},
	}}

	d := newTestDispatcher(t, failing, succeeding)

	execCtx := models.ExecutionContext{ID: "exec-1"}
	results := d.Execute(context.Background(), []models.ActionItem{
		{Type: "create_task"},
		{Type: "create_note"},
	}, &execCtx)

	require.Len(t, results, 2)
	assert.Equal(t, models.ActionFailed, results[0].Status)
	assert.Equal(t, 3, results[0].Attempts)
	assert.Equal(t, models.ActionSuccess, results[1].Status)
	assert.Equal(t, "noted", results[1].Output)

	// The failing action is retried before the next one starts.
	assert.Equal(t, []string{"create_task", "create_task", "create_task", "create_note"}, order)
	assert.Len(t, execCtx.ActionResults, 2)
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	calls := 0
	permanent := &stubFactory{id: "send_email", action: &stubAction{
		execute: func(_ context.Context) (any, error) {
			calls++
			return nil, errors.New("recipient rejected")
		},
	}}

	d := newTestDispatcher(t, permanent)

	execCtx := models.ExecutionContext{ID: "exec-2"}
	results := d.Execute(context.Background(), []models.ActionItem{{Type: "send_email"}}, &execCtx)

	require.Len(t, results, 1)
	assert.Equal(t, models.ActionFailed, results[0].Status)
	assert.Equal(t, 1, calls)
}

func TestExecuteRecoversAfterTransientFailure(t *testing.T) {
	calls := 0
	flaky := &stubFactory{id: "webhook", action: &stubAction{
		execute: func(_ context.Context) (any, error) {
			calls++
			if calls < 2 {
				return nil, fmt.Errorf("status 503: %w", protocol.ErrTransient)
			}
			return map[string]any{"status_code": 200}, nil
		},
	}}

	d := newTestDispatcher(t, flaky)

	execCtx := models.ExecutionContext{ID: "exec-3"}
	results := d.Execute(context.Background(), []models.ActionItem{{Type: "webhook"}}, &execCtx)

	require.Len(t, results, 1)
	assert.Equal(t, models.ActionSuccess, results[0].Status)
	assert.Equal(t, 2, results[0].Attempts)
}

func TestExecuteUnknownActionTypeFails(t *testing.T) {
	d := newTestDispatcher(t)

	execCtx := models.ExecutionContext{ID: "exec-4"}
	results := d.Execute(context.Background(), []models.ActionItem{{Type: "teleport"}}, &execCtx)

	require.Len(t, results, 1)
	assert.Equal(t, models.ActionFailed, results[0].Status)
	assert.Contains(t, results[0].Error, "not registered")
}
