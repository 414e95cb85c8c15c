// Package dispatcher executes an automation's action list in order.
package dispatcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/casaflow/casaflow/pkg/models"
	"github.com/casaflow/casaflow/pkg/protocol"
	"github.com/casaflow/casaflow/pkg/registry"
)

const (
	defaultMaxAttempts = 3
	defaultBaseBackoff = 2 * time.Second
)

// Dispatcher instantiates actions from the registry and runs them
// one at a time. A failing action never stops the ones after it.
type Dispatcher struct {
	registry    *registry.Registry
	logger      *slog.Logger
	maxAttempts int
	baseBackoff time.Duration
}

type Option func(*Dispatcher)

// WithRetry overrides the transient retry policy.
func WithRetry(maxAttempts int, baseBackoff time.Duration) Option {
	return func(d *Dispatcher) {
		d.maxAttempts = maxAttempts
		d.baseBackoff = baseBackoff
	}
}

func NewDispatcher(reg *registry.Registry, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:    reg,
		logger:      logger.With("module", "dispatcher"),
		maxAttempts: defaultMaxAttempts,
		baseBackoff: defaultBaseBackoff,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Execute runs every action in declaration order and returns one result
// per action. Results are appended to the execution context so later
// actions can see earlier outputs.
func (d *Dispatcher) Execute(ctx context.Context, items []models.ActionItem, executionCtx *models.ExecutionContext) []models.ActionResult {
	results := make([]models.ActionResult, 0, len(items))

	for i, item := range items {
		result := d.executeOne(ctx, i, item, executionCtx)
		results = append(results, result)
		executionCtx.ActionResults = append(executionCtx.ActionResults, result)
	}

	return results
}

func (d *Dispatcher) executeOne(ctx context.Context, index int, item models.ActionItem, executionCtx *models.ExecutionContext) models.ActionResult {
	logger := d.logger.With(
		"execution_id", executionCtx.ID,
		"action_type", item.Type,
		"action_index", index,
	)

	result := models.ActionResult{Type: item.Type}

	started := time.Now()
	defer func() {
		result.DurationMs = time.Since(started).Milliseconds()
	}()

	action, err := d.registry.CreateAction(ctx, item.Type, item.Parameters)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to create action", "error", err)

		result.Status = models.ActionFailed
		result.Error = err.Error()
		result.Attempts = 1

		return result
	}

	var output any

	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		result.Attempts = attempt

		output, err = action.Execute(ctx, *executionCtx, logger)
		if err == nil {
			break
		}

		if !protocol.IsTransient(err) || attempt == d.maxAttempts {
			break
		}

		backoff := d.baseBackoff * time.Duration(1<<(attempt-1))
		logger.WarnContext(ctx, "Action failed, retrying",
			"error", err,
			"attempt", attempt,
			"backoff", backoff)

		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-time.After(backoff):
			continue
		}

		break
	}

	if err != nil {
		logger.ErrorContext(ctx, "Action failed", "error", err, "attempts", result.Attempts)

		result.Status = models.ActionFailed
		result.Error = err.Error()

		return result
	}

	result.Status = models.ActionSuccess
	result.Output = output

	return result
}
