// Package protocol defines the contracts between the engine and its
// pluggable actions and event sources.
package protocol

import (
	"context"
	"errors"
	"log/slog"

	"github.com/casaflow/casaflow/pkg/models"
)

// ErrTransient marks an action failure as retryable (timeout, network,
// 5xx). The dispatcher retries transient failures with backoff; every
// other failure is permanent and recorded without retry.
var ErrTransient = errors.New("transient action failure")

// IsTransient reports whether an action error should be retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Action is one executable automation effect.
type Action interface {
	Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (any, error)
	Validate(ctx context.Context) error
}

// ActionFactory builds actions of one type from stored parameters.
type ActionFactory interface {
	// Create builds an action from the given parameters. Parameters have
	// already been validated against Schema.
	Create(ctx context.Context, params map[string]any) (Action, error)

	// ID returns the action type this factory handles.
	ID() string

	// Schema returns the JSON schema the parameters must satisfy.
	Schema() map[string]any
}
