// Package services provides the business operations behind the HTTP
// API: automation and workflow CRUD with validation, dry runs, ledger
// queries and stats.
package services

import (
	"errors"
	"fmt"
)

// Validation errors (400 Bad Request).
var (
	ErrInvalidRequest         = errors.New("invalid request")
	ErrNameRequired           = errors.New("name must be at least 3 characters")
	ErrUnknownTriggerType     = errors.New("unknown trigger type")
	ErrUnknownOperator        = errors.New("unknown condition operator")
	ErrUnknownConditionSource = errors.New("unknown condition source")
	ErrActionsRequired        = errors.New("an active automation must have at least one action")
	ErrStepsRequired          = errors.New("an active workflow must have at least one step with actions")
	ErrCronRequired           = errors.New("time_based trigger requires a cron rule")
	ErrInvalidCron            = errors.New("invalid cron expression")
	ErrAutomationNil          = errors.New("automation cannot be nil")
	ErrWorkflowNil            = errors.New("workflow cannot be nil")
)

// ServiceError wraps service-level errors with operation context.
type ServiceError struct {
	Op      string // Operation name
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error should map to HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrNameRequired) ||
		errors.Is(err, ErrUnknownTriggerType) ||
		errors.Is(err, ErrUnknownOperator) ||
		errors.Is(err, ErrUnknownConditionSource) ||
		errors.Is(err, ErrActionsRequired) ||
		errors.Is(err, ErrStepsRequired) ||
		errors.Is(err, ErrCronRequired) ||
		errors.Is(err, ErrInvalidCron) ||
		errors.Is(err, ErrAutomationNil) ||
		errors.Is(err, ErrWorkflowNil)
}

// NewValidationError creates a validation error with context.
func NewValidationError(op, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Message: message,
		Err:     err,
	}
}
