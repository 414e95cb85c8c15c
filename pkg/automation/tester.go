package automation

import (
	"context"
	"log/slog"
	"time"

	"github.com/casaflow/casaflow/pkg/clients"
	"github.com/casaflow/casaflow/pkg/clients/capture"
	"github.com/casaflow/casaflow/pkg/conditions"
	"github.com/casaflow/casaflow/pkg/dispatcher"
	"github.com/casaflow/casaflow/pkg/models"
	"github.com/casaflow/casaflow/pkg/registry"
)

// RegistryFactory builds an action registry bound to the given
// collaborator set. The tester uses it to swap real collaborators for
// recording ones.
type RegistryFactory func(set *clients.Set) *registry.Registry

// ConditionOutcome reports one condition's evaluation during a dry run.
type ConditionOutcome struct {
	Condition models.Condition `json:"condition"`
	Passed    bool             `json:"passed"`
}

// TestResult is the structured outcome of a dry run.
type TestResult struct {
	Matched       bool                  `json:"matched"`
	ConditionsMet bool                  `json:"conditions_met"`
	Conditions    []ConditionOutcome    `json:"conditions"`
	ActionResults []models.ActionResult `json:"action_results,omitempty"`
	Calls         []capture.Call        `json:"calls,omitempty"`
}

// Tester runs an automation against a sample event without side
// effects: collaborator calls are recorded, nothing reaches the ledger.
type Tester struct {
	registryFor RegistryFactory
	matcher     *Matcher
	evaluator   *conditions.Evaluator
	logger      *slog.Logger
}

func NewTester(registryFor RegistryFactory, logger *slog.Logger) *Tester {
	return &Tester{
		registryFor: registryFor,
		matcher:     NewMatcher(logger),
		evaluator:   conditions.NewEvaluator(logger),
		logger:      logger.With("module", "tester"),
	}
}

// Run evaluates the automation against the sample event. Actions only
// execute when the trigger matches and every condition passes, mirroring
// the live engine.
func (t *Tester) Run(ctx context.Context, automation *models.Automation, event models.DomainEvent) *TestResult {
	result := &TestResult{
		Conditions: make([]ConditionOutcome, 0, len(automation.Conditions)),
	}

	matched := t.matcher.Match(event, []*models.Automation{automation})
	result.Matched = len(matched) > 0

	result.ConditionsMet = true

	for _, condition := range automation.Conditions {
		passed := t.evaluator.Evaluate([]models.Condition{condition}, event.Entity.Snapshot, event.Payload)
		result.Conditions = append(result.Conditions, ConditionOutcome{
			Condition: condition,
			Passed:    passed,
		})

		if !passed {
			result.ConditionsMet = false
		}
	}

	if !result.Matched || !result.ConditionsMet || !automation.HasActions() {
		return result
	}

	recorder := capture.NewRecorder()
	if event.Entity.Snapshot != nil {
		recorder.Entities[event.Entity.Type+"/"+event.Entity.ID] = event.Entity.Snapshot
	}

	reg := t.registryFor(recorder.Set())

	// Transient failures are not retried in dry runs, there is nothing
	// to recover.
	d := dispatcher.NewDispatcher(reg, t.logger, dispatcher.WithRetry(1, time.Millisecond))

	executionCtx := models.ExecutionContext{
		ID:           newExecutionID(),
		AutomationID: automation.ID,
		Event:        event,
		DryRun:       true,
	}

	result.ActionResults = d.Execute(ctx, automation.Actions, &executionCtx)
	result.Calls = recorder.Calls()

	return result
}
