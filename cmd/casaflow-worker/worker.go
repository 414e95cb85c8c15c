package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/casaflow/casaflow/pkg/automation"
	"github.com/casaflow/casaflow/pkg/clients/rest"
	"github.com/casaflow/casaflow/pkg/cmd"
	"github.com/casaflow/casaflow/pkg/dispatcher"
	"github.com/casaflow/casaflow/pkg/events"
	"github.com/casaflow/casaflow/pkg/otelhelper"
	"github.com/casaflow/casaflow/pkg/persistence"
	"github.com/casaflow/casaflow/pkg/sequence"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Worker consumes CRM domain events and due enrollment steps from the
// event bus and runs them through the engine and the sequence runner.
type Worker struct {
	id          string
	busProvider string
	crmAPIURL   string
	crmAPIToken string
	persistence persistence.Persistence
	logger      *slog.Logger
	tracer      trace.Tracer
}

func NewWorker(
	id string,
	busProvider string,
	crmAPIURL string,
	crmAPIToken string,
	persistence persistence.Persistence,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		id:          id,
		busProvider: busProvider,
		crmAPIURL:   crmAPIURL,
		crmAPIToken: crmAPIToken,
		persistence: persistence,
		logger:      logger,
	}
}

// Start wires the engine and runner to the event bus and blocks until
// SIGINT or SIGTERM.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tracer, err := otelhelper.NewTracer(ctx, "casaflow-worker")
	if err != nil {
		return err
	}

	w.tracer = tracer

	crmBus := cmd.NewEventBus(w.busProvider, events.CRMTopic, "casaflow-worker", w.logger)
	defer func() {
		if err := crmBus.Close(); err != nil {
			w.logger.ErrorContext(ctx, "Failed to close CRM event bus", "error", err)
		}
	}()

	engineBus := cmd.NewEventBus(w.busProvider, events.EngineTopic, "casaflow-worker", w.logger)
	defer func() {
		if err := engineBus.Close(); err != nil {
			w.logger.ErrorContext(ctx, "Failed to close engine event bus", "error", err)
		}
	}()

	crm := rest.NewClient(w.crmAPIURL, w.crmAPIToken).Set()
	registry := cmd.NewRegistry(w.logger, crm)

	d := dispatcher.NewDispatcher(registry, w.logger,
		dispatcher.WithRetry(defaultRetryAttempts, defaultRetryBackoff))

	engine := automation.NewEngine(w.persistence, d, engineBus, w.logger, w.id)
	runner := sequence.NewRunner(w.persistence, d, crm.Entities, engineBus, w.logger, w.id)

	err = crmBus.Handle(events.DomainEventReceivedType, w.handleDomainEvent(engine))
	if err != nil {
		return err
	}

	err = engineBus.Handle(events.EnrollmentStepDueEvent, w.handleStepDue(runner))
	if err != nil {
		return err
	}

	if err := crmBus.Subscribe(ctx); err != nil {
		return err
	}

	if err := engineBus.Subscribe(ctx); err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.InfoContext(ctx, "Shutting down worker")
	cancel()

	return nil
}

func (w *Worker) handleDomainEvent(engine *automation.Engine) func(ctx context.Context, event any) error {
	return func(ctx context.Context, event any) error {
		received, ok := event.(*events.DomainEventReceived)
		if !ok {
			w.logger.ErrorContext(ctx, "Invalid event type for DomainEventReceived")

			return nil
		}

		ctx, span := otelhelper.StartSpan(ctx, w.tracer, "handle_domain_event",
			attribute.String(otelhelper.TriggerTypeKey, string(received.Event.Type)),
			attribute.String(otelhelper.EntityIDKey, received.Event.Entity.ID),
			attribute.String(otelhelper.WorkerIDKey, w.id),
		)
		defer span.End()

		w.logger.InfoContext(ctx, "Processing CRM domain event",
			"event_id", received.Event.ID,
			"trigger_type", received.Event.Type,
			"entity_id", received.Event.Entity.ID,
		)

		err := engine.HandleEvent(ctx, received.Event)
		if err != nil {
			otelhelper.SetError(span, err)
		}

		return err
	}
}

func (w *Worker) handleStepDue(runner *sequence.Runner) func(ctx context.Context, event any) error {
	return func(ctx context.Context, event any) error {
		due, ok := event.(*events.EnrollmentStepDue)
		if !ok {
			w.logger.ErrorContext(ctx, "Invalid event type for EnrollmentStepDue")

			return nil
		}

		ctx, span := otelhelper.StartSpan(ctx, w.tracer, "handle_enrollment_step_due",
			attribute.String(otelhelper.EnrollmentIDKey, due.EnrollmentID),
			attribute.String(otelhelper.WorkflowIDKey, due.WorkflowID),
			attribute.String(otelhelper.WorkerIDKey, w.id),
		)
		defer span.End()

		w.logger.InfoContext(ctx, "Processing due enrollment step",
			"enrollment_id", due.EnrollmentID,
			"workflow_id", due.WorkflowID,
			"step_index", due.StepIndex,
		)

		err := runner.RunStep(ctx, due.EnrollmentID)
		if err != nil {
			otelhelper.SetError(span, err)
		}

		return err
	}
}
