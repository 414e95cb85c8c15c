package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/casaflow/casaflow/pkg/cmd"
	"github.com/casaflow/casaflow/pkg/eventbus"
	"github.com/casaflow/casaflow/pkg/events"
	"github.com/casaflow/casaflow/pkg/log"
	"github.com/casaflow/casaflow/pkg/models"
	"github.com/casaflow/casaflow/pkg/protocol"
	"github.com/casaflow/casaflow/pkg/sources/queue"
	"github.com/casaflow/casaflow/pkg/sources/scheduler"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "casaflow-scheduler",
		EnableShellCompletion: true,
		Usage:                 "Poll due schedules and enrollments and forward CRM queue events",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "scheduler-id",
				Aliases: []string{"id"},
				Usage:   "Custom scheduler ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("SCHEDULER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "How often due schedules and enrollments are polled",
				Value:   time.Minute,
				Sources: cli.EnvVars("POLL_INTERVAL"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis address of the CRM event queue (disabled when empty)",
				Value:   "",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-queue",
				Usage:   "Redis list the CRM pushes domain events onto",
				Value:   queue.DefaultQueue,
				Sources: cli.EnvVars("REDIS_QUEUE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			schedulerID := command.String("scheduler-id")
			if schedulerID == "" {
				schedulerID = "scheduler-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("casaflow-scheduler").With("scheduler_id", schedulerID)

			logger.InfoContext(ctx, "Initializing CasaFlow Scheduler")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			crmBus := cmd.NewEventBus(command.String("event-bus"), events.CRMTopic, "casaflow-scheduler", logger)
			defer func() {
				if err := crmBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close CRM event bus", "error", err)
				}
			}()

			engineBus := cmd.NewEventBus(command.String("event-bus"), events.EngineTopic, "casaflow-scheduler", logger)
			defer func() {
				if err := engineBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close engine event bus", "error", err)
				}
			}()

			// Every domain event a source produces is forwarded to the
			// workers over the CRM topic.
			forward := forwardCallback(crmBus, schedulerID)

			poller := scheduler.NewSource(persistence, engineBus, logger, schedulerID,
				scheduler.WithPollInterval(command.Duration("poll-interval")))

			if err := poller.Start(ctx, forward); err != nil {
				return err
			}

			sources := []protocol.Source{poller}

			if addr := command.String("redis-url"); addr != "" {
				consumer, err := queue.NewSource(queue.Config{
					Addr:  addr,
					Queue: command.String("redis-queue"),
				}, logger)
				if err != nil {
					return err
				}

				if err := consumer.Start(ctx, forward); err != nil {
					return err
				}

				sources = append(sources, consumer)
			}

			logger.InfoContext(ctx, "Scheduler started successfully")

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			<-sigChan
			logger.InfoContext(ctx, "Shutting down scheduler")

			for _, source := range sources {
				if err := source.Stop(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to stop source", "error", err)
				}
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func forwardCallback(bus eventbus.EventPublisher, schedulerID string) protocol.SourceCallback {
	return func(ctx context.Context, event models.DomainEvent) error {
		received := events.DomainEventReceived{
			BaseEvent: events.BaseEvent{
				ID:        event.ID,
				Type:      events.DomainEventReceivedType,
				Timestamp: time.Now().UTC(),
				WorkerID:  schedulerID,
			},
			Event: event,
		}

		// time_based ticks carry no entity, so fall back to the event ID
		// for partitioning.
		key := event.Entity.ID
		if key == "" {
			key = event.ID
		}

		return bus.Publish(ctx, key, received)
	}
}
