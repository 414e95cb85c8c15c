package main

import (
	"context"
	"os"
	"time"

	"github.com/casaflow/casaflow/pkg/cmd"
	"github.com/casaflow/casaflow/pkg/log"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultRetryAttempts = 3
	defaultRetryBackoff  = 2 * time.Second
)

func main() {
	command := &cli.Command{
		Name:                  "casaflow-worker",
		EnableShellCompletion: true,
		Usage:                 "Consume CRM events and execute automations and sequence steps",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
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
			&cli.StringFlag{
				Name:     "crm-api-url",
				Usage:    "Base URL of the CRM REST API actions run against",
				Required: true,
				Sources:  cli.EnvVars("CRM_API_URL"),
			},
			&cli.StringFlag{
				Name:    "crm-api-token",
				Usage:   "Bearer token for the CRM REST API",
				Value:   "",
				Sources: cli.EnvVars("CRM_API_TOKEN"),
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

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("casaflow-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing CasaFlow Worker")

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

			worker := NewWorker(
				workerID,
				command.String("event-bus"),
				command.String("crm-api-url"),
				command.String("crm-api-token"),
				persistence,
				logger,
			)

			err = worker.Start(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start event-driven worker", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
