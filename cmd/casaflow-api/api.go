// Package main provides the CasaFlow API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/casaflow/casaflow/pkg/automation"
	"github.com/casaflow/casaflow/pkg/clients"
	"github.com/casaflow/casaflow/pkg/cmd"
	"github.com/casaflow/casaflow/pkg/persistence"
	"github.com/casaflow/casaflow/pkg/registry"
	"github.com/casaflow/casaflow/pkg/services"
	"github.com/casaflow/casaflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		registry:    registry,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	automationService := services.NewAutomation(a.persistence, a.registry, a.logger)
	workflowService := services.NewWorkflow(a.persistence, a.registry, a.logger)

	// Dry runs always execute against recording collaborators, so the
	// tester builds its own registry per run.
	tester := automation.NewTester(func(set *clients.Set) *registry.Registry {
		return cmd.NewRegistry(a.logger, set)
	}, a.logger)

	handlers := web.NewAPIHandlers(automationService, workflowService, tester, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("CasaFlow API")
	})

	web.RegisterRoutes(app, handlers)

	return app
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}
