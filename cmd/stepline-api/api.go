// Package main provides the Stepline API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"go.opentelemetry.io/otel/trace"

	"github.com/stepline/stepline/pkg/eventbus"
	"github.com/stepline/stepline/pkg/execution"
	"github.com/stepline/stepline/pkg/persistence"
	"github.com/stepline/stepline/pkg/resources"
	"github.com/stepline/stepline/pkg/services"
	"github.com/stepline/stepline/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	inventory   resources.Inventory
	eventBus    eventbus.EventBus
	tracer      trace.Tracer
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	inventory resources.Inventory,
	eventBus eventbus.EventBus,
	tracer trace.Tracer,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		inventory:   inventory,
		eventBus:    eventBus,
		tracer:      tracer,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	coordinator := resources.NewCoordinator(a.inventory, a.logger)
	controller := execution.NewController(a.logger, a.persistence, coordinator, a.eventBus)
	definitionService := services.NewDefinition(a.persistence)
	engine := services.NewEngine(a.persistence, controller, coordinator, a.tracer)

	handlers := web.NewAPIHandlers(definitionService, engine, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Stepline API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.GetDefinitions)
	w.Post("/", handlers.CreateDefinition)
	w.Post("/validate", handlers.ValidateDefinition)
	w.Post("/import", handlers.ImportDefinition)
	w.Get("/:id", handlers.GetDefinition)
	w.Patch("/:id", handlers.UpdateDefinition)
	w.Delete("/:id", handlers.RetireDefinition)
	w.Get("/:id/export", handlers.ExportDefinition)
	w.Get("/:id/readiness", handlers.GetReadiness)
	w.Get("/:id/executions", handlers.GetWorkflowExecutions)

	e := app.Group("/executions")
	e.Post("/", handlers.StartExecution)
	e.Get("/:id", handlers.GetExecution)
	e.Post("/:id/navigate", handlers.NavigateExecution)
	e.Post("/:id/steps/:stepId/complete", handlers.CompleteStep)
	e.Post("/:id/decide", handlers.DecideExecution)
	e.Post("/:id/pause", handlers.PauseExecution)
	e.Post("/:id/resume", handlers.ResumeExecution)
	e.Post("/:id/cancel", handlers.CancelExecution)
	e.Get("/:id/progress", handlers.GetProgress)
	e.Get("/:id/actions", handlers.GetAvailableActions)
	e.Get("/:id/suggestion", handlers.GetSuggestion)
	e.Get("/:id/path", handlers.GetOptimalPath)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
