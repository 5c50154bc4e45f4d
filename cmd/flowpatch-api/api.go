// Package main provides the Flowpatch API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/flowpatch/flowpatch/pkg/capabilities"
	"github.com/flowpatch/flowpatch/pkg/diff"
	"github.com/flowpatch/flowpatch/pkg/eventbus"
	"github.com/flowpatch/flowpatch/pkg/persistence"
	"github.com/flowpatch/flowpatch/pkg/platform"
	"github.com/flowpatch/flowpatch/pkg/services"
	"github.com/flowpatch/flowpatch/pkg/validation"
	"github.com/flowpatch/flowpatch/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type APIConfig struct {
	Logger         *slog.Logger
	Persistence    persistence.Persistence
	Platform       platform.Client
	EventBus       eventbus.EventBus
	MaxVersions    int
	SkipValidation bool
}

type API struct {
	logger   *slog.Logger
	handlers *web.APIHandlers
	versions *services.Versions
	validate *validator.Validate
}

func NewAPI(cfg APIConfig) (*API, error) {
	schemas, err := diff.NewSchemaSet()
	if err != nil {
		return nil, err
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	engine := diff.NewEngine(cfg.Logger)
	graphValidator := validation.NewValidator(capabilities.NewStaticCatalog())
	versions := services.NewVersions(cfg.Persistence, cfg.EventBus, cfg.Logger, cfg.MaxVersions)
	mutations := services.NewMutations(cfg.Platform, engine, graphValidator, versions, cfg.EventBus, cfg.Logger, cfg.SkipValidation)
	restorer := services.NewRestorer(cfg.Platform, graphValidator, versions, cfg.EventBus, cfg.Logger)

	handlers := web.NewAPIHandlers(mutations, restorer, versions, cfg.Platform, schemas, validate)

	return &API{
		logger:   cfg.Logger,
		handlers: handlers,
		versions: versions,
		validate: validate,
	}, nil
}

// Versions exposes the version service for the retention sweeper.
func (a *API) Versions() *services.Versions {
	return a.versions
}

func (a *API) App() *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Flowpatch API")
	})

	w := app.Group("/workflows")
	w.Post("/:id/diff", a.handlers.ApplyDiff)
	w.Post("/:id/backup", a.handlers.CreateBackup)
	w.Post("/:id/restore", a.handlers.RestoreWorkflow)
	w.Get("/:id/versions", a.handlers.GetVersionHistory)
	w.Delete("/:id/versions", a.handlers.DeleteWorkflowVersions)
	w.Post("/:id/versions/prune", a.handlers.PruneVersions)
	w.Post("/:id/activate", a.handlers.ActivateWorkflow)
	w.Post("/:id/deactivate", a.handlers.DeactivateWorkflow)

	v := app.Group("/versions")
	v.Get("/compare", a.handlers.CompareVersions)
	v.Get("/stats", a.handlers.GetStorageStats)
	v.Post("/truncate", a.handlers.TruncateVersions)
	v.Get("/:versionId", a.handlers.GetVersion)
	v.Delete("/:versionId", a.handlers.DeleteVersion)

	app.Get("/health", a.handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
