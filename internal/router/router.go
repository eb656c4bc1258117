package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/serenitylabs/serenity/internal/config"
	"github.com/serenitylabs/serenity/internal/handlers"
	"github.com/serenitylabs/serenity/internal/logging"
	"github.com/serenitylabs/serenity/internal/metrics"
	"github.com/serenitylabs/serenity/internal/middleware"
	"github.com/serenitylabs/serenity/internal/services"
)

// Setup configures all routes and middlewares
func Setup(app *fiber.App, logger *logging.Logger, runService *services.RunService,
	recorder *metrics.Recorder, gatherer prometheus.Gatherer, cfg config.Config,
) *handlers.Handler {
	h := handlers.New(logger, runService, cfg)

	// Global middlewares
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowMethods:  "GET,POST,DELETE,OPTIONS",
		AllowHeaders:  "Origin,Content-Type,Accept,Authorization,X-API-Key,X-Request-ID",
		ExposeHeaders: "Content-Disposition,X-Request-ID",
	}))
	app.Use(logging.FiberMiddleware(logger))
	app.Use(middleware.Metrics(recorder))

	// Health check and metrics (no auth required)
	app.Get("/health", h.Health)
	if gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	// API key authentication middleware
	authMiddleware := middleware.APIKeyAuth(logger, cfg.Auth)

	// API v1 routes (protected by API key)
	v1 := app.Group("/v1", authMiddleware)

	// Models
	v1.Get("/models", h.ListModels)

	// Run submission
	v1.Post("/runs", h.CreateRun)
	v1.Post("/runs/rows", h.CreateRunFromRows)

	// Run status and results
	v1.Get("/runs", h.ListRuns)
	v1.Get("/runs/:id", h.GetRun)
	v1.Get("/runs/:id/result", h.GetRunResult)
	v1.Get("/runs/:id/forecast", h.GetRunForecast)
	v1.Get("/runs/:id/metrics", h.GetRunMetrics)
	v1.Get("/runs/:id/chart/:model", h.GetRunChart)
	v1.Get("/runs/:id/export", h.ExportRun)
	v1.Delete("/runs/:id", h.DeleteRun)

	// Admin Routes (protected by API key)
	admin := app.Group("/admin", authMiddleware)
	admin.Post("/cleanup", h.TriggerCleanup)

	// 404 handler
	app.Use(h.NotFound)

	return h
}

// New creates a new Fiber app with configuration
func New(logger *logging.Logger, runService *services.RunService,
	recorder *metrics.Recorder, gatherer prometheus.Gatherer, cfg config.Config,
) *fiber.App {
	bodyLimit := cfg.Runs.MaxUploadBytes()
	if bodyLimit <= 0 {
		bodyLimit = fiber.DefaultBodyLimit
	}

	app := fiber.New(fiber.Config{
		AppName:               "Serenity",
		DisableStartupMessage: true,
		BodyLimit:             bodyLimit,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	Setup(app, logger, runService, recorder, gatherer, cfg)

	return app
}
