package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/housing-service/internal/api/http/handlers"
	"github.com/spec-kit/housing-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Allocations    *handlers.AllocationsHandler
	Registrants    *handlers.RegistrantsHandler
	Rooms          *handlers.RoomsHandler
	Settings       *handlers.SettingsHandler
	Reconciler     *handlers.ReconcilerHandler
	AuthMiddleware *auth.AuthMiddleware
	Gatherer       prometheus.Gatherer
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle)
	admin := auth.RequireAdmin()

	allocations := api.Group("/allocations")
	allocations.Post("/", cfg.Allocations.Allocate)
	allocations.Get("/statistics", cfg.Allocations.Statistics)
	allocations.Get("/registrants/:registrantId", cfg.Allocations.ForRegistrant)
	allocations.Delete("/registrants/:registrantId", cfg.Allocations.Deallocate)

	api.Get("/registrants/unallocated", cfg.Registrants.Unallocated)

	rooms := api.Group("/rooms")
	rooms.Get("/", cfg.Rooms.List)
	rooms.Get("/:id", cfg.Rooms.Get)
	rooms.Post("/", admin, cfg.Rooms.Create)
	rooms.Patch("/:id", admin, cfg.Rooms.Update)
	rooms.Delete("/:id", admin, cfg.Rooms.Delete)

	settings := api.Group("/settings")
	settings.Get("/age-gap-tolerance", cfg.Settings.GetTolerance)
	settings.Put("/age-gap-tolerance", admin, cfg.Settings.PutTolerance)

	rec := api.Group("/reconciler")
	rec.Get("/status", cfg.Reconciler.Status)
	rec.Get("/report", cfg.Reconciler.Report)
	rec.Post("/start", admin, cfg.Reconciler.Start)
	rec.Post("/stop", admin, cfg.Reconciler.Stop)
	rec.Post("/scan", admin, cfg.Reconciler.Scan)
	rec.Put("/config", admin, cfg.Reconciler.Configure)
}
