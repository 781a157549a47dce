package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/civic-desk/issue-sync/internal/api/http/handlers"
	"github.com/civic-desk/issue-sync/internal/auth"
	"github.com/civic-desk/issue-sync/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Issues         *handlers.IssuesHandler
	Departments    *handlers.DepartmentsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	api := app.Group("/api", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	adminOnly := auth.RequireRole(domain.OperatorRoleAdmin)

	api.Get("/issues", cfg.Issues.ListIssues)
	api.Get("/issues/map", cfg.Issues.MapIssues)
	api.Get("/issues/:id", cfg.Issues.GetIssue)
	api.Get("/issues/:id/progress", cfg.Issues.Progress)
	api.Post("/issues/:id/assign", adminOnly, cfg.Issues.AssignDepartments)
	api.Patch("/issues/:id", cfg.Issues.UpdateStatus)

	api.Get("/departments", cfg.Departments.ListDepartments)
	api.Post("/departments", adminOnly, cfg.Departments.CreateDepartment)

	api.Get("/complainants", adminOnly, cfg.Issues.ListComplainants)
}
