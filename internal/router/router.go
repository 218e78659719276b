package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-writing-api/internal/config"
	"github.com/noah-isme/gema-writing-api/internal/handler"
	"github.com/noah-isme/gema-writing-api/internal/middleware"
	"github.com/noah-isme/gema-writing-api/internal/observability"
	"github.com/noah-isme/gema-writing-api/pkg/ai"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	MarkingHandler *handler.MarkingHandler
	Generator      ai.Generator
	JWTMiddleware  fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.Generator))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.MarkingHandler != nil {
		marking := app.Group(middleware.MarkingPathPrefix, jwtMiddleware,
			middleware.RequireRole(middleware.RoleTeacher, middleware.RoleAdmin))
		deps.MarkingHandler.Register(marking, middleware.RateLimit("grade", cfg.GradeRateLimit, time.Minute))
	}
}
