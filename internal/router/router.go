package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kanbot-project/kanbot-sync-api/internal/config"
	"github.com/kanbot-project/kanbot-sync-api/internal/handler"
	"github.com/kanbot-project/kanbot-sync-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	RealtimeHandler      *handler.RealtimeHandler
	AgentHandler         *handler.AgentHandler
	NotificationHandler  *handler.NotificationHandler
	WebhookHandler       *handler.WebhookHandler
	ScheduledCardHandler *handler.ScheduledCardHandler
	ActorMiddleware      fiber.Handler
	BackoffMiddleware    fiber.Handler
	RateLimitMiddleware  fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	guard := func(h fiber.Handler) fiber.Handler {
		if h == nil {
			return func(c *fiber.Ctx) error { return c.Next() }
		}
		return h
	}
	actor := guard(deps.ActorMiddleware)
	backoff := guard(deps.BackoffMiddleware)
	rateLimit := guard(deps.RateLimitMiddleware)

	// The websocket route authenticates inside the upgrade so it can answer
	// with the proper close codes instead of an HTTP error.
	if deps.RealtimeHandler != nil {
		realtime := app.Group("/api/v1/realtime")
		deps.RealtimeHandler.Register(realtime)
	}

	if deps.AgentHandler != nil {
		agents := app.Group("/api/v1/agents", backoff, actor, rateLimit)
		deps.AgentHandler.Register(agents)
	}

	if deps.NotificationHandler != nil {
		notifications := app.Group("/api/v1/notifications", backoff, actor, rateLimit)
		deps.NotificationHandler.Register(notifications)
	}

	if deps.WebhookHandler != nil {
		webhooks := app.Group("/api/v1/webhooks", backoff, actor, rateLimit)
		deps.WebhookHandler.Register(webhooks)
	}

	if deps.ScheduledCardHandler != nil {
		scheduled := app.Group("/api/v1/scheduled-cards", backoff, actor, rateLimit)
		deps.ScheduledCardHandler.Register(scheduled)
	}
}
