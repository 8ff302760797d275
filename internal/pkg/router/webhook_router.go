package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// WebhookRouter mounts the gateway webhook endpoint. It carries no tenant
// auth; deliveries are authenticated by their signature.
type WebhookRouter struct {
	deps Dependencies
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	if h.deps.Webhooks == nil {
		return
	}

	handlers := []fiber.Handler{}
	if h.deps.WebhookRateLimit > 0 {
		handlers = append(handlers, limiter.New(limiter.Config{
			Max:        h.deps.WebhookRateLimit,
			Expiration: 1 * time.Minute,
			Storage:    h.deps.LimiterStorage,
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate_limited", "message": "Too many webhook deliveries"})
			},
		}))
	}
	handlers = append(handlers, h.deps.Webhooks.HandleRazorpayWebhook)

	app.Post("/webhooks/razorpay", handlers...)
}

func NewWebhookRouter(deps Dependencies) *WebhookRouter {
	return &WebhookRouter{deps: deps}
}
