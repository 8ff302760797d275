package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/paykit/app/controllers"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies carries the controllers and auth settings the routers mount.
type Dependencies struct {
	Orders   *controllers.OrderController
	Webhooks *controllers.WebhookController
	Settings *controllers.SettingsController
	Stats    *controllers.StatsController

	JWTSecret       string
	MonitorUser     string
	MonitorPassword string

	// WebhookRateLimit is the number of deliveries accepted per minute and
	// client IP. Zero disables the limiter.
	WebhookRateLimit int
	// LimiterStorage backs the webhook limiter. nil keeps counters in memory.
	LimiterStorage fiber.Storage
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	setup(app, NewWebhookRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
