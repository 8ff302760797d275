package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"

	"github.com/ManuelReschke/paykit/internal/pkg/middleware"
)

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api")
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")

	// operator endpoints use basic auth instead of tenant tokens
	if h.deps.Stats != nil {
		v1.Get("/stats/webhooks", monitorAuth(h.deps), h.deps.Stats.HandleWebhookStats)
	}

	tenantAuth := middleware.TenantAuthMiddleware(h.deps.JWTSecret)

	if oc := h.deps.Orders; oc != nil {
		orders := v1.Group("/orders", tenantAuth)
		orders.Post("/", oc.HandleCreate)
		orders.Get("/", oc.HandleList)
		orders.Get("/:id", oc.HandleGet)
		orders.Get("/:id/status", oc.HandleStatus)
		orders.Get("/:id/checkout", oc.HandleCheckout)
		orders.Post("/:id/send-payment", oc.HandleSendPayment)
		orders.Post("/:id/verify", oc.HandleVerify)
		orders.Post("/:id/retry", oc.HandleRetry)
		orders.Post("/:id/refund", oc.HandleRefund)
		orders.Post("/:id/expire", oc.HandleExpire)
		orders.Get("/:id/sync", oc.HandleSync)
	}

	if sc := h.deps.Settings; sc != nil {
		settings := v1.Group("/settings", tenantAuth)
		settings.Get("/", sc.HandleGet)
		settings.Put("/", sc.HandlePut)
	}
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}

func monitorAuth(deps Dependencies) fiber.Handler {
	return basicauth.New(basicauth.Config{
		Users: map[string]string{
			deps.MonitorUser: deps.MonitorPassword,
		},
	})
}
