package controllers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/paykit/internal/pkg/payment"
)

const (
	HeaderRazorpaySignature = "X-Razorpay-Signature"
	HeaderRazorpayEventID   = "X-Razorpay-Event-Id"
)

// WebhookService handles gateway webhook deliveries.
type WebhookService interface {
	HandleWebhook(ctx context.Context, d payment.WebhookDelivery) (payment.WebhookResult, error)
}

// WebhookController serves POST /webhooks/razorpay.
type WebhookController struct {
	svc WebhookService
}

func NewWebhookController(svc WebhookService) *WebhookController {
	return &WebhookController{svc: svc}
}

// HandleRazorpayWebhook answers 200 for everything except malformed input,
// missing tenant configuration (400) and bad signatures (401).
func (wc *WebhookController) HandleRazorpayWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)

	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	result, err := wc.svc.HandleWebhook(ctx, payment.WebhookDelivery{
		Payload:   rawBody,
		Signature: strings.TrimSpace(c.Get(HeaderRazorpaySignature)),
		EventID:   strings.TrimSpace(c.Get(HeaderRazorpayEventID)),
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "outcome": result.Outcome})
}
