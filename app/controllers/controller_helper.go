package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/paykit/internal/pkg/payment"
)

// statusForKind maps a payment error kind to the HTTP status answered to clients
func statusForKind(kind payment.Kind) int {
	switch kind {
	case payment.KindValidation, payment.KindConfiguration:
		return fiber.StatusBadRequest
	case payment.KindAuthentication:
		return fiber.StatusUnauthorized
	case payment.KindConflict:
		return fiber.StatusConflict
	case payment.KindNotFound:
		return fiber.StatusNotFound
	case payment.KindUpstream:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes {"error": kind, "message": msg}. Internal errors are
// logged in full and answered with a generic message.
func respondError(c *fiber.Ctx, err error) error {
	kind := payment.KindOf(err)
	if kind == payment.KindInternal {
		log.Errorf("[API] %s %s failed: %v", c.Method(), c.Path(), err)
	}
	return c.Status(statusForKind(kind)).JSON(fiber.Map{
		"error":   string(kind),
		"message": payment.PublicMessage(err),
	})
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": string(payment.KindValidation), "message": msg})
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
