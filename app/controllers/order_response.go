package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/paykit/app/models"
)

func orderResponse(o *models.Order) fiber.Map {
	return fiber.Map{
		"id":                   o.ID,
		"tenant_id":            o.TenantID,
		"customer_name":        o.CustomerName,
		"customer_contact":     o.CustomerContact,
		"amount":               o.Amount,
		"currency":             o.Currency,
		"description":          o.Description,
		"status":               o.Status,
		"gateway_order_id":     o.GatewayOrderID,
		"gateway_payment_id":   o.GatewayPaymentID,
		"gateway_refund_id":    o.GatewayRefundID,
		"payment_reference_id": o.PaymentReferenceID,
		"attempt_count":        o.AttemptCount,
		"last_error":           o.LastError,
		"verified_at":          formatTimePtr(o.VerifiedAt),
		"paid_at":              formatTimePtr(o.PaidAt),
		"failed_at":            formatTimePtr(o.FailedAt),
		"refunded_at":          formatTimePtr(o.RefundedAt),
		"created_at":           o.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":           o.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func orderStatusResponse(o *models.Order) fiber.Map {
	return fiber.Map{
		"id":                 o.ID,
		"status":             o.Status,
		"terminal":           o.Status.IsTerminal(),
		"gateway_order_id":   o.GatewayOrderID,
		"gateway_payment_id": o.GatewayPaymentID,
		"gateway_refund_id":  o.GatewayRefundID,
		"paid_at":            formatTimePtr(o.PaidAt),
		"failed_at":          formatTimePtr(o.FailedAt),
		"refunded_at":        formatTimePtr(o.RefundedAt),
		"last_error":         o.LastError,
	}
}
