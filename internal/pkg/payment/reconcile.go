package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/paykit/app/models"
	"github.com/ManuelReschke/paykit/internal/pkg/events"
	"github.com/ManuelReschke/paykit/internal/pkg/razorpay"
)

// observation is what the gateway currently reports for an order.
type observation struct {
	target    models.OrderStatus // empty when the gateway state maps to nothing
	paymentID string             // payment to backfill, if any
	refundID  string
	source    string
}

// Sync pulls the current state of an order from the gateway and applies it.
// Lookups run in priority order: stored refund, stored payment, then the
// payments listed under the gateway order. An order without any gateway
// correlation is returned unchanged.
//
// The result goes through the same transition table as webhooks, so a poll
// can never downgrade an order; gateway ids are still backfilled when the
// move itself is denied.
func (s *Service) Sync(ctx context.Context, tenantID, orderID string) (*models.Order, error) {
	order, err := s.ownedOrder(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	set, err := s.resolveCredentials(ctx, order.TenantID)
	if err != nil {
		return nil, err
	}
	gw, err := s.gatewayFor(set)
	if err != nil {
		return nil, err
	}

	obs, err := s.observe(ctx, gw, order)
	if err != nil {
		log.Warnf("[Sync] Gateway lookup failed for order %s: %v", order.ID, err)
		return nil, upstreamError(err, "Sync failed: %s", err.Error())
	}
	if obs == nil {
		log.Infof("[Sync] Order %s has no gateway correlation yet", order.ID)
		return order, nil
	}

	var from models.OrderStatus
	updated, err := s.update(ctx, order.ID, func(o *models.Order) (bool, error) {
		from = o.Status
		changed := backfillPaymentID(o, obs.paymentID)
		if obs.target == "" {
			return changed, nil
		}
		if !models.CanTransition(o.Status, obs.target) {
			if o.Status == models.OrderStatusFailed && obs.target == models.OrderStatusPaid {
				log.Errorf("[Sync] Order %s is FAILED but payment %s was captured at the gateway; needs manual review", o.ID, obs.paymentID)
				o.LastError = capturedAfterFailure(obs.paymentID)
				return true, nil
			}
			log.Warnf("[Sync] Blocked transition %s -> %s for order %s (%s)", o.Status, obs.target, o.ID, obs.source)
			return changed, nil
		}
		s.applyTransition(o, obs.target, obs.refundID)
		s.notifier.Dispatch(ctx, set, o, obs.target)
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if updated.Status != from {
		log.Infof("[Sync] Order %s reconciled from %s: %s -> %s", updated.ID, obs.source, from, updated.Status)
	}
	s.publish(ctx, updated, from, events.SourceReconcile)
	return updated, nil
}

func (s *Service) observe(ctx context.Context, gw Gateway, order *models.Order) (*observation, error) {
	if refundID := strings.TrimSpace(order.GatewayRefundID); refundID != "" {
		refund, err := gw.FetchRefund(ctx, refundID)
		if err != nil {
			return nil, err
		}
		obs := &observation{refundID: refund.ID, source: "refund"}
		switch strings.ToLower(refund.Status) {
		case razorpay.RefundStatusProcessed:
			obs.target = models.OrderStatusRefunded
		case razorpay.RefundStatusPending:
			obs.target = models.OrderStatusRefundPending
		}
		return obs, nil
	}

	// a failed order may have a later attempt on the same gateway order
	retryable := order.Status == models.OrderStatusFailed && strings.TrimSpace(order.GatewayOrderID) != ""
	if paymentID := strings.TrimSpace(order.GatewayPaymentID); paymentID != "" && !retryable {
		payment, err := gw.FetchPayment(ctx, paymentID)
		if err != nil {
			return nil, err
		}
		return &observation{target: targetForPayment(payment.Status), source: "payment"}, nil
	}

	if gwOrderID := strings.TrimSpace(order.GatewayOrderID); gwOrderID != "" {
		payments, err := gw.ListPaymentsForOrder(ctx, gwOrderID)
		if err != nil {
			return nil, err
		}
		latest := latestPayment(payments)
		if latest == nil {
			return &observation{source: "order"}, nil
		}
		return &observation{
			target:    targetForPayment(latest.Status),
			paymentID: strings.TrimSpace(latest.ID),
			source:    "order",
		}, nil
	}

	return nil, nil
}

func capturedAfterFailure(paymentID string) string {
	return fmt.Sprintf("Payment %s was captured after the order failed; do not retry before reviewing it", paymentID)
}

// targetForPayment maps a gateway payment status to an order status.
func targetForPayment(status string) models.OrderStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case razorpay.PaymentStatusCaptured:
		return models.OrderStatusPaid
	case razorpay.PaymentStatusFailed:
		return models.OrderStatusFailed
	case razorpay.PaymentStatusAuthorized, razorpay.PaymentStatusCreated:
		return models.OrderStatusPaymentSent
	}
	return ""
}

// latestPayment picks the payment with the highest created_at; on ties the
// last one listed wins.
func latestPayment(payments []razorpay.Payment) *razorpay.Payment {
	var latest *razorpay.Payment
	for i := range payments {
		if latest == nil || payments[i].CreatedAt >= latest.CreatedAt {
			latest = &payments[i]
		}
	}
	return latest
}
