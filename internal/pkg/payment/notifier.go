package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/paykit/app/models"
	"github.com/ManuelReschke/paykit/internal/pkg/credentials"
	"github.com/ManuelReschke/paykit/internal/pkg/whatsapp"
)

// Notifier sends the customer messages that follow a status change. Each of
// the paid, failed and refunded messages is sent at most once per order: the
// matching sent-at field on the order is the guard.
//
// A failed send never fails the caller. The error is written to the order's
// last error and the transition stays applied; the message is tried again the
// next time the same status is applied.
type Notifier struct {
	messengers MessengerFactory
	now        func() time.Time
}

func NewNotifier(messengers MessengerFactory, now func() time.Time) *Notifier {
	if now == nil {
		now = time.Now
	}
	return &Notifier{messengers: messengers, now: now}
}

// Dispatch sends the message for status if it has not been sent yet. It
// reports whether the order was modified.
func (n *Notifier) Dispatch(ctx context.Context, set credentials.Set, order *models.Order, status models.OrderStatus) bool {
	sentAt, body := n.message(order, status)
	if sentAt == nil || *sentAt != nil {
		return false
	}
	if !set.MessagingConfigured() || n.messengers == nil {
		log.Infof("[Notify] Messaging not configured for tenant %s, skipping %s message for order %s", order.TenantID, status, order.ID)
		return false
	}

	messenger := n.messengers(set.MessagingAccessToken, set.MessagingSenderID)
	if err := messenger.SendText(ctx, order.CustomerContact, body); err != nil {
		log.Warnf("[Notify] Failed to send %s message for order %s to %s: %v", status, order.ID, order.MaskedContact(), err)
		order.SetLastError("Messaging send failed: " + err.Error())
		return true
	}

	now := n.now()
	*sentAt = &now
	log.Infof("[Notify] Sent %s message for order %s to %s", status, order.ID, order.MaskedContact())
	return true
}

// SendPaymentRequest sends the interactive payment request of an order. It is
// not guarded: a resend is an explicit caller action.
func (n *Notifier) SendPaymentRequest(ctx context.Context, set credentials.Set, order *models.Order) error {
	if !set.MessagingConfigured() || n.messengers == nil {
		return fmt.Errorf("messaging is not configured for tenant %s", order.TenantID)
	}
	messenger := n.messengers(set.MessagingAccessToken, set.MessagingSenderID)
	return messenger.SendInteractivePaymentRequest(ctx, whatsapp.PaymentRequest{
		To:          order.CustomerContact,
		Amount:      order.Amount,
		Currency:    order.Currency,
		Description: order.Description,
		ReferenceID: order.PaymentReferenceID,
		Metadata: map[string]string{
			"razorpay_order_id": order.GatewayOrderID,
			"internal_order_id": order.ID,
		},
	})
}

// message returns the sent-at field guarding status and the message text,
// or nil for statuses without a customer message.
func (n *Notifier) message(order *models.Order, status models.OrderStatus) (**time.Time, string) {
	switch status {
	case models.OrderStatusPaid:
		return &order.PaidMsgSentAt, fmt.Sprintf("Payment received!\nOrder: %s\nAmount: %s", order.ID, FormatAmount(order.Amount, order.Currency))
	case models.OrderStatusFailed:
		return &order.FailedMsgSentAt, fmt.Sprintf("Payment failed.\nOrder: %s\nPlease retry.", order.ID)
	case models.OrderStatusRefunded:
		return &order.RefundedMsgSentAt, fmt.Sprintf("Refund processed.\nOrder: %s", order.ID)
	}
	return nil, ""
}

// FormatAmount renders minor units as "500.00 INR".
func FormatAmount(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, minor/100, minor%100, currency)
}
