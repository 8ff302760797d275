package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/ManuelReschke/paykit/app/models"
	"github.com/ManuelReschke/paykit/internal/pkg/credentials"
	"github.com/ManuelReschke/paykit/internal/pkg/events"
	"github.com/ManuelReschke/paykit/internal/pkg/razorpay"
)

// CreateOrderInput is the payload of a new order.
type CreateOrderInput struct {
	CustomerName    string `json:"customer_name" validate:"required,max=200"`
	CustomerContact string `json:"customer_contact" validate:"required,number,min=10,max=20"`
	Amount          int64  `json:"amount" validate:"min=100"`
	Currency        string `json:"currency" validate:"omitempty,alpha,max=8"`
	Description     string `json:"description" validate:"max=500"`
}

// VerifyInput is what the client receives from the hosted checkout.
type VerifyInput struct {
	GatewayOrderID   string `json:"razorpay_order_id"`
	GatewayPaymentID string `json:"razorpay_payment_id"`
	Signature        string `json:"razorpay_signature"`
}

// CheckoutInfo holds the parameters of the hosted checkout page.
type CheckoutInfo struct {
	URL            string `json:"url"`
	KeyID          string `json:"key_id"`
	GatewayOrderID string `json:"gateway_order_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Name           string `json:"name"`
	Description    string `json:"description"`
}

// CreateOrder validates the input and stores a new order in CREATED.
func (s *Service) CreateOrder(ctx context.Context, tenantID string, in CreateOrderInput) (*models.Order, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, validationError("tenant id is required")
	}
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.CustomerContact = strings.TrimSpace(in.CustomerContact)
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	in.Description = strings.TrimSpace(in.Description)
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError("%s", validationMessage(err))
	}
	if in.Currency == "" {
		in.Currency = models.DefaultCurrency
	}

	order := &models.Order{
		TenantID:        tenantID,
		CustomerName:    in.CustomerName,
		CustomerContact: in.CustomerContact,
		Amount:          in.Amount,
		Currency:        in.Currency,
		Description:     in.Description,
		Status:          models.OrderStatusCreated,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, internalError(err, "create order")
	}
	log.Infof("[Orders] Created order %s tenant=%s amount=%d %s contact=%s", order.ID, tenantID, order.Amount, order.Currency, order.MaskedContact())
	return order, nil
}

// GetOrder returns an order of the calling tenant.
func (s *Service) GetOrder(ctx context.Context, tenantID, orderID string) (*models.Order, error) {
	return s.ownedOrder(ctx, tenantID, orderID)
}

// ListOrders returns the orders of a tenant, newest first.
func (s *Service) ListOrders(ctx context.Context, tenantID string) ([]models.Order, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, validationError("tenant id is required")
	}
	orders, err := s.orders.ListByTenant(ctx, strings.TrimSpace(tenantID))
	if err != nil {
		return nil, internalError(err, "list orders")
	}
	return orders, nil
}

// SendPaymentRequest creates the gateway order (or reuses the one already
// created) and sends the customer an in-chat payment request. Allowed from
// CREATED and, as a resend, from PAYMENT_SENT.
func (s *Service) SendPaymentRequest(ctx context.Context, tenantID, orderID string) (*models.Order, error) {
	order, err := s.ownedOrder(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(order, "send payment request for", models.OrderStatusCreated, models.OrderStatusPaymentSent); err != nil {
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

	var from models.OrderStatus
	var gwErr error
	updated, err := s.update(ctx, order.ID, func(o *models.Order) (bool, error) {
		from = o.Status
		if err := requireStatus(o, "send payment request for", models.OrderStatusCreated, models.OrderStatusPaymentSent); err != nil {
			return false, err
		}
		if strings.TrimSpace(o.GatewayOrderID) == "" {
			gwOrder, err := gw.CreateOrder(ctx, razorpay.CreateOrderRequest{
				Amount:   o.Amount,
				Currency: o.Currency,
				Receipt:  newReceipt(),
				Notes: map[string]string{
					"customer":        o.CustomerName,
					"contact":         o.MaskedContact(),
					"internalOrderId": o.ID,
				},
			})
			if err != nil {
				gwErr = err
				o.SetLastError("Gateway order creation failed: " + err.Error())
				return true, nil
			}
			o.GatewayOrderID = gwOrder.ID
		}
		o.PaymentReferenceID = o.PaymentReference()
		o.LastError = ""
		s.applyTransition(o, models.OrderStatusPaymentSent, "")
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if gwErr != nil {
		log.Warnf("[Orders] Gateway order creation failed for order %s: %v", order.ID, gwErr)
		return nil, upstreamError(gwErr, "Gateway order creation failed")
	}

	s.publish(ctx, updated, from, events.SourceLifecycle)
	return s.sendPaymentRequestMessage(ctx, set, updated), nil
}

// VerifyPayment checks the checkout signature handed to the client and marks
// the order PAID. Repeated calls on a PAID order only backfill ids.
func (s *Service) VerifyPayment(ctx context.Context, tenantID, orderID string, in VerifyInput) (*models.Order, error) {
	in.GatewayOrderID = strings.TrimSpace(in.GatewayOrderID)
	in.GatewayPaymentID = strings.TrimSpace(in.GatewayPaymentID)
	in.Signature = strings.TrimSpace(in.Signature)
	if in.GatewayOrderID == "" || in.GatewayPaymentID == "" || in.Signature == "" {
		return nil, validationError("razorpay_order_id, razorpay_payment_id and razorpay_signature are required")
	}

	order, err := s.ownedOrder(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	set, err := s.resolveCredentials(ctx, order.TenantID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(set.GatewayKeySecret) == "" {
		return nil, configurationError("Gateway key secret is not configured for this tenant")
	}

	var from models.OrderStatus
	var authErr error
	updated, err := s.update(ctx, order.ID, func(o *models.Order) (bool, error) {
		from = o.Status
		if o.Status != models.OrderStatusPaid {
			if strings.TrimSpace(o.GatewayOrderID) == "" {
				return false, conflictError("Order has no gateway order yet, send the payment request first")
			}
			if !models.CanTransition(o.Status, models.OrderStatusPaid) {
				return false, conflictError("Cannot verify payment for order in status %s", o.Status)
			}
		}
		if o.GatewayOrderID != in.GatewayOrderID {
			return false, validationError("razorpay_order_id does not match the order")
		}
		if !VerifyCheckoutSignature(in.GatewayOrderID, in.GatewayPaymentID, in.Signature, set.GatewayKeySecret) {
			authErr = authenticationError("Invalid checkout signature")
			o.SetLastError("Invalid checkout signature")
			return true, nil
		}

		now := s.now()
		if strings.TrimSpace(o.GatewayPaymentID) == "" || o.Status != models.OrderStatusPaid {
			o.GatewayPaymentID = in.GatewayPaymentID
		}
		if o.VerifiedAt == nil {
			o.VerifiedAt = &now
		}
		if o.Status == models.OrderStatusPaid {
			if o.PaidAt == nil {
				o.PaidAt = &now
			}
			return true, nil
		}
		s.applyTransition(o, models.OrderStatusPaid, "")
		s.notifier.Dispatch(ctx, set, o, models.OrderStatusPaid)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if authErr != nil {
		log.Warnf("[Orders] Invalid checkout signature for order %s", order.ID)
		return nil, authErr
	}

	if from != updated.Status {
		log.Infof("[Orders] Payment verified for order %s", updated.ID)
	}
	s.publish(ctx, updated, from, events.SourceClient)
	return updated, nil
}

// Retry starts a new payment attempt for a FAILED or EXPIRED order with a
// fresh gateway order.
func (s *Service) Retry(ctx context.Context, tenantID, orderID string) (*models.Order, error) {
	order, err := s.ownedOrder(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(order, "retry", models.OrderStatusFailed, models.OrderStatusExpired); err != nil {
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

	var from models.OrderStatus
	var gwErr error
	updated, err := s.update(ctx, order.ID, func(o *models.Order) (bool, error) {
		from = o.Status
		if err := requireStatus(o, "retry", models.OrderStatusFailed, models.OrderStatusExpired); err != nil {
			return false, err
		}
		gwOrder, err := gw.CreateOrder(ctx, razorpay.CreateOrderRequest{
			Amount:   o.Amount,
			Currency: o.Currency,
			Receipt:  newRetryReceipt(s.now().UnixMilli()),
			Notes: map[string]string{
				"retry":           "true",
				"attempt":         strconv.Itoa(o.AttemptCount + 1),
				"internalOrderId": o.ID,
			},
		})
		if err != nil {
			gwErr = err
			o.SetLastError("Retry failed: " + err.Error())
			return true, nil
		}

		o.AttemptCount++
		o.FailedAt = nil
		o.LastError = ""
		o.GatewayPaymentID = ""
		o.GatewayOrderID = gwOrder.ID
		o.PaymentReferenceID = o.PaymentReference()
		s.applyTransition(o, models.OrderStatusPaymentSent, "")
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if gwErr != nil {
		log.Warnf("[Orders] Retry failed for order %s: %v", order.ID, gwErr)
		return nil, upstreamError(gwErr, "Retry failed")
	}

	log.Infof("[Orders] Retry attempt %d started for order %s", updated.AttemptCount, updated.ID)
	s.publish(ctx, updated, from, events.SourceLifecycle)
	return s.sendPaymentRequestMessage(ctx, set, updated), nil
}

// Refund asks the gateway to refund the captured payment of a PAID order and
// moves it to REFUND_PENDING. Completion arrives by webhook or Sync.
func (s *Service) Refund(ctx context.Context, tenantID, orderID string) (*models.Order, error) {
	order, err := s.ownedOrder(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(order, "refund", models.OrderStatusPaid); err != nil {
		return nil, err
	}
	if strings.TrimSpace(order.GatewayPaymentID) == "" {
		return nil, conflictError("Order has no gateway payment to refund")
	}
	set, err := s.resolveCredentials(ctx, order.TenantID)
	if err != nil {
		return nil, err
	}
	gw, err := s.gatewayFor(set)
	if err != nil {
		return nil, err
	}

	var from models.OrderStatus
	var gwErr error
	updated, err := s.update(ctx, order.ID, func(o *models.Order) (bool, error) {
		from = o.Status
		if err := requireStatus(o, "refund", models.OrderStatusPaid); err != nil {
			return false, err
		}
		refund, err := gw.Refund(ctx, o.GatewayPaymentID)
		if err != nil {
			gwErr = err
			o.SetLastError("Refund failed: " + err.Error())
			return true, nil
		}
		o.GatewayRefundID = refund.ID
		s.applyTransition(o, models.OrderStatusRefundPending, "")
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if gwErr != nil {
		log.Warnf("[Orders] Refund failed for order %s: %v", order.ID, gwErr)
		return nil, upstreamError(gwErr, "Refund failed")
	}

	log.Infof("[Orders] Refund %s requested for order %s", updated.GatewayRefundID, updated.ID)
	s.publish(ctx, updated, from, events.SourceLifecycle)
	return updated, nil
}

// Expire closes an order that was never paid.
func (s *Service) Expire(ctx context.Context, tenantID, orderID string) (*models.Order, error) {
	order, err := s.ownedOrder(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}

	var from models.OrderStatus
	updated, err := s.update(ctx, order.ID, func(o *models.Order) (bool, error) {
		from = o.Status
		if !s.applyTransition(o, models.OrderStatusExpired, "") {
			return false, conflictError("Cannot expire order in status %s", o.Status)
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, updated, from, events.SourceLifecycle)
	return updated, nil
}

// Checkout returns the parameters of the hosted checkout page.
func (s *Service) Checkout(ctx context.Context, tenantID, orderID string) (*CheckoutInfo, error) {
	order, err := s.ownedOrder(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(order.GatewayOrderID) == "" {
		return nil, conflictError("Order has no gateway order yet, send the payment request first")
	}
	set, err := s.resolveCredentials(ctx, order.TenantID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(set.GatewayKeyID) == "" {
		return nil, configurationError("Gateway key id is not configured for this tenant")
	}

	info := &CheckoutInfo{
		KeyID:          set.GatewayKeyID,
		GatewayOrderID: order.GatewayOrderID,
		Amount:         order.Amount,
		Currency:       order.Currency,
		Name:           s.checkoutName,
		Description:    "Order " + order.ID,
	}
	q := url.Values{}
	q.Set("dbOrderId", order.ID)
	q.Set("orderId", info.GatewayOrderID)
	q.Set("keyId", info.KeyID)
	q.Set("amount", strconv.FormatInt(info.Amount, 10))
	q.Set("currency", info.Currency)
	q.Set("name", info.Name)
	q.Set("desc", info.Description)
	info.URL = s.publicBaseURL + "/checkout.html?" + q.Encode()
	return info, nil
}

// sendPaymentRequestMessage sends the interactive payment request after the
// order change has been committed. A failure is stored on the order.
func (s *Service) sendPaymentRequestMessage(ctx context.Context, set credentials.Set, order *models.Order) *models.Order {
	err := s.notifier.SendPaymentRequest(ctx, set, order)
	if err == nil {
		log.Infof("[Orders] Payment request for order %s sent to %s", order.ID, order.MaskedContact())
		return order
	}

	log.Warnf("[Orders] Payment request for order %s not sent: %v", order.ID, err)
	updated, uerr := s.orders.Update(ctx, order.ID, func(o *models.Order) (bool, error) {
		o.SetLastError("Messaging send failed: " + err.Error())
		return true, nil
	})
	if uerr != nil {
		log.Errorf("[Orders] Failed to store messaging error for order %s: %v", order.ID, uerr)
		return order
	}
	return updated
}

func requireStatus(order *models.Order, action string, allowed ...models.OrderStatus) error {
	for _, st := range allowed {
		if order.Status == st {
			return nil
		}
	}
	return conflictError("Cannot %s order in status %s", action, order.Status)
}

func newReceipt() string {
	return "cpk_" + hexID(12)
}

func newRetryReceipt(unixMilli int64) string {
	return fmt.Sprintf("cpk_retry_%s_%d", hexID(10), unixMilli)
}

func hexID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}

// validationMessage turns validator errors into a short client message.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid input"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
