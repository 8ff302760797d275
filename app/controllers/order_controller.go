package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/paykit/app/models"
	"github.com/ManuelReschke/paykit/internal/pkg/payment"
	"github.com/ManuelReschke/paykit/internal/pkg/tenantcontext"
)

const requestTimeout = 15 * time.Second

// OrderService is the part of payment.Service used by the order API.
type OrderService interface {
	CreateOrder(ctx context.Context, tenantID string, in payment.CreateOrderInput) (*models.Order, error)
	GetOrder(ctx context.Context, tenantID, orderID string) (*models.Order, error)
	ListOrders(ctx context.Context, tenantID string) ([]models.Order, error)
	SendPaymentRequest(ctx context.Context, tenantID, orderID string) (*models.Order, error)
	VerifyPayment(ctx context.Context, tenantID, orderID string, in payment.VerifyInput) (*models.Order, error)
	Retry(ctx context.Context, tenantID, orderID string) (*models.Order, error)
	Refund(ctx context.Context, tenantID, orderID string) (*models.Order, error)
	Expire(ctx context.Context, tenantID, orderID string) (*models.Order, error)
	Checkout(ctx context.Context, tenantID, orderID string) (*payment.CheckoutInfo, error)
	Sync(ctx context.Context, tenantID, orderID string) (*models.Order, error)
}

// OrderController serves /api/v1/orders.
type OrderController struct {
	svc OrderService
}

func NewOrderController(svc OrderService) *OrderController {
	return &OrderController{svc: svc}
}

// HandleCreate creates a new order for the authenticated tenant.
func (oc *OrderController) HandleCreate(c *fiber.Ctx) error {
	tenantID := tenantcontext.TenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	var in payment.CreateOrderInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()
	order, err := oc.svc.CreateOrder(ctx, tenantID, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(orderResponse(order))
}

// HandleList returns the tenant's orders, newest first.
func (oc *OrderController) HandleList(c *fiber.Ctx) error {
	tenantID := tenantcontext.TenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()
	orders, err := oc.svc.ListOrders(ctx, tenantID)
	if err != nil {
		return respondError(c, err)
	}

	items := make([]fiber.Map, 0, len(orders))
	for i := range orders {
		items = append(items, orderResponse(&orders[i]))
	}
	return c.JSON(fiber.Map{"orders": items, "count": len(items)})
}

// HandleGet returns one order.
func (oc *OrderController) HandleGet(c *fiber.Ctx) error {
	return oc.orderAction(c, oc.svc.GetOrder, orderResponse)
}

// HandleStatus returns the status projection of one order.
func (oc *OrderController) HandleStatus(c *fiber.Ctx) error {
	return oc.orderAction(c, oc.svc.GetOrder, orderStatusResponse)
}

// HandleSendPayment creates the gateway order and messages the customer.
func (oc *OrderController) HandleSendPayment(c *fiber.Ctx) error {
	return oc.orderAction(c, oc.svc.SendPaymentRequest, orderResponse)
}

// HandleRetry starts a new payment attempt.
func (oc *OrderController) HandleRetry(c *fiber.Ctx) error {
	return oc.orderAction(c, oc.svc.Retry, orderResponse)
}

// HandleRefund requests a refund of the captured payment.
func (oc *OrderController) HandleRefund(c *fiber.Ctx) error {
	return oc.orderAction(c, oc.svc.Refund, orderResponse)
}

// HandleExpire expires an unpaid order.
func (oc *OrderController) HandleExpire(c *fiber.Ctx) error {
	return oc.orderAction(c, oc.svc.Expire, orderResponse)
}

// HandleSync reconciles the order with the gateway.
func (oc *OrderController) HandleSync(c *fiber.Ctx) error {
	return oc.orderAction(c, oc.svc.Sync, orderResponse)
}

// HandleVerify checks the checkout signature returned to the client.
func (oc *OrderController) HandleVerify(c *fiber.Ctx) error {
	tenantID := tenantcontext.TenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	var in payment.VerifyInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()
	order, err := oc.svc.VerifyPayment(ctx, tenantID, c.Params("id"), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(orderResponse(order))
}

// HandleCheckout returns the hosted checkout URL and parameters.
func (oc *OrderController) HandleCheckout(c *fiber.Ctx) error {
	tenantID := tenantcontext.TenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()
	info, err := oc.svc.Checkout(ctx, tenantID, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(info)
}

func (oc *OrderController) orderAction(
	c *fiber.Ctx,
	action func(ctx context.Context, tenantID, orderID string) (*models.Order, error),
	render func(o *models.Order) fiber.Map,
) error {
	tenantID := tenantcontext.TenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()
	order, err := action(ctx, tenantID, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(render(order))
}
