package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/paykit/app/models"
	"github.com/ManuelReschke/paykit/internal/pkg/credentials"
	"github.com/ManuelReschke/paykit/internal/pkg/payment"
	"github.com/ManuelReschke/paykit/internal/pkg/tenantcontext"
)

const stubTenant = "4b7f3c1e-9a52-4d8e-b1f0-2c6a8e9d7f10"

type stubOrderService struct {
	order      *models.Order
	orders     []models.Order
	checkout   *payment.CheckoutInfo
	err        error
	lastTenant string
	lastOrder  string
	lastCreate payment.CreateOrderInput
	lastVerify payment.VerifyInput
	calls      []string
}

func (s *stubOrderService) record(name, tenantID, orderID string) {
	s.calls = append(s.calls, name)
	s.lastTenant = tenantID
	s.lastOrder = orderID
}

func (s *stubOrderService) CreateOrder(_ context.Context, tenantID string, in payment.CreateOrderInput) (*models.Order, error) {
	s.record("create", tenantID, "")
	s.lastCreate = in
	return s.order, s.err
}

func (s *stubOrderService) GetOrder(_ context.Context, tenantID, orderID string) (*models.Order, error) {
	s.record("get", tenantID, orderID)
	return s.order, s.err
}

func (s *stubOrderService) ListOrders(_ context.Context, tenantID string) ([]models.Order, error) {
	s.record("list", tenantID, "")
	return s.orders, s.err
}

func (s *stubOrderService) SendPaymentRequest(_ context.Context, tenantID, orderID string) (*models.Order, error) {
	s.record("send", tenantID, orderID)
	return s.order, s.err
}

func (s *stubOrderService) VerifyPayment(_ context.Context, tenantID, orderID string, in payment.VerifyInput) (*models.Order, error) {
	s.record("verify", tenantID, orderID)
	s.lastVerify = in
	return s.order, s.err
}

func (s *stubOrderService) Retry(_ context.Context, tenantID, orderID string) (*models.Order, error) {
	s.record("retry", tenantID, orderID)
	return s.order, s.err
}

func (s *stubOrderService) Refund(_ context.Context, tenantID, orderID string) (*models.Order, error) {
	s.record("refund", tenantID, orderID)
	return s.order, s.err
}

func (s *stubOrderService) Expire(_ context.Context, tenantID, orderID string) (*models.Order, error) {
	s.record("expire", tenantID, orderID)
	return s.order, s.err
}

func (s *stubOrderService) Checkout(_ context.Context, tenantID, orderID string) (*payment.CheckoutInfo, error) {
	s.record("checkout", tenantID, orderID)
	return s.checkout, s.err
}

func (s *stubOrderService) Sync(_ context.Context, tenantID, orderID string) (*models.Order, error) {
	s.record("sync", tenantID, orderID)
	return s.order, s.err
}

type stubWebhookService struct {
	result   payment.WebhookResult
	err      error
	delivery payment.WebhookDelivery
}

func (s *stubWebhookService) HandleWebhook(_ context.Context, d payment.WebhookDelivery) (payment.WebhookResult, error) {
	s.delivery = d
	return s.result, s.err
}

type stubSettingsStore struct {
	view    credentials.View
	err     error
	updates []credentials.Update
}

func (s *stubSettingsStore) View(context.Context, string) (credentials.View, error) {
	return s.view, s.err
}

func (s *stubSettingsStore) Save(_ context.Context, _ string, in credentials.Update) (credentials.View, error) {
	s.updates = append(s.updates, in)
	return s.view, s.err
}

type stubCounter struct {
	totals map[string]int64
	today  map[string]int64
	err    error
}

func (s *stubCounter) WebhookOutcomes(context.Context) (map[string]int64, error) {
	return s.totals, s.err
}

func (s *stubCounter) WebhookOutcomesOn(context.Context, time.Time) (map[string]int64, error) {
	return s.today, s.err
}

type stubLedgerStats struct {
	counts map[string]int64
	err    error
}

func (s *stubLedgerStats) CountByOutcome(context.Context) (map[string]int64, error) {
	return s.counts, s.err
}

// withTenant is a test stand-in for the JWT middleware.
func withTenant(tenantID string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if tenantID != "" {
			tenantcontext.Set(c, tenantcontext.TenantContext{TenantID: tenantID})
		}
		return c.Next()
	}
}

func sampleOrder() *models.Order {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return &models.Order{
		ID:              "9d1c2a47-5e3b-4f60-8a7d-0b1e2c3d4f5a",
		TenantID:        stubTenant,
		CustomerName:    "Asha",
		CustomerContact: "919876543210",
		Amount:          50000,
		Currency:        "INR",
		Status:          models.OrderStatusCreated,
		CreatedAt:       created,
		UpdatedAt:       created,
	}
}
