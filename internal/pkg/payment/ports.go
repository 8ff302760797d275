package payment

import (
	"context"

	"github.com/ManuelReschke/paykit/app/models"
	"github.com/ManuelReschke/paykit/internal/pkg/credentials"
	"github.com/ManuelReschke/paykit/internal/pkg/events"
	"github.com/ManuelReschke/paykit/internal/pkg/razorpay"
	"github.com/ManuelReschke/paykit/internal/pkg/whatsapp"
)

// OrderStore persists orders. Update runs fn against the locked current row;
// the row is written only when fn returns true, and nothing is written when
// fn returns an error.
type OrderStore interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error)
	GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*models.Order, error)
	ListByTenant(ctx context.Context, tenantID string) ([]models.Order, error)
	Update(ctx context.Context, id string, fn func(order *models.Order) (bool, error)) (*models.Order, error)
}

// Ledger is the durable set of already handled webhook deliveries.
type Ledger interface {
	Exists(ctx context.Context, eventKey string) (bool, error)
	Record(ctx context.Context, event *models.WebhookEvent) error
}

// CredentialResolver looks up a tenant's credentials. A tenant without stored
// settings resolves to an empty Set, not an error.
type CredentialResolver interface {
	Resolve(ctx context.Context, tenantID string) (credentials.Set, error)
}

// Gateway is the subset of the payment gateway API used here.
type Gateway interface {
	CreateOrder(ctx context.Context, req razorpay.CreateOrderRequest) (*razorpay.Order, error)
	FetchPayment(ctx context.Context, paymentID string) (*razorpay.Payment, error)
	FetchRefund(ctx context.Context, refundID string) (*razorpay.Refund, error)
	ListPaymentsForOrder(ctx context.Context, gatewayOrderID string) ([]razorpay.Payment, error)
	Refund(ctx context.Context, paymentID string) (*razorpay.Refund, error)
}

// GatewayFactory builds a gateway client for one tenant's key pair.
type GatewayFactory func(keyID, keySecret string) Gateway

// Messenger sends customer-facing messages.
type Messenger interface {
	SendInteractivePaymentRequest(ctx context.Context, req whatsapp.PaymentRequest) error
	SendText(ctx context.Context, to, body string) error
}

// MessengerFactory builds a messaging client for one tenant's sender.
type MessengerFactory func(accessToken, senderID string) Messenger

// EventPublisher announces applied status changes.
type EventPublisher interface {
	PublishStatusChange(ctx context.Context, change events.StatusChange) error
}

// PayloadArchiver keeps a copy of raw webhook payloads.
type PayloadArchiver interface {
	Archive(ctx context.Context, eventKey string, payload []byte) error
}
