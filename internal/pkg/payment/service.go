package payment

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/paykit/app/models"
	"github.com/ManuelReschke/paykit/internal/pkg/credentials"
	"github.com/ManuelReschke/paykit/internal/pkg/events"
)

const defaultCheckoutName = "PayKit"

// OutcomeRecorder counts webhook outcomes.
type OutcomeRecorder interface {
	AddWebhookOutcome(ctx context.Context, outcome string) error
}

// Options are the collaborators of a Service. Events, Archive and Outcomes
// are optional.
type Options struct {
	Orders        OrderStore
	Ledger        Ledger
	Credentials   CredentialResolver
	Gateways      GatewayFactory
	Messengers    MessengerFactory
	Events        EventPublisher
	Archive       PayloadArchiver
	Outcomes      OutcomeRecorder
	PublicBaseURL string
	CheckoutName  string
	Now           func() time.Time
}

// Service owns the order lifecycle and the three paths that can move an
// order: client verification, gateway webhooks and reconciliation.
type Service struct {
	orders        OrderStore
	ledger        Ledger
	credentials   CredentialResolver
	gateways      GatewayFactory
	events        EventPublisher
	archive       PayloadArchiver
	outcomes      OutcomeRecorder
	notifier      *Notifier
	validate      *validator.Validate
	publicBaseURL string
	checkoutName  string
	now           func() time.Time
}

// NewService creates a Service from its collaborators.
func NewService(opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	pub := opts.Events
	if pub == nil {
		pub = events.NopPublisher{}
	}
	name := strings.TrimSpace(opts.CheckoutName)
	if name == "" {
		name = defaultCheckoutName
	}
	return &Service{
		orders:        opts.Orders,
		ledger:        opts.Ledger,
		credentials:   opts.Credentials,
		gateways:      opts.Gateways,
		events:        pub,
		archive:       opts.Archive,
		outcomes:      opts.Outcomes,
		notifier:      NewNotifier(opts.Messengers, now),
		validate:      newValidator(),
		publicBaseURL: strings.TrimRight(strings.TrimSpace(opts.PublicBaseURL), "/"),
		checkoutName:  name,
		now:           now,
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// applyTransition moves order to target if the transition table allows it and
// applies the field rules of the target state. It reports whether the move
// was allowed; a denied move leaves the order untouched.
func (s *Service) applyTransition(order *models.Order, target models.OrderStatus, refundID string) bool {
	if !models.CanTransition(order.Status, target) {
		return false
	}
	now := s.now()
	order.Status = target
	switch target {
	case models.OrderStatusPaid:
		if order.PaidAt == nil {
			order.PaidAt = &now
		}
		order.FailedAt = nil
		order.LastError = ""
	case models.OrderStatusFailed:
		if order.FailedAt == nil {
			order.FailedAt = &now
		}
	case models.OrderStatusRefunded:
		if strings.TrimSpace(refundID) != "" {
			order.GatewayRefundID = refundID
		}
		if order.RefundedAt == nil {
			order.RefundedAt = &now
		}
	}
	return true
}

// publish announces a committed status change. Failures are only logged.
func (s *Service) publish(ctx context.Context, order *models.Order, from models.OrderStatus, source string) {
	if order == nil || order.Status == from {
		return
	}
	change := events.StatusChange{
		OrderID:    order.ID,
		TenantID:   order.TenantID,
		From:       from,
		To:         order.Status,
		Source:     source,
		OccurredAt: s.now().UTC(),
	}
	if err := s.events.PublishStatusChange(ctx, change); err != nil {
		log.Warnf("[Events] Failed to publish status change for order %s (%s -> %s): %v", order.ID, from, order.Status, err)
	}
}

// resolveCredentials loads the tenant's credentials. An order without tenant
// is corrupt and is rejected.
func (s *Service) resolveCredentials(ctx context.Context, tenantID string) (credentials.Set, error) {
	if strings.TrimSpace(tenantID) == "" {
		return credentials.Set{}, conflictError("order has no tenant")
	}
	set, err := s.credentials.Resolve(ctx, tenantID)
	if err != nil {
		return credentials.Set{}, internalError(err, "resolve tenant credentials")
	}
	return set, nil
}

// gatewayFor returns a gateway client for the tenant or a configuration error.
func (s *Service) gatewayFor(set credentials.Set) (Gateway, error) {
	if !set.GatewayConfigured() {
		return nil, configurationError("Gateway keys are not configured for this tenant")
	}
	return s.gateways(set.GatewayKeyID, set.GatewayKeySecret), nil
}

// ownedOrder loads an order and checks it belongs to tenantID.
func (s *Service) ownedOrder(ctx context.Context, tenantID, orderID string) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, strings.TrimSpace(orderID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("Order not found: %s", orderID)
		}
		return nil, internalError(err, "load order")
	}
	if err := checkOwner(order, tenantID); err != nil {
		return nil, err
	}
	return order, nil
}

func checkOwner(order *models.Order, tenantID string) error {
	if strings.TrimSpace(order.TenantID) == "" {
		return conflictError("Order %s has no tenant", order.ID)
	}
	if order.TenantID != strings.TrimSpace(tenantID) {
		return conflictError("Order %s is not owned by caller", order.ID)
	}
	return nil
}

// update wraps OrderStore.Update and converts store failures.
func (s *Service) update(ctx context.Context, id string, fn func(order *models.Order) (bool, error)) (*models.Order, error) {
	order, err := s.orders.Update(ctx, id, fn)
	if err == nil {
		return order, nil
	}
	var perr *Error
	if errors.As(err, &perr) {
		return nil, perr
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundError("Order not found: %s", id)
	}
	return nil, internalError(err, "update order")
}
