package payment

import (
	"context"
	"encoding/json"
	"errors"
	"runtime/debug"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/paykit/app/models"
	"github.com/ManuelReschke/paykit/internal/pkg/events"
)

// Webhook outcomes reported to the caller and counted.
const (
	OutcomeProcessed = models.WebhookOutcomeProcessed
	OutcomeIgnored   = models.WebhookOutcomeIgnored
	OutcomeBlocked   = models.WebhookOutcomeBlocked
	OutcomeUnmatched = models.WebhookOutcomeUnmatched
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
)

// Gateway webhook event types that move an order.
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventPaymentRefunded = "payment.refunded"
)

// WebhookDelivery is one inbound webhook request.
type WebhookDelivery struct {
	Payload   []byte
	Signature string
	EventID   string // optional header value, preferred over the payload id
}

// WebhookResult describes how a delivery was handled.
type WebhookResult struct {
	Outcome  string             `json:"outcome"`
	EventKey string             `json:"event_key,omitempty"`
	OrderID  string             `json:"order_id,omitempty"`
	Status   models.OrderStatus `json:"status,omitempty"`
}

type webhookEnvelope struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	CreatedAt json.RawMessage `json:"created_at"`
	Payload   struct {
		Payment *struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Status  string `json:"status"`
			} `json:"entity"`
		} `json:"payment"`
		Refund *struct {
			Entity struct {
				ID        string `json:"id"`
				PaymentID string `json:"payment_id"`
				Status    string `json:"status"`
			} `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

// correlation returns the gateway order, payment and refund ids carried by
// the event. The payment entity wins over the refund entity.
func (e *webhookEnvelope) correlation() (orderID, paymentID, refundID string) {
	if p := e.Payload.Payment; p != nil {
		orderID = strings.TrimSpace(p.Entity.OrderID)
		paymentID = strings.TrimSpace(p.Entity.ID)
	}
	if r := e.Payload.Refund; r != nil {
		refundID = strings.TrimSpace(r.Entity.ID)
		if paymentID == "" {
			paymentID = strings.TrimSpace(r.Entity.PaymentID)
		}
	}
	return orderID, paymentID, refundID
}

// EventKey returns the idempotency key of a delivery: the event id when one
// is known, otherwise "fallback|<type>|<created_at>" with a missing
// created_at written as 0. Two distinct events of the same type created in
// the same second share a fallback key.
func EventKey(eventID, eventType, createdAt string) string {
	if id := strings.TrimSpace(eventID); id != "" {
		return id
	}
	createdAt = strings.TrimSpace(createdAt)
	if createdAt == "" {
		createdAt = "0"
	}
	return "fallback|" + strings.TrimSpace(eventType) + "|" + createdAt
}

func rawScalar(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	return strings.Trim(s, `"`)
}

// targetForEvent maps a webhook event type to the order status it implies.
func targetForEvent(eventType string) (models.OrderStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(eventType)) {
	case EventPaymentCaptured:
		return models.OrderStatusPaid, true
	case EventPaymentFailed:
		return models.OrderStatusFailed, true
	case EventPaymentRefunded:
		return models.OrderStatusRefunded, true
	}
	return "", false
}

// HandleWebhook processes one gateway webhook delivery.
//
// Only malformed input (Validation), missing tenant configuration
// (Configuration) and bad signatures (Authentication) are returned as errors;
// none of them mutates the order or writes the ledger. Every other outcome,
// including internal failures, returns a nil error so the gateway does not
// retry a delivery that cannot be safely reprocessed.
func (s *Service) HandleWebhook(ctx context.Context, d WebhookDelivery) (result WebhookResult, err error) {
	defer func() {
		outcome := result.Outcome
		if err != nil {
			outcome = OutcomeRejected
		}
		s.countOutcome(ctx, outcome)
	}()
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[Webhook] Panic while processing webhook: %v\n%s", r, debug.Stack())
			result = WebhookResult{Outcome: OutcomeError, EventKey: result.EventKey}
			err = nil
		}
	}()

	result, err = s.handleWebhook(ctx, d)
	if err != nil && !answersSource(err) {
		log.Errorf("[Webhook] Failed to process webhook %s: %v", result.EventKey, err)
		return WebhookResult{Outcome: OutcomeError, EventKey: result.EventKey}, nil
	}
	return result, err
}

// answersSource reports whether err is one the webhook source should see.
// Everything else is logged and acknowledged.
func answersSource(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindConfiguration, KindAuthentication:
		return true
	}
	return false
}

func (s *Service) handleWebhook(ctx context.Context, d WebhookDelivery) (WebhookResult, error) {
	if strings.TrimSpace(d.Signature) == "" {
		return WebhookResult{}, validationError("Missing webhook signature header")
	}

	var env webhookEnvelope
	if err := json.Unmarshal(d.Payload, &env); err != nil {
		return WebhookResult{}, validationError("Invalid webhook payload")
	}
	eventType := strings.TrimSpace(env.Event)
	if eventType == "" {
		return WebhookResult{}, validationError("Missing event type")
	}

	eventID := d.EventID
	if strings.TrimSpace(eventID) == "" {
		eventID = env.ID
	}
	key := EventKey(eventID, eventType, rawScalar(env.CreatedAt))
	result := WebhookResult{EventKey: key}

	seen, err := s.ledger.Exists(ctx, key)
	if err != nil {
		return result, internalError(err, "check webhook ledger")
	}
	if seen {
		log.Infof("[Webhook] Duplicate delivery %s (%s), skipping", key, eventType)
		result.Outcome = OutcomeDuplicate
		return result, nil
	}

	gwOrderID, gwPaymentID, refundID := env.correlation()
	record := &models.WebhookEvent{
		EventKey:         key,
		EventType:        eventType,
		GatewayOrderID:   gwOrderID,
		GatewayPaymentID: gwPaymentID,
	}

	order, err := s.findWebhookOrder(ctx, gwOrderID, gwPaymentID)
	if err != nil {
		return result, err
	}
	if order == nil {
		log.Infof("[Webhook] No order for event %s (order=%s payment=%s), ignoring", key, gwOrderID, gwPaymentID)
		result.Outcome = OutcomeUnmatched
		return result, s.recordEvent(ctx, record, OutcomeUnmatched)
	}
	result.OrderID = order.ID

	if strings.TrimSpace(order.TenantID) == "" {
		log.Errorf("[Webhook] Order %s has no tenant, rejecting event %s", order.ID, key)
		return result, configurationError("Order has no tenant")
	}
	set, err := s.credentials.Resolve(ctx, order.TenantID)
	if err != nil {
		return result, internalError(err, "resolve tenant credentials")
	}
	if !set.WebhookConfigured() {
		log.Warnf("[Webhook] Webhook secret not configured for tenant %s (event %s)", order.TenantID, key)
		return result, configurationError("Webhook secret is not configured for this tenant")
	}
	if !VerifyWebhookSignature(d.Payload, d.Signature, set.GatewayWebhookSecret) {
		log.Warnf("[Webhook] Invalid signature for event %s (order %s)", key, order.ID)
		return result, authenticationError("Invalid webhook signature")
	}
	if s.archive != nil {
		if err := s.archive.Archive(ctx, key, d.Payload); err != nil {
			log.Warnf("[Webhook] Failed to archive payload %s: %v", key, err)
		}
	}

	target, known := targetForEvent(eventType)
	outcome := OutcomeIgnored
	var from models.OrderStatus

	updated, err := s.update(ctx, order.ID, func(o *models.Order) (bool, error) {
		from = o.Status
		if !known {
			return backfillPaymentID(o, gwPaymentID), nil
		}
		if !models.CanTransition(o.Status, target) {
			outcome = OutcomeBlocked
			log.Warnf("[Webhook] Blocked transition %s -> %s for order %s (event %s)", o.Status, target, o.ID, key)
			return false, nil
		}
		backfillPaymentID(o, gwPaymentID)
		s.applyTransition(o, target, refundID)
		s.notifier.Dispatch(ctx, set, o, target)
		outcome = OutcomeProcessed
		return true, nil
	})
	if err != nil {
		return result, err
	}

	result.Outcome = outcome
	result.Status = updated.Status
	if outcome == OutcomeProcessed {
		log.Infof("[Webhook] Event %s applied to order %s: %s -> %s", eventType, updated.ID, from, updated.Status)
	}
	if err := s.recordEvent(ctx, record, outcome); err != nil {
		// the order change is committed; a redelivery is absorbed by the
		// transition table and the sent-at guards
		log.Errorf("[Webhook] Failed to record event %s: %v", key, err)
	}
	s.publish(ctx, updated, from, events.SourceWebhook)
	return result, nil
}

func (s *Service) findWebhookOrder(ctx context.Context, gwOrderID, gwPaymentID string) (*models.Order, error) {
	if gwOrderID != "" {
		order, err := s.orders.GetByGatewayOrderID(ctx, gwOrderID)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internalError(err, "find order by gateway order id")
		}
	}
	if gwPaymentID != "" {
		order, err := s.orders.GetByGatewayPaymentID(ctx, gwPaymentID)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internalError(err, "find order by gateway payment id")
		}
	}
	return nil, nil
}

func (s *Service) recordEvent(ctx context.Context, event *models.WebhookEvent, outcome string) error {
	event.Outcome = outcome
	event.ProcessedAt = s.now().UTC()
	if err := s.ledger.Record(ctx, event); err != nil {
		return internalError(err, "record webhook event %s", event.EventKey)
	}
	return nil
}

func (s *Service) countOutcome(ctx context.Context, outcome string) {
	if s.outcomes == nil || outcome == "" {
		return
	}
	if err := s.outcomes.AddWebhookOutcome(ctx, outcome); err != nil {
		log.Warnf("[Webhook] Failed to count outcome %s: %v", outcome, err)
	}
}

func backfillPaymentID(order *models.Order, paymentID string) bool {
	if strings.TrimSpace(order.GatewayPaymentID) != "" || strings.TrimSpace(paymentID) == "" {
		return false
	}
	order.GatewayPaymentID = paymentID
	return true
}
