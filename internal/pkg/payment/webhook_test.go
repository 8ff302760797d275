package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/paykit/app/models"
	"github.com/ManuelReschke/paykit/internal/pkg/credentials"
)

func paymentEvent(eventID, eventType, gwOrderID, paymentID string) []byte {
	body := map[string]any{
		"entity":     "event",
		"event":      eventType,
		"created_at": 1717243200,
		"payload": map[string]any{
			"payment": map[string]any{
				"entity": map[string]any{
					"id":       paymentID,
					"order_id": gwOrderID,
					"status":   "captured",
				},
			},
		},
	}
	if eventID != "" {
		body["id"] = eventID
	}
	raw, _ := json.Marshal(body)
	return raw
}

func refundEvent(eventID, paymentID, refundID string) []byte {
	raw, _ := json.Marshal(map[string]any{
		"id":         eventID,
		"event":      EventPaymentRefunded,
		"created_at": 1717243300,
		"payload": map[string]any{
			"refund": map[string]any{
				"entity": map[string]any{
					"id":         refundID,
					"payment_id": paymentID,
					"status":     "processed",
				},
			},
		},
	})
	return raw
}

func signed(payload []byte) WebhookDelivery {
	return WebhookDelivery{Payload: payload, Signature: WebhookSignature(payload, testHookSecret)}
}

func sentOrder(e *testEnv) *models.Order {
	return e.seedOrder(models.OrderStatusPaymentSent, func(o *models.Order) {
		o.GatewayOrderID = "order_abc"
		o.LastError = "previous failure"
	})
}

func TestWebhookCapturedMarksOrderPaid(t *testing.T) {
	e := newTestEnv(t)
	order := sentOrder(e)

	res, err := e.svc.HandleWebhook(context.Background(), signed(paymentEvent("evt_1", EventPaymentCaptured, "order_abc", "pay_1")))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, res.Outcome)
	assert.Equal(t, models.OrderStatusPaid, res.Status)

	got := e.orders.get(order.ID)
	assert.Equal(t, models.OrderStatusPaid, got.Status)
	assert.Equal(t, "pay_1", got.GatewayPaymentID)
	require.NotNil(t, got.PaidAt)
	assert.Empty(t, got.LastError)
	require.NotNil(t, got.PaidMsgSentAt)

	require.Equal(t, 1, e.messenger.textCount())
	assert.Contains(t, e.messenger.texts[0].Body, "Payment received!")
	assert.Contains(t, e.messenger.texts[0].Body, "500.00 INR")

	assert.Equal(t, 1, e.ledger.count())
	assert.Equal(t, OutcomeProcessed, e.ledger.events["evt_1"].Outcome)
	require.Len(t, e.events.changes, 1)
	assert.Equal(t, models.OrderStatusPaymentSent, e.events.changes[0].From)
	assert.Equal(t, models.OrderStatusPaid, e.events.changes[0].To)
	assert.Equal(t, []string{"evt_1"}, e.archive.keys)
	assert.Equal(t, 1, e.outcomes.counts[OutcomeProcessed])
}

func TestWebhookDuplicateDeliveryIsNoOp(t *testing.T) {
	e := newTestEnv(t)
	order := sentOrder(e)
	d := signed(paymentEvent("evt_1", EventPaymentCaptured, "order_abc", "pay_1"))

	_, err := e.svc.HandleWebhook(context.Background(), d)
	require.NoError(t, err)
	first := e.orders.get(order.ID)
	saves := e.orders.saves

	res, err := e.svc.HandleWebhook(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)

	assert.Equal(t, saves, e.orders.saves)
	assert.Equal(t, first, e.orders.get(order.ID))
	assert.Equal(t, 1, e.ledger.records)
	assert.Equal(t, 1, e.messenger.textCount())
	assert.Len(t, e.events.changes, 1)
}

func TestWebhookEventIDHeaderWins(t *testing.T) {
	e := newTestEnv(t)
	sentOrder(e)
	d := signed(paymentEvent("evt_body", EventPaymentCaptured, "order_abc", "pay_1"))
	d.EventID = "evt_header"

	res, err := e.svc.HandleWebhook(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, "evt_header", res.EventKey)
	assert.Contains(t, e.ledger.events, "evt_header")
}

func TestWebhookFallbackKey(t *testing.T) {
	e := newTestEnv(t)
	sentOrder(e)

	res, err := e.svc.HandleWebhook(context.Background(), signed(paymentEvent("", EventPaymentCaptured, "order_abc", "pay_1")))
	require.NoError(t, err)
	assert.Equal(t, "fallback|payment.captured|1717243200", res.EventKey)
}

func TestWebhookRejectsMalformedInput(t *testing.T) {
	e := newTestEnv(t)
	sentOrder(e)
	payload := paymentEvent("evt_1", EventPaymentCaptured, "order_abc", "pay_1")

	tests := []struct {
		name string
		d    WebhookDelivery
	}{
		{"missing signature", WebhookDelivery{Payload: payload}},
		{"invalid json", WebhookDelivery{Payload: []byte("{"), Signature: "abc"}},
		{"missing event", WebhookDelivery{Payload: []byte(`{"id":"evt_2"}`), Signature: "abc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.HandleWebhook(context.Background(), tt.d)
			require.Error(t, err)
			assert.Equal(t, KindValidation, KindOf(err))
		})
	}
	assert.Equal(t, 0, e.ledger.count())
	assert.Equal(t, 3, e.outcomes.counts[OutcomeRejected])
}

func TestWebhookWrongSignatureNeverMutates(t *testing.T) {
	e := newTestEnv(t)
	order := sentOrder(e)
	payload := paymentEvent("evt_1", EventPaymentCaptured, "order_abc", "pay_1")

	_, err := e.svc.HandleWebhook(context.Background(), WebhookDelivery{
		Payload:   payload,
		Signature: WebhookSignature(payload, "not-the-secret"),
	})
	require.Error(t, err)
	assert.Equal(t, KindAuthentication, KindOf(err))

	assert.Equal(t, *order, e.orders.get(order.ID))
	assert.Equal(t, 0, e.orders.saves)
	assert.Equal(t, 0, e.ledger.count())
	assert.Empty(t, e.archive.keys)
}

func TestWebhookMissingTenantConfig(t *testing.T) {
	e := newTestEnv(t)
	order := sentOrder(e)
	set := fullCredentials(testTenant)
	set.GatewayWebhookSecret = ""
	e.creds.sets[testTenant] = set

	_, err := e.svc.HandleWebhook(context.Background(), signed(paymentEvent("evt_1", EventPaymentCaptured, "order_abc", "pay_1")))
	require.Error(t, err)
	assert.Equal(t, KindConfiguration, KindOf(err))
	assert.Equal(t, *order, e.orders.get(order.ID))
	assert.Equal(t, 0, e.ledger.count())
}

func TestWebhookOrderWithoutTenantIsRejected(t *testing.T) {
	e := newTestEnv(t)
	e.seedOrder(models.OrderStatusPaymentSent, func(o *models.Order) {
		o.TenantID = ""
		o.GatewayOrderID = "order_abc"
	})

	_, err := e.svc.HandleWebhook(context.Background(), signed(paymentEvent("evt_1", EventPaymentCaptured, "order_abc", "pay_1")))
	require.Error(t, err)
	assert.Equal(t, KindConfiguration, KindOf(err))
	assert.Equal(t, 0, e.ledger.count())
}

func TestWebhookUnmatchedOrderIsRecorded(t *testing.T) {
	e := newTestEnv(t)

	res, err := e.svc.HandleWebhook(context.Background(), WebhookDelivery{
		Payload:   paymentEvent("evt_x", EventPaymentCaptured, "order_unknown", "pay_unknown"),
		Signature: "anything",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnmatched, res.Outcome)
	assert.Equal(t, OutcomeUnmatched, e.ledger.events["evt_x"].Outcome)
	assert.Empty(t, e.archive.keys)
}

func TestWebhookArchivesOnlyAuthenticatedPayloads(t *testing.T) {
	e := newTestEnv(t)
	sentOrder(e)
	ctx := context.Background()

	_, err := e.svc.HandleWebhook(ctx, WebhookDelivery{
		Payload:   paymentEvent("evt_forged", EventPaymentCaptured, "order_abc", "pay_1"),
		Signature: "deadbeef",
	})
	require.Error(t, err)
	assert.Equal(t, KindAuthentication, KindOf(err))

	_, err = e.svc.HandleWebhook(ctx, WebhookDelivery{
		Payload:   paymentEvent("evt_junk", "x.y", "order_nope", "pay_nope"),
		Signature: "junk",
	})
	require.NoError(t, err)
	assert.Empty(t, e.archive.keys)

	_, err = e.svc.HandleWebhook(ctx, signed(paymentEvent("evt_ok", EventPaymentCaptured, "order_abc", "pay_1")))
	require.NoError(t, err)
	assert.Equal(t, []string{"evt_ok"}, e.archive.keys)
}

func TestWebhookFallsBackToPaymentID(t *testing.T) {
	e := newTestEnv(t)
	order := e.seedOrder(models.OrderStatusPaid, func(o *models.Order) {
		o.GatewayOrderID = "order_abc"
		o.GatewayPaymentID = "pay_1"
	})

	res, err := e.svc.HandleWebhook(context.Background(), signed(refundEvent("evt_r", "pay_1", "rfnd_1")))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, res.Outcome)

	got := e.orders.get(order.ID)
	assert.Equal(t, models.OrderStatusRefunded, got.Status)
	assert.Equal(t, "rfnd_1", got.GatewayRefundID)
	require.NotNil(t, got.RefundedAt)
	require.NotNil(t, got.RefundedMsgSentAt)
}

func TestWebhookNoDowngradeAfterRefund(t *testing.T) {
	e := newTestEnv(t)
	order := e.seedOrder(models.OrderStatusRefunded, func(o *models.Order) {
		o.GatewayOrderID = "order_abc"
		o.GatewayPaymentID = "pay_1"
	})

	res, err := e.svc.HandleWebhook(context.Background(), signed(paymentEvent("evt_f", EventPaymentFailed, "order_abc", "pay_1")))
	require.NoError(t, err)
	assert.Equal(t, OutcomeBlocked, res.Outcome)

	got := e.orders.get(order.ID)
	assert.Equal(t, models.OrderStatusRefunded, got.Status)
	assert.Nil(t, got.FailedAt)
	assert.Equal(t, OutcomeBlocked, e.ledger.events["evt_f"].Outcome)
	assert.Equal(t, 0, e.messenger.textCount())
	assert.Empty(t, e.events.changes)
}

func TestWebhookUnknownEventIsIgnoredButBackfills(t *testing.T) {
	e := newTestEnv(t)
	order := e.seedOrder(models.OrderStatusPaymentSent, func(o *models.Order) { o.GatewayOrderID = "order_abc" })

	res, err := e.svc.HandleWebhook(context.Background(), signed(paymentEvent("evt_a", "payment.authorized", "order_abc", "pay_9")))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)

	got := e.orders.get(order.ID)
	assert.Equal(t, models.OrderStatusPaymentSent, got.Status)
	assert.Equal(t, "pay_9", got.GatewayPaymentID)
	assert.Equal(t, OutcomeIgnored, e.ledger.events["evt_a"].Outcome)
}

func TestWebhookEventTypeIsCaseInsensitive(t *testing.T) {
	e := newTestEnv(t)
	order := sentOrder(e)

	_, err := e.svc.HandleWebhook(context.Background(), signed(paymentEvent("evt_1", "PAYMENT.FAILED", "order_abc", "pay_1")))
	require.NoError(t, err)
	got := e.orders.get(order.ID)
	assert.Equal(t, models.OrderStatusFailed, got.Status)
	require.NotNil(t, got.FailedAt)
	require.NotNil(t, got.FailedMsgSentAt)
}

func TestWebhookNotificationFailureDoesNotBlockTransition(t *testing.T) {
	e := newTestEnv(t)
	order := sentOrder(e)
	e.messenger.err = errors.New("graph api down")

	res, err := e.svc.HandleWebhook(context.Background(), signed(paymentEvent("evt_1", EventPaymentCaptured, "order_abc", "pay_1")))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, res.Outcome)

	got := e.orders.get(order.ID)
	assert.Equal(t, models.OrderStatusPaid, got.Status)
	assert.Nil(t, got.PaidMsgSentAt)
	assert.Contains(t, got.LastError, "graph api down")
}

func TestWebhookWithoutMessagingSkipsNotification(t *testing.T) {
	e := newTestEnv(t)
	order := sentOrder(e)
	e.creds.sets[testTenant] = credentials.Set{TenantID: testTenant, GatewayWebhookSecret: testHookSecret}

	_, err := e.svc.HandleWebhook(context.Background(), signed(paymentEvent("evt_1", EventPaymentCaptured, "order_abc", "pay_1")))
	require.NoError(t, err)

	got := e.orders.get(order.ID)
	assert.Equal(t, models.OrderStatusPaid, got.Status)
	assert.Nil(t, got.PaidMsgSentAt)
	assert.Empty(t, got.LastError)
}

func TestWebhookInternalFailureAnswersSuccess(t *testing.T) {
	e := newTestEnv(t)
	sentOrder(e)
	e.ledger.err = errors.New("db gone")

	res, err := e.svc.HandleWebhook(context.Background(), signed(paymentEvent("evt_1", EventPaymentCaptured, "order_abc", "pay_1")))
	require.NoError(t, err)
	assert.Equal(t, OutcomeError, res.Outcome)
	assert.Equal(t, 1, e.outcomes.counts[OutcomeError])
}

func TestWebhookOrderVanishingBeforeLockAnswersSuccess(t *testing.T) {
	e := newTestEnv(t)
	sentOrder(e)
	e.orders.updateErr = gorm.ErrRecordNotFound

	res, err := e.svc.HandleWebhook(context.Background(), signed(paymentEvent("evt_1", EventPaymentCaptured, "order_abc", "pay_1")))
	require.NoError(t, err)
	assert.Equal(t, OutcomeError, res.Outcome)
	assert.Equal(t, "evt_1", res.EventKey)
	assert.Equal(t, 0, e.ledger.count())
	assert.Equal(t, 1, e.outcomes.counts[OutcomeError])
}

type panickingResolver struct{}

func (panickingResolver) Resolve(context.Context, string) (credentials.Set, error) {
	panic("boom")
}

func TestWebhookRecoversFromPanic(t *testing.T) {
	e := newTestEnv(t)
	sentOrder(e)
	e.svc.credentials = panickingResolver{}

	res, err := e.svc.HandleWebhook(context.Background(), signed(paymentEvent("evt_1", EventPaymentCaptured, "order_abc", "pay_1")))
	require.NoError(t, err)
	assert.Equal(t, OutcomeError, res.Outcome)
}

func TestWebhookConcurrentDuplicatesApplyOnce(t *testing.T) {
	e := newTestEnv(t)
	order := sentOrder(e)
	d := signed(paymentEvent("evt_1", EventPaymentCaptured, "order_abc", "pay_1"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.svc.HandleWebhook(context.Background(), d)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got := e.orders.get(order.ID)
	assert.Equal(t, models.OrderStatusPaid, got.Status)
	assert.Equal(t, 1, e.messenger.textCount())
	assert.Equal(t, 1, e.ledger.count())
}

func TestEventKey(t *testing.T) {
	tests := []struct {
		id, typ, created, want string
	}{
		{"evt_1", "payment.captured", "1", "evt_1"},
		{" ", "payment.failed", "1717243200", "fallback|payment.failed|1717243200"},
		{"", "payment.failed", "", "fallback|payment.failed|0"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.id), func(t *testing.T) {
			assert.Equal(t, tt.want, EventKey(tt.id, tt.typ, tt.created))
		})
	}
}
