package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ManuelReschke/paykit/app/models"
)

// RoutingKeyStatusChanged is the routing key of order status change events.
const RoutingKeyStatusChanged = "order.status_changed"

// DefaultExchange is used when AMQP_EXCHANGE is not set.
const DefaultExchange = "paykit.events"

// Sources of a status change.
const (
	SourceClient    = "client"
	SourceWebhook   = "webhook"
	SourceReconcile = "reconcile"
	SourceLifecycle = "lifecycle"
)

// StatusChange is published after an order status change has been committed.
type StatusChange struct {
	OrderID    string             `json:"order_id"`
	TenantID   string             `json:"tenant_id"`
	From       models.OrderStatus `json:"from"`
	To         models.OrderStatus `json:"to"`
	Source     string             `json:"source"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// Encode returns the JSON body of the event.
func (e StatusChange) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishStatusChange(context.Context, StatusChange) error { return nil }

func (NopPublisher) Close() error { return nil }
