package models

import "time"

// Webhook processing outcomes recorded on the ledger.
const (
	WebhookOutcomeProcessed = "processed"
	WebhookOutcomeIgnored   = "ignored"
	WebhookOutcomeBlocked   = "blocked"
	WebhookOutcomeUnmatched = "unmatched"
)

// WebhookEvent marks a gateway webhook delivery as handled. A row is written
// once per idempotency key and never updated.
type WebhookEvent struct {
	EventKey         string    `gorm:"column:event_key;type:varchar(191);primaryKey" json:"event_key"`
	EventType        string    `gorm:"type:varchar(60);not null;default:'';index" json:"event_type"`
	GatewayOrderID   string    `gorm:"type:varchar(64);default:''" json:"gateway_order_id"`
	GatewayPaymentID string    `gorm:"type:varchar(64);default:''" json:"gateway_payment_id"`
	Outcome          string    `gorm:"type:varchar(20);not null;default:''" json:"outcome"`
	ProcessedAt      time.Time `gorm:"type:timestamp;not null;index" json:"processed_at"`
}
