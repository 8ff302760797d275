package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultCurrency        = "INR"
	MinOrderAmount         = 100
	MaxDescriptionLength   = 500
	MaxLastErrorLength     = 1000
	PaymentReferencePrefix = "pay_"
)

// Order is a single payment order owned by a tenant.
type Order struct {
	ID                 string      `gorm:"type:char(36);primaryKey" json:"id"`
	TenantID           string      `gorm:"type:char(36);not null;index:idx_orders_tenant_created,priority:1" json:"tenant_id"`
	CustomerName       string      `gorm:"type:varchar(200);not null" json:"customer_name"`
	CustomerContact    string      `gorm:"type:varchar(20);not null" json:"customer_contact"`
	Amount             int64       `gorm:"not null" json:"amount"`
	Currency           string      `gorm:"type:varchar(8);not null;default:'INR'" json:"currency"`
	Description        string      `gorm:"type:varchar(500);default:''" json:"description"`
	Status             OrderStatus `gorm:"type:varchar(20);not null;default:'CREATED';index" json:"status"`
	GatewayOrderID     string      `gorm:"type:varchar(64);default:'';index" json:"gateway_order_id"`
	GatewayPaymentID   string      `gorm:"type:varchar(64);default:'';index" json:"gateway_payment_id"`
	GatewayRefundID    string      `gorm:"type:varchar(64);default:''" json:"gateway_refund_id"`
	PaymentReferenceID string      `gorm:"type:varchar(64);default:''" json:"payment_reference_id"`
	VerifiedAt         *time.Time  `gorm:"type:timestamp;default:null" json:"verified_at,omitempty"`
	PaidAt             *time.Time  `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	FailedAt           *time.Time  `gorm:"type:timestamp;default:null" json:"failed_at,omitempty"`
	RefundedAt         *time.Time  `gorm:"type:timestamp;default:null" json:"refunded_at,omitempty"`
	AttemptCount       int         `gorm:"not null;default:0" json:"attempt_count"`
	LastError          string      `gorm:"type:varchar(1000);default:''" json:"last_error"`
	PaidMsgSentAt      *time.Time  `gorm:"type:timestamp;default:null" json:"paid_msg_sent_at,omitempty"`
	FailedMsgSentAt    *time.Time  `gorm:"type:timestamp;default:null" json:"failed_msg_sent_at,omitempty"`
	RefundedMsgSentAt  *time.Time  `gorm:"type:timestamp;default:null" json:"refunded_msg_sent_at,omitempty"`
	CreatedAt          time.Time   `gorm:"autoCreateTime;index:idx_orders_tenant_created,priority:2" json:"created_at"`
	UpdatedAt          time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate fills the identity and defaults of a new order.
func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = OrderStatusCreated
	}
	if strings.TrimSpace(o.Currency) == "" {
		o.Currency = DefaultCurrency
	}
	return nil
}

// SetLastError stores a diagnostic message, truncated to the column size.
func (o *Order) SetLastError(msg string) {
	if len(msg) > MaxLastErrorLength {
		msg = msg[:MaxLastErrorLength]
	}
	o.LastError = msg
}

// PaymentReference is the reference id shared with the messaging channel.
func (o *Order) PaymentReference() string {
	return PaymentReferencePrefix + o.ID
}

// MaskedContact hides all but the last four digits of the customer contact.
func (o *Order) MaskedContact() string {
	return MaskContact(o.CustomerContact)
}

// MaskContact hides all but the last four characters of s.
func MaskContact(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}
