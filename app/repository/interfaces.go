package repository

import (
	"context"

	"github.com/ManuelReschke/paykit/app/models"
	"gorm.io/gorm"
)

// OrderRepository defines the interface for order-related database operations
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error)
	GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*models.Order, error)
	ListByTenant(ctx context.Context, tenantID string) ([]models.Order, error)
	// Update runs fn on the row locked with SELECT ... FOR UPDATE and saves
	// it when fn returns true. An error from fn rolls the transaction back.
	Update(ctx context.Context, id string, fn func(order *models.Order) (bool, error)) (*models.Order, error)
}

// WebhookEventRepository defines the interface for the webhook idempotency ledger
type WebhookEventRepository interface {
	Exists(ctx context.Context, eventKey string) (bool, error)
	Record(ctx context.Context, event *models.WebhookEvent) error
	CountByOutcome(ctx context.Context) (map[string]int64, error)
}

// TenantSettingsRepository defines the interface for sealed tenant settings
type TenantSettingsRepository interface {
	Find(ctx context.Context, tenantID string) (*models.TenantSettings, error)
	Save(ctx context.Context, settings *models.TenantSettings) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	Order          OrderRepository
	WebhookEvent   WebhookEventRepository
	TenantSettings TenantSettingsRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Order:          NewOrderRepository(db),
		WebhookEvent:   NewWebhookEventRepository(db),
		TenantSettings: NewTenantSettingsRepository(db),
	}
}
