package repository

import (
	"context"

	"github.com/ManuelReschke/paykit/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// orderRepository implements the OrderRepository interface
type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new order repository instance
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// Create inserts a new order
func (r *orderRepository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// GetByID retrieves an order by its ID
func (r *orderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// GetByGatewayOrderID retrieves an order by its gateway order id
func (r *orderRepository) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("gateway_order_id = ?", gatewayOrderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// GetByGatewayPaymentID retrieves an order by its gateway payment id
func (r *orderRepository) GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("gateway_payment_id = ?", gatewayPaymentID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// ListByTenant returns all orders of a tenant, newest first
func (r *orderRepository) ListByTenant(ctx context.Context, tenantID string) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&orders).Error
	return orders, err
}

// Update locks the order row for the duration of fn
func (r *orderRepository) Update(ctx context.Context, id string, fn func(order *models.Order) (bool, error)) (*models.Order, error) {
	var out *models.Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&order).Error; err != nil {
			return err
		}

		save, err := fn(&order)
		if err != nil {
			return err
		}
		if save {
			if err := tx.Save(&order).Error; err != nil {
				return err
			}
		}
		out = &order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
