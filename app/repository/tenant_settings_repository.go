package repository

import (
	"context"
	"errors"

	"github.com/ManuelReschke/paykit/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// tenantSettingsRepository implements the TenantSettingsRepository interface
type tenantSettingsRepository struct {
	db *gorm.DB
}

// NewTenantSettingsRepository creates a new tenant settings repository instance
func NewTenantSettingsRepository(db *gorm.DB) TenantSettingsRepository {
	return &tenantSettingsRepository{db: db}
}

// Find returns the settings of a tenant, or nil if none are stored
func (r *tenantSettingsRepository) Find(ctx context.Context, tenantID string) (*models.TenantSettings, error) {
	var settings models.TenantSettings
	err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// Save inserts or replaces the settings of a tenant
func (r *tenantSettingsRepository) Save(ctx context.Context, settings *models.TenantSettings) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"gateway_key_id",
				"gateway_key_secret_enc",
				"gateway_webhook_secret_enc",
				"messaging_access_token_enc",
				"messaging_sender_id",
				"updated_at",
			}),
		}).
		Create(settings).Error
}
