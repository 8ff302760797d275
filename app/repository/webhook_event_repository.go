package repository

import (
	"context"

	"github.com/ManuelReschke/paykit/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// webhookEventRepository implements the WebhookEventRepository interface
type webhookEventRepository struct {
	db *gorm.DB
}

// NewWebhookEventRepository creates a new webhook ledger instance
func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

// Exists reports whether an event key has been recorded
func (r *webhookEventRepository) Exists(ctx context.Context, eventKey string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("event_key = ?", eventKey).
		Count(&count).Error
	return count > 0, err
}

// Record inserts the event; a concurrent insert of the same key is a no-op
func (r *webhookEventRepository) Record(ctx context.Context, event *models.WebhookEvent) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event).Error
}

// CountByOutcome returns the number of recorded events per outcome
func (r *webhookEventRepository) CountByOutcome(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Outcome string
		Total   int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Select("outcome, COUNT(*) AS total").
		Group("outcome").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Outcome] = row.Total
	}
	return out, nil
}
