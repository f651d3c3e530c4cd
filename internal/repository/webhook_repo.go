package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/kanbot-project/kanbot-sync-api/internal/models"
)

// WebhookRepository manages subscriptions and their delivery logs.
type WebhookRepository interface {
	Create(ctx context.Context, webhook *models.Webhook) error
	Save(ctx context.Context, webhook *models.Webhook) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (models.Webhook, error)
	ListBySpace(ctx context.Context, spaceID string) ([]models.Webhook, error)
	ListActiveBySpace(ctx context.Context, spaceID string) ([]models.Webhook, error)
	CreateLog(ctx context.Context, log *models.WebhookLog) error
	ListLogs(ctx context.Context, webhookID string, limit int) ([]models.WebhookLog, error)
}

type webhookRepository struct {
	db *gorm.DB
}

// NewWebhookRepository constructs a repository backed by GORM.
func NewWebhookRepository(db *gorm.DB) WebhookRepository {
	return &webhookRepository{db: db}
}

func (r *webhookRepository) Create(ctx context.Context, webhook *models.Webhook) error {
	return r.db.WithContext(ctx).Create(webhook).Error
}

func (r *webhookRepository) Save(ctx context.Context, webhook *models.Webhook) error {
	return r.db.WithContext(ctx).Save(webhook).Error
}

func (r *webhookRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Webhook{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *webhookRepository) FindByID(ctx context.Context, id string) (models.Webhook, error) {
	var webhook models.Webhook
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&webhook).Error; err != nil {
		return models.Webhook{}, err
	}
	return webhook, nil
}

func (r *webhookRepository) ListBySpace(ctx context.Context, spaceID string) ([]models.Webhook, error) {
	var webhooks []models.Webhook
	if err := r.db.WithContext(ctx).
		Where("space_id = ?", spaceID).
		Order("created_at ASC").
		Find(&webhooks).Error; err != nil {
		return nil, err
	}
	return webhooks, nil
}

func (r *webhookRepository) ListActiveBySpace(ctx context.Context, spaceID string) ([]models.Webhook, error) {
	var webhooks []models.Webhook
	if err := r.db.WithContext(ctx).
		Where("space_id = ? AND active = ?", spaceID, true).
		Find(&webhooks).Error; err != nil {
		return nil, err
	}
	return webhooks, nil
}

func (r *webhookRepository) CreateLog(ctx context.Context, log *models.WebhookLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *webhookRepository) ListLogs(ctx context.Context, webhookID string, limit int) ([]models.WebhookLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var logs []models.WebhookLog
	if err := r.db.WithContext(ctx).
		Where("webhook_id = ?", webhookID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
