package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/kanbot-project/kanbot-sync-api/internal/models"
)

const auditDefaultLimit = 100

// AuditFilter narrows audit log queries.
type AuditFilter struct {
	CardID    string
	SpaceID   string
	ActorType string
	Since     *time.Time
	Limit     int
}

// AuditRepository persists the append-only card history. Entries are only
// ever inserted; there is no update or delete surface.
type AuditRepository interface {
	Create(ctx context.Context, entry *models.CardHistory) error
	List(ctx context.Context, filter AuditFilter) ([]models.CardHistory, error)
}

type auditRepository struct {
	db *gorm.DB
}

// NewAuditRepository constructs a repository backed by GORM.
func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, entry *models.CardHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *auditRepository) List(ctx context.Context, filter AuditFilter) ([]models.CardHistory, error) {
	query := r.db.WithContext(ctx).Model(&models.CardHistory{})

	if filter.CardID != "" {
		query = query.Where("card_histories.card_id = ?", filter.CardID)
	}

	if filter.SpaceID != "" {
		query = query.
			Joins("JOIN cards ON cards.id = card_histories.card_id").
			Joins("JOIN columns ON columns.id = cards.column_id").
			Joins("JOIN boards ON boards.id = columns.board_id").
			Where("boards.space_id = ?", filter.SpaceID)
	}

	if filter.ActorType != "" {
		query = query.Where("card_histories.actor_type = ?", filter.ActorType)
	}

	if filter.Since != nil {
		query = query.Where("card_histories.created_at >= ?", *filter.Since)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = auditDefaultLimit
	}

	var entries []models.CardHistory
	if err := query.Order("card_histories.created_at DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, err
	}

	return entries, nil
}
