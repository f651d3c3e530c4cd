package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/kanbot-project/kanbot-sync-api/internal/models"
)

// ScheduledCardRepository manages recurring card templates.
type ScheduledCardRepository interface {
	Create(ctx context.Context, card *models.ScheduledCard) error
	Save(ctx context.Context, card *models.ScheduledCard) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (models.ScheduledCard, error)
	ListBySpace(ctx context.Context, spaceID string, activeOnly bool) ([]models.ScheduledCard, error)
	ListDue(ctx context.Context, spaceID string, now time.Time) ([]models.ScheduledCard, error)
	ClaimRun(ctx context.Context, id string, expectedNextRun, lastRun, nextRun time.Time) (bool, error)
	Deactivate(ctx context.Context, id string) error
}

type scheduledCardRepository struct {
	db *gorm.DB
}

// NewScheduledCardRepository constructs a repository backed by GORM.
func NewScheduledCardRepository(db *gorm.DB) ScheduledCardRepository {
	return &scheduledCardRepository{db: db}
}

func (r *scheduledCardRepository) Create(ctx context.Context, card *models.ScheduledCard) error {
	return r.db.WithContext(ctx).Create(card).Error
}

func (r *scheduledCardRepository) Save(ctx context.Context, card *models.ScheduledCard) error {
	return r.db.WithContext(ctx).Save(card).Error
}

func (r *scheduledCardRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.ScheduledCard{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *scheduledCardRepository) FindByID(ctx context.Context, id string) (models.ScheduledCard, error) {
	var card models.ScheduledCard
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&card).Error; err != nil {
		return models.ScheduledCard{}, err
	}
	return card, nil
}

func (r *scheduledCardRepository) ListBySpace(ctx context.Context, spaceID string, activeOnly bool) ([]models.ScheduledCard, error) {
	query := r.db.WithContext(ctx).Where("space_id = ?", spaceID)
	if activeOnly {
		query = query.Where("active = ?", true)
	}

	var cards []models.ScheduledCard
	if err := query.Order("next_run ASC").Find(&cards).Error; err != nil {
		return nil, err
	}
	return cards, nil
}

func (r *scheduledCardRepository) ListDue(ctx context.Context, spaceID string, now time.Time) ([]models.ScheduledCard, error) {
	var cards []models.ScheduledCard
	if err := r.db.WithContext(ctx).
		Where("space_id = ? AND active = ? AND next_run <= ?", spaceID, true, now).
		Find(&cards).Error; err != nil {
		return nil, err
	}
	return cards, nil
}

// ClaimRun advances the template's schedule with a conditional update that
// only succeeds if next_run still holds its previously observed value. A
// false return means another sweep claimed this occurrence first.
func (r *scheduledCardRepository) ClaimRun(ctx context.Context, id string, expectedNextRun, lastRun, nextRun time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ScheduledCard{}).
		Where("id = ? AND active = ? AND next_run = ?", id, true, expectedNextRun).
		Updates(map[string]interface{}{
			"last_run": lastRun,
			"next_run": nextRun,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *scheduledCardRepository) Deactivate(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&models.ScheduledCard{}).
		Where("id = ?", id).
		Update("active", false).Error
}
