package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/kanbot-project/kanbot-sync-api/internal/models"
)

// SpaceRepository exposes the membership surface the pipeline depends on.
// Space administration itself is handled elsewhere.
type SpaceRepository interface {
	FindByID(ctx context.Context, id string) (models.Space, error)
	IsMember(ctx context.Context, spaceID, userID string) (bool, error)
	MemberIDs(ctx context.Context, spaceID string) ([]string, error)
}

type spaceRepository struct {
	db *gorm.DB
}

// NewSpaceRepository constructs a repository backed by GORM.
func NewSpaceRepository(db *gorm.DB) SpaceRepository {
	return &spaceRepository{db: db}
}

func (r *spaceRepository) FindByID(ctx context.Context, id string) (models.Space, error) {
	var space models.Space
	if err := r.db.WithContext(ctx).Preload("Members").Where("id = ?", id).First(&space).Error; err != nil {
		return models.Space{}, err
	}
	return space, nil
}

func (r *spaceRepository) IsMember(ctx context.Context, spaceID, userID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.SpaceMember{}).
		Where("space_id = ? AND user_id = ?", spaceID, userID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *spaceRepository) MemberIDs(ctx context.Context, spaceID string) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).
		Model(&models.SpaceMember{}).
		Where("space_id = ?", spaceID).
		Pluck("user_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
