package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/kanbot-project/kanbot-sync-api/internal/models"
)

// UserRepository resolves accounts and automation credentials.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (models.User, error)
	FindAPIKeyByHash(ctx context.Context, keyHash string) (models.APIKey, error)
	TouchAPIKey(ctx context.Context, id string, usedAt time.Time) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository constructs a repository backed by GORM.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (r *userRepository) FindAPIKeyByHash(ctx context.Context, keyHash string) (models.APIKey, error) {
	var key models.APIKey
	if err := r.db.WithContext(ctx).Preload("User").Where("key_hash = ?", keyHash).First(&key).Error; err != nil {
		return models.APIKey{}, err
	}
	return key, nil
}

func (r *userRepository) TouchAPIKey(ctx context.Context, id string, usedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.APIKey{}).
		Where("id = ?", id).
		Update("last_used", usedAt).Error
}
