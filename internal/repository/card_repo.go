package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/kanbot-project/kanbot-sync-api/internal/models"
)

// ErrNoBoardInSpace indicates a template's space has no board to host the
// materialized card.
var ErrNoBoardInSpace = errors.New("no board found in space")

// CardRepository covers the card-side persistence the scheduler needs to
// materialize templates. Regular card CRUD lives with the mutation handlers.
type CardRepository interface {
	FindByID(ctx context.Context, id string) (models.Card, error)
	SpaceIDForCard(ctx context.Context, cardID string) (string, error)
	CreateFromTemplate(ctx context.Context, template *models.ScheduledCard, audit *models.CardHistory) (models.Card, error)
}

type cardRepository struct {
	db *gorm.DB
}

// NewCardRepository constructs a repository backed by GORM.
func NewCardRepository(db *gorm.DB) CardRepository {
	return &cardRepository{db: db}
}

func (r *cardRepository) FindByID(ctx context.Context, id string) (models.Card, error) {
	var card models.Card
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&card).Error; err != nil {
		return models.Card{}, err
	}
	return card, nil
}

func (r *cardRepository) SpaceIDForCard(ctx context.Context, cardID string) (string, error) {
	var spaceID string
	err := r.db.WithContext(ctx).
		Model(&models.Card{}).
		Select("boards.space_id").
		Joins("JOIN columns ON columns.id = cards.column_id").
		Joins("JOIN boards ON boards.id = columns.board_id").
		Where("cards.id = ?", cardID).
		Scan(&spaceID).Error
	if err != nil {
		return "", err
	}
	if spaceID == "" {
		return "", gorm.ErrRecordNotFound
	}
	return spaceID, nil
}

// CreateFromTemplate materializes one card from a recurring template inside a
// single transaction: the target column is resolved (recreated by name under
// the space's first board when stale or missing), the card with its tasks,
// tags and assignees is inserted, and the audit entry is appended atomically.
func (r *cardRepository) CreateFromTemplate(ctx context.Context, template *models.ScheduledCard, audit *models.CardHistory) (models.Card, error) {
	var created models.Card

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		column, err := r.resolveColumn(tx, template)
		if err != nil {
			return err
		}
		template.ColumnID = &column.ID

		var lastCard models.Card
		position := 0
		if err := tx.Where("column_id = ?", column.ID).Order("position DESC").First(&lastCard).Error; err == nil {
			position = lastCard.Position + 1
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		startDate := template.StartDate
		endDate := template.EndDate
		if endDate == nil {
			defaultEnd := startDate.Add(time.Hour)
			endDate = &defaultEnd
		}

		card := models.Card{
			ColumnID:    column.ID,
			Name:        template.Name,
			Description: template.Description,
			Location:    template.Location,
			StartDate:   &startDate,
			EndDate:     endDate,
			Position:    position,
			CreatedBy:   audit.ActorID,
		}
		if err := tx.Create(&card).Error; err != nil {
			return err
		}

		for i, text := range template.Tasks {
			task := models.CardTask{CardID: card.ID, Text: text, Position: i}
			if err := tx.Create(&task).Error; err != nil {
				return err
			}
		}

		for _, tagID := range template.TagIDs {
			var count int64
			if err := tx.Model(&models.Tag{}).Where("id = ?", tagID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				continue
			}
			if err := tx.Create(&models.CardTag{CardID: card.ID, TagID: tagID}).Error; err != nil {
				return err
			}
		}

		for _, userID := range template.AssigneeIDs {
			var count int64
			if err := tx.Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				continue
			}
			if err := tx.Create(&models.CardAssignee{CardID: card.ID, UserID: userID}).Error; err != nil {
				return err
			}
		}

		audit.CardID = card.ID
		if err := tx.Create(audit).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.ScheduledCard{}).
			Where("id = ?", template.ID).
			Update("column_id", column.ID).Error; err != nil {
			return err
		}

		created = card
		return nil
	})
	if err != nil {
		return models.Card{}, err
	}

	return created, nil
}

func (r *cardRepository) resolveColumn(tx *gorm.DB, template *models.ScheduledCard) (models.Column, error) {
	var column models.Column

	if template.ColumnID != nil && *template.ColumnID != "" {
		err := tx.Where("id = ?", *template.ColumnID).First(&column).Error
		if err == nil {
			return column, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Column{}, err
		}
	}

	err := tx.
		Joins("JOIN boards ON boards.id = columns.board_id").
		Where("boards.space_id = ? AND columns.name = ?", template.SpaceID, template.ColumnName).
		First(&column).Error
	if err == nil {
		return column, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Column{}, err
	}

	var board models.Board
	if err := tx.Where("space_id = ?", template.SpaceID).Order("position ASC").First(&board).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Column{}, ErrNoBoardInSpace
		}
		return models.Column{}, err
	}

	position := 0
	var lastColumn models.Column
	if err := tx.Where("board_id = ?", board.ID).Order("position DESC").First(&lastColumn).Error; err == nil {
		position = lastColumn.Position + 1
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Column{}, err
	}

	column = models.Column{BoardID: board.ID, Name: template.ColumnName, Position: position}
	if err := tx.Create(&column).Error; err != nil {
		return models.Column{}, err
	}

	return column, nil
}
