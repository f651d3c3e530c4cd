package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Space is the collaborative scope that connections, audit entries, webhooks
// and scheduled cards are bound to.
type Space struct {
	ID        string        `gorm:"primaryKey;size:36" json:"id"`
	Name      string        `gorm:"size:255;not null" json:"name"`
	Members   []SpaceMember `json:"members,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func (s *Space) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// SpaceMember links a user to a space.
type SpaceMember struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SpaceID   string    `gorm:"size:36;index;not null" json:"space_id"`
	UserID    string    `gorm:"size:36;index;not null" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Board groups columns inside a space.
type Board struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	SpaceID   string    `gorm:"size:36;index;not null" json:"space_id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Position  int       `gorm:"not null;default:0" json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

func (b *Board) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// Column is an ordered lane of cards on a board.
type Column struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	BoardID   string    `gorm:"size:36;index;not null" json:"board_id"`
	Name      string    `gorm:"size:200;not null" json:"name"`
	Position  int       `gorm:"not null;default:0" json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

func (c *Column) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// Card is the collaboratively edited work item.
type Card struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	ColumnID    string     `gorm:"size:36;index;not null" json:"column_id"`
	Name        string     `gorm:"size:500;not null" json:"name"`
	Description string     `gorm:"type:text" json:"description"`
	Location    string     `gorm:"size:500" json:"location"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
	Position    int        `gorm:"not null;default:0" json:"position"`
	CreatedBy   string     `gorm:"size:36;index" json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (c *Card) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// CardTask is a subtask line item on a card.
type CardTask struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CardID    string    `gorm:"size:36;index;not null" json:"card_id"`
	Text      string    `gorm:"size:1000;not null" json:"text"`
	Position  int       `gorm:"not null;default:0" json:"position"`
	Done      bool      `gorm:"not null;default:false" json:"done"`
	CreatedAt time.Time `json:"created_at"`
}

func (t *CardTask) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// Tag is a space-scoped label.
type Tag struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	SpaceID   string    `gorm:"size:36;index;not null" json:"space_id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Color     string    `gorm:"size:20" json:"color"`
	CreatedAt time.Time `json:"created_at"`
}

func (t *Tag) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// CardTag attaches a tag to a card.
type CardTag struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	CardID string `gorm:"size:36;index;not null" json:"card_id"`
	TagID  string `gorm:"size:36;index;not null" json:"tag_id"`
}

// CardAssignee attaches a user to a card.
type CardAssignee struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	CardID string `gorm:"size:36;index;not null" json:"card_id"`
	UserID string `gorm:"size:36;index;not null" json:"user_id"`
}
