package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Actor types recorded on audit entries.
const (
	ActorTypeUser  = "user"
	ActorTypeAgent = "agent"
)

// CardHistory is an append-only audit entry for a single card mutation.
// Entries are never updated or deleted.
type CardHistory struct {
	ID        string            `gorm:"primaryKey;size:36" json:"id"`
	CardID    string            `gorm:"size:36;index;not null" json:"card_id"`
	Action    string            `gorm:"size:64;not null" json:"action"`
	Changes   datatypes.JSONMap `gorm:"type:json" json:"changes"`
	ActorType string            `gorm:"size:16;index;not null" json:"actor_type"`
	ActorID   string            `gorm:"size:36;not null" json:"actor_id"`
	ActorName string            `gorm:"size:200;not null" json:"actor_name"`
	CreatedAt time.Time         `gorm:"index" json:"created_at"`
}

func (h *CardHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	return nil
}
