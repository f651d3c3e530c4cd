package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Webhook is an externally registered subscription scoped to a space. An
// empty Events list means the subscriber receives every event.
type Webhook struct {
	ID        string                      `gorm:"primaryKey;size:36" json:"id"`
	SpaceID   string                      `gorm:"size:36;index;not null" json:"space_id"`
	URL       string                      `gorm:"size:2000;not null" json:"url"`
	Events    datatypes.JSONSlice[string] `json:"events"`
	Secret    string                      `gorm:"size:255" json:"-"`
	Active    bool                        `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time                   `json:"created_at"`
}

func (w *Webhook) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	return nil
}

// WebhookLog records exactly one delivery attempt, independent of any other.
type WebhookLog struct {
	ID             string            `gorm:"primaryKey;size:36" json:"id"`
	WebhookID      string            `gorm:"size:36;index;not null" json:"webhook_id"`
	Event          string            `gorm:"size:100;not null" json:"event"`
	Payload        datatypes.JSONMap `gorm:"type:json" json:"payload"`
	ResponseStatus *int              `json:"response_status"`
	ResponseBody   string            `gorm:"type:text" json:"response_body"`
	Success        bool              `gorm:"not null;default:false" json:"success"`
	CreatedAt      time.Time         `gorm:"index" json:"created_at"`
}

func (l *WebhookLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}
