package dto

import (
	"time"

	"github.com/kanbot-project/kanbot-sync-api/internal/models"
)

// NotificationResponse represents an inbox record returned to its recipient.
type NotificationResponse struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id"`
	Type      string                 `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message,omitempty"`
	Data      map[string]interface{} `json:"data"`
	Read      bool                   `json:"read"`
	CreatedAt time.Time              `json:"created_at"`
}

// NewNotificationResponse converts a notification model to a DTO.
func NewNotificationResponse(model models.Notification) NotificationResponse {
	data := map[string]interface{}{}
	if model.Data != nil {
		data = model.Data
	}
	return NotificationResponse{
		ID:        model.ID,
		UserID:    model.UserID,
		Type:      model.Type,
		Title:     model.Title,
		Message:   model.Message,
		Data:      data,
		Read:      model.Read,
		CreatedAt: model.CreatedAt,
	}
}

// NewNotificationResponseSlice converts a slice to DTOs.
func NewNotificationResponseSlice(items []models.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewNotificationResponse(item))
	}
	return out
}

// DelegationRequest asks another member to take over a card. Only automated
// actors may delegate.
type DelegationRequest struct {
	TargetUserID string                 `json:"target_user_id" validate:"required,uuid4"`
	CardID       string                 `json:"card_id" validate:"required,uuid4"`
	SpaceID      string                 `json:"space_id" validate:"omitempty,uuid4"`
	Message      string                 `json:"message" validate:"omitempty,max=2000"`
	Metadata     map[string]interface{} `json:"metadata"`
}

// DelegationResponse acknowledges a delegation request.
type DelegationResponse struct {
	Status         string `json:"status"`
	CardID         string `json:"card_id"`
	NotificationID string `json:"notification_id"`
}
