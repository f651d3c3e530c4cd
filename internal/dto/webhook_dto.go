package dto

import (
	"time"

	"github.com/kanbot-project/kanbot-sync-api/internal/models"
)

// WebhookCreateRequest registers a new outbound subscription for a space.
type WebhookCreateRequest struct {
	SpaceID string   `json:"space_id" validate:"required,uuid4"`
	URL     string   `json:"url" validate:"required,url,max=2000"`
	Events  []string `json:"events" validate:"omitempty,dive,min=1,max=100"`
	Secret  string   `json:"secret" validate:"omitempty,max=255"`
}

// WebhookUpdateRequest partially updates a subscription.
type WebhookUpdateRequest struct {
	URL    *string   `json:"url" validate:"omitempty,url,max=2000"`
	Events *[]string `json:"events" validate:"omitempty,dive,min=1,max=100"`
	Secret *string   `json:"secret" validate:"omitempty,max=255"`
	Active *bool     `json:"active"`
}

// WebhookResponse is the serialized subscription. The secret is never echoed.
type WebhookResponse struct {
	ID        string    `json:"id"`
	SpaceID   string    `json:"space_id"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	HasSecret bool      `json:"has_secret"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// NewWebhookResponse converts a model into a DTO.
func NewWebhookResponse(model models.Webhook) WebhookResponse {
	events := []string{}
	if model.Events != nil {
		events = model.Events
	}
	return WebhookResponse{
		ID:        model.ID,
		SpaceID:   model.SpaceID,
		URL:       model.URL,
		Events:    events,
		HasSecret: model.Secret != "",
		Active:    model.Active,
		CreatedAt: model.CreatedAt,
	}
}

// NewWebhookResponseSlice converts a slice of models into DTOs.
func NewWebhookResponseSlice(items []models.Webhook) []WebhookResponse {
	out := make([]WebhookResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewWebhookResponse(item))
	}
	return out
}

// WebhookLogResponse describes one delivery attempt.
type WebhookLogResponse struct {
	ID             string                 `json:"id"`
	WebhookID      string                 `json:"webhook_id"`
	Event          string                 `json:"event"`
	Payload        map[string]interface{} `json:"payload"`
	ResponseStatus *int                   `json:"response_status"`
	ResponseBody   string                 `json:"response_body,omitempty"`
	Success        bool                   `json:"success"`
	CreatedAt      time.Time              `json:"created_at"`
}

// NewWebhookLogResponse converts a model into a DTO.
func NewWebhookLogResponse(model models.WebhookLog) WebhookLogResponse {
	payload := map[string]interface{}{}
	if model.Payload != nil {
		payload = model.Payload
	}
	return WebhookLogResponse{
		ID:             model.ID,
		WebhookID:      model.WebhookID,
		Event:          model.Event,
		Payload:        payload,
		ResponseStatus: model.ResponseStatus,
		ResponseBody:   model.ResponseBody,
		Success:        model.Success,
		CreatedAt:      model.CreatedAt,
	}
}

// NewWebhookLogResponseSlice converts a slice of models into DTOs.
func NewWebhookLogResponseSlice(items []models.WebhookLog) []WebhookLogResponse {
	out := make([]WebhookLogResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewWebhookLogResponse(item))
	}
	return out
}
