package dto

import (
	"time"

	"github.com/kanbot-project/kanbot-sync-api/internal/models"
)

// AuditQuery carries the supported audit log filters.
type AuditQuery struct {
	CardID    string     `query:"card_id" validate:"omitempty,uuid4"`
	SpaceID   string     `query:"space_id" validate:"omitempty,uuid4"`
	ActorType string     `query:"actor_type" validate:"omitempty,oneof=user agent"`
	Since     *time.Time `query:"since"`
	Limit     int        `query:"limit" validate:"omitempty,min=1,max=500"`
}

// AuditEntryResponse is the serialized representation of one audit entry.
type AuditEntryResponse struct {
	ID        string                 `json:"id"`
	CardID    string                 `json:"card_id"`
	Action    string                 `json:"action"`
	Changes   map[string]interface{} `json:"changes"`
	ActorType string                 `json:"actor_type"`
	ActorID   string                 `json:"actor_id"`
	ActorName string                 `json:"actor_name"`
	CreatedAt time.Time              `json:"created_at"`
}

// NewAuditEntryResponse converts a model into a DTO.
func NewAuditEntryResponse(entry models.CardHistory) AuditEntryResponse {
	return AuditEntryResponse{
		ID:        entry.ID,
		CardID:    entry.CardID,
		Action:    entry.Action,
		Changes:   entry.Changes,
		ActorType: entry.ActorType,
		ActorID:   entry.ActorID,
		ActorName: entry.ActorName,
		CreatedAt: entry.CreatedAt,
	}
}

// NewAuditEntryResponseSlice converts a slice of models into DTOs.
func NewAuditEntryResponseSlice(entries []models.CardHistory) []AuditEntryResponse {
	out := make([]AuditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, NewAuditEntryResponse(entry))
	}
	return out
}
