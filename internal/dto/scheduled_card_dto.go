package dto

import (
	"time"

	"github.com/kanbot-project/kanbot-sync-api/internal/models"
)

// ScheduledCardCreateRequest registers a recurring card template.
type ScheduledCardCreateRequest struct {
	SpaceID     string     `json:"space_id" validate:"required,uuid4"`
	ColumnID    string     `json:"column_id" validate:"omitempty,uuid4"`
	ColumnName  string     `json:"column_name" validate:"required,min=1,max=200"`
	Name        string     `json:"name" validate:"required,min=1,max=500"`
	Description string     `json:"description" validate:"omitempty,max=10000"`
	Interval    string     `json:"interval" validate:"required,oneof=daily weekly biweekly monthly quarterly yearly"`
	StartDate   time.Time  `json:"start_date" validate:"required"`
	EndDate     *time.Time `json:"end_date"`
	TagIDs      []string   `json:"tag_ids" validate:"omitempty,dive,uuid4"`
	AssigneeIDs []string   `json:"assignee_ids" validate:"omitempty,dive,uuid4"`
	Tasks       []string   `json:"tasks" validate:"omitempty,dive,min=1,max=1000"`
	Location    string     `json:"location" validate:"omitempty,max=500"`
}

// ScheduledCardUpdateRequest partially updates a template.
type ScheduledCardUpdateRequest struct {
	ColumnID    *string    `json:"column_id" validate:"omitempty,uuid4"`
	ColumnName  *string    `json:"column_name" validate:"omitempty,min=1,max=200"`
	Name        *string    `json:"name" validate:"omitempty,min=1,max=500"`
	Description *string    `json:"description" validate:"omitempty,max=10000"`
	Interval    *string    `json:"interval" validate:"omitempty,oneof=daily weekly biweekly monthly quarterly yearly"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
	TagIDs      *[]string  `json:"tag_ids" validate:"omitempty,dive,uuid4"`
	AssigneeIDs *[]string  `json:"assignee_ids" validate:"omitempty,dive,uuid4"`
	Tasks       *[]string  `json:"tasks" validate:"omitempty,dive,min=1,max=1000"`
	Location    *string    `json:"location" validate:"omitempty,max=500"`
	Active      *bool      `json:"active"`
}

// ScheduledCardResponse is the serialized template.
type ScheduledCardResponse struct {
	ID          string     `json:"id"`
	SpaceID     string     `json:"space_id"`
	ColumnID    *string    `json:"column_id"`
	ColumnName  string     `json:"column_name"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Interval    string     `json:"interval"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
	NextRun     time.Time  `json:"next_run"`
	LastRun     *time.Time `json:"last_run"`
	TagIDs      []string   `json:"tag_ids"`
	AssigneeIDs []string   `json:"assignee_ids"`
	Tasks       []string   `json:"tasks"`
	Location    string     `json:"location,omitempty"`
	Active      bool       `json:"active"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
}

// NewScheduledCardResponse converts a model into a DTO.
func NewScheduledCardResponse(model models.ScheduledCard) ScheduledCardResponse {
	return ScheduledCardResponse{
		ID:          model.ID,
		SpaceID:     model.SpaceID,
		ColumnID:    model.ColumnID,
		ColumnName:  model.ColumnName,
		Name:        model.Name,
		Description: model.Description,
		Interval:    string(model.Interval),
		StartDate:   model.StartDate,
		EndDate:     model.EndDate,
		NextRun:     model.NextRun,
		LastRun:     model.LastRun,
		TagIDs:      orEmpty(model.TagIDs),
		AssigneeIDs: orEmpty(model.AssigneeIDs),
		Tasks:       orEmpty(model.Tasks),
		Location:    model.Location,
		Active:      model.Active,
		CreatedBy:   model.CreatedBy,
		CreatedAt:   model.CreatedAt,
	}
}

// NewScheduledCardResponseSlice converts a slice of models into DTOs.
func NewScheduledCardResponseSlice(items []models.ScheduledCard) []ScheduledCardResponse {
	out := make([]ScheduledCardResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewScheduledCardResponse(item))
	}
	return out
}

// SweepResponse summarizes one batch sweep over a space.
type SweepResponse struct {
	Status       string `json:"status"`
	CardsCreated int    `json:"cards_created"`
}

// TriggerResponse acknowledges a manual template trigger.
type TriggerResponse struct {
	Status string `json:"status"`
	CardID string `json:"card_id"`
}

func orEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
