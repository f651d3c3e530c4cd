package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RecurrenceInterval enumerates the supported recurrence kinds.
type RecurrenceInterval string

const (
	IntervalDaily     RecurrenceInterval = "daily"
	IntervalWeekly    RecurrenceInterval = "weekly"
	IntervalBiweekly  RecurrenceInterval = "biweekly"
	IntervalMonthly   RecurrenceInterval = "monthly"
	IntervalQuarterly RecurrenceInterval = "quarterly"
	IntervalYearly    RecurrenceInterval = "yearly"
)

// Valid reports whether the interval is one of the supported kinds.
func (i RecurrenceInterval) Valid() bool {
	switch i {
	case IntervalDaily, IntervalWeekly, IntervalBiweekly, IntervalMonthly, IntervalQuarterly, IntervalYearly:
		return true
	}
	return false
}

// ScheduledCard is a recurring template that the scheduler materializes into
// ordinary cards. ColumnID may go stale; ColumnName is the durable target and
// the column is recreated by name when missing.
type ScheduledCard struct {
	ID          string                      `gorm:"primaryKey;size:36" json:"id"`
	SpaceID     string                      `gorm:"size:36;index;not null" json:"space_id"`
	ColumnID    *string                     `gorm:"size:36" json:"column_id"`
	ColumnName  string                      `gorm:"size:200;not null" json:"column_name"`
	Name        string                      `gorm:"size:500;not null" json:"name"`
	Description string                      `gorm:"type:text" json:"description"`
	Interval    RecurrenceInterval          `gorm:"size:16;not null" json:"interval"`
	StartDate   time.Time                   `gorm:"not null" json:"start_date"`
	EndDate     *time.Time                  `json:"end_date"`
	NextRun     time.Time                   `gorm:"index;not null" json:"next_run"`
	LastRun     *time.Time                  `json:"last_run"`
	TagIDs      datatypes.JSONSlice[string] `json:"tag_ids"`
	AssigneeIDs datatypes.JSONSlice[string] `json:"assignee_ids"`
	Tasks       datatypes.JSONSlice[string] `json:"tasks"`
	Location    string                      `gorm:"size:500" json:"location"`
	Active      bool                        `gorm:"not null;default:true" json:"active"`
	CreatedBy   string                      `gorm:"size:36;not null" json:"created_by"`
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

func (s *ScheduledCard) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
