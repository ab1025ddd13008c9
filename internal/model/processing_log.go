package model

import "time"

// Execution outcomes.
const (
	ExecSuccess = "success"
	ExecFailure = "failure"
	ExecSkipped = "skipped"
)

// EventProcessingLog is one (event, handler) execution attempt. Never updated.
type EventProcessingLog struct {
	ID              uint64    `gorm:"primaryKey" json:"id"`
	EventID         string    `gorm:"size:36;not null;index" json:"eventId"`
	HandlerID       uint64    `gorm:"not null;index" json:"handlerId"`
	Status          string    `gorm:"size:16;not null" json:"status"`
	ExecutionTimeMs int64     `gorm:"not null" json:"executionTimeMs"`
	Error           *string   `json:"error,omitempty"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (EventProcessingLog) TableName() string { return "event_processing_log" }
