package model

import "time"

// DefaultPriority is applied to registrations that don't set one.
const DefaultPriority = 100

// EventHandler mirrors an in-memory handler registration. The callable itself
// is never persisted.
type EventHandler struct {
	ID             uint64     `gorm:"primaryKey" json:"id"`
	HandlerName    string     `gorm:"size:128;not null;uniqueIndex" json:"handlerName"`
	EventType      string     `gorm:"size:128;not null;index" json:"eventType"`
	Priority       int        `gorm:"not null" json:"priority"`
	IsEnabled      bool       `gorm:"not null" json:"isEnabled"`
	SuccessCount   int64      `gorm:"not null;default:0" json:"successCount"`
	FailureCount   int64      `gorm:"not null;default:0" json:"failureCount"`
	LastExecutedAt *time.Time `json:"lastExecutedAt,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (EventHandler) TableName() string { return "event_handlers" }
