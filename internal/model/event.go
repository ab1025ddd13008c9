package model

import (
	"time"

	"gorm.io/datatypes"
)

// Processing states of a persisted event.
const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

// DefaultEventVersion is used when a draft leaves EventVersion empty.
const DefaultEventVersion = "1.0"

// DomainEvent is an immutable fact recorded in the append-only event log.
// Only ProcessingStatus, ProcessedAt and Error change after insert.
type DomainEvent struct {
	ID               string            `gorm:"primaryKey;size:36" json:"id"`
	EventType        string            `gorm:"size:128;not null;index" json:"eventType"`
	EventVersion     string            `gorm:"size:16;not null" json:"eventVersion"`
	AggregateID      string            `gorm:"size:128;not null;uniqueIndex:idx_aggregate_sequence,priority:2" json:"aggregateId"`
	AggregateType    string            `gorm:"size:64;not null;uniqueIndex:idx_aggregate_sequence,priority:1" json:"aggregateType"`
	Payload          datatypes.JSON    `gorm:"type:jsonb;not null" json:"payload"`
	Metadata         datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	SequenceNumber   int64             `gorm:"not null;uniqueIndex:idx_aggregate_sequence,priority:3" json:"sequenceNumber"`
	CausationID      *string           `gorm:"size:64" json:"causationId,omitempty"`
	CorrelationID    *string           `gorm:"size:64;index" json:"correlationId,omitempty"`
	OccurredAt       time.Time         `gorm:"not null;index" json:"occurredAt"`
	ProcessingStatus string            `gorm:"size:16;not null;default:pending;index" json:"processingStatus"`
	ProcessedAt      *time.Time        `json:"processedAt,omitempty"`
	Error            *string           `json:"error,omitempty"`
}

func (DomainEvent) TableName() string { return "domain_events" }

// EventDraft is what a publisher supplies; the bus fills in id, sequence and time.
type EventDraft struct {
	EventType     string
	EventVersion  string
	AggregateID   string
	AggregateType string
	Payload       []byte
	Metadata      map[string]interface{}
	CausationID   string
	CorrelationID string
}

// Metadata keys publishers are expected to set when available.
const (
	MetaUserID         = "userId"
	MetaOrganizationID = "organizationId"
	MetaSource         = "source"
)
