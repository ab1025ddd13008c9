package model

import "time"

// AggregateSequence holds the last issued sequence number of one partition.
type AggregateSequence struct {
	PartitionKey string    `gorm:"primaryKey;size:200"`
	LastValue    int64     `gorm:"not null;default:0"`
	Version      uint64    `gorm:"not null;default:0"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

func (AggregateSequence) TableName() string { return "aggregate_sequences" }

// All lists every table the bus owns, in migration order.
func All() []interface{} {
	return []interface{}{&DomainEvent{}, &EventHandler{}, &EventProcessingLog{}, &AggregateSequence{}}
}
