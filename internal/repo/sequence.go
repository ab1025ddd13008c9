package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/richardliu001/lending-eventbus/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrAllocatorConflict is returned when a concurrent writer bumped the counter first.
var ErrAllocatorConflict = errors.New("sequence allocator optimistic lock conflict")

// SequenceAllocator issues sequence numbers from the aggregate_sequences table.
// Every Next runs in its own transaction with the counter row locked, so
// allocators in different processes never hand out the same number.
type SequenceAllocator struct {
	db *gorm.DB
}

// NewSequenceAllocator returns a database backed allocator.
func NewSequenceAllocator(db *gorm.DB) *SequenceAllocator {
	return &SequenceAllocator{db: db}
}

// Next increments and returns the counter for key.
func (a *SequenceAllocator) Next(ctx context.Context, key string) (int64, error) {
	var next int64
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&model.AggregateSequence{PartitionKey: key}).Error; err != nil {
			return err
		}
		var seq model.AggregateSequence
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("partition_key = ?", key).First(&seq).Error; err != nil {
			return err
		}
		res := tx.Model(&model.AggregateSequence{}).
			Where("partition_key = ? AND version = ?", key, seq.Version).
			Updates(map[string]interface{}{
				"last_value": seq.LastValue + 1,
				"version":    seq.Version + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAllocatorConflict
		}
		next = seq.LastValue + 1
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("allocate sequence for %s: %w", key, err)
	}
	return next, nil
}

// Seed raises the counter to last if it is currently lower.
func (a *SequenceAllocator) Seed(ctx context.Context, key string, last int64) error {
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&model.AggregateSequence{PartitionKey: key, LastValue: last}).Error; err != nil {
			return err
		}
		return tx.Model(&model.AggregateSequence{}).
			Where("partition_key = ? AND last_value < ?", key, last).
			Updates(map[string]interface{}{
				"last_value": last,
				"version":    gorm.Expr("version + ?", 1),
			}).Error
	})
}
