package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/richardliu001/lending-eventbus/internal/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RepositoryInterface restricts Repo methods so the bus can be tested against fakes.
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB

	InsertEvent(ctx context.Context, evt *model.DomainEvent) error
	GetEvent(ctx context.Context, id string) (*model.DomainEvent, error)
	MarkProcessed(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, reason string) error
	EventHistory(ctx context.Context, aggregateID, aggregateType string) ([]model.DomainEvent, error)
	EventsByCorrelation(ctx context.Context, correlationID string) ([]model.DomainEvent, error)
	MaxSequences(ctx context.Context) ([]SequenceHead, error)
	StalePending(ctx context.Context, before time.Time, limit int) ([]model.DomainEvent, error)

	UpsertHandler(ctx context.Context, h *model.EventHandler) error
	EnsureHandler(ctx context.Context, h *model.EventHandler) (*model.EventHandler, error)
	SetHandlerEnabled(ctx context.Context, name string, enabled bool) error
	GetHandler(ctx context.Context, name string) (*model.EventHandler, error)
	ListHandlers(ctx context.Context) ([]model.EventHandler, error)

	RecordExecution(ctx context.Context, rec ExecutionRecord) error
	ExecutionLog(ctx context.Context, eventID string) ([]model.EventProcessingLog, error)
}

// SequenceHead is the highest stored sequence number of one aggregate.
type SequenceHead struct {
	AggregateType string
	AggregateID   string
	MaxSequence   int64
}

// ExecutionRecord describes one handler execution to be logged.
type ExecutionRecord struct {
	HandlerName string
	EventID     string
	Status      string
	Duration    time.Duration
	Error       string
	At          time.Time
}

// Repository implements RepositoryInterface.
type Repository struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

// NewRepository constructs repo.
func NewRepository(db *gorm.DB, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, log: logger}
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// Migrate creates or updates the bus tables.
func (r *Repository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(model.All()...)
}

// InsertEvent assigns id and occurrence time and stores the event as pending.
func (r *Repository) InsertEvent(ctx context.Context, evt *model.DomainEvent) error {
	evt.ID = uuid.NewString()
	evt.OccurredAt = time.Now().UTC()
	evt.ProcessingStatus = model.StatusPending
	evt.ProcessedAt = nil
	if err := r.db.WithContext(ctx).Create(evt).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			r.log.Warnf("sequence conflict on %s:%s #%d", evt.AggregateType, evt.AggregateID, evt.SequenceNumber)
			return fmt.Errorf("%w: %s:%s #%d", ErrSequenceConflict, evt.AggregateType, evt.AggregateID, evt.SequenceNumber)
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetEvent reloads the stored event by id.
func (r *Repository) GetEvent(ctx context.Context, id string) (*model.DomainEvent, error) {
	var evt model.DomainEvent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&evt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return &evt, nil
}

// MarkProcessed sets processed status.
func (r *Repository) MarkProcessed(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&model.DomainEvent{}).Where("id = ?", id).
		Updates(map[string]interface{}{"processing_status": model.StatusProcessed, "processed_at": &now}).Error
}

// MarkFailed sets failed status with the reason. Only pending events can fail.
func (r *Repository) MarkFailed(ctx context.Context, id string, reason string) error {
	return r.db.WithContext(ctx).Model(&model.DomainEvent{}).
		Where("id = ? AND processing_status = ?", id, model.StatusPending).
		Updates(map[string]interface{}{"processing_status": model.StatusFailed, "error": reason}).Error
}

// EventHistory returns an aggregate's events ordered by sequence number. An empty
// aggregateType matches by id alone.
func (r *Repository) EventHistory(ctx context.Context, aggregateID, aggregateType string) ([]model.DomainEvent, error) {
	q := r.db.WithContext(ctx).Where("aggregate_id = ?", aggregateID)
	if aggregateType != "" {
		q = q.Where("aggregate_type = ?", aggregateType)
	}
	var evts []model.DomainEvent
	err := q.Order("sequence_number ASC").Order("occurred_at ASC").Find(&evts).Error
	return evts, err
}

// EventsByCorrelation follows a correlation id across aggregates in occurrence order.
func (r *Repository) EventsByCorrelation(ctx context.Context, correlationID string) ([]model.DomainEvent, error) {
	var evts []model.DomainEvent
	err := r.db.WithContext(ctx).Where("correlation_id = ?", correlationID).
		Order("occurred_at ASC").Find(&evts).Error
	return evts, err
}

// MaxSequences returns the highest sequence number per aggregate.
func (r *Repository) MaxSequences(ctx context.Context) ([]SequenceHead, error) {
	var heads []SequenceHead
	err := r.db.WithContext(ctx).Model(&model.DomainEvent{}).
		Select("aggregate_type, aggregate_id, MAX(sequence_number) AS max_sequence").
		Group("aggregate_type, aggregate_id").
		Scan(&heads).Error
	return heads, err
}

// StalePending pulls events stuck in pending since before the cutoff.
func (r *Repository) StalePending(ctx context.Context, before time.Time, limit int) ([]model.DomainEvent, error) {
	var evts []model.DomainEvent
	err := r.db.WithContext(ctx).
		Where("processing_status = ? AND occurred_at < ?", model.StatusPending, before).
		Order("occurred_at").Limit(limit).Find(&evts).Error
	return evts, err
}

// UpsertHandler inserts or updates the registration keyed by handler name.
// Counters of an existing row are left alone.
func (r *Repository) UpsertHandler(ctx context.Context, h *model.EventHandler) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "handler_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"event_type", "priority", "is_enabled", "updated_at"}),
	}).Create(h).Error
}

// EnsureHandler inserts the registration if it is new. An existing row gets
// the new event type and priority but keeps its enabled flag and counters.
// The stored row is returned.
func (r *Repository) EnsureHandler(ctx context.Context, h *model.EventHandler) (*model.EventHandler, error) {
	var stored model.EventHandler
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "handler_name"}},
			DoUpdates: clause.AssignmentColumns([]string{"event_type", "priority", "updated_at"}),
		}).Create(h).Error; err != nil {
			return err
		}
		return tx.Where("handler_name = ?", h.HandlerName).First(&stored).Error
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// SetHandlerEnabled flips the enabled flag of a registration.
func (r *Repository) SetHandlerEnabled(ctx context.Context, name string, enabled bool) error {
	res := r.db.WithContext(ctx).Model(&model.EventHandler{}).Where("handler_name = ?", name).
		Updates(map[string]interface{}{"is_enabled": enabled, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrHandlerNotFound
	}
	return nil
}

// GetHandler loads a registration row by name.
func (r *Repository) GetHandler(ctx context.Context, name string) (*model.EventHandler, error) {
	var h model.EventHandler
	if err := r.db.WithContext(ctx).Where("handler_name = ?", name).First(&h).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHandlerNotFound
		}
		return nil, err
	}
	return &h, nil
}

// ListHandlers returns all registrations, enabled or not.
func (r *Repository) ListHandlers(ctx context.Context) ([]model.EventHandler, error) {
	var hs []model.EventHandler
	err := r.db.WithContext(ctx).Order("event_type").Order("priority").Order("handler_name").Find(&hs).Error
	return hs, err
}

// RecordExecution appends a log row and bumps the handler counters in one transaction.
// Skipped executions are logged but leave counters and last_executed_at untouched.
func (r *Repository) RecordExecution(ctx context.Context, rec ExecutionRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var h model.EventHandler
		if err := tx.Where("handler_name = ?", rec.HandlerName).First(&h).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrHandlerNotFound
			}
			return err
		}
		entry := &model.EventProcessingLog{
			EventID:         rec.EventID,
			HandlerID:       h.ID,
			Status:          rec.Status,
			ExecutionTimeMs: rec.Duration.Milliseconds(),
		}
		if rec.Error != "" {
			msg := rec.Error
			entry.Error = &msg
		}
		if err := tx.Create(entry).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{"last_executed_at": rec.At}
		switch rec.Status {
		case model.ExecSuccess:
			updates["success_count"] = gorm.Expr("success_count + ?", 1)
		case model.ExecFailure:
			updates["failure_count"] = gorm.Expr("failure_count + ?", 1)
		default:
			return nil
		}
		return tx.Model(&model.EventHandler{}).Where("id = ?", h.ID).Updates(updates).Error
	})
}

// ExecutionLog returns the attempts recorded for one event.
func (r *Repository) ExecutionLog(ctx context.Context, eventID string) ([]model.EventProcessingLog, error) {
	var entries []model.EventProcessingLog
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).Order("id").Find(&entries).Error
	return entries, err
}
