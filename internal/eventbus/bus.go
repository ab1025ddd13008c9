package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/richardliu001/lending-eventbus/internal/model"
	"github.com/richardliu001/lending-eventbus/internal/repo"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

var (
	// ErrNotInitialized is returned by Publish before sequence counters were seeded.
	ErrNotInitialized = errors.New("event bus: sequence counters not initialized")
	// ErrInvalidEvent means a draft is missing identity fields or carries a non-JSON payload.
	ErrInvalidEvent = errors.New("event bus: invalid event")
	// ErrInvalidRegistration means a subscription lacks a name, type or callback.
	ErrInvalidRegistration = errors.New("event bus: invalid registration")
)

// ExecutionResult is the outcome of one handler run against one event.
type ExecutionResult struct {
	HandlerName string
	EventID     string
	Status      string
	Duration    time.Duration
	Err         error
}

// Bus persists domain events and dispatches them to in-process handlers.
type Bus struct {
	repo  repo.RepositoryInterface
	seq   SequenceAllocator
	log   *zap.SugaredLogger
	reg   *registry
	locks *keyedMutex
	ready atomic.Bool
}

// Option customizes a Bus.
type Option func(*Bus)

// WithAllocator swaps the default in-memory sequence allocator.
func WithAllocator(a SequenceAllocator) Option {
	return func(b *Bus) { b.seq = a }
}

// New returns a Bus. InitializeSequenceCounters must run before the first Publish.
func New(r repo.RepositoryInterface, logger *zap.SugaredLogger, opts ...Option) *Bus {
	b := &Bus{
		repo:  r,
		seq:   NewMemoryAllocator(),
		log:   logger,
		reg:   newRegistry(),
		locks: newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// InitializeSequenceCounters seeds the allocator with the highest stored
// sequence number of every aggregate.
func (b *Bus) InitializeSequenceCounters(ctx context.Context) error {
	heads, err := b.repo.MaxSequences(ctx)
	if err != nil {
		return fmt.Errorf("load sequence heads: %w", err)
	}
	for _, h := range heads {
		if err := b.seq.Seed(ctx, PartitionKey(h.AggregateType, h.AggregateID), h.MaxSequence); err != nil {
			return err
		}
	}
	b.ready.Store(true)
	b.log.Infof("sequence counters seeded for %d aggregates", len(heads))
	return nil
}

// Publish stores the event as pending, runs every enabled handler for its type
// in priority order and marks it processed. Handler failures are recorded, not
// returned; store errors are.
func (b *Bus) Publish(ctx context.Context, draft model.EventDraft) (*model.DomainEvent, error) {
	if !b.ready.Load() {
		return nil, ErrNotInitialized
	}
	evt, err := newEvent(draft)
	if err != nil {
		return nil, err
	}

	if err := b.persist(ctx, evt); err != nil {
		return nil, fmt.Errorf("publish %s: %w", evt.EventType, err)
	}

	b.executeHandlers(ctx, evt.ID, evt.EventType)

	if err := b.repo.MarkProcessed(ctx, evt.ID); err != nil {
		if ferr := b.repo.MarkFailed(ctx, evt.ID, err.Error()); ferr != nil {
			b.log.Errorf("mark failed id=%s: %v", evt.ID, ferr)
		}
		return evt, fmt.Errorf("mark processed id=%s: %w", evt.ID, err)
	}
	now := time.Now().UTC()
	evt.ProcessingStatus = model.StatusProcessed
	evt.ProcessedAt = &now
	return evt, nil
}

// persist allocates the next sequence number and inserts the row while holding
// the aggregate's lock, so rows of one aggregate land in sequence order.
func (b *Bus) persist(ctx context.Context, evt *model.DomainEvent) error {
	key := PartitionKey(evt.AggregateType, evt.AggregateID)
	unlock := b.locks.Lock(key)
	defer unlock()

	n, err := b.seq.Next(ctx, key)
	if err != nil {
		return err
	}
	evt.SequenceNumber = n
	if err := b.repo.InsertEvent(ctx, evt); err != nil {
		if rel, ok := b.seq.(releaser); ok {
			rel.Release(ctx, key, n)
		} else {
			b.log.Warnf("sequence %d of %s left unused: %v", n, key, err)
		}
		return err
	}
	return nil
}

func newEvent(d model.EventDraft) (*model.DomainEvent, error) {
	var missing []string
	if d.EventType == "" {
		missing = append(missing, "eventType")
	}
	if d.AggregateType == "" {
		missing = append(missing, "aggregateType")
	}
	if d.AggregateID == "" {
		missing = append(missing, "aggregateId")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidEvent, strings.Join(missing, ", "))
	}
	payload := d.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("%w: payload of %s is not JSON", ErrInvalidEvent, d.EventType)
	}
	version := d.EventVersion
	if version == "" {
		version = model.DefaultEventVersion
	}

	evt := &model.DomainEvent{
		EventType:     d.EventType,
		EventVersion:  version,
		AggregateID:   d.AggregateID,
		AggregateType: d.AggregateType,
		Payload:       datatypes.JSON(payload),
	}
	if len(d.Metadata) > 0 {
		evt.Metadata = datatypes.JSONMap(d.Metadata)
	}
	if d.CausationID != "" {
		id := d.CausationID
		evt.CausationID = &id
	}
	if d.CorrelationID != "" {
		id := d.CorrelationID
		evt.CorrelationID = &id
	}
	return evt, nil
}

// Subscribe registers or replaces a handler under its name. The database row
// is written first; the callback only becomes dispatchable once it is stored.
func (b *Bus) Subscribe(ctx context.Context, reg Registration) error {
	if reg.HandlerName == "" || reg.EventType == "" || reg.Handler == nil {
		return fmt.Errorf("%w: %q for %q", ErrInvalidRegistration, reg.HandlerName, reg.EventType)
	}
	prio := reg.priority()
	reg.Priority = &prio
	row := &model.EventHandler{
		HandlerName: reg.HandlerName,
		EventType:   reg.EventType,
		Priority:    prio,
		IsEnabled:   !reg.Disabled,
	}
	if reg.PreserveEnabled {
		stored, err := b.repo.EnsureHandler(ctx, row)
		if err != nil {
			return fmt.Errorf("persist handler %s: %w", reg.HandlerName, err)
		}
		reg.Disabled = !stored.IsEnabled
	} else if err := b.repo.UpsertHandler(ctx, row); err != nil {
		return fmt.Errorf("persist handler %s: %w", reg.HandlerName, err)
	}
	b.reg.put(reg)
	b.log.Infof("handler %s subscribed to %s (priority %d, enabled %t)", reg.HandlerName, reg.EventType, prio, !reg.Disabled)
	return nil
}

// Unsubscribe drops the handler from memory and disables its row. Statistics
// and execution history stay.
func (b *Bus) Unsubscribe(ctx context.Context, handlerName string) error {
	if !b.reg.remove(handlerName) {
		b.log.Warnf("unsubscribe %s: not registered in this process", handlerName)
	}
	if err := b.repo.SetHandlerEnabled(ctx, handlerName, false); err != nil {
		return fmt.Errorf("disable handler %s: %w", handlerName, err)
	}
	return nil
}

// SetEnabled toggles a registration without dropping its callback.
func (b *Bus) SetEnabled(ctx context.Context, handlerName string, enabled bool) error {
	if err := b.repo.SetHandlerEnabled(ctx, handlerName, enabled); err != nil {
		return err
	}
	if !b.reg.setEnabled(handlerName, enabled) && enabled {
		b.log.Warnf("handler %s enabled but has no callback in this process", handlerName)
	}
	return nil
}

// executeHandlers runs the enabled handlers of an event type one after another.
func (b *Bus) executeHandlers(ctx context.Context, eventID, eventType string) []ExecutionResult {
	regs := b.reg.dispatchable(eventType)
	if len(regs) == 0 {
		return nil
	}
	results := make([]ExecutionResult, 0, len(regs))
	for _, reg := range regs {
		results = append(results, b.executeHandler(ctx, eventID, reg))
	}
	return results
}

// executeHandler runs one handler against the stored copy of the event and
// records the outcome. It never returns the handler's error to the caller.
func (b *Bus) executeHandler(ctx context.Context, eventID string, reg Registration) ExecutionResult {
	res := ExecutionResult{HandlerName: reg.HandlerName, EventID: eventID}

	if !b.reg.active(reg.HandlerName) {
		res.Status = model.ExecSkipped
		b.record(ctx, res)
		return res
	}

	evt, err := b.repo.GetEvent(ctx, eventID)
	start := time.Now()
	if err == nil {
		err = invoke(ctx, reg.Handler, evt)
	}
	res.Duration = time.Since(start)

	if err != nil {
		res.Status = model.ExecFailure
		res.Err = err
		b.log.Warnw("handler failed",
			"handler", reg.HandlerName, "event_id", eventID, "duration", res.Duration, "error", err)
	} else {
		res.Status = model.ExecSuccess
	}
	b.record(ctx, res)
	return res
}

func invoke(ctx context.Context, fn HandlerFunc, evt *model.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return fn(ctx, evt)
}

func (b *Bus) record(ctx context.Context, res ExecutionResult) {
	rec := repo.ExecutionRecord{
		HandlerName: res.HandlerName,
		EventID:     res.EventID,
		Status:      res.Status,
		Duration:    res.Duration,
		At:          time.Now().UTC(),
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	err := b.repo.RecordExecution(ctx, rec)
	switch {
	case err == nil:
	case errors.Is(err, repo.ErrHandlerNotFound):
		b.log.Warnf("no registry row for handler %s, execution of %s not logged", res.HandlerName, res.EventID)
	default:
		b.log.Errorf("log execution handler=%s event=%s: %v", res.HandlerName, res.EventID, err)
	}
}

// GetEventHistory returns an aggregate's events in sequence order. Pass the
// aggregate type whenever ids can collide across types.
func (b *Bus) GetEventHistory(ctx context.Context, aggregateID, aggregateType string) ([]model.DomainEvent, error) {
	return b.repo.EventHistory(ctx, aggregateID, aggregateType)
}

// EventsByCorrelation returns every event sharing a correlation id.
func (b *Bus) EventsByCorrelation(ctx context.Context, correlationID string) ([]model.DomainEvent, error) {
	return b.repo.EventsByCorrelation(ctx, correlationID)
}

// Handlers lists persisted registrations with their statistics.
func (b *Bus) Handlers(ctx context.Context) ([]model.EventHandler, error) {
	return b.repo.ListHandlers(ctx)
}

// ExecutionLog lists the recorded handler runs of an event.
func (b *Bus) ExecutionLog(ctx context.Context, eventID string) ([]model.EventProcessingLog, error) {
	return b.repo.ExecutionLog(ctx, eventID)
}
