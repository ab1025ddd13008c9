package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/richardliu001/lending-eventbus/internal/model"
)

// ErrUnexpectedEventType is returned when a typed handler receives another event type.
var ErrUnexpectedEventType = errors.New("unexpected event type")

// Payload is implemented by every payload struct of the catalogue.
type Payload interface {
	EventType() string
}

// Decode unmarshals the stored payload into T.
func Decode[T any](evt *model.DomainEvent) (T, error) {
	var out T
	if err := json.Unmarshal(evt.Payload, &out); err != nil {
		return out, fmt.Errorf("decode %s payload of %s: %w", evt.EventType, evt.ID, err)
	}
	return out, nil
}

// Typed adapts a function taking a decoded payload into a bus handler. The
// returned func has the same signature as eventbus.HandlerFunc.
func Typed[T Payload](fn func(ctx context.Context, evt *model.DomainEvent, p T) error) func(context.Context, *model.DomainEvent) error {
	return func(ctx context.Context, evt *model.DomainEvent) error {
		var zero T
		if evt.EventType != zero.EventType() {
			return fmt.Errorf("%w: want %s, got %s", ErrUnexpectedEventType, zero.EventType(), evt.EventType)
		}
		p, err := Decode[T](evt)
		if err != nil {
			return err
		}
		return fn(ctx, evt, p)
	}
}

// DraftOption sets optional draft fields.
type DraftOption func(*model.EventDraft)

// WithActor records the acting user and organization.
func WithActor(userID, organizationID string) DraftOption {
	return func(d *model.EventDraft) {
		if userID != "" {
			d.Metadata[model.MetaUserID] = userID
		}
		if organizationID != "" {
			d.Metadata[model.MetaOrganizationID] = organizationID
		}
	}
}

// WithSource names the publishing service.
func WithSource(source string) DraftOption {
	return func(d *model.EventDraft) { d.Metadata[model.MetaSource] = source }
}

// WithCausation links the draft to the event that caused it.
func WithCausation(eventID string) DraftOption {
	return func(d *model.EventDraft) { d.CausationID = eventID }
}

// WithCorrelation links the draft to the originating request.
func WithCorrelation(id string) DraftOption {
	return func(d *model.EventDraft) { d.CorrelationID = id }
}

// WithVersion overrides the payload schema version.
func WithVersion(v string) DraftOption {
	return func(d *model.EventDraft) { d.EventVersion = v }
}

// CausedBy copies correlation from parent and sets parent as cause.
func CausedBy(parent *model.DomainEvent) DraftOption {
	return func(d *model.EventDraft) {
		d.CausationID = parent.ID
		if parent.CorrelationID != nil {
			d.CorrelationID = *parent.CorrelationID
		}
	}
}

// NewDraft builds a draft for a catalogue payload.
func NewDraft(aggregateType, aggregateID string, p Payload, opts ...DraftOption) (model.EventDraft, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return model.EventDraft{}, fmt.Errorf("encode %s payload: %w", p.EventType(), err)
	}
	d := model.EventDraft{
		EventType:     p.EventType(),
		EventVersion:  model.DefaultEventVersion,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Payload:       raw,
		Metadata:      map[string]interface{}{},
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d, nil
}
