package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/richardliu001/lending-eventbus/internal/model"
	"github.com/segmentio/kafka-go"
)

// ForwarderName returns the registry name of the forwarder for an event type.
// One registration exists per forwarded type.
func ForwarderName(eventType string) string { return "KafkaForwarder:" + eventType }

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaForwarder copies stored events onto a topic for the analytics
// warehouse. It is an ordinary subscriber: a broker outage shows up as handler
// failures and does not affect publishing.
type KafkaForwarder struct {
	w MessageWriter
}

// NewKafkaForwarder wraps a writer.
func NewKafkaForwarder(w MessageWriter) *KafkaForwarder {
	return &KafkaForwarder{w: w}
}

// Handle writes the event keyed by its partition so one aggregate stays on one
// kafka partition.
func (f *KafkaForwarder) Handle(ctx context.Context, evt *model.DomainEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", evt.ID, err)
	}
	msg := kafka.Message{
		Key:   []byte(evt.AggregateType + ":" + evt.AggregateID),
		Value: body,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.EventType)},
			{Key: "event_version", Value: []byte(evt.EventVersion)},
			{Key: "sequence_number", Value: []byte(fmt.Sprintf("%d", evt.SequenceNumber))},
		},
	}
	return f.w.WriteMessages(ctx, msg)
}
