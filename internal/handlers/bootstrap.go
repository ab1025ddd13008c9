package handlers

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/richardliu001/lending-eventbus/internal/eventbus"
	"github.com/richardliu001/lending-eventbus/internal/events"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Priorities of the built-in handlers.
const (
	PaymentSnapshotPriority = 50
	FundAlertPriority       = 100
	ForwarderPriority       = 1000
)

// Deps are the collaborators of the built-in handlers. Nil Redis or Kafka
// leaves the handlers that need them unsubscribed.
type Deps struct {
	Redis *redis.Client
	Kafka MessageWriter
	Log   *zap.SugaredLogger
}

// Options tune the built-in handlers.
type Options struct {
	FundReviewThreshold decimal.Decimal
	ForwardEventTypes   []string
}

// Bootstrap subscribes the process's cross-domain reactions. Callbacks live only
// in this process, so every process that publishes must run it at startup.
// Handlers an operator disabled stay disabled.
func Bootstrap(ctx context.Context, bus *eventbus.Bus, deps Deps, opts Options) error {
	alert := NewFundCreatedAlert(deps.Log, opts.FundReviewThreshold)
	regs := []eventbus.Registration{{
		HandlerName: FundCreatedAlertName,
		EventType:   events.FundCreated,
		Handler:     events.Typed(alert.Handle),
		Priority:    eventbus.PriorityOf(FundAlertPriority),
	}}

	if deps.Redis != nil {
		snap := NewPaymentSnapshot(deps.Redis, deps.Log)
		regs = append(regs, eventbus.Registration{
			HandlerName: PaymentSnapshotName,
			EventType:   events.PaymentProcessed,
			Handler:     events.Typed(snap.Handle),
			Priority:    eventbus.PriorityOf(PaymentSnapshotPriority),
		})
	}

	if deps.Kafka != nil {
		fwd := NewKafkaForwarder(deps.Kafka)
		for _, t := range opts.ForwardEventTypes {
			regs = append(regs, eventbus.Registration{
				HandlerName: ForwarderName(t),
				EventType:   t,
				Handler:     fwd.Handle,
				Priority:    eventbus.PriorityOf(ForwarderPriority),
			})
		}
	}

	for _, reg := range regs {
		reg.PreserveEnabled = true
		if err := bus.Subscribe(ctx, reg); err != nil {
			return err
		}
	}
	return nil
}
