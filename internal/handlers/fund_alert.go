package handlers

import (
	"context"

	"github.com/richardliu001/lending-eventbus/internal/events"
	"github.com/richardliu001/lending-eventbus/internal/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// FundCreatedAlertName is the registry name of the fund alert handler.
const FundCreatedAlertName = "FundCreatedAlertHandler"

// FundCreatedAlert logs an alert for every new fund and flags funds above a
// capacity threshold for review.
type FundCreatedAlert struct {
	log       *zap.SugaredLogger
	threshold decimal.Decimal
}

// NewFundCreatedAlert returns the handler; a zero threshold disables the review flag.
func NewFundCreatedAlert(logger *zap.SugaredLogger, threshold decimal.Decimal) *FundCreatedAlert {
	return &FundCreatedAlert{log: logger, threshold: threshold}
}

func (h *FundCreatedAlert) Handle(_ context.Context, evt *model.DomainEvent, p events.FundCreatedPayload) error {
	h.log.Infow("fund created",
		"fund", p.Name, "aggregate_id", evt.AggregateID, "capacity", p.TotalCapacity.String())
	if h.threshold.IsPositive() && p.TotalCapacity.GreaterThan(h.threshold) {
		h.log.Warnw("fund capacity above review threshold",
			"fund", p.Name, "capacity", p.TotalCapacity.String(), "threshold", h.threshold.String())
	}
	return nil
}
