package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/richardliu001/lending-eventbus/internal/events"
	"github.com/richardliu001/lending-eventbus/internal/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentSnapshotName is the registry name of the payment snapshot handler.
const PaymentSnapshotName = "PaymentAnalyticsSnapshotHandler"

// snapshotScale is the number of decimal places kept in the paid total, which
// is stored as an integer count of 10^-snapshotScale units.
const snapshotScale = 4

// recordPaymentScript adds ARGV[2] units to the paid total KEYS[2] and marks
// payment ARGV[1] as counted in KEYS[1]. A payment already counted changes
// nothing. The total is written before the marker, so an error leaves the
// payment uncounted and a replay can apply it. Returns 1 when applied.
var recordPaymentScript = redis.NewScript(`
if redis.call("SISMEMBER", KEYS[1], ARGV[1]) == 1 then
	return 0
end
redis.call("INCRBY", KEYS[2], ARGV[2])
redis.call("SADD", KEYS[1], ARGV[1])
return 1
`)

// PaymentSnapshot keeps a running paid-to-date total per loan in Redis for
// the analytics dashboards. Payments already counted are skipped, which keeps
// replays harmless.
type PaymentSnapshot struct {
	rdb *redis.Client
	log *zap.SugaredLogger
}

// NewPaymentSnapshot returns the handler.
func NewPaymentSnapshot(rdb *redis.Client, logger *zap.SugaredLogger) *PaymentSnapshot {
	return &PaymentSnapshot{rdb: rdb, log: logger}
}

func paidKey(loanID string) string     { return fmt.Sprintf("snapshot:loan:%s:paid", loanID) }
func paymentsKey(loanID string) string { return fmt.Sprintf("snapshot:loan:%s:payments", loanID) }

func (h *PaymentSnapshot) Handle(ctx context.Context, _ *model.DomainEvent, p events.PaymentProcessedPayload) error {
	if p.LoanID == "" || p.PaymentID == "" {
		return errors.New("payment snapshot: loanId and paymentId are required")
	}
	units := p.Amount.Shift(snapshotScale)
	if !units.Equal(units.Truncate(0)) {
		return fmt.Errorf("payment %s: amount %s has more than %d decimal places", p.PaymentID, p.Amount, snapshotScale)
	}
	applied, err := recordPaymentScript.Run(ctx, h.rdb,
		[]string{paymentsKey(p.LoanID), paidKey(p.LoanID)}, p.PaymentID, units.IntPart()).Int64()
	if err != nil {
		return fmt.Errorf("record payment %s of loan %s: %w", p.PaymentID, p.LoanID, err)
	}
	if applied == 0 {
		h.log.Debugf("payment %s already in snapshot of loan %s", p.PaymentID, p.LoanID)
	}
	return nil
}

// PaidToDate reads the current snapshot total of a loan.
func (h *PaymentSnapshot) PaidToDate(ctx context.Context, loanID string) (decimal.Decimal, error) {
	units, err := h.rdb.Get(ctx, paidKey(loanID)).Int64()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("read paid total of loan %s: %w", loanID, err)
	}
	return decimal.New(units, -snapshotScale), nil
}
