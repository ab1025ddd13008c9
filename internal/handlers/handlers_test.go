package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/richardliu001/lending-eventbus/internal/eventbus"
	"github.com/richardliu001/lending-eventbus/internal/events"
	"github.com/richardliu001/lending-eventbus/internal/model"
	"github.com/richardliu001/lending-eventbus/internal/repo"
	"github.com/richardliu001/lending-eventbus/internal/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func expectRecordPayment(mock redismock.ClientMock, loanID, paymentID string, units int64) *redismock.ExpectedCmd {
	return mock.ExpectEvalSha(recordPaymentScript.Hash(),
		[]string{paymentsKey(loanID), paidKey(loanID)}, paymentID, units)
}

func TestPaymentSnapshot_AddsNewPayment(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	h := NewPaymentSnapshot(rdb, zap.NewNop().Sugar())

	expectRecordPayment(mock, "l-1", "p-1", 2500000).SetVal(int64(1))

	err := h.Handle(context.Background(), &model.DomainEvent{}, events.PaymentProcessedPayload{
		PaymentID: "p-1", LoanID: "l-1", Amount: decimal.NewFromInt(250),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentSnapshot_SkipsCountedPayment(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	h := NewPaymentSnapshot(rdb, zap.NewNop().Sugar())

	expectRecordPayment(mock, "l-1", "p-1", 2500000).SetVal(int64(0))

	err := h.Handle(context.Background(), &model.DomainEvent{}, events.PaymentProcessedPayload{
		PaymentID: "p-1", LoanID: "l-1", Amount: decimal.NewFromInt(250),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentSnapshot_FailedWriteIsAppliedOnReplay(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	h := NewPaymentSnapshot(rdb, zap.NewNop().Sugar())
	payment := events.PaymentProcessedPayload{
		PaymentID: "p-2", LoanID: "l-2", Amount: decimal.RequireFromString("99.95"),
	}

	expectRecordPayment(mock, "l-2", "p-2", 999500).SetErr(errors.New("connection reset"))
	err := h.Handle(context.Background(), &model.DomainEvent{}, payment)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	// the script is all or nothing, so the payment is still uncounted
	expectRecordPayment(mock, "l-2", "p-2", 999500).SetVal(int64(1))
	mock.ExpectGet(paidKey("l-2")).SetVal("999500")

	require.NoError(t, h.Handle(context.Background(), &model.DomainEvent{}, payment))
	total, err := h.PaidToDate(context.Background(), "l-2")
	require.NoError(t, err)
	assert.Equal(t, "99.95", total.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentSnapshot_Rejects(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	h := NewPaymentSnapshot(rdb, zap.NewNop().Sugar())

	err := h.Handle(context.Background(), &model.DomainEvent{}, events.PaymentProcessedPayload{PaymentID: "p-1"})
	assert.Error(t, err)

	err = h.Handle(context.Background(), &model.DomainEvent{}, events.PaymentProcessedPayload{
		PaymentID: "p-3", LoanID: "l-3", Amount: decimal.RequireFromString("0.00001"),
	})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaidToDate(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	h := NewPaymentSnapshot(rdb, zap.NewNop().Sugar())

	mock.ExpectGet(paidKey("l-1")).SetVal("10002500")
	total, err := h.PaidToDate(context.Background(), "l-1")
	require.NoError(t, err)
	assert.Equal(t, "1000.25", total.String())

	mock.ExpectGet(paidKey("l-9")).RedisNil()
	total, err = h.PaidToDate(context.Background(), "l-9")
	require.NoError(t, err)
	assert.True(t, total.IsZero())
}

func TestKafkaForwarder(t *testing.T) {
	w := &fakeWriter{}
	f := NewKafkaForwarder(w)
	evt := &model.DomainEvent{
		ID: "e-1", EventType: events.LoanCreated, EventVersion: "1.0",
		AggregateType: events.AggregateLoan, AggregateID: "l-1", SequenceNumber: 3,
		Payload: []byte(`{"loanId":"l-1"}`),
	}

	require.NoError(t, f.Handle(context.Background(), evt))
	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "Loan:l-1", string(msg.Key))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, "e-1", body["id"])

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, map[string]string{
		"event_type": events.LoanCreated, "event_version": "1.0", "sequence_number": "3",
	}, headers)

	w.err = errors.New("broker unavailable")
	assert.Error(t, f.Handle(context.Background(), evt))
}

func TestFundCreatedAlert(t *testing.T) {
	h := NewFundCreatedAlert(zap.NewNop().Sugar(), decimal.NewFromInt(1000))
	err := h.Handle(context.Background(), &model.DomainEvent{AggregateID: "f-1"}, events.FundCreatedPayload{
		Name: "Big", TotalCapacity: decimal.NewFromInt(5000),
	})
	assert.NoError(t, err)
}

func TestBootstrap(t *testing.T) {
	db := testutil.OpenDB(t)
	log := zap.NewNop().Sugar()
	r := repo.NewRepository(db, log)
	bus := eventbus.New(r, log)
	ctx := context.Background()
	require.NoError(t, bus.InitializeSequenceCounters(ctx))

	rdb, _ := redismock.NewClientMock()
	w := &fakeWriter{}
	require.NoError(t, Bootstrap(ctx, bus, Deps{Redis: rdb, Kafka: w, Log: log}, Options{
		ForwardEventTypes: []string{events.FundCreated, events.LoanCreated},
	}))

	hs, err := bus.Handlers(ctx)
	require.NoError(t, err)
	names := map[string]int{}
	for _, h := range hs {
		names[h.HandlerName] = h.Priority
	}
	assert.Equal(t, map[string]int{
		FundCreatedAlertName:              FundAlertPriority,
		PaymentSnapshotName:               PaymentSnapshotPriority,
		ForwarderName(events.FundCreated): ForwarderPriority,
		ForwarderName(events.LoanCreated): ForwarderPriority,
	}, names)

	d, err := events.NewDraft(events.AggregateFund, "f-1", events.FundCreatedPayload{
		Name: "Growth", TotalCapacity: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	evt, err := bus.Publish(ctx, d)
	require.NoError(t, err)

	require.Len(t, w.msgs, 1)
	entries, err := bus.ExecutionLog(ctx, evt.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, model.ExecSuccess, e.Status)
	}
}

func TestBootstrap_WithoutOptionalDeps(t *testing.T) {
	db := testutil.OpenDB(t)
	log := zap.NewNop().Sugar()
	bus := eventbus.New(repo.NewRepository(db, log), log)

	require.NoError(t, Bootstrap(context.Background(), bus, Deps{Log: log}, Options{
		ForwardEventTypes: []string{events.FundCreated},
	}))
	hs, err := bus.Handlers(context.Background())
	require.NoError(t, err)
	require.Len(t, hs, 1)
	assert.Equal(t, FundCreatedAlertName, hs[0].HandlerName)
}

func TestBootstrap_KeepsOperatorDisable(t *testing.T) {
	db := testutil.OpenDB(t)
	log := zap.NewNop().Sugar()
	ctx := context.Background()

	first := eventbus.New(repo.NewRepository(db, log), log)
	require.NoError(t, Bootstrap(ctx, first, Deps{Log: log}, Options{}))
	require.NoError(t, first.SetEnabled(ctx, FundCreatedAlertName, false))

	// another process starting on the same store
	second := eventbus.New(repo.NewRepository(db, log), log)
	require.NoError(t, second.InitializeSequenceCounters(ctx))
	require.NoError(t, Bootstrap(ctx, second, Deps{Log: log}, Options{}))

	hs, err := second.Handlers(ctx)
	require.NoError(t, err)
	require.Len(t, hs, 1)
	assert.False(t, hs[0].IsEnabled)

	d, err := events.NewDraft(events.AggregateFund, "f-2", events.FundCreatedPayload{Name: "Quiet"})
	require.NoError(t, err)
	evt, err := second.Publish(ctx, d)
	require.NoError(t, err)
	entries, err := second.ExecutionLog(ctx, evt.ID)
	require.NoError(t, err)
	assert.Empty(t, entries, "disabled handler must not run")
}
