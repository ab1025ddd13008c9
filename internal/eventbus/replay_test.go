package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/richardliu001/lending-eventbus/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplay_RedispatchesHistoryInOrder(t *testing.T) {
	bus, r, db := newTestBus(t)
	ctx := context.Background()

	var ids []string
	for _, typ := range []string{"Loan.Created", "Loan.StatusChanged", "Loan.StatusChanged"} {
		evt, err := bus.Publish(ctx, draft(typ, "Loan", "loan-1"))
		require.NoError(t, err)
		ids = append(ids, evt.ID)
	}

	// handlers added after the fact see the full history on replay
	var seen []int64
	record := func(_ context.Context, evt *model.DomainEvent) error {
		seen = append(seen, evt.SequenceNumber)
		return nil
	}
	require.NoError(t, bus.Subscribe(ctx, Registration{HandlerName: "created", EventType: "Loan.Created", Handler: record}))
	require.NoError(t, bus.Subscribe(ctx, Registration{HandlerName: "changed", EventType: "Loan.StatusChanged", Handler: record}))
	require.NoError(t, bus.Subscribe(ctx, Registration{
		HandlerName: "off", EventType: "Loan.StatusChanged", Disabled: true, Handler: record,
	}))

	n, err := bus.Replay(ctx, "loan-1", "Loan")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []int64{1, 2, 3}, seen)

	var count int64
	require.NoError(t, db.Model(&model.DomainEvent{}).Count(&count).Error)
	assert.Equal(t, int64(3), count, "replay must not store events")

	hist, err := bus.GetEventHistory(ctx, "loan-1", "Loan")
	require.NoError(t, err)
	for i, evt := range hist {
		assert.Equal(t, ids[i], evt.ID)
		assert.Equal(t, int64(i+1), evt.SequenceNumber)
	}

	created := handlerRow(t, r, "created")
	assert.Equal(t, int64(1), created.SuccessCount)
	assert.Equal(t, int64(2), handlerRow(t, r, "changed").SuccessCount)
	assert.Zero(t, handlerRow(t, r, "off").SuccessCount)

	// a second replay runs everything again
	_, err = bus.Replay(ctx, "loan-1", "Loan")
	require.NoError(t, err)
	assert.Len(t, seen, 6)

	evt, err := bus.Publish(ctx, draft("Loan.StatusChanged", "Loan", "loan-1"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), evt.SequenceNumber)
}

func TestReplay_UnknownAggregate(t *testing.T) {
	bus, _, _ := newTestBus(t)
	n, err := bus.Replay(context.Background(), "nobody", "Loan")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweepStale_MarksOldPendingFailed(t *testing.T) {
	bus, r, db := newTestBus(t)
	ctx := context.Background()

	old := model.DomainEvent{
		EventType: "Payment.Processed", EventVersion: "1.0",
		AggregateType: "Payment", AggregateID: "p-1", SequenceNumber: 1,
		Payload: []byte(`{}`),
	}
	require.NoError(t, r.InsertEvent(ctx, &old))
	require.NoError(t, db.Model(&model.DomainEvent{}).Where("id = ?", old.ID).
		Update("occurred_at", time.Now().UTC().Add(-time.Hour)).Error)

	fresh := model.DomainEvent{
		EventType: "Payment.Processed", EventVersion: "1.0",
		AggregateType: "Payment", AggregateID: "p-1", SequenceNumber: 2,
		Payload: []byte(`{}`),
	}
	require.NoError(t, r.InsertEvent(ctx, &fresh))

	n, err := bus.SweepStale(ctx, 10*time.Minute, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := r.GetEvent(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.ProcessingStatus)
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "still pending")

	got, err = r.GetEvent(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.ProcessingStatus)
}
