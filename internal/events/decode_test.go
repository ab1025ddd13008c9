package events

import (
	"context"
	"testing"

	"github.com/richardliu001/lending-eventbus/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDraft(t *testing.T) {
	d, err := NewDraft(AggregateFund, "fund-1", FundCreatedPayload{
		Name:          "Growth Fund",
		TotalCapacity: decimal.NewFromInt(5000000),
	}, WithActor("u-1", "org-1"), WithSource("funds-api"), WithCorrelation("req-9"))
	require.NoError(t, err)

	assert.Equal(t, FundCreated, d.EventType)
	assert.Equal(t, model.DefaultEventVersion, d.EventVersion)
	assert.Equal(t, "fund-1", d.AggregateID)
	assert.Equal(t, AggregateFund, d.AggregateType)
	assert.JSONEq(t, `{"name":"Growth Fund","totalCapacity":"5000000"}`, string(d.Payload))
	assert.Equal(t, "u-1", d.Metadata[model.MetaUserID])
	assert.Equal(t, "org-1", d.Metadata[model.MetaOrganizationID])
	assert.Equal(t, "funds-api", d.Metadata[model.MetaSource])
	assert.Equal(t, "req-9", d.CorrelationID)
	assert.Empty(t, d.CausationID)
}

func TestCausedBy(t *testing.T) {
	corr := "req-1"
	parent := &model.DomainEvent{ID: "evt-1", CorrelationID: &corr}

	d, err := NewDraft(AggregateCommitment, "c-1", CommitmentFundedPayload{
		CommitmentID: "c-1", FundedAmount: decimal.NewFromInt(10),
	}, CausedBy(parent), WithVersion("2.0"))
	require.NoError(t, err)
	assert.Equal(t, "evt-1", d.CausationID)
	assert.Equal(t, "req-1", d.CorrelationID)
	assert.Equal(t, "2.0", d.EventVersion)
}

func TestDecode(t *testing.T) {
	evt := &model.DomainEvent{
		ID:        "e-1",
		EventType: PaymentProcessed,
		Payload:   []byte(`{"paymentId":"p-1","loanId":"l-1","amount":"125.50"}`),
	}
	p, err := Decode[PaymentProcessedPayload](evt)
	require.NoError(t, err)
	assert.Equal(t, "p-1", p.PaymentID)
	assert.True(t, p.Amount.Equal(decimal.RequireFromString("125.5")))

	evt.Payload = []byte(`[1,2]`)
	_, err = Decode[PaymentProcessedPayload](evt)
	assert.Error(t, err)
}

func TestTyped(t *testing.T) {
	var got LoanStatusChangedPayload
	h := Typed(func(_ context.Context, _ *model.DomainEvent, p LoanStatusChangedPayload) error {
		got = p
		return nil
	})

	err := h(context.Background(), &model.DomainEvent{
		EventType: LoanStatusChanged,
		Payload:   []byte(`{"loanId":"l-1","from":"pending","to":"active"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "active", got.To)

	err = h(context.Background(), &model.DomainEvent{EventType: LoanCreated, Payload: []byte(`{}`)})
	assert.ErrorIs(t, err, ErrUnexpectedEventType)
}
