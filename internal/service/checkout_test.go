package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/stage-ticketing/internal/model"
	"github.com/iliyamo/stage-ticketing/internal/pricing"
	"github.com/iliyamo/stage-ticketing/internal/queue"
	"github.com/iliyamo/stage-ticketing/internal/repository"
)

var freeWithCodePolicy = pricing.Policy{Basis: pricing.BasisExchange, EveryN: 1, DiscountedPerGroup: 1, AmountCents: 4000}

func TestCheckoutSettlesFreeOrder(t *testing.T) {
	pub := new(mockPublisher)
	pub.On("PublishOrderPaid", mock.Anything, mock.MatchedBy(func(ev queue.OrderPaidEvent) bool {
		return ev.TotalCents == 0 && len(ev.Tickets) == 1 && ev.Tickets[0].IsExchanged
	})).Return(nil).Once()
	f := newFixture(t, freeWithCodePolicy, pub)
	ctx := context.Background()
	id := f.onSale(t, general(5))
	f.seedCodes(t, "FREE234567")

	o, tickets, err := f.orders.Checkout(ctx, CreateOrderInput{
		SessionID:     id,
		Quantities:    model.TierQuantities{model.TierGeneral: 1},
		Customer:      model.Customer{Email: "free@example.com"},
		ExchangeCodes: []string{"free234567"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.OrderPaid, o.Status)
	assert.Equal(t, int64(0), o.TotalCents)
	require.NotNil(t, o.PaidAt)
	require.Len(t, tickets, 1)
	assert.True(t, tickets[0].IsExchanged)
	assert.NotEmpty(t, o.PublicRef)

	got, gotTickets, err := f.orders.GetOrderByRef(ctx, o.PublicRef)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
	assert.Equal(t, model.OrderPaid, got.Status)
	require.Len(t, gotTickets, 1)
	assert.Equal(t, tickets[0].Code, gotTickets[0].Code)

	paying, tickets, err := f.orders.Checkout(ctx, CreateOrderInput{
		SessionID:  id,
		Quantities: model.TierQuantities{model.TierGeneral: 1},
		Customer:   model.Customer{Email: "pay@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.OrderPending, paying.Status)
	assert.Empty(t, tickets)
	assert.NotEqual(t, o.PublicRef, paying.PublicRef)

	pub.AssertExpectations(t)
}

func TestGetOrderByRefUnknown(t *testing.T) {
	f := newFixture(t, exchangePolicy, nil)
	for _, ref := range []string{"", "1", "00000000-0000-0000-0000-000000000000"} {
		_, _, err := f.orders.GetOrderByRef(context.Background(), ref)
		assert.ErrorIs(t, err, ErrNotFound, ref)
	}
}

// brokenTicketsStore fails every ticket insert.
type brokenTicketsStore struct {
	*repository.MemoryStore
}

func (s brokenTicketsStore) WithTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	return s.MemoryStore.WithTx(ctx, func(tx repository.Tx) error {
		return fn(brokenTicketsTx{Tx: tx})
	})
}

type brokenTicketsTx struct {
	repository.Tx
}

var errDiskFull = errors.New("disk full")

func (brokenTicketsTx) InsertTickets(context.Context, []model.Ticket) error { return errDiskFull }

func TestCheckoutFreeOrderLeavesNothingBehindOnFailure(t *testing.T) {
	f := newFixture(t, freeWithCodePolicy, nil)
	ctx := context.Background()
	id := f.onSale(t, general(5))
	f.seedCodes(t, "LOST234567")

	broken := brokenTicketsStore{MemoryStore: f.store}
	ledger := NewLedger(broken, nil)
	registry := NewExchangeRegistry(broken, nil)
	orders := NewOrderService(broken, ledger, registry, OrderConfig{Policy: freeWithCodePolicy}, nil, nil)
	orders.now = func() time.Time { return f.now }

	o, tickets, err := orders.Checkout(ctx, CreateOrderInput{
		SessionID:     id,
		Quantities:    model.TierQuantities{model.TierGeneral: 1},
		Customer:      model.Customer{Email: "lost@example.com"},
		ExchangeCodes: []string{"LOST234567"},
	})
	require.ErrorIs(t, err, errDiskFull)
	assert.Nil(t, o)
	assert.Nil(t, tickets)

	assert.Equal(t, 0, f.sold(t, id, model.TierGeneral))
	res, err := f.registry.ValidateBatch(ctx, []string{"LOST234567"})
	require.NoError(t, err)
	assert.True(t, res[0].Valid)
	stale, err := f.store.ListStalePending(ctx, f.now.Add(24*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, stale)
}
