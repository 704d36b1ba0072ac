package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/stage-ticketing/internal/model"
	"github.com/iliyamo/stage-ticketing/internal/repository"
)

func paidTicket(t *testing.T, f *fixture) model.Ticket {
	t.Helper()
	id := f.onSale(t, general(10))
	o := f.order(t, id, model.TierQuantities{model.TierGeneral: 1})
	_, tickets, err := f.orders.ConfirmPayment(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	return tickets[0]
}

func TestCheckInOnce(t *testing.T) {
	f := newFixture(t, exchangePolicy, nil)
	ctx := context.Background()
	tk := paidTicket(t, f)

	v, err := f.checkin.Verify(ctx, tk.Code)
	require.NoError(t, err)
	assert.False(t, v.Ticket.IsUsed)

	res, err := f.checkin.CheckIn(ctx, " "+tk.Code+" ")
	require.NoError(t, err)
	assert.True(t, res.Ticket.IsUsed)
	require.NotNil(t, res.Ticket.UsedAt)
	assert.Equal(t, f.now, *res.Ticket.UsedAt)

	_, err = f.checkin.CheckIn(ctx, tk.Code)
	var used *AlreadyUsedError
	require.True(t, errors.As(err, &used))
	require.NotNil(t, used.UsedAt)
	assert.Equal(t, f.now, *used.UsedAt)

	_, err = f.checkin.Verify(ctx, tk.Code)
	assert.ErrorIs(t, err, ErrAlreadyUsed)
}

func TestVerifyDoesNotMutate(t *testing.T) {
	f := newFixture(t, exchangePolicy, nil)
	ctx := context.Background()
	tk := paidTicket(t, f)

	for i := 0; i < 3; i++ {
		_, err := f.checkin.Verify(ctx, tk.Code)
		require.NoError(t, err)
	}
	_, err := f.checkin.CheckIn(ctx, tk.Code)
	assert.NoError(t, err)
}

func TestCheckInRejections(t *testing.T) {
	f := newFixture(t, exchangePolicy, nil)
	ctx := context.Background()
	id := f.onSale(t, general(10))
	o := f.order(t, id, model.TierQuantities{model.TierGeneral: 1})

	// a ticket whose order never got paid
	require.NoError(t, f.store.WithTx(ctx, func(tx repository.Tx) error {
		return tx.InsertTickets(ctx, []model.Ticket{{OrderID: o.ID, Tier: model.TierGeneral, Code: "orphan"}})
	}))

	_, err := f.checkin.CheckIn(ctx, "orphan")
	assert.ErrorIs(t, err, ErrInvalidOrder)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.checkin.CheckIn(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.checkin.CheckIn(ctx, "   ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestConcurrentCheckIn(t *testing.T) {
	f := newFixture(t, exchangePolicy, nil)
	tk := paidTicket(t, f)

	const scanners = 16
	errs := make([]error, scanners)
	var wg sync.WaitGroup
	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.checkin.CheckIn(context.Background(), tk.Code)
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, err := range errs {
		if err == nil {
			admitted++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyUsed)
	}
	assert.Equal(t, 1, admitted)
}
