package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/stage-ticketing/internal/model"
)

func TestReserveIsAllOrNothing(t *testing.T) {
	f := newFixture(t, exchangePolicy, nil)
	id := f.onSale(t, map[model.Tier]TierInput{
		model.TierGeneral: {Capacity: 10, PriceCents: 4000},
		model.TierVIP1:    {Capacity: 2, PriceCents: 9000},
	})

	_, err := f.ledger.Reserve(context.Background(), id, model.TierQuantities{model.TierGeneral: 3, model.TierVIP1: 3})
	require.ErrorIs(t, err, ErrSoldOut)
	var so *SoldOutError
	require.True(t, errors.As(err, &so))
	assert.Equal(t, model.TierVIP1, so.Tier)
	assert.Equal(t, 3, so.Requested)
	assert.Equal(t, 2, so.Available)

	assert.Equal(t, 0, f.sold(t, id, model.TierGeneral))
	assert.Equal(t, 0, f.sold(t, id, model.TierVIP1))
}

func TestReserveNamesFirstInsufficientTier(t *testing.T) {
	f := newFixture(t, exchangePolicy, nil)
	id := f.onSale(t, map[model.Tier]TierInput{
		model.TierGeneral:  {Capacity: 1, PriceCents: 4000},
		model.TierReserved: {Capacity: 1, PriceCents: 6000},
	})
	_, err := f.ledger.Reserve(context.Background(), id, model.TierQuantities{model.TierReserved: 2, model.TierGeneral: 2})
	var so *SoldOutError
	require.True(t, errors.As(err, &so))
	assert.Equal(t, model.TierGeneral, so.Tier)
}

func TestReserveReleaseRoundTrip(t *testing.T) {
	f := newFixture(t, exchangePolicy, nil)
	ctx := context.Background()
	id := f.onSale(t, general(10))

	tok, err := f.ledger.Reserve(ctx, id, model.TierQuantities{model.TierGeneral: 4, model.TierVIP2: 0})
	require.NoError(t, err)
	assert.Equal(t, model.TierQuantities{model.TierGeneral: 4}, tok.Quantities)
	assert.Equal(t, 4, f.sold(t, id, model.TierGeneral))

	require.NoError(t, f.ledger.Release(ctx, id, tok.Quantities))
	assert.Equal(t, 0, f.sold(t, id, model.TierGeneral))
}

func TestReleaseUnderflow(t *testing.T) {
	f := newFixture(t, exchangePolicy, nil)
	ctx := context.Background()
	id := f.onSale(t, general(10))
	_, err := f.ledger.Reserve(ctx, id, model.TierQuantities{model.TierGeneral: 1})
	require.NoError(t, err)

	err = f.ledger.Release(ctx, id, model.TierQuantities{model.TierGeneral: 2})
	assert.ErrorIs(t, err, ErrLedgerUnderflow)
	assert.Equal(t, 1, f.sold(t, id, model.TierGeneral))
}

func TestReserveValidation(t *testing.T) {
	f := newFixture(t, exchangePolicy, nil)
	ctx := context.Background()
	id := f.onSale(t, general(10))

	_, err := f.ledger.Reserve(ctx, id, model.TierQuantities{})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.ledger.Reserve(ctx, id, model.TierQuantities{model.TierGeneral: -1})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.ledger.Reserve(ctx, id, model.TierQuantities{"balcony": 1})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.ledger.Reserve(ctx, 999, model.TierQuantities{model.TierGeneral: 1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentReserveNeverOversells(t *testing.T) {
	f := newFixture(t, exchangePolicy, nil)
	id := f.onSale(t, general(50))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, full int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Reserve(context.Background(), id, model.TierQuantities{model.TierGeneral: 1})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrSoldOut):
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, ok)
	assert.Equal(t, 150, full)
	assert.Equal(t, 50, f.sold(t, id, model.TierGeneral))

	s, err := f.store.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.SaleSoldOut, s.SaleStatus)
}

func TestReleaseReopensSoldOutSession(t *testing.T) {
	f := newFixture(t, exchangePolicy, nil)
	ctx := context.Background()
	id := f.onSale(t, general(2))

	_, err := f.ledger.Reserve(ctx, id, model.TierQuantities{model.TierGeneral: 2})
	require.NoError(t, err)
	s, _ := f.store.GetSession(ctx, id)
	require.Equal(t, model.SaleSoldOut, s.SaleStatus)

	require.NoError(t, f.ledger.Release(ctx, id, model.TierQuantities{model.TierGeneral: 1}))
	s, _ = f.store.GetSession(ctx, id)
	assert.Equal(t, model.SaleOnSale, s.SaleStatus)
}
