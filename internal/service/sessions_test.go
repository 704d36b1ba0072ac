package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/stage-ticketing/internal/model"
)

func TestCreateSessionValidation(t *testing.T) {
	f := newFixture(t, exchangePolicy, nil)
	ctx := context.Background()
	base := SessionInput{
		Title:       "Late Show",
		StartsAt:    f.now.Add(time.Hour),
		SaleStartAt: f.now,
		SaleEndAt:   f.now.Add(30 * time.Minute),
		Tiers:       general(10),
	}

	s, err := f.sessions.CreateSession(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, model.SaleNotOnSale, s.SaleStatus)

	bad := base
	bad.Title = " "
	_, err = f.sessions.CreateSession(ctx, bad)
	assert.ErrorIs(t, err, ErrValidation)

	bad = base
	bad.SaleEndAt = base.SaleStartAt.Add(-time.Minute)
	_, err = f.sessions.CreateSession(ctx, bad)
	assert.ErrorIs(t, err, ErrValidation)

	bad = base
	bad.Tiers = map[model.Tier]TierInput{"balcony": {Capacity: 1}}
	_, err = f.sessions.CreateSession(ctx, bad)
	assert.ErrorIs(t, err, ErrValidation)

	bad = base
	bad.SaleStatus = "MAYBE"
	_, err = f.sessions.CreateSession(ctx, bad)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGetSessionAvailability(t *testing.T) {
	f := newFixture(t, exchangePolicy, nil)
	ctx := context.Background()
	id := f.onSale(t, map[model.Tier]TierInput{
		model.TierGeneral: {Capacity: 10, PriceCents: 4000},
		model.TierVIP1:    {Capacity: 0, PriceCents: 9000},
		model.TierVIP2:    {Capacity: 2, PriceCents: 15000},
	})
	f.order(t, id, model.TierQuantities{model.TierGeneral: 3})

	v, err := f.sessions.GetSession(ctx, id)
	require.NoError(t, err)
	assert.True(t, v.SaleOpen)
	require.Len(t, v.Tiers, 2)
	assert.Equal(t, TierAvailability{Tier: model.TierGeneral, Capacity: 10, Sold: 3, Available: 7, PriceCents: 4000}, v.Tiers[0])
	assert.Equal(t, model.TierVIP2, v.Tiers[1].Tier)

	_, err = f.sessions.GetSession(ctx, 12345)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateSessionCapacityGuard(t *testing.T) {
	f := newFixture(t, exchangePolicy, nil)
	ctx := context.Background()
	id := f.onSale(t, general(3))
	f.order(t, id, model.TierQuantities{model.TierGeneral: 3})

	s, err := f.store.GetSession(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.SaleSoldOut, s.SaleStatus)

	_, err = f.sessions.UpdateSession(ctx, id, SessionPatch{Tiers: map[model.Tier]TierInput{model.TierGeneral: {Capacity: 2, PriceCents: 4000}}})
	assert.ErrorIs(t, err, ErrValidation)

	title := "Encore"
	s, err = f.sessions.UpdateSession(ctx, id, SessionPatch{
		Title: &title,
		Tiers: map[model.Tier]TierInput{model.TierGeneral: {Capacity: 5, PriceCents: 4000}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Encore", s.Title)
	assert.Equal(t, 5, s.Tier(model.TierGeneral).Capacity)
	assert.Equal(t, 3, s.Tier(model.TierGeneral).Sold)
	assert.Equal(t, model.SaleOnSale, s.SaleStatus)

	_, err = f.sessions.UpdateSession(ctx, 999, SessionPatch{Title: &title})
	assert.ErrorIs(t, err, ErrNotFound)
}
