package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/stage-ticketing/internal/model"
	"github.com/iliyamo/stage-ticketing/internal/pricing"
	"github.com/iliyamo/stage-ticketing/internal/queue"
	"github.com/iliyamo/stage-ticketing/internal/repository"
)

var exchangePolicy = pricing.Policy{Basis: pricing.BasisExchange, EveryN: 1, DiscountedPerGroup: 1, AmountCents: 500}

type fixture struct {
	store    *repository.MemoryStore
	ledger   *Ledger
	registry *ExchangeRegistry
	orders   *OrderService
	checkin  *CheckInService
	sessions *SessionService
	now      time.Time
}

func newFixture(t *testing.T, policy pricing.Policy, events EventPublisher) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	f := &fixture{store: store, now: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }

	f.ledger = NewLedger(store, nil)
	f.ledger.now = clock
	f.registry = NewExchangeRegistry(store, nil)
	f.registry.now = clock
	f.orders = NewOrderService(store, f.ledger, f.registry, OrderConfig{HoldDuration: 15 * time.Minute, Policy: policy}, events, nil)
	f.orders.now = clock
	f.checkin = NewCheckInService(store, nil)
	f.checkin.now = clock
	f.sessions = NewSessionService(store, f.ledger, nil)
	f.sessions.now = clock
	return f
}

// onSale creates an ON_SALE session whose sale window contains f.now.
func (f *fixture) onSale(t *testing.T, tiers map[model.Tier]TierInput) uint64 {
	t.Helper()
	s, err := f.sessions.CreateSession(context.Background(), SessionInput{
		Title:       "Spring Gala",
		Venue:       "Main Hall",
		StartsAt:    f.now.Add(72 * time.Hour),
		SaleStartAt: f.now.Add(-time.Hour),
		SaleEndAt:   f.now.Add(48 * time.Hour),
		SaleStatus:  model.SaleOnSale,
		Tiers:       tiers,
	})
	require.NoError(t, err)
	return s.ID
}

func (f *fixture) seedCodes(t *testing.T, codes ...string) {
	t.Helper()
	batch := make([]model.ExchangeCode, len(codes))
	for i, c := range codes {
		batch[i] = model.ExchangeCode{Code: c, CreatedAt: f.now}
	}
	require.NoError(t, f.store.WithTx(context.Background(), func(tx repository.Tx) error {
		return tx.InsertExchangeCodes(context.Background(), batch)
	}))
}

func (f *fixture) sold(t *testing.T, sessionID uint64, tier model.Tier) int {
	t.Helper()
	s, err := f.store.GetSession(context.Background(), sessionID)
	require.NoError(t, err)
	return s.Tier(tier).Sold
}

func (f *fixture) order(t *testing.T, sessionID uint64, qty model.TierQuantities, codes ...string) *model.Order {
	t.Helper()
	o, err := f.orders.CreateOrder(context.Background(), CreateOrderInput{
		SessionID:     sessionID,
		Quantities:    qty,
		Customer:      model.Customer{Name: "Sam", Email: "sam@example.com"},
		ExchangeCodes: codes,
	})
	require.NoError(t, err)
	return o
}

func general(n int) map[model.Tier]TierInput {
	return map[model.Tier]TierInput{model.TierGeneral: {Capacity: n, PriceCents: 4000}}
}

// mockPublisher records published events.
type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishOrderPaid(ctx context.Context, ev queue.OrderPaidEvent) error {
	return m.Called(ctx, ev).Error(0)
}

func (m *mockPublisher) PublishOrderReleased(ctx context.Context, ev queue.OrderReleasedEvent) error {
	return m.Called(ctx, ev).Error(0)
}
