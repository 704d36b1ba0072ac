package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/stage-ticketing/internal/model"
	"github.com/iliyamo/stage-ticketing/internal/repository"
	"github.com/iliyamo/stage-ticketing/internal/service"
)

type fakeExpirer struct {
	mu     sync.Mutex
	calls  int
	limits []int
	result []int
	err    error
}

func (f *fakeExpirer) ExpireStale(_ context.Context, _ time.Time, limit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, limit)
	n := 0
	if f.calls < len(f.result) {
		n = f.result[f.calls]
	}
	f.calls++
	return n, f.err
}

func (f *fakeExpirer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestExpiryWorkerScansUntilStopped(t *testing.T) {
	f := &fakeExpirer{result: []int{3, 0, 2}}
	w := NewExpiryWorker(f, ExpiryConfig{ScanInterval: 5 * time.Millisecond, BatchSize: 7}, nil)

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))
	assert.Eventually(t, func() bool { return f.Calls() >= 3 }, time.Second, time.Millisecond)
	w.Stop()
	w.Stop()

	st := w.Stats()
	assert.False(t, st.IsRunning)
	assert.GreaterOrEqual(t, st.Scans, int64(3))
	assert.Equal(t, int64(5), st.TotalExpired)
	assert.Equal(t, 7, f.limits[0])

	calls := f.Calls()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, f.Calls())
}

func TestExpiryWorkerCountsFailures(t *testing.T) {
	f := &fakeExpirer{err: errors.New("db gone")}
	w := NewExpiryWorker(f, ExpiryConfig{}, nil)
	w.scan(context.Background())
	w.scan(context.Background())

	st := w.Stats()
	assert.Equal(t, int64(2), st.Failures)
	assert.Zero(t, st.TotalExpired)
	assert.Equal(t, DefaultExpiryConfig().BatchSize, f.limits[0])
}

func TestExpiryWorkerReleasesAbandonedOrder(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	ledger := service.NewLedger(store, nil)
	registry := service.NewExchangeRegistry(store, nil)
	orders := service.NewOrderService(store, ledger, registry, service.OrderConfig{HoldDuration: time.Minute}, nil, nil)
	sessions := service.NewSessionService(store, ledger, nil)

	now := time.Now().UTC()
	s, err := sessions.CreateSession(ctx, service.SessionInput{
		Title:       "Late Show",
		StartsAt:    now.Add(24 * time.Hour),
		SaleStartAt: now.Add(-time.Hour),
		SaleEndAt:   now.Add(time.Hour),
		SaleStatus:  model.SaleOnSale,
		Tiers:       map[model.Tier]service.TierInput{model.TierGeneral: {Capacity: 1, PriceCents: 2500}},
	})
	require.NoError(t, err)
	o, err := orders.CreateOrder(ctx, service.CreateOrderInput{
		SessionID:  s.ID,
		Quantities: model.TierQuantities{model.TierGeneral: 1},
		Customer:   model.Customer{Name: "Bo", Email: "bo@example.com"},
	})
	require.NoError(t, err)

	w := NewExpiryWorker(orders, ExpiryConfig{BatchSize: 10}, nil)
	w.now = func() time.Time { return now.Add(2 * time.Minute) }
	w.scan(ctx)

	assert.Equal(t, int64(1), w.Stats().TotalExpired)
	got, _, err := orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderExpired, got.Status)
	v, err := sessions.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Tiers[0].Available)
}
