package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/stage-ticketing/internal/model"
	"github.com/iliyamo/stage-ticketing/internal/repository"
)

// lockTrace records the row-locking calls made inside transactions.
type lockTrace struct {
	mu    sync.Mutex
	calls []string
}

func (l *lockTrace) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *lockTrace) take() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.calls
	l.calls = nil
	return out
}

type tracingStore struct {
	*repository.MemoryStore
	trace *lockTrace
}

func (s tracingStore) WithTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	return s.MemoryStore.WithTx(ctx, func(tx repository.Tx) error {
		return fn(tracingTx{Tx: tx, trace: s.trace})
	})
}

type tracingTx struct {
	repository.Tx
	trace *lockTrace
}

func (t tracingTx) LockSession(ctx context.Context, id uint64) (*model.Session, error) {
	t.trace.add("session")
	return t.Tx.LockSession(ctx, id)
}

func (t tracingTx) LockOrder(ctx context.Context, id uint64) (*model.Order, error) {
	t.trace.add("order")
	return t.Tx.LockOrder(ctx, id)
}

func (t tracingTx) AddSold(ctx context.Context, sessionID uint64, tier model.Tier, n int) (bool, error) {
	t.trace.add("tiers")
	return t.Tx.AddSold(ctx, sessionID, tier, n)
}

func (t tracingTx) SubtractSold(ctx context.Context, sessionID uint64, tier model.Tier, n int) (bool, error) {
	t.trace.add("tiers")
	return t.Tx.SubtractSold(ctx, sessionID, tier, n)
}

func (t tracingTx) SetTier(ctx context.Context, sessionID uint64, tier model.Tier, capacity int, priceCents int64) (bool, error) {
	t.trace.add("tiers")
	return t.Tx.SetTier(ctx, sessionID, tier, capacity, priceCents)
}

// assertSessionLockedFirst checks that the session row is locked before
// any tier row is written.
func assertSessionLockedFirst(t *testing.T, calls []string) {
	t.Helper()
	session, tiers := -1, -1
	for i, c := range calls {
		if c == "session" && session < 0 {
			session = i
		}
		if c == "tiers" && tiers < 0 {
			tiers = i
		}
	}
	require.GreaterOrEqual(t, tiers, 0, "no tier write in %v", calls)
	require.GreaterOrEqual(t, session, 0, "session never locked in %v", calls)
	assert.Less(t, session, tiers, "lock order %v", calls)
}

func TestWritersLockSessionBeforeTiers(t *testing.T) {
	ctx := context.Background()
	trace := &lockTrace{}
	store := tracingStore{MemoryStore: repository.NewMemoryStore(), trace: trace}
	ledger := NewLedger(store, nil)
	registry := NewExchangeRegistry(store, nil)
	orders := NewOrderService(store, ledger, registry, OrderConfig{}, nil, nil)
	sessions := NewSessionService(store, ledger, nil)

	now := time.Now().UTC()
	s, err := sessions.CreateSession(ctx, SessionInput{
		Title:       "Evening",
		StartsAt:    now.Add(24 * time.Hour),
		SaleStartAt: now.Add(-time.Hour),
		SaleEndAt:   now.Add(time.Hour),
		SaleStatus:  model.SaleOnSale,
		Tiers:       general(2),
	})
	require.NoError(t, err)
	trace.take()

	o, err := orders.CreateOrder(ctx, CreateOrderInput{
		SessionID:  s.ID,
		Quantities: model.TierQuantities{model.TierGeneral: 2},
		Customer:   model.Customer{Email: "lock@example.com"},
	})
	require.NoError(t, err)
	assertSessionLockedFirst(t, trace.take())

	_, err = orders.Cancel(ctx, o.ID)
	require.NoError(t, err)
	calls := trace.take()
	assert.Equal(t, "order", calls[0])
	assertSessionLockedFirst(t, calls)

	_, err = ledger.Reserve(ctx, s.ID, model.TierQuantities{model.TierGeneral: 1})
	require.NoError(t, err)
	assertSessionLockedFirst(t, trace.take())

	require.NoError(t, ledger.Release(ctx, s.ID, model.TierQuantities{model.TierGeneral: 1}))
	assertSessionLockedFirst(t, trace.take())

	_, err = sessions.UpdateSession(ctx, s.ID, SessionPatch{Tiers: general(4)})
	require.NoError(t, err)
	assertSessionLockedFirst(t, trace.take())
}
