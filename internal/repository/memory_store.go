package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/stage-ticketing/internal/model"
)

// MemoryStore is an in-process Store for development and tests.  Writers
// are serialized by a single mutex; each transaction works on a private
// copy of the state which replaces the shared state only on commit, so a
// failed transaction leaves nothing behind.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
}

type memState struct {
	nextSessionID uint64
	nextOrderID   uint64
	nextTicketID  uint64
	nextCodeID    uint64

	sessions map[uint64]*model.Session
	orders   map[uint64]*model.Order
	tickets  map[uint64]*model.Ticket
	ticketBy map[string]uint64 // code -> ticket id
	codes    map[string]*model.ExchangeCode
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		sessions: map[uint64]*model.Session{},
		orders:   map[uint64]*model.Order{},
		tickets:  map[uint64]*model.Ticket{},
		ticketBy: map[string]uint64{},
		codes:    map[string]*model.ExchangeCode{},
	}}
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Tx    = (*memTx)(nil)
)

// WithTx runs fn against a snapshot and publishes it if fn succeeds.
func (m *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.state.clone()
	if err := fn(&memTx{s: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *MemoryStore) read() *memState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// The committed state is never mutated in place, so readers can use a
// snapshot pointer without holding the lock.

func (m *MemoryStore) GetSession(ctx context.Context, id uint64) (*model.Session, error) {
	return m.read().getSession(id)
}

func (m *MemoryStore) GetOrder(ctx context.Context, id uint64) (*model.Order, error) {
	return m.read().getOrder(id)
}

func (m *MemoryStore) GetOrderByRef(ctx context.Context, ref string) (*model.Order, error) {
	return m.read().getOrderByRef(ref)
}

func (m *MemoryStore) ListTicketsByOrder(ctx context.Context, orderID uint64) ([]model.Ticket, error) {
	return m.read().listTickets(orderID), nil
}

func (m *MemoryStore) GetTicketByCode(ctx context.Context, code string) (*model.Ticket, error) {
	return m.read().getTicketByCode(code)
}

func (m *MemoryStore) FindExchangeCodes(ctx context.Context, codes []string) (map[string]model.ExchangeCode, error) {
	return m.read().findCodes(codes), nil
}

func (m *MemoryStore) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error) {
	s := m.read()
	var stale []*model.Order
	for _, o := range s.orders {
		if o.Status == model.OrderPending && o.CreatedAt.Before(cutoff) {
			stale = append(stale, o)
		}
	}
	sort.Slice(stale, func(i, j int) bool {
		if !stale[i].CreatedAt.Equal(stale[j].CreatedAt) {
			return stale[i].CreatedAt.Before(stale[j].CreatedAt)
		}
		return stale[i].ID < stale[j].ID
	})
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	ids := make([]uint64, len(stale))
	for i, o := range stale {
		ids[i] = o.ID
	}
	return ids, nil
}

// memTx mutates its private snapshot directly.
type memTx struct {
	s *memState
}

func (t *memTx) GetSession(ctx context.Context, id uint64) (*model.Session, error) {
	return t.s.getSession(id)
}

func (t *memTx) LockSession(ctx context.Context, id uint64) (*model.Session, error) {
	return t.s.getSession(id)
}

func (t *memTx) GetOrder(ctx context.Context, id uint64) (*model.Order, error) {
	return t.s.getOrder(id)
}

func (t *memTx) LockOrder(ctx context.Context, id uint64) (*model.Order, error) {
	return t.s.getOrder(id)
}

func (t *memTx) GetOrderByRef(ctx context.Context, ref string) (*model.Order, error) {
	return t.s.getOrderByRef(ref)
}

func (t *memTx) ListTicketsByOrder(ctx context.Context, orderID uint64) ([]model.Ticket, error) {
	return t.s.listTickets(orderID), nil
}

func (t *memTx) GetTicketByCode(ctx context.Context, code string) (*model.Ticket, error) {
	return t.s.getTicketByCode(code)
}

func (t *memTx) FindExchangeCodes(ctx context.Context, codes []string) (map[string]model.ExchangeCode, error) {
	return t.s.findCodes(codes), nil
}

func (t *memTx) AddSold(ctx context.Context, sessionID uint64, tier model.Tier, n int) (bool, error) {
	s, ok := t.s.sessions[sessionID]
	if !ok {
		return false, nil
	}
	st, ok := s.Tiers[tier]
	if !ok || n < 0 || n > st.Capacity-st.Sold {
		return false, nil
	}
	st.Sold += n
	s.Tiers[tier] = st
	return true, nil
}

func (t *memTx) SubtractSold(ctx context.Context, sessionID uint64, tier model.Tier, n int) (bool, error) {
	s, ok := t.s.sessions[sessionID]
	if !ok {
		return false, nil
	}
	st, ok := s.Tiers[tier]
	if !ok || n < 0 || st.Sold < n {
		return false, nil
	}
	st.Sold -= n
	s.Tiers[tier] = st
	return true, nil
}

func (t *memTx) SetSaleStatus(ctx context.Context, sessionID uint64, from, to model.SaleStatus) (bool, error) {
	s, ok := t.s.sessions[sessionID]
	if !ok || s.SaleStatus != from {
		return false, nil
	}
	s.SaleStatus = to
	s.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (t *memTx) InsertSession(ctx context.Context, s *model.Session) error {
	t.s.nextSessionID++
	s.ID = t.s.nextSessionID
	for tier, st := range s.Tiers {
		st.Sold = 0
		s.Tiers[tier] = st
	}
	t.s.sessions[s.ID] = cloneSession(s)
	return nil
}

func (t *memTx) UpdateSessionInfo(ctx context.Context, s *model.Session) error {
	cur, ok := t.s.sessions[s.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Title = s.Title
	cur.Venue = s.Venue
	cur.StartsAt = s.StartsAt
	cur.SaleStartAt = s.SaleStartAt
	cur.SaleEndAt = s.SaleEndAt
	cur.SaleStatus = s.SaleStatus
	cur.UpdatedAt = s.UpdatedAt
	return nil
}

func (t *memTx) SetTier(ctx context.Context, sessionID uint64, tier model.Tier, capacity int, priceCents int64) (bool, error) {
	s, ok := t.s.sessions[sessionID]
	if !ok {
		return false, ErrNotFound
	}
	st := s.Tiers[tier]
	if capacity < st.Sold {
		return false, nil
	}
	st.Capacity = capacity
	st.PriceCents = priceCents
	s.Tiers[tier] = st
	return true, nil
}

func (t *memTx) InsertOrder(ctx context.Context, o *model.Order) error {
	if o.PublicRef != "" {
		if _, err := t.s.getOrderByRef(o.PublicRef); err == nil {
			return ErrConflict
		}
	}
	t.s.nextOrderID++
	o.ID = t.s.nextOrderID
	c := cloneOrder(o)
	c.ExchangeCodes = nil
	t.s.orders[o.ID] = c
	return nil
}

func (t *memTx) SetOrderStatus(ctx context.Context, id uint64, from, to model.OrderStatus, at time.Time) (bool, error) {
	o, ok := t.s.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	ts := at.UTC()
	switch to {
	case model.OrderPaid:
		o.PaidAt = &ts
	case model.OrderCancelled:
		o.CancelledAt = &ts
	case model.OrderExpired:
		o.ExpiredAt = &ts
	}
	o.Status = to
	return true, nil
}

func (t *memTx) RedeemExchangeCode(ctx context.Context, code string, orderID uint64, at time.Time) (bool, error) {
	ec, ok := t.s.codes[code]
	if !ok {
		return false, ErrNotFound
	}
	if ec.IsUsed {
		return false, nil
	}
	ts := at.UTC()
	id := orderID
	ec.IsUsed = true
	ec.UsedAt = &ts
	ec.OrderID = &id
	if o, ok := t.s.orders[orderID]; ok {
		o.ExchangeCodes = append(o.ExchangeCodes, code)
	}
	return true, nil
}

func (t *memTx) InsertExchangeCodes(ctx context.Context, codes []model.ExchangeCode) error {
	seen := make(map[string]bool, len(codes))
	for _, c := range codes {
		if _, ok := t.s.codes[c.Code]; ok || seen[c.Code] {
			return ErrConflict
		}
		seen[c.Code] = true
	}
	for _, c := range codes {
		t.s.nextCodeID++
		c.ID = t.s.nextCodeID
		cc := c
		t.s.codes[c.Code] = &cc
	}
	return nil
}

func (t *memTx) InsertTickets(ctx context.Context, tickets []model.Ticket) error {
	for _, tk := range tickets {
		if _, ok := t.s.ticketBy[tk.Code]; ok {
			return ErrConflict
		}
	}
	for i := range tickets {
		t.s.nextTicketID++
		tickets[i].ID = t.s.nextTicketID
		tk := tickets[i]
		t.s.tickets[tk.ID] = &tk
		t.s.ticketBy[tk.Code] = tk.ID
	}
	return nil
}

func (t *memTx) MarkTicketUsed(ctx context.Context, ticketID uint64, at time.Time) (bool, error) {
	tk, ok := t.s.tickets[ticketID]
	if !ok || tk.IsUsed {
		return false, nil
	}
	ts := at.UTC()
	tk.IsUsed = true
	tk.UsedAt = &ts
	return true, nil
}

func (s *memState) getSession(id uint64) (*model.Session, error) {
	v, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(v), nil
}

func (s *memState) getOrder(id uint64) (*model.Order, error) {
	v, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrder(v), nil
}

func (s *memState) getOrderByRef(ref string) (*model.Order, error) {
	if ref == "" {
		return nil, ErrNotFound
	}
	for _, o := range s.orders {
		if o.PublicRef == ref {
			return cloneOrder(o), nil
		}
	}
	return nil, ErrNotFound
}

func (s *memState) listTickets(orderID uint64) []model.Ticket {
	var out []model.Ticket
	for _, t := range s.tickets {
		if t.OrderID == orderID {
			out = append(out, *cloneTicket(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memState) getTicketByCode(code string) (*model.Ticket, error) {
	id, ok := s.ticketBy[code]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTicket(s.tickets[id]), nil
}

func (s *memState) findCodes(codes []string) map[string]model.ExchangeCode {
	out := make(map[string]model.ExchangeCode, len(codes))
	for _, c := range codes {
		if ec, ok := s.codes[c]; ok {
			out[c] = *cloneCode(ec)
		}
	}
	return out
}

// clone deep-copies the state so a transaction can mutate it freely.
func (s *memState) clone() *memState {
	c := &memState{
		nextSessionID: s.nextSessionID,
		nextOrderID:   s.nextOrderID,
		nextTicketID:  s.nextTicketID,
		nextCodeID:    s.nextCodeID,
		sessions:      make(map[uint64]*model.Session, len(s.sessions)),
		orders:        make(map[uint64]*model.Order, len(s.orders)),
		tickets:       make(map[uint64]*model.Ticket, len(s.tickets)),
		ticketBy:      make(map[string]uint64, len(s.ticketBy)),
		codes:         make(map[string]*model.ExchangeCode, len(s.codes)),
	}
	for k, v := range s.sessions {
		c.sessions[k] = cloneSession(v)
	}
	for k, v := range s.orders {
		c.orders[k] = cloneOrder(v)
	}
	for k, v := range s.tickets {
		c.tickets[k] = cloneTicket(v)
	}
	for k, v := range s.ticketBy {
		c.ticketBy[k] = v
	}
	for k, v := range s.codes {
		c.codes[k] = cloneCode(v)
	}
	return c
}

func cloneSession(s *model.Session) *model.Session {
	c := *s
	c.Tiers = make(map[model.Tier]model.SessionTier, len(s.Tiers))
	for k, v := range s.Tiers {
		c.Tiers[k] = v
	}
	return &c
}

func cloneOrder(o *model.Order) *model.Order {
	c := *o
	c.Items = append([]model.OrderItem(nil), o.Items...)
	c.ExchangeCodes = append([]string(nil), o.ExchangeCodes...)
	c.PaidAt = cloneTime(o.PaidAt)
	c.CancelledAt = cloneTime(o.CancelledAt)
	c.ExpiredAt = cloneTime(o.ExpiredAt)
	return &c
}

func cloneTicket(t *model.Ticket) *model.Ticket {
	c := *t
	c.UsedAt = cloneTime(t.UsedAt)
	return &c
}

func cloneCode(e *model.ExchangeCode) *model.ExchangeCode {
	c := *e
	c.UsedAt = cloneTime(e.UsedAt)
	if e.OrderID != nil {
		id := *e.OrderID
		c.OrderID = &id
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
