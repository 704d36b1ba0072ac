package model

import "time"

// SaleStatus is the sale state of a performance session.
type SaleStatus string

const (
	SaleNotOnSale SaleStatus = "NOT_ON_SALE"
	SaleOnSale    SaleStatus = "ON_SALE"
	SaleSoldOut   SaleStatus = "SOLD_OUT"
	SaleClosed    SaleStatus = "CLOSED"
)

// Valid reports whether s is a known sale status.
func (s SaleStatus) Valid() bool {
	switch s {
	case SaleNotOnSale, SaleOnSale, SaleSoldOut, SaleClosed:
		return true
	}
	return false
}

// SessionTier holds the inventory counters and current list price of one
// tier for a session.  Sold only changes through the inventory ledger.
type SessionTier struct {
	Capacity   int   // session_tiers.capacity
	Sold       int   // session_tiers.sold
	PriceCents int64 // session_tiers.price_cents
}

// Available returns the number of units that can still be reserved.
func (t SessionTier) Available() int {
	if t.Sold >= t.Capacity {
		return 0
	}
	return t.Capacity - t.Sold
}

// Session represents one dated showing of a performance.  Capacity is
// tracked per session and per tier.  A tier missing from Tiers has zero
// capacity.
//
// Fields:
//
//	ID          – primary key identifier.
//	Title       – performance label shown on orders and tickets.
//	Venue       – venue name/address.
//	StartsAt    – curtain time.
//	SaleStartAt – start of the sale window (inclusive).
//	SaleEndAt   – end of the sale window (inclusive).
//	SaleStatus  – NOT_ON_SALE, ON_SALE, SOLD_OUT or CLOSED.
//	Tiers       – per-tier capacity, sold count and price.
type Session struct {
	ID          uint64
	Title       string
	Venue       string
	StartsAt    time.Time
	SaleStartAt time.Time
	SaleEndAt   time.Time
	SaleStatus  SaleStatus
	Tiers       map[Tier]SessionTier
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Tier returns the counters for t, or the zero value when the tier is not
// configured.
func (s *Session) Tier(t Tier) SessionTier {
	if s.Tiers == nil {
		return SessionTier{}
	}
	return s.Tiers[t]
}

// SaleOpenAt reports whether the sale window contains now.
func (s *Session) SaleOpenAt(now time.Time) bool {
	return !now.Before(s.SaleStartAt) && !now.After(s.SaleEndAt)
}

// Label is the denormalized display label copied onto orders.
func (s *Session) Label() string {
	if s.StartsAt.IsZero() {
		return s.Title
	}
	return s.Title + " " + s.StartsAt.UTC().Format("2006-01-02 15:04")
}

// Prices returns the current list price per tier.
func (s *Session) Prices() map[Tier]int64 {
	out := make(map[Tier]int64, len(s.Tiers))
	for t, st := range s.Tiers {
		out[t] = st.PriceCents
	}
	return out
}
