package model

import "time"

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderPaid      OrderStatus = "PAID"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderExpired   OrderStatus = "EXPIRED"
)

var orderTransitions = map[OrderStatus]map[OrderStatus]bool{
	OrderPending:   {OrderPaid: true, OrderCancelled: true, OrderExpired: true},
	OrderPaid:      {},
	OrderCancelled: {},
	OrderExpired:   {},
}

// CanTransition reports whether an order may move from s to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	return orderTransitions[s][next]
}

// Terminal reports whether no transition leaves s.
func (s OrderStatus) Terminal() bool {
	return s == OrderPaid || s == OrderCancelled || s == OrderExpired
}

// Customer is the buyer contact attached to an order.
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// OrderItem is one tier line of an order.  UnitPriceCents is a snapshot of
// the session price at purchase time and never changes afterwards.
type OrderItem struct {
	Tier           Tier  `json:"tier"`
	Quantity       int   `json:"quantity"`
	UnitPriceCents int64 `json:"unit_price_cents"`
}

// Order is one purchase attempt against a session.
type Order struct {
	ID                  uint64      `json:"id"`
	PublicRef           string      `json:"public_ref"` // unguessable handle given to the buyer
	SessionID           uint64      `json:"session_id"`
	PerformanceLabel    string      `json:"performance_label"`
	Items               []OrderItem `json:"items"`
	DiscountCount       int         `json:"discount_count"`
	DiscountAmountCents int64       `json:"discount_amount_cents"`
	SubtotalCents       int64       `json:"subtotal_cents"`
	TotalCents          int64       `json:"total_cents"`
	Customer            Customer    `json:"customer"`
	Status              OrderStatus `json:"status"`
	ExchangeCodes       []string    `json:"exchange_codes,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
	PaidAt              *time.Time  `json:"paid_at,omitempty"`
	CancelledAt         *time.Time  `json:"cancelled_at,omitempty"`
	ExpiredAt           *time.Time  `json:"expired_at,omitempty"`
}

// Quantities rebuilds the per-tier quantities from the order items.
func (o *Order) Quantities() TierQuantities {
	q := make(TierQuantities, len(o.Items))
	for _, it := range o.Items {
		q[it.Tier] += it.Quantity
	}
	return q
}

// TicketCount is the number of tickets the order issues once paid.
func (o *Order) TicketCount() int {
	return o.Quantities().Total()
}
