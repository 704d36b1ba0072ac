// Package pricing computes order totals.  Everything here is a pure
// function of its inputs so a quote can be recomputed for audit without
// touching inventory.
package pricing

import (
	"errors"
	"fmt"
	"math"

	"github.com/iliyamo/stage-ticketing/internal/model"
)

// Basis selects which general tickets count towards the discount.
type Basis string

const (
	// BasisGroup discounts by the number of general tickets bought together.
	BasisGroup Basis = "group"
	// BasisExchange discounts only general tickets backed by an exchange code.
	BasisExchange Basis = "exchange"
)

var (
	ErrNegativeQuantity   = errors.New("quantity cannot be negative")
	ErrUnknownTier        = errors.New("unknown tier")
	ErrMissingPrice       = errors.New("no price configured for tier")
	ErrNegativePrice      = errors.New("price cannot be negative")
	ErrTooManyExchange    = errors.New("more exchange codes than general tickets")
	ErrInvalidPolicy      = errors.New("invalid discount policy")
	ErrNegativeExchangeQt = errors.New("exchange count cannot be negative")
	ErrAmountOverflow     = errors.New("order amount out of range")
)

// Policy is the discount rule: for every EveryN eligible general tickets,
// DiscountedPerGroup of them are reduced by AmountCents each.  A zero
// policy applies no discount.
type Policy struct {
	Basis              Basis `json:"basis"`
	EveryN             int   `json:"every_n"`
	DiscountedPerGroup int   `json:"discounted_per_group"`
	AmountCents        int64 `json:"amount_cents"`
}

// Validate rejects policies that cannot be applied.
func (p Policy) Validate() error {
	if p.Basis != BasisGroup && p.Basis != BasisExchange && p.Basis != "" {
		return fmt.Errorf("%w: basis %q", ErrInvalidPolicy, p.Basis)
	}
	if p.EveryN < 0 || p.DiscountedPerGroup < 0 || p.AmountCents < 0 {
		return fmt.Errorf("%w: negative parameter", ErrInvalidPolicy)
	}
	if p.EveryN > 0 && p.DiscountedPerGroup > p.EveryN {
		return fmt.Errorf("%w: discounted_per_group %d exceeds every_n %d", ErrInvalidPolicy, p.DiscountedPerGroup, p.EveryN)
	}
	return nil
}

func (p Policy) active() bool {
	return p.EveryN > 0 && p.DiscountedPerGroup > 0 && p.AmountCents > 0
}

// Line is one priced tier of a quote.
type Line struct {
	Tier           model.Tier `json:"tier"`
	Quantity       int        `json:"quantity"`
	UnitPriceCents int64      `json:"unit_price_cents"`
	LineCents      int64      `json:"line_cents"`
}

// Quote is the result of pricing one purchase.
type Quote struct {
	Lines                  []Line `json:"lines"`
	DiscountedGeneralCount int    `json:"discounted_general_count"`
	DiscountAmountCents    int64  `json:"discount_amount_cents"`
	SubtotalCents          int64  `json:"subtotal_cents"`
	TotalCents             int64  `json:"total_cents"`
}

// Compute prices the given quantities.  prices holds the unit price per
// tier; exchangeCount is the number of exchange codes applied to the
// general tier.  Tiers with zero quantity contribute nothing and need no
// price.
func Compute(prices map[model.Tier]int64, qty model.TierQuantities, exchangeCount int, p Policy) (Quote, error) {
	if err := p.Validate(); err != nil {
		return Quote{}, err
	}
	for t, n := range qty {
		if !t.Valid() {
			return Quote{}, fmt.Errorf("%w: %q", ErrUnknownTier, t)
		}
		if n < 0 {
			return Quote{}, fmt.Errorf("%w: %s=%d", ErrNegativeQuantity, t, n)
		}
	}
	if exchangeCount < 0 {
		return Quote{}, ErrNegativeExchangeQt
	}
	general := qty[model.TierGeneral]
	if exchangeCount > general {
		return Quote{}, fmt.Errorf("%w: %d codes for %d general", ErrTooManyExchange, exchangeCount, general)
	}

	var q Quote
	for _, t := range model.AllTiers {
		n := qty[t]
		if n == 0 {
			continue
		}
		price, ok := prices[t]
		if !ok {
			return Quote{}, fmt.Errorf("%w: %s", ErrMissingPrice, t)
		}
		if price < 0 {
			return Quote{}, fmt.Errorf("%w: %s", ErrNegativePrice, t)
		}
		if price > 0 && int64(n) > math.MaxInt64/price {
			return Quote{}, fmt.Errorf("%w: %s %d x %d", ErrAmountOverflow, t, n, price)
		}
		line := Line{Tier: t, Quantity: n, UnitPriceCents: price, LineCents: price * int64(n)}
		if q.SubtotalCents > math.MaxInt64-line.LineCents {
			return Quote{}, fmt.Errorf("%w: subtotal", ErrAmountOverflow)
		}
		q.Lines = append(q.Lines, line)
		q.SubtotalCents += line.LineCents
	}

	if p.active() && general > 0 {
		eligible := general
		if p.Basis == BasisExchange {
			eligible = exchangeCount
		}
		count := (eligible / p.EveryN) * p.DiscountedPerGroup
		if count > eligible {
			count = eligible
		}
		unit := p.AmountCents
		if gp := prices[model.TierGeneral]; unit > gp {
			unit = gp
		}
		q.DiscountedGeneralCount = count
		q.DiscountAmountCents = unit * int64(count)
	}

	q.TotalCents = q.SubtotalCents - q.DiscountAmountCents
	if q.TotalCents < 0 {
		q.TotalCents = 0
	}
	return q, nil
}
