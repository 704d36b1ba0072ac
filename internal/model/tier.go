package model

import "fmt"

// Tier is a ticket price/category class.  The set is closed: only the
// constants below are accepted anywhere in the system.
type Tier string

const (
	TierGeneral  Tier = "general"
	TierReserved Tier = "reserved"
	TierVIP1     Tier = "vip1"
	TierVIP2     Tier = "vip2"
)

// AllTiers lists every tier in the canonical evaluation order.  Capacity
// checks walk this slice, so a sold-out error always names the first
// insufficient tier in this order.
var AllTiers = []Tier{TierGeneral, TierReserved, TierVIP1, TierVIP2}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierGeneral, TierReserved, TierVIP1, TierVIP2:
		return true
	}
	return false
}

// ParseTier converts a raw string into a Tier.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}

// TierQuantities maps a tier to a number of units.  Missing tiers count
// as zero.
type TierQuantities map[Tier]int

// Total returns the sum of all quantities.
func (q TierQuantities) Total() int {
	n := 0
	for _, t := range AllTiers {
		n += q[t]
	}
	return n
}

// NonZero returns a copy that drops zero entries, keeping only known tiers.
func (q TierQuantities) NonZero() TierQuantities {
	out := make(TierQuantities, len(q))
	for _, t := range AllTiers {
		if q[t] != 0 {
			out[t] = q[t]
		}
	}
	return out
}
