package model

import "time"

// Ticket is one admission unit.  Code is globally unique and immutable;
// IsUsed flips from false to true exactly once at check-in.
type Ticket struct {
	ID          uint64     `json:"id"`
	OrderID     uint64     `json:"order_id"`
	Tier        Tier       `json:"tier"`
	Code        string     `json:"code"`
	IsExchanged bool       `json:"is_exchanged"`
	IsUsed      bool       `json:"is_used"`
	UsedAt      *time.Time `json:"used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
