package model

import "time"

// ExchangeCode is a pre-issued one-time voucher for one general-tier unit.
// Once bound to an order it stays used.
type ExchangeCode struct {
	ID        uint64     `json:"id"`
	Code      string     `json:"code"`
	Tag       string     `json:"tag,omitempty"` // optional performer/volume tag
	IsUsed    bool       `json:"is_used"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	OrderID   *uint64    `json:"order_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
