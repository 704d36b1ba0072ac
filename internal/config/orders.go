package config

import (
	"fmt"
	"time"

	"github.com/iliyamo/stage-ticketing/internal/pricing"
)

// OrderConfig controls seat holds and the expiry worker.
type OrderConfig struct {
	HoldDuration       time.Duration // age after which a PENDING order may expire
	ExpiryScanInterval time.Duration // how often the expiry worker scans
	ExpiryBatchSize    int           // max orders expired per scan
}

// LoadOrderConfig reads ORDER_HOLD_DURATION, EXPIRY_SCAN_INTERVAL and
// EXPIRY_BATCH_SIZE.
func LoadOrderConfig() OrderConfig {
	c := OrderConfig{
		HoldDuration:       envDur("ORDER_HOLD_DURATION", 15*time.Minute),
		ExpiryScanInterval: envDur("EXPIRY_SCAN_INTERVAL", 30*time.Second),
		ExpiryBatchSize:    envInt("EXPIRY_BATCH_SIZE", 100),
	}
	if c.HoldDuration <= 0 {
		c.HoldDuration = 15 * time.Minute
	}
	if c.ExpiryScanInterval <= 0 {
		c.ExpiryScanInterval = 30 * time.Second
	}
	if c.ExpiryBatchSize < 1 {
		c.ExpiryBatchSize = 100
	}
	return c
}

// LoadDiscountPolicy reads the DISCOUNT_* variables.  The default is one
// 500-cent discount per general ticket backed by an exchange code.
func LoadDiscountPolicy() (pricing.Policy, error) {
	p := pricing.Policy{
		Basis:              pricing.Basis(envStr("DISCOUNT_BASIS", string(pricing.BasisExchange))),
		EveryN:             envInt("DISCOUNT_EVERY_N", 1),
		DiscountedPerGroup: envInt("DISCOUNT_PER_GROUP", 1),
		AmountCents:        envInt64("DISCOUNT_AMOUNT_CENTS", 500),
	}
	if err := p.Validate(); err != nil {
		return pricing.Policy{}, fmt.Errorf("config: %w", err)
	}
	return p, nil
}
