package config

import "time"

// CacheConfig controls the Redis response cache on the session
// availability endpoint.  Availability changes with every sale, so the
// TTL stays short.
type CacheConfig struct {
	Enabled      bool
	Methods      map[string]bool
	TTL          time.Duration
	Prefix       string
	MaxBodyBytes int
}

// LoadCacheConfig reads the CACHE_* variables.
func LoadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:      envBool("CACHE_ENABLED", true),
		Methods:      parseMethods(envStr("CACHE_METHODS", "GET")),
		TTL:          envDur("CACHE_TTL", 3*time.Second),
		Prefix:       envStr("CACHE_PREFIX", "ticketing:cache"),
		MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 64<<10),
	}
}
