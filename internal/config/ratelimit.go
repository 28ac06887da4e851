package config

import "time"

// RateLimitConfig configures the Redis token bucket that guards mutating
// booking routes.  Reads are never limited.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int           // bucket size
	RefillTokens   int           // tokens added per RefillInterval
	RefillInterval time.Duration
	TTL            time.Duration // idle buckets expire after this long
	KeyStrategy    string        // "ip", "actor", "ip_actor" or "ip_actor_route"
	Prefix         string
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables and sanitizes them so
// the limiter never sees a zero capacity or refill.
func LoadRateLimitConfig() RateLimitConfig {
	c := RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		Capacity:       envInt("RATE_LIMIT_CAPACITY", 30),
		RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
		TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "ip_actor"),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "rl:booking"),
	}
	return c.sanitized()
}

func (c RateLimitConfig) sanitized() RateLimitConfig {
	if c.Capacity < 1 {
		c.Capacity = 1
	}
	if c.RefillTokens < 1 {
		c.RefillTokens = 1
	}
	if c.RefillInterval <= 0 {
		c.RefillInterval = time.Second
	}
	if min := 5 * c.RefillInterval; c.TTL < min {
		c.TTL = min
	}
	return c
}
