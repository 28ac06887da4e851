package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/booking-record-engine/internal/config"
)

// tokenBucket refills whole intervals and takes one token per request.
// It returns {allowed, remaining, retry_after_ms}.
var tokenBucket = redis.NewScript(`
    local now, cap, per, every, ttl =
        tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3]), tonumber(ARGV[4]), tonumber(ARGV[5])
    local b = redis.call('HMGET', KEYS[1], 'tokens', 'last_refill_ms')
    local left, at = tonumber(b[1]), tonumber(b[2])
    if not left or not at then
        left, at = cap, now
    end
    if every > 0 and per > 0 and now > at then
        local n = math.floor((now - at) / every)
        if n > 0 then
            left = math.min(cap, left + n * per)
            at = at + n * every
        end
    end
    local ok, wait = 0, 0
    if left > 0 then
        ok, left = 1, left - 1
    else
        wait = math.max(0, every - (now - at))
    end
    redis.call('HSET', KEYS[1], 'tokens', left, 'last_refill_ms', at)
    redis.call('EXPIRE', KEYS[1], ttl)
    return { ok, left, wait }
`)

// RateLimit guards mutating routes with a Redis token bucket.  It is a
// pass-through when disabled or when Redis is unavailable, and it fails
// open on Redis errors so an outage never blocks writes.
func RateLimit(cfg config.RateLimitConfig, rdb *redis.Client, log *zap.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if log == nil {
		log = zap.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := rateKey(cfg, c)
			args := []interface{}{
				time.Now().UnixMilli(),
				cfg.Capacity,
				cfg.RefillTokens,
				cfg.RefillInterval.Milliseconds(),
				int64(cfg.TTL / time.Second),
			}
			vals, err := tokenBucket.Run(c.Request().Context(), rdb, []string{key}, args...).Int64Slice()
			if err != nil || len(vals) != 3 {
				log.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
				return next(c)
			}
			allowed, remaining, retryMs := vals[0] == 1, vals[1], vals[2]

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			if !allowed {
				secs := int(math.Ceil(float64(retryMs) / 1000.0))
				if secs < 1 {
					secs = 1
				}
				h.Set("Retry-After", strconv.Itoa(secs))
				log.Info("rate limited", zap.String("key", key), zap.Int64("retry_ms", retryMs))
				return deny(c, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
			}
			return next(c)
		}
	}
}

func rateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	actor := Actor(c)
	route := c.Request().Method + " " + c.Path()

	parts := []string{cfg.Prefix}
	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "actor":
		parts = append(parts, "actor", actor)
	case "ip_actor_route":
		parts = append(parts, "ip", ip, "actor", actor, "route", route)
	default:
		parts = append(parts, "ip", ip, "actor", actor)
	}
	return strings.Join(parts, ":")
}
