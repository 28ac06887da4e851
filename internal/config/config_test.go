package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func setRequired(t *testing.T) {
	t.Setenv("DB_USER", "booking")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_NAME", "bookings")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "3306", cfg.DBPort)
	assert.Equal(t, DefaultRestoreWindow, cfg.RestoreWindow)
	assert.Equal(t, DefaultBulkMaxTargets, cfg.BulkMaxTargets)
	assert.True(t, cfg.AllowHardDelete)
	assert.Equal(t, DefaultExchange, cfg.AMQPExchange)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", "development")
	t.Setenv("RESTORE_WINDOW", "48h")
	t.Setenv("BULK_MAX_TARGETS", "250")
	t.Setenv("ALLOW_HARD_DELETE", "false")
	t.Setenv("LOG_FORMAT", "console")

	cfg := Load()

	assert.Equal(t, 48*time.Hour, cfg.RestoreWindow)
	assert.Equal(t, 250, cfg.BulkMaxTargets)
	assert.False(t, cfg.AllowHardDelete)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadRejectsNonsensePolicy(t *testing.T) {
	setRequired(t)
	t.Setenv("RESTORE_WINDOW", "-1h")
	t.Setenv("BULK_MAX_TARGETS", "0")

	cfg := Load()

	assert.Equal(t, DefaultRestoreWindow, cfg.RestoreWindow)
	assert.Equal(t, DefaultBulkMaxTargets, cfg.BulkMaxTargets)
}

func TestRateLimitSanitized(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	c := LoadRateLimitConfig()

	assert.Equal(t, 1, c.Capacity)
	assert.Equal(t, 1, c.RefillTokens)
	assert.Equal(t, 10*time.Second, c.TTL)
}

func TestRedisConfigHostPortWins(t *testing.T) {
	t.Setenv("REDIS_ADDR", "ignored:1")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_TLS", "1")

	c := LoadRedisConfig()

	assert.Equal(t, "cache:6380", c.Addr)
	assert.True(t, c.TLS)
	assert.Nil(t, NewRedisClient(RedisConfig{}))
}
