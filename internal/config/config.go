package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env          string // application environment (development, test, production)
	Port         string // HTTP port to listen on
	DBUser       string
	DBPass       string // may be empty
	DBHost       string
	DBPort       string
	DBName       string
	AutoMigrate  bool   // create tables on startup
	JWTSecret    string // verifies operator tokens; empty disables bearer auth
	AccessTTLMin int    // lifetime of tokens issued by recordctl
	AuthRequired bool   // reject mutating requests without a valid token

	RestoreWindow   time.Duration // how long a soft-deleted record may be restored
	BulkMaxTargets  int           // cap on ids resolved for one bulk call
	AllowHardDelete bool          // permit DELETE with hard_delete=true

	LogLevel  string
	LogFormat string

	AMQPURL      string // empty disables the RabbitMQ notifier
	AMQPExchange string
	AMQPQueue    string
	RedisChannel string // empty disables the Redis pub/sub notifier
}

// Defaults for the record policy knobs.
const (
	DefaultRestoreWindow  = 24 * time.Hour
	DefaultBulkMaxTargets = 1000
	DefaultExchange       = "booking.mutations"
)

// IsDevelopment reports whether internal error details may be shown to
// clients.
func (c Config) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "dev"
}

// Load reads a .env file when present, then the process environment.
// Required variables are enforced by must() and missing values cause the
// program to exit with a fatal log message.
func Load() Config {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	cfg := Config{
		Env:          envStr("APP_ENV", "production"),
		Port:         envStr("APP_PORT", "8080"),
		DBUser:       must("DB_USER"),
		DBPass:       os.Getenv("DB_PASS"),
		DBHost:       must("DB_HOST"),
		DBPort:       envStr("DB_PORT", "3306"),
		DBName:       must("DB_NAME"),
		AutoMigrate:  envBool("DB_AUTO_MIGRATE", false),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		AccessTTLMin: envInt("ACCESS_TOKEN_TTL_MIN", 720),
		AuthRequired: envBool("AUTH_REQUIRED", false),

		RestoreWindow:   envDur("RESTORE_WINDOW", DefaultRestoreWindow),
		BulkMaxTargets:  envInt("BULK_MAX_TARGETS", DefaultBulkMaxTargets),
		AllowHardDelete: envBool("ALLOW_HARD_DELETE", true),

		LogLevel:  envStr("LOG_LEVEL", "info"),
		LogFormat: envStr("LOG_FORMAT", "json"),

		AMQPURL:      os.Getenv("AMQP_URL"),
		AMQPExchange: envStr("AMQP_EXCHANGE", DefaultExchange),
		AMQPQueue:    os.Getenv("AMQP_QUEUE"),
		RedisChannel: os.Getenv("REDIS_NOTIFY_CHANNEL"),
	}
	if cfg.AuthRequired && cfg.JWTSecret == "" {
		log.Fatalf("AUTH_REQUIRED is set but JWT_SECRET is empty")
	}
	if cfg.BulkMaxTargets < 1 {
		cfg.BulkMaxTargets = DefaultBulkMaxTargets
	}
	if cfg.RestoreWindow <= 0 {
		cfg.RestoreWindow = DefaultRestoreWindow
	}
	return cfg
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
