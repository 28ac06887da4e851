package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// Health is the liveness probe.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Readiness reports whether the database (and Redis, when configured)
// answer within a short deadline.
type Readiness struct {
	DB    *sql.DB
	Redis *redis.Client
}

// Check handles GET /readyz.
func (r Readiness) Check(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	status := echo.Map{"database": "ok"}
	code := http.StatusOK
	if r.DB == nil || r.DB.PingContext(ctx) != nil {
		status["database"] = "unavailable"
		code = http.StatusServiceUnavailable
	}
	if r.Redis != nil {
		status["redis"] = "ok"
		if err := r.Redis.Ping(ctx).Err(); err != nil {
			// Redis only backs rate limiting and fan-out; degrade, don't fail
			status["redis"] = "degraded"
		}
	}
	return c.JSON(code, status)
}
