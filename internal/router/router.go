package router // router maps URLs to handlers and attaches middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/booking-record-engine/internal/config"
	"github.com/iliyamo/booking-record-engine/internal/handler"
	"github.com/iliyamo/booking-record-engine/internal/middleware"
)

// Handlers bundles everything the routes need.
type Handlers struct {
	Bookings  *handler.BookingHandler
	Bulk      *handler.BulkHandler
	Stream    *handler.StreamHandler
	Fields    *handler.FieldDefinitionHandler
	Audits    *handler.AuditHandler
	Readiness handler.Readiness
}

// Options controls authentication and rate limiting.
type Options struct {
	JWTSecret    string
	AuthRequired bool
	RateLimit    config.RateLimitConfig
	Redis        *redis.Client
	Logger       *zap.Logger
}

// RegisterRoutes registers the unauthenticated probes.
func RegisterRoutes(e *echo.Echo, h Handlers) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", h.Readiness.Check)
}

// RegisterAPI mounts the booking API under /v1.  Every route resolves the
// actor; mutating routes are additionally rate limited, and catalog
// changes and bulk operations require the admin role.
func RegisterAPI(e *echo.Echo, h Handlers, opt Options) {
	v1 := e.Group("/v1", middleware.Identity(opt.JWTSecret, opt.AuthRequired))
	limit := middleware.RateLimit(opt.RateLimit, opt.Redis, opt.Logger)
	admin := middleware.RequireRole(middleware.RoleAdmin)
	staff := middleware.RequireRole(middleware.RoleAdmin, middleware.RoleOperator)

	// ---- Bookings ----
	b := v1.Group("/bookings", staff)
	b.GET("", h.Bookings.List)
	b.GET("/stream", h.Stream.Stream)
	b.GET("/:id", h.Bookings.Get)
	b.POST("", h.Bookings.Create, limit)
	b.POST("/import", h.Bookings.Import, limit)
	b.POST("/bulk", h.Bulk.Run, limit, admin)
	b.PATCH("/:id", h.Bookings.Update, limit)
	b.PATCH("/:id/status", h.Bookings.UpdateStatus, limit)
	b.POST("/:id/cancel", h.Bookings.Cancel, limit)
	b.POST("/:id/restore", h.Bookings.Restore, limit)
	b.DELETE("/:id", h.Bookings.Delete, limit)

	// ---- Field definitions ----
	f := v1.Group("/field-defs", staff)
	f.GET("", h.Fields.List)
	f.GET("/:key", h.Fields.Get)
	f.POST("", h.Fields.Create, limit, admin)
	f.POST("/import", h.Fields.Import, limit, admin)
	f.PATCH("/:key", h.Fields.Update, limit, admin)
	f.DELETE("/:key", h.Fields.Delete, limit, admin)

	// ---- Audit ledger (read only) ----
	a := v1.Group("/audits", staff)
	a.GET("/bookings/:id", h.Audits.ForBooking)
	a.GET("/recent", h.Audits.Recent)
	a.GET("/search", h.Audits.Search)
	a.GET("/stats", h.Audits.Stats)
}
