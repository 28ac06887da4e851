package middleware // middleware resolves who is calling and guards the mutating routes

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/booking-record-engine/internal/model"
	"github.com/iliyamo/booking-record-engine/internal/utils"
)

// Context keys set by this package.
const (
	KeyActor     = "actor"
	KeyRole      = "role"
	KeyRequestID = "request_id"
)

// Roles understood by RequireRole.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
)

// AnonymousActor is recorded when no identity is presented.
const AnonymousActor = "anonymous"

// ActorHeader lets trusted callers name the actor when tokens are not
// required.
const ActorHeader = "X-Actor"

// deny writes the standard error envelope.
func deny(c echo.Context, status int, code, msg string) error {
	return c.JSON(status, echo.Map{"success": false, "error_code": code, "message": msg})
}

// Identity resolves the actor for every request.  A Bearer token, when
// present, must verify against secret and supplies the actor and role.
// Without a token the request is rejected when required is set; otherwise
// the actor comes from the X-Actor header (or "anonymous") with the admin
// role, which suits a deployment behind a trusted gateway.
func Identity(secret string, required bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				claims, err := utils.ParseAccessToken(secret, strings.TrimPrefix(auth, "Bearer "))
				if err != nil {
					return deny(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
				}
				c.Set(KeyActor, claims.Actor)
				c.Set(KeyRole, claims.Role)
				return next(c)
			}
			if required {
				return deny(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
			}
			actor := strings.TrimSpace(c.Request().Header.Get(ActorHeader))
			if actor == "" {
				actor = AnonymousActor
			}
			if len(actor) > 100 {
				actor = actor[:100]
			}
			c.Set(KeyActor, actor)
			c.Set(KeyRole, RoleAdmin)
			return next(c)
		}
	}
}

// Actor returns the actor resolved by Identity.
func Actor(c echo.Context) string {
	if s, ok := c.Get(KeyActor).(string); ok && s != "" {
		return s
	}
	return AnonymousActor
}

// Meta collects the request metadata copied onto audit entries.
func Meta(c echo.Context) model.RequestMeta {
	rid, _ := c.Get(KeyRequestID).(string)
	return model.RequestMeta{
		Actor:     Actor(c),
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
		RequestID: rid,
	}
}
