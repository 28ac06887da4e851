package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/booking-record-engine/internal/config"
	"github.com/iliyamo/booking-record-engine/internal/utils"
)

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func echoActor(c echo.Context) error {
	m := Meta(c)
	role, _ := c.Get(KeyRole).(string)
	return c.JSON(http.StatusOK, echo.Map{"actor": m.Actor, "role": role, "request_id": m.RequestID})
}

func TestIdentityHeaderFallback(t *testing.T) {
	e := echo.New()
	e.GET("/", echoActor, RequestID(), Identity("s3cret", false))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(ActorHeader, "lee")
	req.Header.Set(RequestIDHeader, "rid-1")
	rec := serve(e, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"actor":"lee","role":"admin","request_id":"rid-1"}`, rec.Body.String())
	assert.Equal(t, "rid-1", rec.Header().Get(RequestIDHeader))

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, rec.Body.String(), `"actor":"anonymous"`)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestIdentityBearer(t *testing.T) {
	e := echo.New()
	e.GET("/", echoActor, Identity("s3cret", true))

	tok, err := utils.NewAccessToken("s3cret", "park", RoleOperator, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	rec := serve(e, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"actor":"park"`)
	assert.Contains(t, rec.Body.String(), `"role":"operator"`)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	rec = serve(e, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error_code":"UNAUTHORIZED"`)

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }
	e.GET("/admin", ok, Identity("s3cret", true), RequireRole(RoleAdmin))

	tok, err := utils.NewAccessToken("s3cret", "park", RoleOperator, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	assert.Equal(t, http.StatusForbidden, serve(e, req).Code)

	tok, err = utils.NewAccessToken("s3cret", "kim", RoleAdmin, time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	assert.Equal(t, http.StatusNoContent, serve(e, req).Code)
}

func TestRateLimitPassThroughWithoutRedis(t *testing.T) {
	e := echo.New()
	mw := RateLimit(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil, nil)
	e.POST("/", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, mw)
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusNoContent, serve(e, httptest.NewRequest(http.MethodPost, "/", nil)).Code)
	}
}

func TestRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/bookings", nil)
	req.Header.Set("X-Real-IP", "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/bookings")
	c.Set(KeyActor, "kim")

	cases := map[string]string{
		"ip":             "rl:ip:10.0.0.1",
		"actor":          "rl:actor:kim",
		"ip_actor":       "rl:ip:10.0.0.1:actor:kim",
		"ip_actor_route": "rl:ip:10.0.0.1:actor:kim:route:POST /v1/bookings",
		"":               "rl:ip:10.0.0.1:actor:kim",
	}
	for strategy, want := range cases {
		got := rateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: strategy}, c)
		assert.Equal(t, want, got, strategy)
	}
}
