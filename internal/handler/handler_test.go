package handler

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/booking-record-engine/internal/model"
	"github.com/iliyamo/booking-record-engine/internal/notify"
	"github.com/iliyamo/booking-record-engine/internal/repository"
	"github.com/iliyamo/booking-record-engine/internal/service"
	"github.com/iliyamo/booking-record-engine/internal/validate"
)

func newEcho(development bool) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(zap.NewNop(), development)
	return e
}

func failWith(err error) echo.HandlerFunc {
	return func(echo.Context) error { return err }
}

func TestErrorHandlerEnvelope(t *testing.T) {
	fieldErrs := []validate.FieldError{{Field: "email", Code: validate.CodeFormat, Message: "email is not in a valid format"}}
	cases := []struct {
		name   string
		err    error
		dev    bool
		status int
		body   string
	}{
		{"validation", repository.Validation("reservation failed validation", fieldErrs), false, http.StatusBadRequest,
			`{"success":false,"error_code":"VALIDATION_ERROR","message":"reservation failed validation",
              "errors":[{"field":"email","code":"format","message":"email is not in a valid format"}]}`},
		{"version conflict", repository.ErrVersionConflict, false, http.StatusConflict,
			`{"success":false,"error_code":"CONFLICT_VERSION","message":"version conflict"}`},
		{"bare conflict", repository.ErrConflict, false, http.StatusConflict,
			`{"success":false,"error_code":"CONFLICT","message":"conflict"}`},
		{"not found", repository.NotFound("reservation"), false, http.StatusNotFound,
			`{"success":false,"error_code":"NOT_FOUND","message":"reservation not found"}`},
		{"business rule", repository.BusinessRule("reservation is already cancelled"), false, http.StatusUnprocessableEntity,
			`{"success":false,"error_code":"BUSINESS_RULE","message":"reservation is already cancelled"}`},
		{"forbidden", repository.Forbidden("hard delete is disabled"), false, http.StatusForbidden,
			`{"success":false,"error_code":"FORBIDDEN","message":"hard delete is disabled"}`},
		{"raw error hidden", errors.New("dial tcp: refused"), false, http.StatusInternalServerError,
			`{"success":false,"error_code":"INTERNAL_ERROR","message":"internal error"}`},
		{"raw error in development", errors.New("dial tcp: refused"), true, http.StatusInternalServerError,
			`{"success":false,"error_code":"INTERNAL_ERROR","message":"internal error","details":"dial tcp: refused"}`},
		{"echo error", echo.NewHTTPError(http.StatusMethodNotAllowed, "method not allowed"), false, http.StatusMethodNotAllowed,
			`{"success":false,"error_code":"METHOD_NOT_ALLOWED","message":"method not allowed"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEcho(tc.dev)
			e.GET("/", failWith(tc.err))
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, tc.status, rec.Code)
			assert.JSONEq(t, tc.body, rec.Body.String())
		})
	}
}

func TestErrorHandlerConflictDetails(t *testing.T) {
	e := newEcho(false)
	err := repository.Conflict(repository.CodeConflictDuplicate, "reservation R100 already exists")
	err.Details = map[string]any{"existing_id": 5}
	e.GET("/", failWith(err))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"details":{"existing_id":5}`)
}

func TestErrorHandlerUnknownRoute(t *testing.T) {
	e := newEcho(false)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error_code":"NOT_FOUND"`)
}

func TestExpectation(t *testing.T) {
	e := echo.New()
	ctxWith := func(header string) echo.Context {
		req := httptest.NewRequest(http.MethodPatch, "/", nil)
		if header != "" {
			req.Header.Set("If-Unmodified-Since", header)
		}
		return e.NewContext(req, httptest.NewRecorder())
	}

	body := map[string]any{LockVersionField: 3.0, "memo": "x"}
	exp, err := expectation(ctxWith(""), body)
	require.NoError(t, err)
	require.NotNil(t, exp.LockVersion)
	assert.Equal(t, 3, *exp.LockVersion)
	assert.Nil(t, exp.UnmodifiedSince)
	assert.NotContains(t, body, LockVersionField)
	assert.Contains(t, body, "memo")

	exp, err = expectation(ctxWith("Sun, 10 Mar 2024 12:00:00 GMT"), map[string]any{LockVersionField: "4"})
	require.NoError(t, err)
	assert.Equal(t, 4, *exp.LockVersion)
	require.NotNil(t, exp.UnmodifiedSince)
	assert.Equal(t, time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC), *exp.UnmodifiedSince)

	for _, bad := range []any{1.5, "four", true} {
		_, err = expectation(ctxWith(""), map[string]any{LockVersionField: bad})
		assert.Equal(t, repository.KindValidation, repository.KindOf(err), "%v", bad)
	}
	_, err = expectation(ctxWith("yesterday"), map[string]any{})
	assert.Equal(t, repository.KindValidation, repository.KindOf(err))
}

func TestSplitExtras(t *testing.T) {
	fields, extras, err := splitExtras(map[string]any{
		"memo":   "x",
		"extras": map[string]any{"pickup": true},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"memo": "x"}, fields)
	assert.Equal(t, map[string]any{"pickup": true}, extras)

	_, extras, err = splitExtras(map[string]any{"extras": nil})
	require.NoError(t, err)
	assert.Nil(t, extras)

	_, _, err = splitExtras(map[string]any{"extras": "pickup"})
	assert.Equal(t, repository.KindValidation, repository.KindOf(err))
}

func TestNewPagination(t *testing.T) {
	assert.Equal(t, Pagination{Page: 2, PageSize: 20, Total: 41, TotalPages: 3}, newPagination(2, 20, 41))
	assert.Equal(t, 0, newPagination(1, 20, 0).TotalPages)
}

func TestUpdateStaleLockVersionOverHTTP(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	cols := make([]string, repository.ReservationColumnCount)
	for i := range cols {
		cols[i] = "c"
	}
	mock.ExpectQuery(`FROM field_definitions`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM reservations WHERE id = \? AND is_deleted = 0 FOR UPDATE`).
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			7, "R100", nil, "웹", nil,
			nil, nil, nil, nil, nil,
			nil, 1, 0, 0, 1,
			nil, nil, nil, nil, nil, nil,
			nil, nil, nil, "pending", "pending", nil,
			`{}`, `{}`, 5, nil, false, nil,
			"kim", "kim", created, created))
	mock.ExpectRollback()

	svc := service.NewReservationService(db, repository.NewReservationRepo(db), repository.NewFieldDefinitionRepo(db),
		repository.NewAuditRepo(db), nil, nil, service.DefaultPolicy())
	e := newEcho(false)
	e.PATCH("/v1/bookings/:id", NewBookingHandler(svc).Update)

	req := httptest.NewRequest(http.MethodPatch, "/v1/bookings/7", strings.NewReader(`{"memo":"late","_lock_version":4}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error_code":"CONFLICT_VERSION"`)
	assert.Contains(t, rec.Body.String(), `"current_version":5`)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRejectsBadID(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	svc := service.NewReservationService(db, repository.NewReservationRepo(db), repository.NewFieldDefinitionRepo(db),
		repository.NewAuditRepo(db), nil, nil, service.DefaultPolicy())
	e := newEcho(false)
	e.GET("/v1/bookings/:id", NewBookingHandler(svc).Get)

	for _, id := range []string{"0", "abc", "-1"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/bookings/"+id, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, id)
	}
}

func TestStreamDeliversEvents(t *testing.T) {
	hub := notify.NewHub(4, nil)
	e := echo.New()
	e.GET("/stream", NewStreamHandler(hub, time.Hour).Stream)
	srv := httptest.NewServer(e)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get(echo.HeaderContentType))

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)
	_, _ = r.ReadString('\n')

	hub.Notify(context.Background(), model.MutationEvent{BookingID: 7, Action: model.ActionCancel, LockVersion: 3})

	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: cancel\n", line)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(line, `data: {"booking_id":7,"action":"cancel"`), line)

	hub.Close()
}

func TestReadiness(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing()

	e := echo.New()
	e.GET("/readyz", Readiness{DB: db}.Check)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"database":"ok"}`, rec.Body.String())

	e = echo.New()
	e.GET("/readyz", Readiness{}.Check)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
