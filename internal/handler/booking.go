package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/booking-record-engine/internal/middleware"
	"github.com/iliyamo/booking-record-engine/internal/normalize"
	"github.com/iliyamo/booking-record-engine/internal/repository"
	"github.com/iliyamo/booking-record-engine/internal/service"
)

// LockVersionField is the body member carrying the optimistic-concurrency
// token on PATCH.
const LockVersionField = "_lock_version"

// BookingHandler serves single-record operations under /v1/bookings.
type BookingHandler struct {
	svc *service.ReservationService
}

// NewBookingHandler panics on a nil service.
func NewBookingHandler(svc *service.ReservationService) *BookingHandler {
	if svc == nil {
		panic("nil service passed to NewBookingHandler")
	}
	return &BookingHandler{svc: svc}
}

// splitExtras separates the extras object from the fixed fields of a body.
func splitExtras(body map[string]any) (map[string]any, map[string]any, error) {
	fields := make(map[string]any, len(body))
	var extras map[string]any
	for k, v := range body {
		if k == "extras" {
			if v == nil {
				continue
			}
			m, ok := v.(map[string]any)
			if !ok {
				return nil, nil, repository.Validation("extras must be an object", nil)
			}
			extras = m
			continue
		}
		fields[k] = v
	}
	return fields, extras, nil
}

// List handles GET /v1/bookings.
func (h *BookingHandler) List(c echo.Context) error {
	q := &repository.ListQuery{
		Filter: repository.Filter{
			Q:        strings.TrimSpace(c.QueryParam("q")),
			Platform: strings.TrimSpace(c.QueryParam("platform")),
			From:     c.QueryParam("from"),
			To:       c.QueryParam("to"),
		},
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", repository.DefaultPageSize),
		Sort:     c.QueryParam("sort"),
		Order:    c.QueryParam("order"),
	}
	if v := c.QueryParam("status"); v != "" {
		q.Status = normalize.PaymentStatus(v)
	}
	if v := c.QueryParam("review"); v != "" {
		q.Review = normalize.ReviewStatus(v)
	}
	if v := c.QueryParam("channel"); v != "" {
		q.Channel = normalize.Channel(v)
	}
	q.Normalize()

	recs, total, err := h.svc.List(c.Request().Context(), q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":    true,
		"data":       recs,
		"pagination": newPagination(q.Page, q.PageSize, total),
	})
}

// Get handles GET /v1/bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	detail, err := h.svc.Detail(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, detail)
}

// Create handles POST /v1/bookings.
func (h *BookingHandler) Create(c echo.Context) error {
	var body map[string]any
	if err := decodeBody(c, &body); err != nil {
		return err
	}
	fields, extras, err := splitExtras(body)
	if err != nil {
		return err
	}
	rec, err := h.svc.Create(c.Request().Context(), service.CreateInput{Fields: fields, Extras: extras}, middleware.Meta(c))
	if err != nil {
		return err
	}
	return success(c, http.StatusCreated, rec)
}

type importRequest struct {
	RawText     string         `json:"raw_text"`
	Reservation map[string]any `json:"reservation"`
}

// Import handles POST /v1/bookings/import: a record parsed from free text,
// deduplicated on a fingerprint of that text.
func (h *BookingHandler) Import(c echo.Context) error {
	var req importRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	if req.Reservation == nil {
		return repository.Validation("reservation is required", nil)
	}
	fields, extras, err := splitExtras(req.Reservation)
	if err != nil {
		return err
	}
	rec, err := h.svc.Import(c.Request().Context(), req.RawText,
		service.CreateInput{Fields: fields, Extras: extras}, middleware.Meta(c))
	if err != nil {
		return err
	}
	return success(c, http.StatusCreated, rec)
}

// expectation reads the concurrency token from the If-Unmodified-Since
// header and the _lock_version body member, removing the latter from body.
func expectation(c echo.Context, body map[string]any) (service.Expectation, error) {
	var exp service.Expectation
	if v, ok := body[LockVersionField]; ok {
		delete(body, LockVersionField)
		var n int
		switch t := v.(type) {
		case float64:
			n = int(t)
			if float64(n) != t {
				return exp, repository.Validation(LockVersionField+" must be an integer", nil)
			}
		case string:
			parsed, err := strconv.Atoi(t)
			if err != nil {
				return exp, repository.Validation(LockVersionField+" must be an integer", nil)
			}
			n = parsed
		default:
			return exp, repository.Validation(LockVersionField+" must be an integer", nil)
		}
		exp.LockVersion = &n
	}
	if hv := c.Request().Header.Get("If-Unmodified-Since"); hv != "" {
		t, err := http.ParseTime(hv)
		if err != nil {
			return exp, repository.Validation("If-Unmodified-Since is not an HTTP date", nil)
		}
		t = t.UTC()
		exp.UnmodifiedSince = &t
	}
	return exp, nil
}

// Update handles PATCH /v1/bookings/:id.
func (h *BookingHandler) Update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var body map[string]any
	if err := decodeBody(c, &body); err != nil {
		return err
	}
	if body == nil {
		body = map[string]any{}
	}
	exp, err := expectation(c, body)
	if err != nil {
		return err
	}
	fields, extras, err := splitExtras(body)
	if err != nil {
		return err
	}
	rec, err := h.svc.Update(c.Request().Context(), id, service.UpdateInput{Fields: fields, Extras: extras}, exp, middleware.Meta(c))
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, rec)
}

type statusRequest struct {
	PaymentStatus *string `json:"payment_status"`
	ReviewStatus  *string `json:"review_status"`
	LockVersion   *int    `json:"_lock_version"`
}

// UpdateStatus handles PATCH /v1/bookings/:id/status.
func (h *BookingHandler) UpdateStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	if req.PaymentStatus == nil && req.ReviewStatus == nil {
		return repository.Validation("payment_status or review_status is required", nil)
	}
	rec, err := h.svc.UpdateStatus(c.Request().Context(), id, req.PaymentStatus, req.ReviewStatus,
		service.Expectation{LockVersion: req.LockVersion}, middleware.Meta(c))
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, rec)
}

type reasonRequest struct {
	Reason     string `json:"reason"`
	HardDelete bool   `json:"hard_delete"`
}

// Cancel handles POST /v1/bookings/:id/cancel.
func (h *BookingHandler) Cancel(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	rec, err := h.svc.Cancel(c.Request().Context(), id, strings.TrimSpace(req.Reason), middleware.Meta(c))
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, rec)
}

// Delete handles DELETE /v1/bookings/:id.  The body may carry a reason
// and hard_delete.
func (h *BookingHandler) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id, strings.TrimSpace(req.Reason), req.HardDelete, middleware.Meta(c)); err != nil {
		return err
	}
	return success(c, http.StatusOK, echo.Map{"id": id, "hard_delete": req.HardDelete})
}

type restoreRequest struct {
	PaymentStatus string `json:"payment_status"`
}

// Restore handles POST /v1/bookings/:id/restore.
func (h *BookingHandler) Restore(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req restoreRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	rec, err := h.svc.Restore(c.Request().Context(), id, req.PaymentStatus, middleware.Meta(c))
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, rec)
}
