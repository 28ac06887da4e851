package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/booking-record-engine/internal/repository"
)

// AuditHandler is the read-only ledger surface under /v1/audits.
type AuditHandler struct {
	repo *repository.AuditRepo
}

// NewAuditHandler panics on a nil repository.
func NewAuditHandler(repo *repository.AuditRepo) *AuditHandler {
	if repo == nil {
		panic("nil repository passed to NewAuditHandler")
	}
	return &AuditHandler{repo: repo}
}

// ForBooking handles GET /v1/audits/bookings/:id.
func (h *AuditHandler) ForBooking(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	page := queryInt(c, "page", 1)
	size := queryInt(c, "page_size", repository.DefaultPageSize)
	entries, total, err := h.repo.Query(c.Request().Context(), id, page, size, c.QueryParam("action"))
	if err != nil {
		return err
	}
	page, size = repository.ClampPage(page, size)
	return c.JSON(http.StatusOK, echo.Map{
		"success":    true,
		"data":       entries,
		"pagination": newPagination(page, size, total),
	})
}

// Recent handles GET /v1/audits/recent?hours=&actor=&action=.
func (h *AuditHandler) Recent(c echo.Context) error {
	entries, err := h.repo.Recent(c.Request().Context(), queryInt(c, "hours", 24), c.QueryParam("actor"), c.QueryParam("action"))
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, entries)
}

func csvParam(c echo.Context, name string) []string {
	var out []string
	for _, part := range strings.Split(c.QueryParam(name), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func timeParam(c echo.Context, name string) (*time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, repository.Validation(name+" must be RFC3339 or YYYY-MM-DD", nil)
}

// Search handles GET /v1/audits/search.  booking_ids, actors and actions
// take comma separated lists.
func (h *AuditHandler) Search(c echo.Context) error {
	crit := repository.SearchCriteria{
		Actors:   csvParam(c, "actors"),
		Actions:  csvParam(c, "actions"),
		Text:     strings.TrimSpace(c.QueryParam("q")),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", repository.DefaultPageSize),
	}
	for _, raw := range csvParam(c, "booking_ids") {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return repository.Validation("booking_ids must be numeric", nil)
		}
		crit.BookingIDs = append(crit.BookingIDs, id)
	}
	var err error
	if crit.From, err = timeParam(c, "from"); err != nil {
		return err
	}
	if crit.To, err = timeParam(c, "to"); err != nil {
		return err
	}
	entries, total, err := h.repo.Search(c.Request().Context(), crit)
	if err != nil {
		return err
	}
	page, size := repository.ClampPage(crit.Page, crit.PageSize)
	return c.JSON(http.StatusOK, echo.Map{
		"success":    true,
		"data":       entries,
		"pagination": newPagination(page, size, total),
	})
}

// Stats handles GET /v1/audits/stats?days=.
func (h *AuditHandler) Stats(c echo.Context) error {
	stats, err := h.repo.Statistics(c.Request().Context(), queryInt(c, "days", 7))
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, stats)
}
