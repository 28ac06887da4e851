package handler // handler exposes the booking engine over HTTP

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/booking-record-engine/internal/repository"
)

// Pagination is returned alongside every paged list.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	pages := 0
	if pageSize > 0 {
		pages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return Pagination{Page: page, PageSize: pageSize, Total: total, TotalPages: pages}
}

func success(c echo.Context, status int, data any) error {
	return c.JSON(status, echo.Map{"success": true, "data": data})
}

// decodeBody reads the JSON body only; path and query parameters never
// leak into dst.
func decodeBody(c echo.Context, dst any) error {
	if err := (&echo.DefaultBinder{}).BindBody(c, dst); err != nil {
		return repository.Validation("malformed request body", nil)
	}
	return nil
}

func parseID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, repository.Validation("invalid id", nil)
	}
	return id, nil
}

func queryInt(c echo.Context, name string, def int) int {
	v := c.QueryParam(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

var kindStatus = map[repository.Kind]int{
	repository.KindValidation:   http.StatusBadRequest,
	repository.KindConflict:     http.StatusConflict,
	repository.KindNotFound:     http.StatusNotFound,
	repository.KindBusinessRule: http.StatusUnprocessableEntity,
	repository.KindForbidden:    http.StatusForbidden,
	repository.KindInternal:     http.StatusInternalServerError,
}

var httpCodes = map[int]string{
	http.StatusBadRequest:       repository.CodeValidation,
	http.StatusUnauthorized:     "UNAUTHORIZED",
	http.StatusForbidden:        repository.CodeForbidden,
	http.StatusNotFound:         repository.CodeNotFound,
	http.StatusMethodNotAllowed: "METHOD_NOT_ALLOWED",
	http.StatusTooManyRequests:  "RATE_LIMITED",
}

// ErrorHandler renders every error in the {success:false, error_code,
// message, errors?} envelope.  Causes of internal errors are logged and
// only echoed to the client in development.
func ErrorHandler(log *zap.Logger, development bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, body := errorBody(err, development)
		if status >= 500 {
			log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			log.Warn("write error response", zap.Error(err))
		}
	}
}

func errorBody(err error, development bool) (int, echo.Map) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code, ok := httpCodes[he.Code]
		if !ok {
			code = repository.CodeInternal
		}
		return he.Code, echo.Map{"success": false, "error_code": code, "message": fmt.Sprint(he.Message)}
	}

	var e *repository.Error
	if !errors.As(err, &e) {
		e = repository.Internal("internal error", err)
	}
	status, ok := kindStatus[e.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	code := e.Code
	if code == "" {
		code = repository.CodeInternal
		if e.Kind == repository.KindConflict {
			code = repository.CodeConflict
		}
	}
	body := echo.Map{"success": false, "error_code": code, "message": e.Message}
	switch {
	case e.Kind == repository.KindValidation && e.Details != nil:
		body["errors"] = e.Details
	case e.Kind == repository.KindInternal:
		if development && e.Err != nil {
			body["details"] = e.Err.Error()
		}
	case e.Details != nil:
		body["details"] = e.Details
	}
	return status, body
}
