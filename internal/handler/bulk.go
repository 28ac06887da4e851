package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/booking-record-engine/internal/export"
	"github.com/iliyamo/booking-record-engine/internal/middleware"
	"github.com/iliyamo/booking-record-engine/internal/service"
)

// BulkHandler serves POST /v1/bookings/bulk.
type BulkHandler struct {
	svc *service.BulkService
	log *zap.Logger
}

// NewBulkHandler panics on a nil service.
func NewBulkHandler(svc *service.BulkService, log *zap.Logger) *BulkHandler {
	if svc == nil {
		panic("nil service passed to NewBulkHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &BulkHandler{svc: svc, log: log}
}

// Run executes a bulk mutation, or streams an export file when the
// action is export.
func (h *BulkHandler) Run(c echo.Context) error {
	var req service.BulkRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	if err := service.CheckAction(req.Action); err != nil {
		return err
	}
	if req.Action == service.BulkExport {
		return h.export(c, req)
	}
	res, err := h.svc.Execute(c.Request().Context(), req, middleware.Meta(c))
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, res)
}

func (h *BulkHandler) export(c echo.Context, req service.BulkRequest) error {
	out, err := h.svc.Export(c.Request().Context(), req)
	if err != nil {
		return err
	}
	mime, ext := export.ContentType(out.Format)
	name := fmt.Sprintf("bookings-%s.%s", time.Now().UTC().Format("20060102-150405"), ext)
	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, mime)
	resp.Header().Set(echo.HeaderContentDisposition, "attachment; filename="+name)
	resp.WriteHeader(http.StatusOK)
	if err := export.Write(resp, out.Format, out.Fields, out.Records); err != nil {
		// headers are already on the wire; all we can do is log
		h.log.Error("export write failed", zap.Error(err), zap.Int("records", len(out.Records)))
	}
	return nil
}
