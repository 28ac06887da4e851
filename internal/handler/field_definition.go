package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/booking-record-engine/internal/model"
	"github.com/iliyamo/booking-record-engine/internal/repository"
	"github.com/iliyamo/booking-record-engine/internal/service"
)

// FieldDefinitionHandler serves the extras catalog under /v1/field-defs.
type FieldDefinitionHandler struct {
	svc *service.FieldDefinitionService
}

// NewFieldDefinitionHandler panics on a nil service.
func NewFieldDefinitionHandler(svc *service.FieldDefinitionService) *FieldDefinitionHandler {
	if svc == nil {
		panic("nil service passed to NewFieldDefinitionHandler")
	}
	return &FieldDefinitionHandler{svc: svc}
}

// List handles GET /v1/field-defs?active=true&category=...
func (h *FieldDefinitionHandler) List(c echo.Context) error {
	activeOnly, _ := strconv.ParseBool(c.QueryParam("active"))
	defs, err := h.svc.List(c.Request().Context(), activeOnly, c.QueryParam("category"))
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, defs)
}

// Get handles GET /v1/field-defs/:key.
func (h *FieldDefinitionHandler) Get(c echo.Context) error {
	def, err := h.svc.Get(c.Request().Context(), c.Param("key"))
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, def)
}

// Create handles POST /v1/field-defs.
func (h *FieldDefinitionHandler) Create(c echo.Context) error {
	var def model.FieldDefinition
	if err := decodeBody(c, &def); err != nil {
		return err
	}
	out, err := h.svc.Create(c.Request().Context(), def)
	if err != nil {
		return err
	}
	return success(c, http.StatusCreated, out)
}

// Update handles PATCH /v1/field-defs/:key.
func (h *FieldDefinitionHandler) Update(c echo.Context) error {
	var patch model.FieldDefinitionPatch
	if err := decodeBody(c, &patch); err != nil {
		return err
	}
	out, err := h.svc.Update(c.Request().Context(), c.Param("key"), patch)
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, out)
}

// Delete handles DELETE /v1/field-defs/:key.  ?hard=true removes the row
// instead of deactivating it.
func (h *FieldDefinitionHandler) Delete(c echo.Context) error {
	hard, _ := strconv.ParseBool(c.QueryParam("hard"))
	key := c.Param("key")
	if err := h.svc.Deactivate(c.Request().Context(), key, hard); err != nil {
		return err
	}
	return success(c, http.StatusOK, echo.Map{"key": key, "hard": hard})
}

// Import handles POST /v1/field-defs/import with a JSON array or an
// object holding "definitions".
func (h *FieldDefinitionHandler) Import(c echo.Context) error {
	var wrapped struct {
		Definitions []service.DefinitionInput `json:"definitions"`
	}
	if err := decodeBody(c, &wrapped); err != nil {
		return err
	}
	if len(wrapped.Definitions) == 0 {
		return repository.Validation("definitions must be a non-empty list", nil)
	}
	res, err := h.svc.BulkImport(c.Request().Context(), wrapped.Definitions)
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, res)
}
