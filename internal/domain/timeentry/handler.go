package timeentry

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/renalink/renalink/internal/platform/auth"
	"github.com/renalink/renalink/internal/platform/httperr"
	"github.com/renalink/renalink/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/patients/:id/time-entries", h.Create)
	api.GET("/patients/:id/time-entries", h.ListByPatient)
	api.PUT("/time-entries/:id", h.Update)
	api.DELETE("/time-entries/:id", h.Delete)
}

func (h *Handler) Create(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.JSON(c, httperr.Validationf("invalid patient id"))
	}
	var req EntryRequest
	if err := c.Bind(&req); err != nil {
		return httperr.JSON(c, httperr.Validationf("invalid request body"))
	}

	ctx := c.Request().Context()
	te, err := h.svc.Create(ctx, patientID, auth.ActorIDFromContext(ctx), auth.ActorRoleFromContext(ctx), req)
	if err != nil {
		return httperr.JSON(c, err)
	}
	return c.JSON(http.StatusCreated, te)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.JSON(c, httperr.Validationf("invalid time entry id"))
	}
	var req EntryRequest
	if err := c.Bind(&req); err != nil {
		return httperr.JSON(c, httperr.Validationf("invalid request body"))
	}

	ctx := c.Request().Context()
	te, err := h.svc.Update(ctx, id, auth.ActorIDFromContext(ctx), req)
	if err != nil {
		return httperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, te)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.JSON(c, httperr.Validationf("invalid time entry id"))
	}

	ctx := c.Request().Context()
	if err := h.svc.Delete(ctx, id, auth.ActorIDFromContext(ctx)); err != nil {
		return httperr.JSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.JSON(c, httperr.Validationf("invalid patient id"))
	}
	from, to, err := timeRange(c)
	if err != nil {
		return httperr.JSON(c, err)
	}
	pg := pagination.FromContext(c)

	entries, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, from, to, pg.Limit, pg.Offset)
	if err != nil {
		return httperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, pg.Limit, pg.Offset))
}

func timeRange(c echo.Context) (time.Time, time.Time, error) {
	var from, to time.Time
	if v := c.QueryParam("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return from, to, httperr.Validationf("from must be RFC3339")
		}
		from = t
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return from, to, httperr.Validationf("to must be RFC3339")
		}
		to = t
	}
	return from, to, nil
}
