package alert

import (
	"context"
	"net/http"

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
	api.GET("/alerts", h.List)
	api.GET("/alerts/:id", h.Get)
	api.GET("/patients/:id/alerts", h.ListByPatient)
	api.POST("/alerts/:id/acknowledge", h.Acknowledge)
	api.POST("/alerts/:id/dismiss", h.Dismiss)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.JSON(c, httperr.Validationf("invalid alert id"))
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	alerts, total, err := h.svc.List(c.Request().Context(), c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return httperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(alerts, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListByPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.JSON(c, httperr.Validationf("invalid patient id"))
	}
	pg := pagination.FromContext(c)
	alerts, total, err := h.svc.ListByPatient(c.Request().Context(), patientID,
		c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return httperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(alerts, total, pg.Limit, pg.Offset))
}

func (h *Handler) Acknowledge(c echo.Context) error {
	return h.close(c, h.svc.Acknowledge)
}

func (h *Handler) Dismiss(c echo.Context) error {
	return h.close(c, h.svc.Dismiss)
}

func (h *Handler) close(c echo.Context, action func(context.Context, uuid.UUID, string) (*Alert, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.JSON(c, httperr.Validationf("invalid alert id"))
	}
	actor := auth.ActorIDFromContext(c.Request().Context())
	a, err := action(c.Request().Context(), id, actor)
	if err != nil {
		return httperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, a)
}
