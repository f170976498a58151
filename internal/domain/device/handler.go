package device

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/renalink/renalink/internal/platform/httperr"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/patients/:id/device-connections", h.Connect)
	api.GET("/patients/:id/device-connections", h.ListByPatient)
	api.POST("/device-connections/:id/pause", h.Pause)
	api.POST("/device-connections/:id/resume", h.Resume)
	api.POST("/device-connections/:id/revoke", h.Revoke)
}

func (h *Handler) Connect(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.JSON(c, httperr.Validationf("invalid patient id"))
	}
	var req ConnectRequest
	if err := c.Bind(&req); err != nil {
		return httperr.JSON(c, httperr.Validationf("invalid request body"))
	}

	conn, err := h.svc.Connect(c.Request().Context(), patientID, req)
	if err != nil {
		return httperr.JSON(c, err)
	}
	return c.JSON(http.StatusCreated, conn)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.JSON(c, httperr.Validationf("invalid patient id"))
	}

	conns, err := h.svc.ListByPatient(c.Request().Context(), patientID)
	if err != nil {
		return httperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, conns)
}

func (h *Handler) Pause(c echo.Context) error {
	return h.transition(c, h.svc.Pause)
}

func (h *Handler) Resume(c echo.Context) error {
	return h.transition(c, h.svc.Resume)
}

func (h *Handler) Revoke(c echo.Context) error {
	return h.transition(c, h.svc.Revoke)
}

func (h *Handler) transition(c echo.Context, fn func(context.Context, uuid.UUID) (*Connection, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.JSON(c, httperr.Validationf("invalid device connection id"))
	}
	conn, err := fn(c.Request().Context(), id)
	if err != nil {
		return httperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, conn)
}
